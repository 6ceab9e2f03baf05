// Package transport provides the in-process implementation of the
// collective operations between partitions: a fixed mesh of workers in one
// process, synchronized by reusable barriers. Every collective follows the
// same shape as a message-passing implementation would (counts, then
// payloads, per direction), but delivery is a slice copy through shared
// mailboxes.
package transport

import (
	"context"
	"fmt"
	"sync"

	"web/chainhop/halo"
)

// Mesh is a 3D grid of partitions, one worker per grid cell. Neighbor
// relations follow the 26 shift directions; periodic axes wrap around the
// grid. All workers of a mesh must execute the same sequence of collectives
// or every one of them deadlocks until the context is canceled.
type Mesh struct {
	dims     [3]int
	periodic [3]bool
	n        int

	bar    *barrier
	gather []int
	flags  []bool
	vecs   [][]float64
	edges  [][]halo.GraphEdge
	posts  [][27][]halo.LinkRecord
}

// NewMesh builds a mesh of dims[0]*dims[1]*dims[2] partitions.
func NewMesh(dims [3]int, periodic [3]bool) (*Mesh, error) {
	n := dims[0] * dims[1] * dims[2]
	if n < 1 {
		return nil, fmt.Errorf("transport: invalid mesh dims %v", dims)
	}
	return &Mesh{
		dims:     dims,
		periodic: periodic,
		n:        n,
		bar:      newBarrier(n),
		gather:   make([]int, n),
		flags:    make([]bool, n),
		vecs:     make([][]float64, n),
		edges:    make([][]halo.GraphEdge, n),
		posts:    make([][27][]halo.LinkRecord, n),
	}, nil
}

// Size returns the number of partitions in the mesh.
func (m *Mesh) Size() int { return m.n }

// Comm returns the collective endpoint for one rank.
func (m *Mesh) Comm(rank int) halo.Comm {
	if rank < 0 || rank >= m.n {
		panic(fmt.Sprintf("transport: rank %d out of range [0,%d)", rank, m.n))
	}
	return &meshComm{mesh: m, rank: rank}
}

// Comms returns all endpoints, indexed by rank.
func (m *Mesh) Comms() []halo.Comm {
	out := make([]halo.Comm, m.n)
	for r := range out {
		out[r] = m.Comm(r)
	}
	return out
}

func (m *Mesh) coordOf(rank int) [3]int {
	return [3]int{
		rank % m.dims[0],
		(rank / m.dims[0]) % m.dims[1],
		rank / (m.dims[0] * m.dims[1]),
	}
}

// rankAt resolves a grid coordinate to a rank, wrapping periodic axes and
// returning -1 when the coordinate falls off a non-periodic edge.
func (m *Mesh) rankAt(c [3]int) int {
	for a := 0; a < 3; a++ {
		if c[a] < 0 || c[a] >= m.dims[a] {
			if !m.periodic[a] {
				return -1
			}
			c[a] = (c[a]%m.dims[a] + m.dims[a]) % m.dims[a]
		}
	}
	return c[0] + m.dims[0]*(c[1]+m.dims[1]*c[2])
}

type meshComm struct {
	mesh *Mesh
	rank int
}

func (c *meshComm) Rank() int { return c.rank }
func (c *meshComm) Size() int { return c.mesh.n }

func (c *meshComm) AllGatherInt(ctx context.Context, v int) ([]int, error) {
	m := c.mesh
	m.gather[c.rank] = v
	if err := m.bar.wait(ctx); err != nil {
		return nil, err
	}
	out := make([]int, m.n)
	copy(out, m.gather)
	// Second barrier: nobody may start the next collective while a peer is
	// still reading this one's buffer.
	if err := m.bar.wait(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *meshComm) AllReduceOr(ctx context.Context, v bool) (bool, error) {
	m := c.mesh
	m.flags[c.rank] = v
	if err := m.bar.wait(ctx); err != nil {
		return false, err
	}
	out := false
	for _, f := range m.flags {
		out = out || f
	}
	if err := m.bar.wait(ctx); err != nil {
		return false, err
	}
	return out, nil
}

func (c *meshComm) AllReduceMaxFloat64(ctx context.Context, vals []float64) ([]float64, error) {
	m := c.mesh
	m.vecs[c.rank] = vals
	if err := m.bar.wait(ctx); err != nil {
		return nil, err
	}
	out := make([]float64, len(vals))
	copy(out, vals)
	for _, peer := range m.vecs {
		if len(peer) != len(vals) {
			return nil, fmt.Errorf("transport: max reduction length mismatch: %d vs %d", len(peer), len(vals))
		}
		for i, v := range peer {
			if v > out[i] {
				out[i] = v
			}
		}
	}
	if err := m.bar.wait(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *meshComm) AllGatherEdges(ctx context.Context, edges []halo.GraphEdge) ([]halo.GraphEdge, error) {
	m := c.mesh
	m.edges[c.rank] = edges
	if err := m.bar.wait(ctx); err != nil {
		return nil, err
	}
	var out []halo.GraphEdge
	for _, peer := range m.edges {
		out = append(out, peer...)
	}
	if err := m.bar.wait(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *meshComm) ExchangeLinks(ctx context.Context, out *[27][]halo.LinkRecord) ([]halo.LinkRecord, error) {
	m := c.mesh

	// Post by value: receivers must never share memory with the sender.
	var posted [27][]halo.LinkRecord
	for code, recs := range out {
		if code == halo.CenterShift || len(recs) == 0 {
			continue
		}
		posted[code] = append([]halo.LinkRecord(nil), recs...)
	}
	m.posts[c.rank] = posted
	if err := m.bar.wait(ctx); err != nil {
		return nil, err
	}

	// Collect in ascending direction order: from the neighbor in direction
	// code, take what it addressed to the opposite direction. The order is
	// part of the contract; the exchanger's apply step depends on it.
	var recv []halo.LinkRecord
	me := m.coordOf(c.rank)
	for code := 0; code < 27; code++ {
		if code == halo.CenterShift {
			continue
		}
		shift := halo.ShiftVector(code)
		nb := m.rankAt([3]int{me[0] + shift[0], me[1] + shift[1], me[2] + shift[2]})
		if nb < 0 {
			continue
		}
		recv = append(recv, m.posts[nb][halo.OppositeShift(code)]...)
	}
	if err := m.bar.wait(ctx); err != nil {
		return nil, err
	}
	return recv, nil
}

// barrier is a reusable n-party rendezvous. A canceled context is the only
// escape from a barrier a peer never reaches; the whole job is failed in
// that case, never retried.
type barrier struct {
	mu      sync.Mutex
	n       int
	count   int
	release chan struct{}
}

func newBarrier(n int) *barrier {
	return &barrier{n: n, release: make(chan struct{})}
}

func (b *barrier) wait(ctx context.Context) error {
	b.mu.Lock()
	ch := b.release
	b.count++
	if b.count == b.n {
		b.count = 0
		b.release = make(chan struct{})
		close(ch)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("transport: barrier abandoned: %w", ctx.Err())
	}
}
