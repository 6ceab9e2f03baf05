package halo

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Index is the contract with the external spatial index. For each local
// particle it answers an estimated local density and an ordered list of the
// particle's nearest neighbors (nearest first, the particle itself included).
// The index is a scoped per-partition resource: the finder calls Close once
// the chain graph stage no longer needs neighbor lists.
type Index interface {
	// Density returns the estimated local density of particle i.
	Density(i int32) (float64, error)

	// Neighbors returns the ordered local indices of particle i's nearest
	// neighbors. The returned slice must have the index's fixed neighbor
	// count; the finder keeps its own copy.
	Neighbors(i int32) ([]int32, error)

	// Close releases the index. Further queries are invalid.
	Close() error
}

// loadDensities queries density and the neighbor table for every particle.
// The queries are independent per particle, so they fan out over chunks; any
// adapter error aborts the whole run (all partitions must stay in lock-step).
func (ps *ParticleSet) loadDensities(ctx context.Context, idx Index, k int) error {
	n := ps.Len()
	ps.Density = make([]float64, n)
	ps.nnWidth = k
	ps.nnTags = make([]int32, n*k)

	g, _ := errgroup.WithContext(ctx)
	workers := runtime.GOMAXPROCS(0)
	chunk := (n + workers - 1) / workers
	if chunk < 1 {
		chunk = 1
	}
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		start, end := start, end
		g.Go(func() error {
			for i := start; i < end; i++ {
				d, err := idx.Density(int32(i))
				if err != nil {
					return fmt.Errorf("density query for particle %d: %w", i, err)
				}
				ps.Density[i] = d

				tags, err := idx.Neighbors(int32(i))
				if err != nil {
					return fmt.Errorf("neighbor query for particle %d: %w", i, err)
				}
				if len(tags) != k {
					return fmt.Errorf("%w: neighbor list for particle %d has %d entries, want %d",
						ErrInputShape, i, len(tags), k)
				}
				copy(ps.nnTags[i*k:(i+1)*k], tags)
			}
			return nil
		})
	}
	return g.Wait()
}

// findDensestNeighbors fills the densest-nearest-neighbor link for every
// particle. The scan starts from the particle itself, so a particle denser
// than (or tied with) all of its neighbors links to itself and becomes a
// chain terminal.
func (ps *ParticleSet) findDensestNeighbors() {
	n := ps.Len()
	ps.densestNN = make([]int32, n)
	for i := 0; i < n; i++ {
		best := int32(i)
		bestDens := ps.Density[i]
		for _, nn := range ps.Neighbors(int32(i)) {
			if ps.Density[nn] > bestDens {
				best = nn
				bestDens = ps.Density[nn]
			}
		}
		ps.densestNN[i] = best
	}
}

// TableIndex is an Index backed by precomputed density and neighbor tables.
// It is how an externally built spatial index hands its results to the
// finder, and what the tests use for hand-constructed scenarios.
type TableIndex struct {
	Dens []float64
	Tags [][]int32
}

func (t *TableIndex) Density(i int32) (float64, error) { return t.Dens[i], nil }

func (t *TableIndex) Neighbors(i int32) ([]int32, error) { return t.Tags[i], nil }

func (t *TableIndex) Close() error {
	t.Dens = nil
	t.Tags = nil
	return nil
}
