// Package runner orchestrates full finder jobs: it decomposes a snapshot
// into padded partitions, runs one finder per partition over an in-process
// mesh, and assembles the per-partition results into a group catalog.
package runner

import (
	"fmt"

	"web/chainhop/halo"
)

type partitionBuilder struct {
	id   []int64
	x    []float64
	y    []float64
	z    []float64
	mass []float64
}

func (b *partitionBuilder) add(id int64, x, y, z, mass float64) {
	b.id = append(b.id, id)
	b.x = append(b.x, x)
	b.y = append(b.y, y)
	b.z = append(b.z, z)
	b.mass = append(b.mass, mass)
}

// Decompose splits a snapshot over a regular dims[0]*dims[1]*dims[2] grid of
// partitions. Each partition gets the particles of its own cell plus ghost
// copies of every particle within padding of the cell from neighboring
// cells. Ghosts that cross a periodic domain edge are translated by the
// domain period, so each partition sees a geometrically contiguous
// neighborhood. Rank numbering matches the transport mesh: x fastest.
func Decompose(snap *halo.Snapshot, dims [3]int, periodic [3]bool, padding float64) ([]*halo.ParticleSet, error) {
	n := dims[0] * dims[1] * dims[2]
	if n < 1 {
		return nil, fmt.Errorf("runner: invalid grid dims %v", dims)
	}

	var width, period [3]float64
	for a := 0; a < 3; a++ {
		span := snap.Domain.Max[a] - snap.Domain.Min[a]
		if span <= 0 {
			return nil, fmt.Errorf("runner: empty domain on axis %d", a)
		}
		width[a] = span / float64(dims[a])
		if dims[a] > 1 && padding >= width[a] {
			return nil, fmt.Errorf("runner: padding %g exceeds cell width %g on axis %d",
				padding, width[a], a)
		}
		if periodic[a] {
			period[a] = span
		}
	}

	cellOf := func(v float64, a int) int {
		c := int((v - snap.Domain.Min[a]) / width[a])
		if c < 0 {
			c = 0
		}
		if c >= dims[a] {
			c = dims[a] - 1
		}
		return c
	}

	builders := make([]partitionBuilder, n)
	for i := 0; i < snap.Len(); i++ {
		pos := [3]float64{snap.X[i], snap.Y[i], snap.Z[i]}
		var cell [3]int
		for a := 0; a < 3; a++ {
			cell[a] = cellOf(pos[a], a)
		}
		owner := cell[0] + dims[0]*(cell[1]+dims[1]*cell[2])
		builders[owner].add(snap.ID[i], pos[0], pos[1], pos[2], snap.Mass[i])

		// Candidate neighbor offsets per axis: a particle is a ghost for the
		// lower or upper neighbor cell when it sits within padding of that
		// cell face.
		var offs [3][]int
		for a := 0; a < 3; a++ {
			offs[a] = append(offs[a], 0)
			lo := snap.Domain.Min[a] + width[a]*float64(cell[a])
			if pos[a] < lo+padding && (cell[a] > 0 || periodic[a]) {
				offs[a] = append(offs[a], -1)
			}
			if pos[a] >= lo+width[a]-padding && (cell[a] < dims[a]-1 || periodic[a]) {
				offs[a] = append(offs[a], 1)
			}
		}

		for _, dx := range offs[0] {
			for _, dy := range offs[1] {
				for _, dz := range offs[2] {
					if dx == 0 && dy == 0 && dz == 0 {
						continue
					}
					target := [3]int{cell[0] + dx, cell[1] + dy, cell[2] + dz}
					ghost := pos
					ok := true
					for a := 0; a < 3; a++ {
						if target[a] < 0 {
							target[a] += dims[a]
							ghost[a] += period[a]
						} else if target[a] >= dims[a] {
							target[a] -= dims[a]
							ghost[a] -= period[a]
						}
						if target[a] < 0 || target[a] >= dims[a] {
							ok = false
						}
					}
					if !ok {
						continue
					}
					rank := target[0] + dims[0]*(target[1]+dims[1]*target[2])
					builders[rank].add(snap.ID[i], ghost[0], ghost[1], ghost[2], snap.Mass[i])
				}
			}
		}
	}

	sets := make([]*halo.ParticleSet, n)
	for r := range builders {
		cell := [3]int{
			r % dims[0],
			(r / dims[0]) % dims[1],
			r / (dims[0] * dims[1]),
		}
		var bounds halo.Bounds
		for a := 0; a < 3; a++ {
			bounds.Min[a] = snap.Domain.Min[a] + width[a]*float64(cell[a])
			bounds.Max[a] = bounds.Min[a] + width[a]
		}
		b := builders[r]
		ps, err := halo.NewParticleSet(b.id, b.x, b.y, b.z, b.mass, bounds)
		if err != nil {
			return nil, fmt.Errorf("runner: partition %d: %w", r, err)
		}
		ps.SetPeriod(period, periodic)
		sets[r] = ps
	}
	return sets, nil
}
