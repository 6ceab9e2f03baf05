package halo

import (
	"errors"
	"fmt"
)

// ErrInputShape reports malformed per-partition input: mismatched array
// lengths or non-positive thresholds. It is fatal before any computation.
var ErrInputShape = errors.New("halo: invalid input shape")

// Bounds is the axis-aligned box of a partition's owned region. Particles at
// or beyond Max, or below Min, on any axis are padding (ghost copies of
// neighboring partitions' particles).
type Bounds struct {
	Min [3]float64
	Max [3]float64
}

// Contains reports whether the position lies in the half-open box
// [Min, Max) on every axis.
func (b Bounds) Contains(x, y, z float64) bool {
	return x >= b.Min[0] && x < b.Max[0] &&
		y >= b.Min[1] && y < b.Max[1] &&
		z >= b.Min[2] && z < b.Max[2]
}

// ParticleSet holds one partition's particles: the owned region plus the
// surrounding padded (ghost) region. Positions, masses and global ids are
// immutable once loaded; density, neighbor tables and chain ids are filled in
// by successive pipeline stages.
type ParticleSet struct {
	GlobalID []int64
	X        []float64
	Y        []float64
	Z        []float64
	Mass     []float64

	Bounds   Bounds
	Period   [3]float64 // per-axis domain period, 0 = non-periodic
	Periodic [3]bool

	// Computed fields.
	Density   []float64
	Inside    []bool
	ChainID   []int64 // -1 = unassigned
	densestNN []int32
	nnTags    []int32 // flat neighbor table, stride nnWidth
	nnWidth   int

	lookup map[int64]int32 // global id -> local index
}

// NewParticleSet validates the input arrays and builds the partition's
// particle set. All arrays must have equal length; the global id lookup table
// is built eagerly so boundary-exchange records can be resolved later.
func NewParticleSet(globalID []int64, x, y, z, mass []float64, bounds Bounds) (*ParticleSet, error) {
	n := len(globalID)
	if len(x) != n || len(y) != n || len(z) != n || len(mass) != n {
		return nil, fmt.Errorf("%w: id/pos/mass lengths %d/%d/%d/%d/%d",
			ErrInputShape, n, len(x), len(y), len(z), len(mass))
	}
	for a := 0; a < 3; a++ {
		if bounds.Max[a] <= bounds.Min[a] {
			return nil, fmt.Errorf("%w: empty bounds on axis %d", ErrInputShape, a)
		}
	}

	ps := &ParticleSet{
		GlobalID: globalID,
		X:        x,
		Y:        y,
		Z:        z,
		Mass:     mass,
		Bounds:   bounds,
		ChainID:  make([]int64, n),
		Inside:   make([]bool, n),
		lookup:   make(map[int64]int32, n),
	}
	for i := 0; i < n; i++ {
		ps.ChainID[i] = -1
		ps.Inside[i] = bounds.Contains(x[i], y[i], z[i])
		ps.lookup[globalID[i]] = int32(i)
	}
	return ps, nil
}

// SetPeriod marks the given axes periodic with the given domain period.
// Shift-vector translation of padded particles near a periodic domain edge
// uses this to pick the near side.
func (ps *ParticleSet) SetPeriod(period [3]float64, periodic [3]bool) {
	ps.Period = period
	ps.Periodic = periodic
}

// Len returns the number of local particles, owned and padded together.
func (ps *ParticleSet) Len() int { return len(ps.GlobalID) }

// Local resolves a global particle index to the local index, if this
// partition knows the particle at all.
func (ps *ParticleSet) Local(globalID int64) (int32, bool) {
	i, ok := ps.lookup[globalID]
	return i, ok
}

// Neighbors returns particle i's stored neighbor tags, nearest first. The
// slice aliases the internal table; callers must not modify it.
func (ps *ParticleSet) Neighbors(i int32) []int32 {
	off := int(i) * ps.nnWidth
	return ps.nnTags[off : off+ps.nnWidth]
}

// DensestNeighbor returns the precomputed densest nearest neighbor of i.
// A particle that is its own densest neighbor is a local density peak.
func (ps *ParticleSet) DensestNeighbor(i int32) int32 { return ps.densestNN[i] }
