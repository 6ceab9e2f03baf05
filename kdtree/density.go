package kdtree

import (
	"fmt"
	"math"
)

// Index adapts the tree to the finder's spatial-index contract: per-particle
// kernel density and an ordered neighbor list of fixed width k. Results are
// memoized per particle; the finder queries disjoint particle ranges from
// its workers, so no slot is ever filled twice concurrently.
type Index struct {
	tree *Tree
	mass []float64
	k    int

	tags [][]int32
	dens []float64
}

// NewIndex builds a tree over the coordinates and wraps it with a density
// estimator using k neighbors and the given masses.
func NewIndex(x, y, z, mass []float64, k int) (*Index, error) {
	n := len(x)
	if len(mass) != n {
		return nil, fmt.Errorf("kdtree: %d masses for %d points", len(mass), n)
	}
	if k < 2 {
		return nil, fmt.Errorf("kdtree: neighbor count %d must be at least 2", k)
	}
	if k > n {
		k = n
	}
	tree, err := Build(x, y, z)
	if err != nil {
		return nil, err
	}
	return &Index{
		tree: tree,
		mass: mass,
		k:    k,
		tags: make([][]int32, n),
		dens: make([]float64, n),
	}, nil
}

func (ix *Index) ensure(i int32) error {
	if ix.tree == nil {
		return fmt.Errorf("kdtree: index is closed")
	}
	if ix.tags[i] != nil {
		return nil
	}
	nn := ix.tree.KNN(ix.tree.x[i], ix.tree.y[i], ix.tree.z[i], ix.k)

	tags := make([]int32, len(nn))
	for j, c := range nn {
		tags[j] = c.idx
	}
	ix.tags[i] = tags
	ix.dens[i] = splineDensity(nn, ix.mass)
	return nil
}

// Density returns the smoothed local mass density at particle i.
func (ix *Index) Density(i int32) (float64, error) {
	if err := ix.ensure(i); err != nil {
		return 0, err
	}
	return ix.dens[i], nil
}

// Neighbors returns particle i's k nearest neighbors, nearest first; the
// particle itself is the first entry.
func (ix *Index) Neighbors(i int32) ([]int32, error) {
	if err := ix.ensure(i); err != nil {
		return nil, err
	}
	return ix.tags[i], nil
}

// Close releases the tree. Memoized tables are dropped too; the finder has
// copied what it needs by the time it closes the index.
func (ix *Index) Close() error {
	ix.tree = nil
	ix.tags = nil
	ix.dens = nil
	return nil
}

// splineDensity evaluates the standard cubic spline kernel over a neighbor
// list, with the smoothing length set by the farthest neighbor. Candidates
// arrive nearest-first, so the last entry fixes h.
func splineDensity(nn []neighbor, mass []float64) float64 {
	h2 := nn[len(nn)-1].d2
	if h2 == 0 {
		// Fully degenerate positions; pile all mass at one point.
		var m float64
		for _, c := range nn {
			m += mass[c.idx]
		}
		return m
	}
	h := math.Sqrt(h2)
	norm := 8 / (math.Pi * h * h * h)
	var dens float64
	for _, c := range nn {
		q := math.Sqrt(c.d2) / h
		var w float64
		switch {
		case q < 0.5:
			w = 1 - 6*q*q + 6*q*q*q
		case q < 1:
			d := 1 - q
			w = 2 * d * d * d
		}
		dens += mass[c.idx] * norm * w
	}
	return dens
}
