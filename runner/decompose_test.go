package runner

import (
	"testing"

	"web/chainhop/halo"
)

func testSnapshot(id []int64, x, y, z []float64) *halo.Snapshot {
	mass := make([]float64, len(id))
	for i := range mass {
		mass[i] = 1
	}
	return &halo.Snapshot{
		ID: id, X: x, Y: y, Z: z, Mass: mass,
		Domain: halo.Bounds{Max: [3]float64{1, 1, 1}},
	}
}

// locate returns the local index of a global id, preferring the owned copy.
func locate(ps *halo.ParticleSet, id int64) (int, bool) {
	found := -1
	for i, g := range ps.GlobalID {
		if g != id {
			continue
		}
		if ps.Inside[i] {
			return i, true
		}
		found = i
	}
	return found, found >= 0
}

func TestDecomposeSinglePartition(t *testing.T) {
	snap := testSnapshot(
		[]int64{0, 1, 2},
		[]float64{0.1, 0.5, 0.9},
		[]float64{0.2, 0.5, 0.8},
		[]float64{0.3, 0.5, 0.7},
	)
	sets, err := Decompose(snap, [3]int{1, 1, 1}, [3]bool{}, 0.1)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("got %d partitions, want 1", len(sets))
	}
	ps := sets[0]
	if ps.Len() != 3 {
		t.Fatalf("partition has %d particles, want 3", ps.Len())
	}
	for i := 0; i < ps.Len(); i++ {
		if !ps.Inside[i] {
			t.Errorf("particle %d is padded in a non-periodic single partition", ps.GlobalID[i])
		}
	}
	if ps.Bounds != snap.Domain {
		t.Errorf("partition bounds %v, want the whole domain %v", ps.Bounds, snap.Domain)
	}
}

func TestDecomposeOwnersAndGhosts(t *testing.T) {
	// Two cells split at x = 0.5, padding 0.1. B and C sit within padding of
	// the interior face; A and D do not.
	snap := testSnapshot(
		[]int64{10, 11, 12, 13},
		[]float64{0.25, 0.45, 0.55, 0.95},
		[]float64{0.5, 0.5, 0.5, 0.5},
		[]float64{0.5, 0.5, 0.5, 0.5},
	)
	sets, err := Decompose(snap, [3]int{2, 1, 1}, [3]bool{}, 0.1)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}

	if sets[0].Len() != 3 || sets[1].Len() != 3 {
		t.Fatalf("partition sizes %d/%d, want 3/3", sets[0].Len(), sets[1].Len())
	}
	checks := []struct {
		rank   int
		id     int64
		inside bool
	}{
		{0, 10, true}, {0, 11, true}, {0, 12, false},
		{1, 11, false}, {1, 12, true}, {1, 13, true},
	}
	for _, c := range checks {
		i, ok := locate(sets[c.rank], c.id)
		if !ok {
			t.Errorf("rank %d: particle %d missing", c.rank, c.id)
			continue
		}
		if sets[c.rank].Inside[i] != c.inside {
			t.Errorf("rank %d particle %d: Inside = %v, want %v", c.rank, c.id, sets[c.rank].Inside[i], c.inside)
		}
	}
	// D is at the domain edge; non-periodic, so no ghost anywhere.
	if _, ok := locate(sets[0], 13); ok {
		t.Error("rank 0 holds a ghost of the far edge particle")
	}
}

func TestDecomposePeriodicGhostTranslation(t *testing.T) {
	snap := testSnapshot(
		[]int64{20, 21},
		[]float64{0.02, 0.98},
		[]float64{0.5, 0.5},
		[]float64{0.5, 0.5},
	)
	sets, err := Decompose(snap, [3]int{2, 1, 1}, [3]bool{true, false, false}, 0.1)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}

	// Particle 21 wraps into rank 0's padding at x = -0.02.
	i, ok := locate(sets[0], 21)
	if !ok {
		t.Fatal("rank 0: wrapped ghost of particle 21 missing")
	}
	if got := sets[0].X[i]; got != -0.02 {
		t.Errorf("wrapped ghost x = %g, want -0.02", got)
	}
	if sets[0].Inside[i] {
		t.Error("wrapped ghost marked owned")
	}
	// Particle 20 wraps into rank 1's padding at x = 1.02.
	i, ok = locate(sets[1], 20)
	if !ok {
		t.Fatal("rank 1: wrapped ghost of particle 20 missing")
	}
	if got := sets[1].X[i]; got != 1.02 {
		t.Errorf("wrapped ghost x = %g, want 1.02", got)
	}
}

func TestDecomposeRejectsWidePadding(t *testing.T) {
	snap := testSnapshot([]int64{0}, []float64{0.5}, []float64{0.5}, []float64{0.5})
	if _, err := Decompose(snap, [3]int{4, 1, 1}, [3]bool{}, 0.3); err == nil {
		t.Fatal("expected error: padding wider than a cell")
	}
}

func TestDecomposeRejectsBadGrid(t *testing.T) {
	snap := testSnapshot([]int64{0}, []float64{0.5}, []float64{0.5}, []float64{0.5})
	if _, err := Decompose(snap, [3]int{0, 1, 1}, [3]bool{}, 0.1); err == nil {
		t.Fatal("expected error for empty grid axis")
	}
}

func TestDecomposeRejectsEmptyDomain(t *testing.T) {
	snap := testSnapshot([]int64{0}, []float64{0.5}, []float64{0.5}, []float64{0.5})
	snap.Domain.Max[1] = 0
	if _, err := Decompose(snap, [3]int{1, 1, 1}, [3]bool{}, 0.1); err == nil {
		t.Fatal("expected error for empty domain axis")
	}
}
