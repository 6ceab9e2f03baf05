package halo

import (
	"context"
	"testing"
)

// lineSet builds the 10-particle line scenario: densities
// [1,2,3,10,9,8,0.5,0.2,7,6] with two density peaks, at index 3 and index 8,
// separated by an under-dense gap. Neighbor lists have width 2 (the particle
// itself plus its relevant slope neighbor).
func lineSet(t *testing.T) (*ParticleSet, *TableIndex) {
	t.Helper()
	n := 10
	x := make([]float64, n)
	y := make([]float64, n)
	z := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = float64(i) + 0.5
		y[i] = 0.5
		z[i] = 0.5
	}
	ps := newTestSet(t, x, y, z, Bounds{Max: [3]float64{10, 1, 1}})
	idx := &TableIndex{
		Dens: []float64{1, 2, 3, 10, 9, 8, 0.5, 0.2, 7, 6},
		Tags: [][]int32{
			{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 3},
			{5, 4}, {6, 5}, {7, 6}, {8, 9}, {9, 8},
		},
	}
	return ps, idx
}

func TestFindDensestNeighbors(t *testing.T) {
	ps, idx := lineSet(t)
	if err := ps.loadDensities(context.Background(), idx, 2); err != nil {
		t.Fatalf("loadDensities: %v", err)
	}
	ps.findDensestNeighbors()

	want := []int32{1, 2, 3, 3, 3, 4, 5, 6, 8, 8}
	for i, w := range want {
		if got := ps.DensestNeighbor(int32(i)); got != w {
			t.Errorf("densest neighbor of %d = %d, want %d", i, got, w)
		}
	}
	// The two peaks reference themselves.
	for _, peak := range []int32{3, 8} {
		if ps.DensestNeighbor(peak) != peak {
			t.Errorf("Particle %d should be a self-referencing peak", peak)
		}
	}
}

func TestBuildChainsLine(t *testing.T) {
	ps, idx := lineSet(t)
	if err := ps.loadDensities(context.Background(), idx, 2); err != nil {
		t.Fatalf("loadDensities: %v", err)
	}
	ps.findDensestNeighbors()

	count, densest, padded := ps.buildChains(3)
	if count != 2 {
		t.Fatalf("Expected 2 chains, got %d", count)
	}
	if len(padded) != 0 {
		t.Errorf("No padded terminals expected, got %d", len(padded))
	}
	if densest[0] != 10 || densest[1] != 7 {
		t.Errorf("densest-in-chain = %v, want {0:10 1:7}", densest)
	}

	wantChain := []int64{-1, -1, 0, 0, 0, 0, -1, -1, 1, 1}
	for i, w := range wantChain {
		if ps.ChainID[i] != w {
			t.Errorf("chainID[%d] = %d, want %d", i, ps.ChainID[i], w)
		}
	}
}

// Each chain must contain exactly one member whose densest neighbor is
// itself or that lies in padding.
func TestChainsHaveUniqueTerminal(t *testing.T) {
	ps, idx := lineSet(t)
	if err := ps.loadDensities(context.Background(), idx, 2); err != nil {
		t.Fatalf("loadDensities: %v", err)
	}
	ps.findDensestNeighbors()
	ps.buildChains(3)

	terminals := make(map[int64]int)
	for i := 0; i < ps.Len(); i++ {
		if ps.ChainID[i] < 0 {
			continue
		}
		if ps.DensestNeighbor(int32(i)) == int32(i) || !ps.Inside[i] {
			terminals[ps.ChainID[i]]++
		}
	}
	for chain, n := range terminals {
		if n != 1 {
			t.Errorf("Chain %d has %d terminals, want exactly 1", chain, n)
		}
	}
	if len(terminals) != 2 {
		t.Errorf("Expected terminals for 2 chains, got %d", len(terminals))
	}
}

func TestOffsetChainIDs(t *testing.T) {
	ps, idx := lineSet(t)
	if err := ps.loadDensities(context.Background(), idx, 2); err != nil {
		t.Fatalf("loadDensities: %v", err)
	}
	ps.findDensestNeighbors()
	_, densest, _ := ps.buildChains(3)

	densest = ps.offsetChainIDs(5, densest)
	if densest[5] != 10 || densest[6] != 7 {
		t.Errorf("Offset densest-in-chain = %v, want {5:10 6:7}", densest)
	}
	if ps.ChainID[0] != -1 {
		t.Errorf("Unassigned particles must stay -1, got %d", ps.ChainID[0])
	}
	if ps.ChainID[3] != 5 || ps.ChainID[8] != 6 {
		t.Errorf("chainID[3]=%d chainID[8]=%d, want 5 and 6", ps.ChainID[3], ps.ChainID[8])
	}
}
