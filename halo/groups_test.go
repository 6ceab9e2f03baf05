package halo

import "testing"

func graphWithEdges(edges map[chainPair]float64) *ChainGraph {
	return &ChainGraph{Edges: edges, Potential: make(map[int64][]int32)}
}

func TestGroupSeedingAndSaddleMerge(t *testing.T) {
	dens := map[int64]float64{0: 10, 1: 9, 2: 5}
	graph := graphWithEdges(map[chainPair]float64{
		{High: 0, Low: 1}: 7.5,
		{High: 1, Low: 2}: 6.0,
	})

	groups := buildGroups(dens, graph, 8, 7)
	if groups.GroupCount != 1 {
		t.Fatalf("Expected the saddle merge to leave 1 group, got %d", groups.GroupCount)
	}
	for chain := int64(0); chain < 3; chain++ {
		if groups.ReverseMap[chain] != 0 {
			t.Errorf("Chain %d maps to group %d, want 0", chain, groups.ReverseMap[chain])
		}
	}
	if groups.DensestInGroup[0] != 10 {
		t.Errorf("DensestInGroup[0] = %g, want 10", groups.DensestInGroup[0])
	}
}

func TestGroupSaddleTooLow(t *testing.T) {
	dens := map[int64]float64{0: 10, 1: 9, 2: 5}
	graph := graphWithEdges(map[chainPair]float64{
		{High: 0, Low: 1}: 6.5, // below saddle, peaks stay separate
		{High: 1, Low: 2}: 6.0,
	})

	groups := buildGroups(dens, graph, 8, 7)
	if groups.GroupCount != 2 {
		t.Fatalf("Expected 2 groups, got %d", groups.GroupCount)
	}
	if groups.ReverseMap[0] != 0 || groups.ReverseMap[1] != 1 {
		t.Errorf("Peak chains map to %d and %d, want 0 and 1", groups.ReverseMap[0], groups.ReverseMap[1])
	}
	if groups.ReverseMap[2] != 1 {
		t.Errorf("Sub-peak chain attached to group %d, want 1", groups.ReverseMap[2])
	}
	if groups.DensestInGroup[1] != 9 {
		t.Errorf("DensestInGroup[1] = %g, want 9", groups.DensestInGroup[1])
	}
}

func TestGroupSubPeakKeepsDensestBoundary(t *testing.T) {
	// The sub-peak chain borders both peaks; the denser boundary wins even
	// though it is processed second.
	dens := map[int64]float64{0: 12, 1: 11, 2: 5}
	graph := graphWithEdges(map[chainPair]float64{
		{High: 0, Low: 2}: 4.0,
		{High: 1, Low: 2}: 6.0,
	})

	groups := buildGroups(dens, graph, 10, 100)
	if groups.ReverseMap[2] != groups.ReverseMap[1] {
		t.Errorf("Sub-peak chain should follow its densest boundary to chain 1's group")
	}
}

func TestGroupFringePropagation(t *testing.T) {
	dens := map[int64]float64{0: 10, 1: 5, 2: 4}
	graph := graphWithEdges(map[chainPair]float64{
		{High: 0, Low: 1}: 6.0, // attaches chain 1 to the peak group
		{High: 1, Low: 2}: 3.0, // both sub-peak: deferred to the fringe pass
	})

	groups := buildGroups(dens, graph, 8, 7)
	if groups.GroupCount != 1 {
		t.Fatalf("Expected 1 group, got %d", groups.GroupCount)
	}
	if groups.ReverseMap[2] != 0 {
		t.Errorf("Fringe chain maps to %d, want group 0", groups.ReverseMap[2])
	}
}

func TestGroupAllSubPeakEliminated(t *testing.T) {
	// No chain reaches peakThreshold; the fringe pass has no recorded bound
	// to propagate from, so every chain is eliminated.
	dens := map[int64]float64{0: 5, 1: 4}
	graph := graphWithEdges(map[chainPair]float64{
		{High: 0, Low: 1}: 4.5,
	})

	groups := buildGroups(dens, graph, 8, 7)
	if groups.GroupCount != 0 {
		t.Fatalf("Expected no groups, got %d", groups.GroupCount)
	}
	for chain, g := range groups.ReverseMap {
		if g != -1 {
			t.Errorf("Chain %d maps to %d, want -1", chain, g)
		}
	}
}

func TestCompactionIdempotent(t *testing.T) {
	dens := map[int64]float64{0: 10, 1: 9, 2: 5, 3: 2}
	graph := graphWithEdges(map[chainPair]float64{
		{High: 0, Low: 1}: 7.5,
		{High: 1, Low: 2}: 6.0,
	})
	groups := buildGroups(dens, graph, 8, 7)

	first := make(map[int64]int64, len(groups.ReverseMap))
	for k, v := range groups.ReverseMap {
		first[k] = v
	}

	again := compactGroups(groups.ReverseMap, dens, newUnionFind())
	if again.GroupCount != groups.GroupCount {
		t.Fatalf("Recompaction changed the group count: %d vs %d", again.GroupCount, groups.GroupCount)
	}
	for k, v := range first {
		if again.ReverseMap[k] != v {
			t.Errorf("Recompaction moved chain %d: %d vs %d", k, again.ReverseMap[k], v)
		}
	}
}

func TestUnionFindDensityRank(t *testing.T) {
	uf := newUnionFind()
	uf.add(0, 5)
	uf.add(1, 8)

	// The high side of the merge has the lower peak; the denser group's
	// root must survive.
	uf.union(0, 1)
	if uf.find(0) != 1 || uf.find(1) != 1 {
		t.Errorf("Denser group should be the surviving root, got find(0)=%d find(1)=%d", uf.find(0), uf.find(1))
	}
	if uf.peak(0) != 8 {
		t.Errorf("peak after merge = %g, want 8", uf.peak(0))
	}

	// Unregistered ids resolve to themselves.
	if uf.find(42) != 42 {
		t.Errorf("find of an unknown id should return it unchanged")
	}
}
