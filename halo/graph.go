package halo

import "sort"

// chainPair is an ordered pair of chain ids: High is the chain whose densest
// member is denser. Equal peak densities keep the neighbor chain on the High
// side, matching the first-writer-wins tie policy of the merge stage.
type chainPair struct {
	High int64
	Low  int64
}

// ChainGraph is the inter-chain adjacency built from boundary particle
// pairs. Edges keep only the maximum boundary density observed for a pair;
// Potential lists, per chain, the unassigned padded particles adjacent to it
// whose chains live in other partitions.
type ChainGraph struct {
	Edges     map[chainPair]float64
	Potential map[int64][]int32
}

// buildChainGraph scans every chain-assigned owned particle's merge
// neighborhood (the nMerge+2 nearest entries of its stored neighbor list)
// for particles in other chains. A pair of adjacent chains is linked with
// the arithmetic mean of the two particles' densities; only the densest
// boundary per pair survives. Unassigned padded neighbors are recorded as
// potential neighbors of the particle's chain, deduplicated.
func (ps *ParticleSet) buildChainGraph(densestInChain map[int64]float64, nMerge int) *ChainGraph {
	g := &ChainGraph{
		Edges:     make(map[chainPair]float64),
		Potential: make(map[int64][]int32),
	}
	width := nMerge + 2
	if width > ps.nnWidth {
		width = ps.nnWidth
	}
	seen := make(map[int64]map[int32]struct{})

	for i := 0; i < ps.Len(); i++ {
		ci := ps.ChainID[i]
		if ci < 0 || !ps.Inside[i] {
			continue
		}
		peak := densestInChain[ci]
		for _, nn := range ps.Neighbors(int32(i))[:width] {
			// Same-chain neighbors cover the chain's own spine. That
			// includes the densest-neighbor link: an owned particle always
			// shares its chain with its densest neighbor, because walks
			// adopt through that link and boundary reassignments relabel
			// whole chains. No separate ascent-link skip is needed.
			cn := ps.ChainID[nn]
			if cn == ci || nn == int32(i) {
				continue
			}
			switch {
			case cn >= 0:
				boundary := (ps.Density[nn] + ps.Density[i]) / 2
				pair := chainPair{High: cn, Low: ci}
				if densestInChain[cn] < peak {
					pair = chainPair{High: ci, Low: cn}
				}
				if old, ok := g.Edges[pair]; !ok || boundary > old {
					g.Edges[pair] = boundary
				}
			case !ps.Inside[nn]:
				// A padded particle with no chain here belongs to a chain in
				// some other partition; remember it for later consideration.
				set, ok := seen[ci]
				if !ok {
					set = make(map[int32]struct{})
					seen[ci] = set
				}
				if _, dup := set[nn]; !dup {
					set[nn] = struct{}{}
					g.Potential[ci] = append(g.Potential[ci], nn)
				}
			}
		}
	}
	return g
}

// edgeList flattens the graph into wire form, in deterministic order.
func (g *ChainGraph) edgeList() []GraphEdge {
	out := make([]GraphEdge, 0, len(g.Edges))
	for _, pair := range g.sortedEdges() {
		out = append(out, GraphEdge{High: pair.High, Low: pair.Low, Density: g.Edges[pair]})
	}
	return out
}

// mergeEdges folds the gathered edge lists of all partitions into one graph.
// Pair orientation is renormalized against the globally reduced peak
// densities (two partitions may have disagreed while their density views
// were still partial); equal peaks put the higher chain id on the High side.
// Only the densest boundary per pair survives, as in the local build.
func mergeEdges(edges []GraphEdge, densestInChain map[int64]float64) *ChainGraph {
	g := &ChainGraph{
		Edges:     make(map[chainPair]float64, len(edges)),
		Potential: make(map[int64][]int32),
	}
	for _, e := range edges {
		pair := chainPair{High: e.High, Low: e.Low}
		dh, dl := densestInChain[pair.High], densestInChain[pair.Low]
		if dh < dl || (dh == dl && pair.High < pair.Low) {
			pair.High, pair.Low = pair.Low, pair.High
		}
		if old, ok := g.Edges[pair]; !ok || e.Density > old {
			g.Edges[pair] = e.Density
		}
	}
	return g
}

// sortedEdges returns the graph's edges in a deterministic order: by the
// higher chain id, then the lower. The merge stage's outcome depends on
// traversal order, so the order must be fixed.
func (g *ChainGraph) sortedEdges() []chainPair {
	pairs := make([]chainPair, 0, len(g.Edges))
	for p := range g.Edges {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].High != pairs[j].High {
			return pairs[i].High < pairs[j].High
		}
		return pairs[i].Low < pairs[j].Low
	})
	return pairs
}
