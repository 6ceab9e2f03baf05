package halo

import "sort"

// groupResult is the group assembler's output: the authoritative
// chain-to-group association, the dense group id space, and each group's
// densest member density.
type groupResult struct {
	ReverseMap     map[int64]int64 // chain id -> compact group id, -1 = eliminated
	GroupCount     int
	DensestInGroup []float64
}

type fringeEdge struct {
	high, low int64
	dens      float64
}

// buildGroups merges chains into groups by the threshold policy. Chains
// whose densest member reaches peakThresh seed their own groups; chain-pair
// boundaries merge two peak groups when the boundary reaches saddleThresh,
// attach a sub-peak chain to the peak group behind its densest boundary, or
// defer pairs of sub-peak chains to the fringe pass. The fringe pass
// propagates group membership along fringe boundaries to a fixed point, a
// connection being only as good as its weakest boundary. Finally the
// surviving group ids are compacted onto 0..GroupCount-1.
func buildGroups(densestInChain map[int64]float64, graph *ChainGraph, peakThresh, saddleThresh float64) *groupResult {
	chains := make([]int64, 0, len(densestInChain))
	for id := range densestInChain {
		chains = append(chains, id)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })

	reverseMap := make(map[int64]int64, len(chains))
	densestBound := make(map[int64]float64, len(chains))
	for _, id := range chains {
		reverseMap[id] = -1
		densestBound[id] = -1
	}

	// Seeding: every peak-density chain becomes its own group.
	uf := newUnionFind()
	var nextGroup int64
	for _, id := range chains {
		if densestInChain[id] >= peakThresh {
			uf.add(nextGroup, densestInChain[id])
			reverseMap[id] = nextGroup
			nextGroup++
		}
	}

	// Direct merges over the recorded chain-pair boundaries. Edge
	// orientation already puts the denser chain on the High side.
	var fringe []fringeEdge
	for _, pair := range graph.sortedEdges() {
		dens := graph.Edges[pair]
		hiPeak := densestInChain[pair.High]
		loPeak := densestInChain[pair.Low]

		switch {
		case hiPeak < peakThresh && loPeak < peakThresh:
			// Neither side is a peak chain yet; decided by propagation.
			fringe = append(fringe, fringeEdge{high: pair.High, low: pair.Low, dens: dens})

		case hiPeak >= peakThresh && loPeak >= peakThresh:
			if dens < saddleThresh {
				continue
			}
			uf.union(reverseMap[pair.High], reverseMap[pair.Low])

		default:
			// Exactly one peak chain, necessarily the High side. Attach the
			// sub-peak chain to it if this is the densest boundary that
			// chain has seen.
			if dens > densestBound[pair.Low] {
				densestBound[pair.Low] = dens
				reverseMap[pair.Low] = uf.find(reverseMap[pair.High])
			}
		}
	}

	// Fringe propagation to a fixed point.
	for changed := true; changed; {
		changed = false
		for _, e := range fringe {
			if e.dens > densestBound[e.low] && densestBound[e.high] > densestBound[e.low] {
				changed = true
				if e.dens < densestBound[e.high] {
					densestBound[e.low] = e.dens
				} else {
					densestBound[e.low] = densestBound[e.high]
				}
				reverseMap[e.low] = reverseMap[e.high]
			}
		}
	}

	return compactGroups(reverseMap, densestInChain, uf)
}

// compactGroups resolves every chain's group through the union-find, then
// renumbers the distinct surviving group ids onto a dense range starting at
// 0, in ascending order of the old ids. Running it again over an
// already-compacted map is the identity.
func compactGroups(reverseMap map[int64]int64, densestInChain map[int64]float64, uf *unionFind) *groupResult {
	used := make(map[int64]struct{})
	for chain, g := range reverseMap {
		if g < 0 {
			continue
		}
		root := uf.find(g)
		reverseMap[chain] = root
		used[root] = struct{}{}
	}

	old := make([]int64, 0, len(used))
	for g := range used {
		old = append(old, g)
	}
	sort.Slice(old, func(i, j int) bool { return old[i] < old[j] })

	remap := make(map[int64]int64, len(old))
	for dense, g := range old {
		remap[g] = int64(dense)
	}
	densest := make([]float64, len(old))
	for chain, g := range reverseMap {
		if g < 0 {
			continue
		}
		d := remap[g]
		reverseMap[chain] = d
		if densestInChain[chain] > densest[d] {
			densest[d] = densestInChain[chain]
		}
	}

	return &groupResult{
		ReverseMap:     reverseMap,
		GroupCount:     len(old),
		DensestInGroup: densest,
	}
}

// translateGroupIDs applies the chain-to-group map to every particle,
// producing the final per-particle group ids. Unassigned particles and
// particles of eliminated chains stay -1.
func (ps *ParticleSet) translateGroupIDs(reverseMap map[int64]int64) []int64 {
	out := make([]int64, ps.Len())
	for i := range out {
		out[i] = -1
		if c := ps.ChainID[i]; c >= 0 {
			if g, ok := reverseMap[c]; ok {
				out[i] = g
			}
		}
	}
	return out
}
