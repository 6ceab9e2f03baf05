package halo

// buildChains links every eligible particle into a density-ascent chain and
// returns the number of local chains created. A chain follows densest-
// nearest-neighbor links until it reaches an already-assigned owned particle
// (adopt that id), a self-densest particle, or a padded particle (mint a new
// id there; padded terminals are recorded for the boundary exchange).
//
// The walk is an explicit path stack rather than recursion so arbitrarily
// long chains cannot exhaust the call stack. Memoization is the ChainID
// field itself: once a particle carries an id the walk never crosses it
// again, and links strictly follow non-decreasing density, so the walk
// terminates.
func (ps *ParticleSet) buildChains(threshold float64) (chainCount int64, densestInChain map[int64]float64, padded []int32) {
	densestInChain = make(map[int64]float64)
	var next int64
	var path []int32

	for i := 0; i < ps.Len(); i++ {
		// Chains start only at unassigned owned particles above threshold;
		// they can end in the padding but never begin there.
		if ps.ChainID[i] >= 0 || !ps.Inside[i] || ps.Density[i] < threshold {
			continue
		}

		path = path[:0]
		cur := int32(i)
		var id int64
		for {
			path = append(path, cur)
			nn := ps.densestNN[cur]
			if ps.ChainID[nn] >= 0 && ps.Inside[cur] {
				// Link collapse: an owned particle linking into an existing
				// chain adopts its id for the whole path.
				id = ps.ChainID[nn]
				break
			}
			if nn == cur || !ps.Inside[cur] {
				// Terminal: a local density peak, or a padded particle one
				// step beyond the owned region. Mint a new chain with this
				// particle as its densest member.
				id = next
				next++
				densestInChain[id] = ps.Density[cur]
				if !ps.Inside[cur] {
					padded = append(padded, cur)
				}
				break
			}
			cur = nn
		}
		for _, p := range path {
			ps.ChainID[p] = id
		}
	}
	return next, densestInChain, padded
}

// offsetChainIDs shifts every assigned chain id by the partition's global
// offset and rekeys the densest-in-chain table to match. -1 stays -1.
func (ps *ParticleSet) offsetChainIDs(offset int64, densestInChain map[int64]float64) map[int64]float64 {
	if offset == 0 {
		return densestInChain
	}
	for i := range ps.ChainID {
		if ps.ChainID[i] >= 0 {
			ps.ChainID[i] += offset
		}
	}
	shifted := make(map[int64]float64, len(densestInChain))
	for id, dens := range densestInChain {
		shifted[id+offset] = dens
	}
	return shifted
}
