package halo

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrNoConvergence reports a boundary exchange that exceeded its round cap
// without reaching a global fixed point. That indicates inconsistent
// partition geometry (overlapping or gapped domains) and is fatal.
var ErrNoConvergence = errors.New("halo: boundary exchange did not converge")

// exchangeStats is what the boundary exchange reports back for diagnostics.
type exchangeStats struct {
	Rounds  int
	Sent    int
	Dropped int // received records whose global index resolves to no local particle
}

// buildLinkRecords groups this round's padded chain terminals by the shift
// code of the neighboring partition that owns them. Records carry the
// terminal's current chain id, so reassignments from earlier rounds
// propagate.
func (ps *ParticleSet) buildLinkRecords(padded []int32) (out [27][]LinkRecord, n int) {
	for _, p := range padded {
		code := ShiftIndex(ps.FindShift(p))
		if code == CenterShift {
			// An owned particle cannot terminate a chain in the padding;
			// guard against a degenerate bounds setup.
			continue
		}
		out[code] = append(out[code], LinkRecord{
			GlobalID: ps.GlobalID[p],
			ChainID:  ps.ChainID[p],
		})
		n++
	}
	return out, n
}

// recordWins orders two records targeting the same particle: the chain with
// the higher locally known densest member wins, ties go to the lower chain
// id. The order is total, so a particle receiving the same records settles
// on the same winner every round.
func recordWins(a, b LinkRecord, densestInChain map[int64]float64) bool {
	da, db := densestInChain[a.ChainID], densestInChain[b.ChainID]
	if da != db {
		return da > db
	}
	return a.ChainID < b.ChainID
}

// exchangeBoundaryLinks reconciles chain identity across partition
// boundaries. Each round every partition ships its padded chain terminals to
// the partitions that own those particles. For each owned particle that
// received records, one winner is selected under a fixed total order and the
// particle's entire current chain is relabeled to the winner, folding its
// densest-member value into the adopted chain. Rounds repeat until a
// logical-OR reduction over all partitions reports no change; relabeling
// strictly reduces the number of distinct chain ids, so a consistent
// decomposition always reaches a fixed point.
//
// A received global index with no local particle is dropped and counted, not
// fatal: it marks a decomposition inconsistency that is surfaced in the run
// diagnostics. Exceeding maxRounds is fatal.
func (ps *ParticleSet) exchangeBoundaryLinks(
	ctx context.Context,
	comm Comm,
	padded []int32,
	densestInChain map[int64]float64,
	maxRounds int,
) (exchangeStats, error) {
	var stats exchangeStats
	for {
		if stats.Rounds >= maxRounds {
			return stats, fmt.Errorf("%w: %d rounds", ErrNoConvergence, stats.Rounds)
		}
		stats.Rounds++

		// Rebuilt every round: terminals keep their local index but their
		// chain id may have been rewritten by the previous round.
		out, sent := ps.buildLinkRecords(padded)
		stats.Sent += sent

		recv, err := comm.ExchangeLinks(ctx, &out)
		if err != nil {
			return stats, fmt.Errorf("link exchange round %d: %w", stats.Rounds, err)
		}

		// Several partitions can terminate chains at the same owned particle
		// when it sits near a cell corner. Resolve each target to a single
		// winning record before touching any chain id.
		winners := make(map[int32]LinkRecord)
		for _, rec := range recv {
			local, ok := ps.Local(rec.GlobalID)
			if !ok {
				stats.Dropped++
				continue
			}
			if best, seen := winners[local]; !seen || recordWins(rec, best, densestInChain) {
				winners[local] = rec
			}
		}
		targets := make([]int32, 0, len(winners))
		for local := range winners {
			targets = append(targets, local)
		}
		sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

		changed := false
		for _, local := range targets {
			rec := winners[local]
			old := ps.ChainID[local]
			if old == rec.ChainID {
				continue
			}
			changed = true
			if old < 0 {
				ps.ChainID[local] = rec.ChainID
			} else {
				// The ascent structure below a terminal follows it: relabel
				// the whole chain so no remnant keeps the old id or its
				// densest-member value.
				for i := range ps.ChainID {
					if ps.ChainID[i] == old {
						ps.ChainID[i] = rec.ChainID
					}
				}
			}
			d := densestInChain[rec.ChainID]
			if old >= 0 {
				if peak := densestInChain[old]; peak > d {
					d = peak
				}
				delete(densestInChain, old)
			}
			if ps.Density[local] > d {
				d = ps.Density[local]
			}
			densestInChain[rec.ChainID] = d
		}

		anyChanged, err := comm.AllReduceOr(ctx, changed)
		if err != nil {
			return stats, fmt.Errorf("convergence reduction round %d: %w", stats.Rounds, err)
		}
		if !anyChanged {
			return stats, nil
		}
	}
}
