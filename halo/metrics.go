package halo

import "github.com/prometheus/client_golang/prometheus"

// Diagnostics carries the finder's operational counters. Dropped link
// records in particular must be visible after a run: they indicate a
// decomposition inconsistency that is deliberately not fatal.
type Diagnostics struct {
	DroppedLinks   prometheus.Counter
	ExchangeRounds prometheus.Counter
	LinksSent      prometheus.Counter
	ChainsBuilt    prometheus.Counter
	GroupsFound    prometheus.Counter
}

// NewDiagnostics builds the counter set and registers it with reg when reg
// is non-nil.
func NewDiagnostics(reg prometheus.Registerer) *Diagnostics {
	d := &Diagnostics{
		DroppedLinks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainhop_exchange_dropped_links_total",
			Help: "Boundary link records whose global particle index had no local particle.",
		}),
		ExchangeRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainhop_exchange_rounds_total",
			Help: "Boundary exchange rounds run until the global fixed point.",
		}),
		LinksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainhop_exchange_links_sent_total",
			Help: "Padded link records shipped to neighboring partitions.",
		}),
		ChainsBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainhop_chains_built_total",
			Help: "Local chains minted by the chain builder.",
		}),
		GroupsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainhop_groups_found_total",
			Help: "Groups surviving merge and compaction.",
		}),
	}
	if reg != nil {
		reg.MustRegister(d.DroppedLinks, d.ExchangeRounds, d.LinksSent, d.ChainsBuilt, d.GroupsFound)
	}
	return d
}

// record folds one partition's result into the counters. Rounds and groups
// are global values every partition agrees on, so only the primary rank
// contributes them; the rest are genuinely per-partition.
func (d *Diagnostics) record(r *Result, primary bool) {
	if d == nil {
		return
	}
	d.DroppedLinks.Add(float64(r.DroppedLinks))
	d.LinksSent.Add(float64(r.LinksSent))
	d.ChainsBuilt.Add(float64(r.Chains))
	if primary {
		d.ExchangeRounds.Add(float64(r.Rounds))
		d.GroupsFound.Add(float64(r.GroupCount))
	}
}
