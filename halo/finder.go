package halo

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Options configures one partition's finder. Threshold is the base density
// threshold; the saddle and peak thresholds derive from it (2.5x and 3x)
// unless set explicitly.
type Options struct {
	Threshold       float64
	SaddleThreshold float64 // 0 = 2.5 * Threshold
	PeakThreshold   float64 // 0 = 3 * Threshold
	NumNeighbors    int     // k, width of the stored neighbor table
	NMerge          int     // merge neighborhood; the graph scans NMerge+2 entries
	MaxRounds       int     // exchange round cap, 0 = total particle count
	Log             *zap.Logger
	Diag            *Diagnostics
}

func (o *Options) normalize() error {
	if o.Threshold <= 0 {
		return fmt.Errorf("%w: threshold %g must be positive", ErrInputShape, o.Threshold)
	}
	if o.NumNeighbors < 2 {
		return fmt.Errorf("%w: neighbor count %d must be at least 2", ErrInputShape, o.NumNeighbors)
	}
	if o.SaddleThreshold == 0 {
		o.SaddleThreshold = 2.5 * o.Threshold
	}
	if o.PeakThreshold == 0 {
		o.PeakThreshold = 3 * o.Threshold
	}
	if o.NMerge <= 0 {
		o.NMerge = 4
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	return nil
}

// Result is one partition's output: the final group id per local particle
// (aligned to the particle arrays, -1 = unassigned) plus run diagnostics.
// Group ids are global: the group assembly runs on globally reduced state,
// so every partition reports the same GroupCount and DensestInGroup and a
// chain keeps one group id wherever its particles live.
type Result struct {
	GroupID        []int64
	GroupCount     int
	DensestInGroup []float64 // indexed by group id

	Chains       int64
	Rounds       int
	LinksSent    int
	DroppedLinks int
}

// Finder runs the chain-linkage pipeline over one partition's particles:
// density and neighbor queries, chain building, global chain id allocation,
// the iterated boundary link exchange, chain graph construction, and group
// assembly. The stages run strictly in sequence; the collective operations
// inside keep all partitions in lock-step.
type Finder struct {
	ps   *ParticleSet
	idx  Index
	comm Comm
	opts Options
	log  *zap.Logger
}

// NewFinder validates options and wires up a finder. The index is owned by
// the finder from here on and is closed when Run no longer needs it.
func NewFinder(ps *ParticleSet, idx Index, comm Comm, opts Options) (*Finder, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	if comm == nil {
		comm = Solo{}
	}
	log := opts.Log.With(zap.Int("rank", comm.Rank()))
	return &Finder{ps: ps, idx: idx, comm: comm, opts: opts, log: log}, nil
}

// Run executes the pipeline to completion. Any error is fatal for the whole
// distributed job; there is no partial result.
func (f *Finder) Run(ctx context.Context) (*Result, error) {
	ps := f.ps
	indexOpen := true
	closeIndex := func() {
		if indexOpen {
			indexOpen = false
			if err := f.idx.Close(); err != nil {
				f.log.Warn("closing spatial index", zap.Error(err))
			}
		}
	}
	defer closeIndex()

	f.log.Info("querying densities and neighbors",
		zap.Int("particles", ps.Len()), zap.Int("k", f.opts.NumNeighbors))
	if err := ps.loadDensities(ctx, f.idx, f.opts.NumNeighbors); err != nil {
		return nil, fmt.Errorf("density/neighbor queries: %w", err)
	}
	ps.findDensestNeighbors()

	f.log.Info("building particle chains", zap.Float64("threshold", f.opts.Threshold))
	chainCount, densestInChain, padded := ps.buildChains(f.opts.Threshold)
	f.log.Debug("local chains built",
		zap.Int64("chains", chainCount), zap.Int("padded_terminals", len(padded)))

	// Globally unique chain ids: offset by the chain counts of lower ranks.
	counts, err := f.comm.AllGatherInt(ctx, int(chainCount))
	if err != nil {
		return nil, fmt.Errorf("gathering chain counts: %w", err)
	}
	var offset, totalChains int64
	for rank, c := range counts {
		if rank < f.comm.Rank() {
			offset += int64(c)
		}
		totalChains += int64(c)
	}
	densestInChain = ps.offsetChainIDs(offset, densestInChain)

	maxRounds := f.opts.MaxRounds
	if maxRounds <= 0 {
		// Every continuing round retires at least one distinct chain id,
		// and there cannot be more chains than particles, so the total
		// particle count bounds the rounds of any consistent decomposition.
		sizes, err := f.comm.AllGatherInt(ctx, ps.Len())
		if err != nil {
			return nil, fmt.Errorf("gathering particle counts: %w", err)
		}
		for _, n := range sizes {
			maxRounds += n
		}
	}

	f.log.Info("reconciling chains across partitions")
	stats, err := ps.exchangeBoundaryLinks(ctx, f.comm, padded, densestInChain, maxRounds)
	if err != nil {
		return nil, err
	}
	if stats.Dropped > 0 {
		f.log.Warn("boundary records dropped: partition decomposition looks inconsistent",
			zap.Int("dropped", stats.Dropped))
	}
	f.log.Debug("boundary exchange converged",
		zap.Int("rounds", stats.Rounds), zap.Int("sent", stats.Sent))

	f.log.Info("connecting chains", zap.Int("merge_neighbors", f.opts.NMerge+2))
	graph := ps.buildChainGraph(densestInChain, f.opts.NMerge)
	closeIndex()

	// Every partition only knows part of each chain's peak density and part
	// of the chain graph. Reduce both globally so all partitions run the
	// identical group assembly and agree on every group id.
	densVec := make([]float64, totalChains)
	for id, d := range densestInChain {
		if id >= 0 && id < totalChains {
			densVec[id] = d
		}
	}
	densVec, err = f.comm.AllReduceMaxFloat64(ctx, densVec)
	if err != nil {
		return nil, fmt.Errorf("reducing chain densities: %w", err)
	}
	globalDens := make(map[int64]float64, len(densVec))
	for id, d := range densVec {
		globalDens[int64(id)] = d
	}
	allEdges, err := f.comm.AllGatherEdges(ctx, graph.edgeList())
	if err != nil {
		return nil, fmt.Errorf("gathering chain graph: %w", err)
	}
	merged := mergeEdges(allEdges, globalDens)

	f.log.Info("building groups",
		zap.Float64("peak_threshold", f.opts.PeakThreshold),
		zap.Float64("saddle_threshold", f.opts.SaddleThreshold),
		zap.Int("graph_edges", len(merged.Edges)))
	groups := buildGroups(globalDens, merged, f.opts.PeakThreshold, f.opts.SaddleThreshold)
	groupID := ps.translateGroupIDs(groups.ReverseMap)

	res := &Result{
		GroupID:        groupID,
		GroupCount:     groups.GroupCount,
		DensestInGroup: groups.DensestInGroup,
		Chains:         chainCount,
		Rounds:         stats.Rounds,
		LinksSent:      stats.Sent,
		DroppedLinks:   stats.Dropped,
	}
	f.opts.Diag.record(res, f.comm.Rank() == 0)
	f.log.Info("finder done",
		zap.Int64("chains", chainCount),
		zap.Int("groups", res.GroupCount),
		zap.Int("dropped_links", stats.Dropped))
	return res, nil
}
