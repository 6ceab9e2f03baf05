package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"web/chainhop/halo"
	"web/chainhop/kdtree"
	"web/chainhop/transport"
)

// Job describes one complete finder run over a snapshot.
type Job struct {
	Snapshot *halo.Snapshot
	Grid     [3]int
	Periodic [3]bool
	Padding  float64

	Opts halo.Options
	Log  *zap.Logger
}

// Run decomposes the snapshot, runs one finder per partition concurrently
// over an in-process mesh, and assembles the per-partition outputs into a
// catalog aligned with the snapshot's particle order. Any partition error
// cancels the whole job.
func Run(ctx context.Context, job Job) (*halo.Catalog, error) {
	log := job.Log
	if log == nil {
		log = zap.NewNop()
	}
	snap := job.Snapshot
	if snap == nil || snap.Len() == 0 {
		return nil, fmt.Errorf("runner: empty snapshot")
	}

	start := time.Now()
	sets, err := Decompose(snap, job.Grid, job.Periodic, job.Padding)
	if err != nil {
		return nil, err
	}
	for r, ps := range sets {
		if ps.Len() < job.Opts.NumNeighbors {
			return nil, fmt.Errorf("runner: partition %d has %d particles, need at least %d for neighbor queries",
				r, ps.Len(), job.Opts.NumNeighbors)
		}
	}
	log.Info("snapshot decomposed",
		zap.Int("particles", snap.Len()),
		zap.Ints("grid", []int{job.Grid[0], job.Grid[1], job.Grid[2]}),
		zap.Float64("padding", job.Padding))

	mesh, err := transport.NewMesh(job.Grid, job.Periodic)
	if err != nil {
		return nil, err
	}

	results := make([]*halo.Result, mesh.Size())
	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < mesh.Size(); rank++ {
		rank := rank
		g.Go(func() error {
			ps := sets[rank]
			idx, err := kdtree.NewIndex(ps.X, ps.Y, ps.Z, ps.Mass, job.Opts.NumNeighbors)
			if err != nil {
				return fmt.Errorf("partition %d: building index: %w", rank, err)
			}
			opts := job.Opts
			opts.Log = log
			finder, err := halo.NewFinder(ps, idx, mesh.Comm(rank), opts)
			if err != nil {
				return fmt.Errorf("partition %d: %w", rank, err)
			}
			res, err := finder.Run(gctx)
			if err != nil {
				return fmt.Errorf("partition %d: %w", rank, err)
			}
			results[rank] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cat, err := assemble(snap, sets, results, job.Opts)
	if err != nil {
		return nil, err
	}
	log.Info("finder job done",
		zap.Int("groups", cat.NumGroups()),
		zap.Duration("elapsed", time.Since(start)))
	return cat, nil
}

// assemble folds per-partition results back into snapshot particle order.
// Every snapshot particle is owned by exactly one partition; padded copies
// carry no group assignment of their own.
func assemble(snap *halo.Snapshot, sets []*halo.ParticleSet, results []*halo.Result, opts halo.Options) (*halo.Catalog, error) {
	row := make(map[int64]int, snap.Len())
	for i, id := range snap.ID {
		row[id] = i
	}

	groupID := make([]int64, snap.Len())
	for i := range groupID {
		groupID[i] = -1
	}

	for rank, res := range results {
		ps := sets[rank]
		for i, g := range res.GroupID {
			if g < 0 || !ps.Inside[i] {
				continue
			}
			r, ok := row[ps.GlobalID[i]]
			if !ok {
				return nil, fmt.Errorf("runner: partition %d holds unknown particle id %d", rank, ps.GlobalID[i])
			}
			groupID[r] = g
		}
	}
	// The group assembly is global; every partition reports the same table.
	densest := append([]float64(nil), results[0].DensestInGroup...)

	saddle, peak := opts.SaddleThreshold, opts.PeakThreshold
	if saddle == 0 {
		saddle = 2.5 * opts.Threshold
	}
	if peak == 0 {
		peak = 3 * opts.Threshold
	}
	return &halo.Catalog{
		CreatedAt:       time.Now().UTC(),
		Threshold:       opts.Threshold,
		SaddleThreshold: saddle,
		PeakThreshold:   peak,
		NumNeighbors:    opts.NumNeighbors,
		GroupID:         groupID,
		DensestInGroup:  densest,
	}, nil
}
