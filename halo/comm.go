package halo

import "context"

// LinkRecord is the wire record of the boundary exchange: a padded particle
// that terminated a chain, identified partition-independently, together with
// the chain id it carries. For each of the 26 directions a partition sends a
// count and then that many records.
type LinkRecord struct {
	GlobalID int64
	ChainID  int64
}

// GraphEdge is the wire form of one chain-pair boundary: the two chain ids
// and the boundary density between them. Orientation is normalized against
// the globally reduced chain peak densities after gathering, so senders need
// not agree on which side is High.
type GraphEdge struct {
	High    int64
	Low     int64
	Density float64
}

// Comm is the collective-operation contract between the partitions of one
// run. The underlying transport is out of scope here; transport.Mesh
// provides the in-process implementation. Every method blocks until all
// peers have entered the same collective, so partitions advance in
// lock-step; a canceled context is the only way out of a mismatched
// collective.
type Comm interface {
	// Rank is this partition's index in [0, Size).
	Rank() int

	// Size is the number of partitions.
	Size() int

	// AllGatherInt gathers one integer from every partition, indexed by rank.
	AllGatherInt(ctx context.Context, v int) ([]int, error)

	// AllReduceOr reduces a flag across partitions with logical OR.
	AllReduceOr(ctx context.Context, v bool) (bool, error)

	// AllReduceMaxFloat64 reduces equal-length vectors element-wise with max.
	// The group stages use it to agree on every chain's densest member.
	AllReduceMaxFloat64(ctx context.Context, vals []float64) ([]float64, error)

	// AllGatherEdges concatenates every partition's edge list in rank order,
	// so each partition sees the complete chain graph.
	AllGatherEdges(ctx context.Context, edges []GraphEdge) ([]GraphEdge, error)

	// ExchangeLinks ships each direction's records to the logically adjacent
	// partition and returns everything addressed to this one, ordered by
	// incoming direction code and then by the sender's record order.
	// out[CenterShift] is ignored.
	ExchangeLinks(ctx context.Context, out *[27][]LinkRecord) ([]LinkRecord, error)
}

// Solo is the Comm of a single-partition run: gathers return the local value
// and there are no neighbors to exchange with.
type Solo struct{}

func (Solo) Rank() int { return 0 }
func (Solo) Size() int { return 1 }

func (Solo) AllGatherInt(_ context.Context, v int) ([]int, error) { return []int{v}, nil }

func (Solo) AllReduceOr(_ context.Context, v bool) (bool, error) { return v, nil }

func (Solo) AllReduceMaxFloat64(_ context.Context, vals []float64) ([]float64, error) {
	return append([]float64(nil), vals...), nil
}

func (Solo) AllGatherEdges(_ context.Context, edges []GraphEdge) ([]GraphEdge, error) {
	return append([]GraphEdge(nil), edges...), nil
}

func (Solo) ExchangeLinks(_ context.Context, _ *[27][]LinkRecord) ([]LinkRecord, error) {
	return nil, nil
}
