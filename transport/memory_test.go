package transport

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"web/chainhop/halo"
)

// runRanks executes fn once per rank, concurrently, and reports the first
// error through t.
func runRanks(t *testing.T, m *Mesh, fn func(rank int, c halo.Comm) error) {
	t.Helper()
	errs := make([]error, m.Size())
	var wg sync.WaitGroup
	for r := 0; r < m.Size(); r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			errs[rank] = fn(rank, m.Comm(rank))
		}(r)
	}
	wg.Wait()
	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", rank, err)
		}
	}
}

func TestRankCoordinateRoundTrip(t *testing.T) {
	m, err := NewMesh([3]int{2, 3, 2}, [3]bool{})
	if err != nil {
		t.Fatalf("NewMesh: %v", err)
	}
	if m.Size() != 12 {
		t.Fatalf("Size() = %d, want 12", m.Size())
	}
	for r := 0; r < m.Size(); r++ {
		if got := m.rankAt(m.coordOf(r)); got != r {
			t.Errorf("rankAt(coordOf(%d)) = %d", r, got)
		}
	}
	if got := m.coordOf(7); got != [3]int{1, 0, 1} {
		t.Errorf("coordOf(7) = %v, want [1 0 1]", got)
	}
}

func TestRankAtEdges(t *testing.T) {
	wrap, err := NewMesh([3]int{3, 1, 1}, [3]bool{true, false, false})
	if err != nil {
		t.Fatalf("NewMesh: %v", err)
	}
	if got := wrap.rankAt([3]int{3, 0, 0}); got != 0 {
		t.Errorf("periodic wrap high: got rank %d, want 0", got)
	}
	if got := wrap.rankAt([3]int{-1, 0, 0}); got != 2 {
		t.Errorf("periodic wrap low: got rank %d, want 2", got)
	}
	if got := wrap.rankAt([3]int{0, 1, 0}); got != -1 {
		t.Errorf("off a non-periodic edge: got rank %d, want -1", got)
	}
}

func TestNewMeshRejectsEmptyDims(t *testing.T) {
	if _, err := NewMesh([3]int{2, 0, 1}, [3]bool{}); err == nil {
		t.Fatal("expected error for zero-sized axis")
	}
}

func TestAllGatherInt(t *testing.T) {
	m, err := NewMesh([3]int{4, 1, 1}, [3]bool{})
	if err != nil {
		t.Fatalf("NewMesh: %v", err)
	}
	want := []int{0, 10, 20, 30}
	// Two back-to-back rounds exercise barrier reuse.
	for round := 0; round < 2; round++ {
		runRanks(t, m, func(rank int, c halo.Comm) error {
			got, err := c.AllGatherInt(context.Background(), rank*10)
			if err != nil {
				return err
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("round %d rank %d: gathered %v, want %v", round, rank, got, want)
			}
			return nil
		})
	}
}

func TestAllReduceOr(t *testing.T) {
	m, err := NewMesh([3]int{3, 1, 1}, [3]bool{})
	if err != nil {
		t.Fatalf("NewMesh: %v", err)
	}
	runRanks(t, m, func(rank int, c halo.Comm) error {
		got, err := c.AllReduceOr(context.Background(), rank == 1)
		if err != nil {
			return err
		}
		if !got {
			t.Errorf("rank %d: reduction false, one peer voted true", rank)
		}
		return nil
	})
	runRanks(t, m, func(rank int, c halo.Comm) error {
		got, err := c.AllReduceOr(context.Background(), false)
		if err != nil {
			return err
		}
		if got {
			t.Errorf("rank %d: reduction true, all peers voted false", rank)
		}
		return nil
	})
}

func TestAllReduceMaxFloat64(t *testing.T) {
	m, err := NewMesh([3]int{2, 1, 1}, [3]bool{})
	if err != nil {
		t.Fatalf("NewMesh: %v", err)
	}
	inputs := [][]float64{
		{1, 9, 0, 4},
		{3, 2, 0, 8},
	}
	want := []float64{3, 9, 0, 8}
	runRanks(t, m, func(rank int, c halo.Comm) error {
		got, err := c.AllReduceMaxFloat64(context.Background(), inputs[rank])
		if err != nil {
			return err
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("rank %d: reduced %v, want %v", rank, got, want)
		}
		return nil
	})
}

func TestAllGatherEdges(t *testing.T) {
	m, err := NewMesh([3]int{2, 1, 1}, [3]bool{})
	if err != nil {
		t.Fatalf("NewMesh: %v", err)
	}
	inputs := [][]halo.GraphEdge{
		{{High: 1, Low: 0, Density: 5}},
		{{High: 2, Low: 1, Density: 3}, {High: 2, Low: 0, Density: 1}},
	}
	want := []halo.GraphEdge{
		{High: 1, Low: 0, Density: 5},
		{High: 2, Low: 1, Density: 3},
		{High: 2, Low: 0, Density: 1},
	}
	runRanks(t, m, func(rank int, c halo.Comm) error {
		got, err := c.AllGatherEdges(context.Background(), inputs[rank])
		if err != nil {
			return err
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("rank %d: gathered %v, want %v", rank, got, want)
		}
		return nil
	})
}

func TestExchangeLinksRouting(t *testing.T) {
	m, err := NewMesh([3]int{2, 1, 1}, [3]bool{})
	if err != nil {
		t.Fatalf("NewMesh: %v", err)
	}
	plusX := halo.ShiftIndex([3]int{1, 0, 0})
	minusX := halo.ShiftIndex([3]int{-1, 0, 0})

	recvs := make([][]halo.LinkRecord, m.Size())
	runRanks(t, m, func(rank int, c halo.Comm) error {
		var out [27][]halo.LinkRecord
		if rank == 0 {
			out[plusX] = []halo.LinkRecord{{GlobalID: 100, ChainID: 7}}
			// Addressed off the non-periodic edge, must vanish silently.
			out[minusX] = []halo.LinkRecord{{GlobalID: 666, ChainID: 0}}
		} else {
			out[minusX] = []halo.LinkRecord{{GlobalID: 200, ChainID: 3}}
		}
		recv, err := c.ExchangeLinks(context.Background(), &out)
		if err != nil {
			return err
		}
		recvs[rank] = recv
		return nil
	})

	if want := []halo.LinkRecord{{GlobalID: 200, ChainID: 3}}; !reflect.DeepEqual(recvs[0], want) {
		t.Errorf("rank 0 received %v, want %v", recvs[0], want)
	}
	if want := []halo.LinkRecord{{GlobalID: 100, ChainID: 7}}; !reflect.DeepEqual(recvs[1], want) {
		t.Errorf("rank 1 received %v, want %v", recvs[1], want)
	}
}

func TestExchangeLinksCollectOrder(t *testing.T) {
	m, err := NewMesh([3]int{3, 1, 1}, [3]bool{true, false, false})
	if err != nil {
		t.Fatalf("NewMesh: %v", err)
	}
	plusX := halo.ShiftIndex([3]int{1, 0, 0})
	minusX := halo.ShiftIndex([3]int{-1, 0, 0})

	recvs := make([][]halo.LinkRecord, m.Size())
	runRanks(t, m, func(rank int, c halo.Comm) error {
		var out [27][]halo.LinkRecord
		out[plusX] = []halo.LinkRecord{{GlobalID: int64(rank), ChainID: 1}}
		out[minusX] = []halo.LinkRecord{{GlobalID: int64(rank), ChainID: -1}}
		recv, err := c.ExchangeLinks(context.Background(), &out)
		if err != nil {
			return err
		}
		recvs[rank] = recv
		return nil
	})

	// Records from the -x neighbor arrive before records from the +x one:
	// collection runs in ascending direction code.
	want := []halo.LinkRecord{{GlobalID: 0, ChainID: 1}, {GlobalID: 2, ChainID: -1}}
	if !reflect.DeepEqual(recvs[1], want) {
		t.Errorf("rank 1 received %v, want %v", recvs[1], want)
	}
	// Periodic x wraps rank 0's -x neighbor to rank 2.
	want = []halo.LinkRecord{{GlobalID: 2, ChainID: 1}, {GlobalID: 1, ChainID: -1}}
	if !reflect.DeepEqual(recvs[0], want) {
		t.Errorf("rank 0 received %v, want %v", recvs[0], want)
	}
}

func TestBarrierAbandonedOnCancel(t *testing.T) {
	m, err := NewMesh([3]int{2, 1, 1}, [3]bool{})
	if err != nil {
		t.Fatalf("NewMesh: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Only rank 0 enters the collective; rank 1 never shows up.
	if _, err := m.Comm(0).AllGatherInt(ctx, 1); err == nil {
		t.Fatal("expected barrier abandonment error")
	}
}
