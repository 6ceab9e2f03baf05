package halo

import "testing"

func TestShiftCodeRoundTrip(t *testing.T) {
	for code := 0; code < 27; code++ {
		if got := ShiftIndex(ShiftVector(code)); got != code {
			t.Errorf("ShiftIndex(ShiftVector(%d)) = %d", code, got)
		}
	}
	if ShiftIndex([3]int{0, 0, 0}) != CenterShift {
		t.Errorf("Expected zero shift to encode as %d, got %d", CenterShift, ShiftIndex([3]int{0, 0, 0}))
	}
}

func TestOppositeShift(t *testing.T) {
	for code := 0; code < 27; code++ {
		v := ShiftVector(code)
		o := ShiftVector(OppositeShift(code))
		for a := 0; a < 3; a++ {
			if o[a] != -v[a] {
				t.Errorf("OppositeShift(%d): axis %d is %d, want %d", code, a, o[a], -v[a])
			}
		}
	}
	if OppositeShift(CenterShift) != CenterShift {
		t.Errorf("The zero shift should be its own opposite")
	}
}

func newTestSet(t *testing.T, x, y, z []float64, bounds Bounds) *ParticleSet {
	t.Helper()
	n := len(x)
	ids := make([]int64, n)
	mass := make([]float64, n)
	for i := range ids {
		ids[i] = int64(i)
		mass[i] = 1
	}
	ps, err := NewParticleSet(ids, x, y, z, mass, bounds)
	if err != nil {
		t.Fatalf("NewParticleSet: %v", err)
	}
	return ps
}

func TestFindShift(t *testing.T) {
	bounds := Bounds{Min: [3]float64{0, 0, 0}, Max: [3]float64{1, 1, 1}}
	ps := newTestSet(t,
		[]float64{0.5, 1.2, -0.1, 1.1},
		[]float64{0.5, 0.5, -0.2, 1.3},
		[]float64{0.5, 0.5, 0.5, -0.1},
		bounds)

	cases := []struct {
		idx  int32
		want [3]int
	}{
		{0, [3]int{0, 0, 0}},
		{1, [3]int{1, 0, 0}},
		{2, [3]int{-1, -1, 0}},
		{3, [3]int{1, 1, -1}},
	}
	for _, c := range cases {
		if got := ps.FindShift(c.idx); got != c.want {
			t.Errorf("FindShift(%d) = %v, want %v", c.idx, got, c.want)
		}
	}
}

func TestFindShiftPeriodicWrap(t *testing.T) {
	// A partition at the low edge of a periodic domain of period 8: a padded
	// particle from the far edge appears at x near 8, more than half the
	// period beyond the bounds, so the shift flips to -1.
	bounds := Bounds{Min: [3]float64{0, 0, 0}, Max: [3]float64{2, 2, 2}}
	ps := newTestSet(t,
		[]float64{7.9, 2.1},
		[]float64{1.0, 1.0},
		[]float64{1.0, 1.0},
		bounds)
	ps.SetPeriod([3]float64{8, 8, 8}, [3]bool{true, true, true})

	if got := ps.FindShift(0); got != [3]int{-1, 0, 0} {
		t.Errorf("Wrapped particle shift = %v, want [-1 0 0]", got)
	}
	if got := ps.FindShift(1); got != [3]int{1, 0, 0} {
		t.Errorf("Near-side particle shift = %v, want [1 0 0]", got)
	}
}
