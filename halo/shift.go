package halo

// The 27 relative offsets in {-1,0,1}^3, flattened so that code 13 is the
// zero shift and code 26-c is the negation of code c. A padded particle's
// shift code names the neighboring partition that owns it.
var shiftTable = [27][3]int{
	{-1, -1, -1}, {-1, -1, 0}, {-1, -1, 1},
	{-1, 0, -1}, {-1, 0, 0}, {-1, 0, 1},
	{-1, 1, -1}, {-1, 1, 0}, {-1, 1, 1},
	{0, -1, -1}, {0, -1, 0}, {0, -1, 1},
	{0, 0, -1}, {0, 0, 0}, {0, 0, 1},
	{0, 1, -1}, {0, 1, 0}, {0, 1, 1},
	{1, -1, -1}, {1, -1, 0}, {1, -1, 1},
	{1, 0, -1}, {1, 0, 0}, {1, 0, 1},
	{1, 1, -1}, {1, 1, 0}, {1, 1, 1},
}

// CenterShift is the code of the zero shift vector.
const CenterShift = 13

// ShiftVector returns the 3D offset for a shift code in [0,27).
func ShiftVector(code int) [3]int { return shiftTable[code] }

// ShiftIndex flattens a 3D offset in {-1,0,1}^3 to its code.
func ShiftIndex(shift [3]int) int {
	return (shift[0]+1)*9 + (shift[1]+1)*3 + (shift[2] + 1)
}

// OppositeShift returns the code of the negated shift vector.
func OppositeShift(code int) int { return 26 - code }

// FindShift computes the shift vector of particle i relative to the
// partition's owned bounds. Owned particles have the zero shift. On a
// periodic axis a padded particle more than half the period outside the
// bounds is a wrapped image from the far domain edge, so the sign flips.
func (ps *ParticleSet) FindShift(i int32) [3]int {
	if ps.Inside[i] {
		return [3]int{}
	}
	pos := [3]float64{ps.X[i], ps.Y[i], ps.Z[i]}
	var shift [3]int
	for a := 0; a < 3; a++ {
		switch {
		case pos[a] >= ps.Bounds.Max[a]:
			shift[a] = 1
			if ps.Periodic[a] && ps.Period[a] > 0 && pos[a]-ps.Bounds.Max[a] > ps.Period[a]/2 {
				shift[a] = -1
			}
		case pos[a] < ps.Bounds.Min[a]:
			shift[a] = -1
			if ps.Periodic[a] && ps.Period[a] > 0 && ps.Bounds.Min[a]-pos[a] > ps.Period[a]/2 {
				shift[a] = 1
			}
		}
	}
	return shift
}
