// Package backtrack computes the "earliest diverging id" between two
// successive states of a structural chain (CBar/Swing/Trend rows), the
// signal downstream observers use to invalidate only the changed suffix of
// a cache instead of the whole chain.
package backtrack

// FirstChangedID compares previous and current element-wise by id (via idOf)
// and equality (via equal), and returns the id of the earliest element that
// differs. A mismatch at a shared position reports the previous row's id
// (falling back to the current row's id only if the previous one is the zero
// value, since idOf has no Option here), matching the source's
// id_of(&previous[idx]).or_else(|| id_of(&current[idx])). If previous is
// longer than current — the chain was truncated, not just appended to — it
// reports the first row that fell off the end. Otherwise, if current is a
// pure tail extension of previous, it reports the first newly appended row
// only when appendAsChange is set; a pure extension with appendAsChange
// false, or two identical chains, returns (0, false).
func FirstChangedID[T any](previous, current []T, idOf func(T) uint64, equal func(a, b T) bool, appendAsChange bool) (uint64, bool) {
	minLen := len(previous)
	if len(current) < minLen {
		minLen = len(current)
	}
	for i := 0; i < minLen; i++ {
		if !equal(previous[i], current[i]) {
			if id := idOf(previous[i]); id != 0 {
				return id, true
			}
			return idOf(current[i]), true
		}
	}

	if len(previous) > len(current) {
		return idOf(previous[minLen]), true
	}

	if appendAsChange && len(current) > len(previous) {
		return idOf(current[minLen]), true
	}

	return 0, false
}

// ApproxEqualF64 reports whether a and b are equal within a small relative
// tolerance, used wherever a comparator must ignore floating-point jitter
// from repeated max/min folding.
func ApproxEqualF64(a, b float64) bool {
	const eps = 1e-9
	d := a - b
	if d < 0 {
		d = -d
	}
	scale := a
	if scale < 0 {
		scale = -scale
	}
	if bs := b; bs < 0 {
		if -bs > scale {
			scale = -bs
		}
	} else if bs > scale {
		scale = bs
	}
	if scale < 1 {
		scale = 1
	}
	return d <= eps*scale
}
