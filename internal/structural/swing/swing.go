// Package swing rebuilds the swing chain over a CBar chain on every update,
// using a fractal-pair state machine with forming/pending-reverse/confirmed
// states and a "resume" rule that can revoke a just-capped swing when a
// deeper continuation appears. Grounded on
// original_source/struxis/src/swing.rs: rebuild_from_cbars_with_backtrack and
// its helpers, translated to operate on slices instead of a mutable Vec with
// id-keyed lookups.
package swing

import (
	"math"
	"time"

	"github.com/ligl/struxis/internal/idgen"
	"github.com/ligl/struxis/internal/model"
	"github.com/ligl/struxis/internal/structural/backtrack"
)

// Manager holds the current confirmed+forming swing chain for one timeframe.
type Manager struct {
	rows []model.Swing
	gen  *idgen.Generator
}

func New() *Manager {
	return &Manager{gen: idgen.Swing()}
}

func (m *Manager) Rows() []model.Swing { return m.rows }

// fractalTriple is the (left, middle, right) CBar window pivoted at middle.
type fractalTriple struct {
	left, middle, right *model.CBar
}

func (f fractalTriple) fractalType() model.FractalType {
	return model.VerifyFractal(f.left, f.middle, f.right)
}

func (f fractalTriple) highPrice() float64 {
	return maxF(f.left.High, maxF(f.middle.High, f.right.High))
}

func (f fractalTriple) lowPrice() float64 {
	return minF(f.left.Low, minF(f.middle.Low, f.right.Low))
}

// RebuildFromCBars recomputes the entire swing chain from the current CBar
// chain and returns the backtrack id, if the post-rebuild chain diverges
// from the pre-rebuild one. cbarBacktrackChanged tells the search to also
// treat a pure tail-append as a change (matching the source's behavior when
// the CBar layer itself reported a change).
func (m *Manager) RebuildFromCBars(cbars []model.CBar, cbarBacktrackChanged bool) (backtrackID uint64, changed bool) {
	previous := m.rows
	rows := make([]model.Swing, 0, len(previous))

	type pendingCandidate struct {
		idx     int
		fractal fractalTriple
	}
	var pending *pendingCandidate

	for pivot := 1; pivot < len(cbars)-1; pivot++ {
		ft := fractalTriple{&cbars[pivot-1], &cbars[pivot], &cbars[pivot+1]}
		if ft.fractalType() == model.FractalNone {
			continue
		}

		if len(rows) == 0 {
			rows = append(rows, newSwingFromFractal(m.gen, ft))
			continue
		}

		activeIdx := len(rows) - 1
		active := rows[activeIdx]
		active.High = maxF(active.High, ft.highPrice())
		active.Low = minF(active.Low, ft.lowPrice())

		startFractal, hasStart := findFractalByMiddleID(cbars, active.CBarStartID)
		endFractal, hasEnd := findFractalByMiddleID(cbars, active.CBarEndID)
		overlapWithStart := hasStart && fractalOverlap(startFractal, ft, true)
		overlapWithEnd := hasEnd && fractalOverlap(endFractal, ft, true)

		var directionMatch bool
		switch active.Direction {
		case model.DirUp:
			directionMatch = ft.fractalType() == model.FractalTop
		case model.DirDown:
			directionMatch = ft.fractalType() == model.FractalBottom
		}

		if overlapWithStart || overlapWithEnd || !directionMatch {
			active.CBarEndID = ft.middle.ID
			active.SBarEndID = ft.middle.SBarEndID
			active.High = maxF(active.High, ft.highPrice())
			active.Low = minF(active.Low, ft.lowPrice())
			active.State = model.SwingForming
			rows[activeIdx] = active
			continue
		}

		completed := active
		completed.CBarEndID = ft.middle.ID
		completed.SBarEndID = ft.middle.SBarEndID
		completed.State = model.SwingConfirmed
		rows[activeIdx] = completed

		var prevReference *model.Swing
		for i := len(rows) - 1; i >= 0; i-- {
			if rows[i].State != model.SwingForming {
				r := rows[i]
				prevReference = &r
				break
			}
		}

		inBootstrap := len(rows) == 1
		bootstrapRefBreakOK := true
		if inBootstrap {
			bootstrapRefBreakOK = hasStart && endBreaksStartReference(cbars, startFractal, ft, active.Direction)
		}

		var pendingPrevIdx = -1
		if len(rows) >= 2 && rows[len(rows)-2].State == model.SwingPendingReverse {
			pendingPrevIdx = len(rows) - 2
		}

		if pending != nil {
			candidateFt := pending.fractal.fractalType()
			var candidatePrice float64
			switch candidateFt {
			case model.FractalTop:
				candidatePrice = pending.fractal.highPrice()
			case model.FractalBottom:
				candidatePrice = pending.fractal.lowPrice()
			}
			extend := false
			switch candidateFt {
			case model.FractalTop:
				extend = ft.highPrice() > candidatePrice
			case model.FractalBottom:
				extend = ft.lowPrice() < candidatePrice
			}
			if extend {
				resumed := rows[pending.idx]
				resumed.State = model.SwingForming
				resumed.CBarEndID = ft.right.ID
				resumed.SBarEndID = ft.right.SBarEndID
				resumed.High = maxF(resumed.High, ft.highPrice())
				resumed.Low = minF(resumed.Low, ft.lowPrice())
				rows = rows[:pending.idx+1]
				rows[pending.idx] = resumed
				pending = nil
				continue
			}
		}

		if pendingPrevIdx >= 0 {
			prevPending := rows[pendingPrevIdx]
			if shouldResumePreviousSwing(prevPending, active, ft) {
				rows = rows[:len(rows)-1] // pop the just-completed active row
				resumed := rows[pendingPrevIdx]
				resumed.State = model.SwingForming
				resumed.CBarEndID = ft.right.ID
				resumed.SBarEndID = ft.right.SBarEndID
				resumed.High = maxF(resumed.High, ft.highPrice())
				resumed.Low = minF(resumed.Low, ft.lowPrice())
				rows[pendingPrevIdx] = resumed
				pending = nil
				continue
			}
		}

		if determineSwing(startFractal, hasStart, ft, active, prevReference, bootstrapRefBreakOK) {
			provisionalEndID := ft.middle.ID
			if endID, ok := findSwingExtremeCBarID(cbars, active.CBarStartID, provisionalEndID, active.Direction); ok {
				active.CBarEndID = endID
			} else {
				active.CBarEndID = provisionalEndID
			}
			applyCBarRangeStats(&active, cbars)
			active.State = model.SwingPendingReverse
			rows[activeIdx] = active

			pending = &pendingCandidate{idx: activeIdx, fractal: ft}

			newActive := model.Swing{
				ID:          m.gen.Next(),
				Direction:   active.Direction.Opposite(),
				CBarStartID: active.CBarEndID,
				CBarEndID:   ft.right.ID,
				SBarStartID: active.SBarEndID,
				SBarEndID:   ft.right.SBarEndID,
				Span:        1,
				State:       model.SwingForming,
				CreatedAt:   time.Now(),
			}
			if active.Direction == model.DirUp {
				newActive.High = active.High
			} else {
				newActive.High = ft.right.High
			}
			if active.Direction == model.DirDown {
				newActive.Low = active.Low
			} else {
				newActive.Low = ft.right.Low
			}
			rows = append(rows, newActive)
		} else {
			if inBootstrap && shouldReanchorStart(startFractal, hasStart, ft, active.Direction) {
				active.CBarStartID = ft.middle.ID
				active.SBarStartID = ft.middle.SBarStartID
			}
			active.CBarEndID = ft.right.ID
			applyCBarRangeStats(&active, cbars)
			active.State = model.SwingForming
			rows[activeIdx] = active
		}
	}

	if len(rows) > 0 && rows[len(rows)-1].State == model.SwingForming {
		rows[len(rows)-1].State = model.SwingConfirmed
	}

	m.rows = rows

	before := snapshot(previous)
	after := snapshot(rows)
	if cbarBacktrackChanged {
		if id, ok := backtrack.FirstChangedID(before, after, idOf, rowEqual, true); ok {
			return id, true
		}
		if len(rows) > 0 {
			return rows[0].ID, true
		}
		return 0, false
	}
	return backtrack.FirstChangedID(before, after, idOf, rowEqual, false)
}

func newSwingFromFractal(gen *idgen.Generator, ft fractalTriple) model.Swing {
	var dir model.Direction
	switch ft.fractalType() {
	case model.FractalTop:
		dir = model.DirDown
	default:
		dir = model.DirUp
	}
	return model.Swing{
		ID:          gen.Next(),
		Direction:   dir,
		CBarStartID: ft.middle.ID,
		CBarEndID:   ft.right.ID,
		SBarStartID: ft.middle.SBarStartID,
		SBarEndID:   ft.right.SBarEndID,
		High:        maxF(ft.middle.High, ft.right.High),
		Low:         minF(ft.middle.Low, ft.right.Low),
		Span:        1,
		State:       model.SwingForming,
		CreatedAt:   time.Now(),
	}
}

func findFractalByMiddleID(cbars []model.CBar, middleID uint64) (fractalTriple, bool) {
	if len(cbars) < 3 {
		return fractalTriple{}, false
	}
	for pivot := 1; pivot < len(cbars)-1; pivot++ {
		if cbars[pivot].ID == middleID {
			ft := fractalTriple{&cbars[pivot-1], &cbars[pivot], &cbars[pivot+1]}
			if ft.fractalType() != model.FractalNone {
				return ft, true
			}
		}
	}
	return fractalTriple{}, false
}

// fractalOverlap compares the full three-CBar envelopes of two fractals
// (SPEC_FULL.md §9 open question 2: full envelope, not middle-only).
// strict=true treats a boundary touch as overlap; strict=false requires
// positive width.
func fractalOverlap(start, end fractalTriple, strict bool) bool {
	lo := maxF(start.lowPrice(), end.lowPrice())
	hi := minF(start.highPrice(), end.highPrice())
	if strict {
		return lo <= hi
	}
	return lo < hi
}

func determineSwing(startFractal fractalTriple, hasStart bool, endFractal fractalTriple, active model.Swing, prevSwing *model.Swing, bootstrapRefBreakOK bool) bool {
	if !hasStart {
		return false
	}
	startFt := startFractal.fractalType()
	endFt := endFractal.fractalType()
	if startFt == model.FractalNone || endFt == model.FractalNone || startFt == endFt {
		return false
	}
	if !bootstrapRefBreakOK {
		return false
	}

	if active.Direction == model.DirUp {
		if endFractal.highPrice() < startFractal.lowPrice() {
			return false
		}
	} else if endFractal.lowPrice() > startFractal.highPrice() {
		return false
	}

	if !fractalOverlap(startFractal, endFractal, true) {
		return true
	}
	if !fractalOverlap(startFractal, endFractal, false) {
		return true
	}
	if prevSwing == nil {
		return true
	}

	distance := maxF(startFractal.highPrice(), endFractal.highPrice()) - minF(startFractal.lowPrice(), endFractal.lowPrice())
	prevDistance := prevSwing.High - prevSwing.Low
	if prevDistance <= math.SmallestNonzeroFloat64 {
		return false
	}
	if distance/prevDistance < 0.6 {
		return false
	}

	startID, endID := startFractal.middle.ID, endFractal.middle.ID
	var gap uint64
	if endID > startID {
		gap = endID - startID
	} else {
		gap = startID - endID
	}
	if gap > 0 {
		gap--
	}
	return gap >= 5
}

func shouldReanchorStart(startFractal fractalTriple, hasStart bool, current fractalTriple, direction model.Direction) bool {
	if !hasStart {
		return false
	}
	startFt := startFractal.fractalType()
	currentFt := current.fractalType()
	if startFt == model.FractalNone || currentFt == model.FractalNone || startFt != currentFt {
		return false
	}
	switch direction {
	case model.DirDown:
		return currentFt == model.FractalTop && current.highPrice() >= startFractal.highPrice()
	case model.DirUp:
		return currentFt == model.FractalBottom && current.lowPrice() <= startFractal.lowPrice()
	default:
		return false
	}
}

func latestFractalBefore(cbars []model.CBar, beforeMiddleID uint64, kind model.FractalType) (fractalTriple, bool) {
	if len(cbars) < 3 {
		return fractalTriple{}, false
	}
	var prev fractalTriple
	found := false
	for pivot := 1; pivot < len(cbars)-1; pivot++ {
		mid := &cbars[pivot]
		if mid.ID == 0 {
			continue
		}
		if mid.ID >= beforeMiddleID {
			break
		}
		ft := fractalTriple{&cbars[pivot-1], mid, &cbars[pivot+1]}
		if ft.fractalType() == kind {
			prev = ft
			found = true
		}
	}
	return prev, found
}

func endBreaksStartReference(cbars []model.CBar, startFractal fractalTriple, endFractal fractalTriple, direction model.Direction) bool {
	endKind := endFractal.fractalType()
	if endKind == model.FractalNone {
		return false
	}
	var referenceKind model.FractalType
	switch direction {
	case model.DirDown:
		referenceKind = model.FractalBottom
	case model.DirUp:
		referenceKind = model.FractalTop
	default:
		return false
	}
	if endKind != referenceKind {
		return false
	}
	reference, ok := latestFractalBefore(cbars, startFractal.middle.ID, referenceKind)
	if !ok {
		return false
	}
	switch direction {
	case model.DirDown:
		return endFractal.lowPrice() < reference.lowPrice()
	case model.DirUp:
		return endFractal.highPrice() > reference.highPrice()
	default:
		return false
	}
}

func shouldResumePreviousSwing(prevPending model.Swing, active model.Swing, ft fractalTriple) bool {
	if prevPending.State != model.SwingPendingReverse {
		return false
	}
	if prevPending.Direction == active.Direction {
		return false
	}
	fractalType := ft.fractalType()
	switch prevPending.Direction {
	case model.DirDown:
		return fractalType == model.FractalBottom && ft.lowPrice() < active.Low
	case model.DirUp:
		return fractalType == model.FractalTop && ft.highPrice() > active.High
	default:
		return false
	}
}

func cbarByID(cbars []model.CBar, id uint64) (*model.CBar, bool) {
	for i := range cbars {
		if cbars[i].ID == id {
			return &cbars[i], true
		}
	}
	return nil, false
}

func cbarIDsInRange(cbars []model.CBar, startID, endID uint64) []uint64 {
	lo, hi := startID, endID
	if lo > hi {
		lo, hi = hi, lo
	}
	var ids []uint64
	for i := range cbars {
		id := cbars[i].ID
		if id != 0 && lo <= id && id <= hi {
			ids = append(ids, id)
		}
	}
	return ids
}

func findSwingExtremeCBarID(cbars []model.CBar, startID, endID uint64, direction model.Direction) (uint64, bool) {
	ids := cbarIDsInRange(cbars, startID, endID)
	if len(ids) == 0 {
		return 0, false
	}
	var best *model.CBar
	var bestID uint64
	for _, id := range ids {
		c, _ := cbarByID(cbars, id)
		if best == nil {
			best, bestID = c, id
			continue
		}
		better := false
		switch direction {
		case model.DirUp:
			better = c.High > best.High || (backtrack.ApproxEqualF64(c.High, best.High) && id > bestID)
		case model.DirDown:
			better = c.Low < best.Low || (backtrack.ApproxEqualF64(c.Low, best.Low) && id > bestID)
		}
		if better {
			best, bestID = c, id
		}
	}
	return bestID, true
}

func applyCBarRangeStats(s *model.Swing, cbars []model.CBar) {
	ids := cbarIDsInRange(cbars, s.CBarStartID, s.CBarEndID)
	if len(ids) == 0 {
		return
	}
	high := -math.MaxFloat64
	low := math.MaxFloat64
	var sbarStart uint64 = math.MaxUint64
	var sbarEnd uint64
	for _, id := range ids {
		c, _ := cbarByID(cbars, id)
		high = maxF(high, c.High)
		low = minF(low, c.Low)
		if c.SBarStartID < sbarStart {
			sbarStart = c.SBarStartID
		}
		if c.SBarEndID > sbarEnd {
			sbarEnd = c.SBarEndID
		}
	}
	if sbarStart != math.MaxUint64 {
		s.SBarStartID = sbarStart
	}
	if sbarEnd != 0 {
		s.SBarEndID = sbarEnd
	}
	if high != -math.MaxFloat64 {
		s.High = high
	}
	if low != math.MaxFloat64 {
		s.Low = low
	}
}

type swingSnap struct {
	id, cbarStart, cbarEnd, sbarStart, sbarEnd uint64
	high, low                                   float64
	span                                         int
	volume, startOI, endOI                      float64
	direction                                    model.Direction
	state                                        model.SwingState
}

func snapshot(rows []model.Swing) []swingSnap {
	out := make([]swingSnap, len(rows))
	for i, s := range rows {
		out[i] = swingSnap{s.ID, s.CBarStartID, s.CBarEndID, s.SBarStartID, s.SBarEndID,
			s.High, s.Low, s.Span, s.Volume, s.StartOI, s.EndOI, s.Direction, s.State}
	}
	return out
}

func idOf(s swingSnap) uint64 { return s.id }

func rowEqual(a, b swingSnap) bool {
	return a.id == b.id && a.direction == b.direction &&
		a.cbarStart == b.cbarStart && a.cbarEnd == b.cbarEnd &&
		a.sbarStart == b.sbarStart && a.sbarEnd == b.sbarEnd &&
		backtrack.ApproxEqualF64(a.high, b.high) && backtrack.ApproxEqualF64(a.low, b.low) &&
		a.span == b.span &&
		backtrack.ApproxEqualF64(a.volume, b.volume) &&
		backtrack.ApproxEqualF64(a.startOI, b.startOI) &&
		backtrack.ApproxEqualF64(a.endOI, b.endOI) &&
		a.state == b.state
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
