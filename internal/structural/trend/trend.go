// Package trend assembles consecutive same-direction swings into a trend
// chain, tracking a pullback as a nested opposite-direction sub-trend until
// it either resolves back into the active trend or flips it. Grounded on
// original_source/struxis/src/trend.rs: TrendManager and its seed/step/pullback
// machinery, minus the polars dataframe cache (no Go analogue is wired
// anywhere in this tree, so rows are served straight off the slice).
package trend

import (
	"sort"
	"time"

	"github.com/ligl/struxis/internal/idgen"
	"github.com/ligl/struxis/internal/model"
	"github.com/ligl/struxis/internal/structural/backtrack"
)

// Manager holds the trend chain for one timeframe.
type Manager struct {
	rows        []model.Trend
	gen         *idgen.Generator
	activeSFS   sfSeq
	pullbackSFS sfSeq
}

func New() *Manager {
	return &Manager{gen: idgen.Trend()}
}

func (m *Manager) Rows() []model.Trend { return m.rows }

type sfFractalType int

const (
	sfNone sfFractalType = iota
	sfTop
	sfBottom
)

// sfSeq is the inclusive-merged "swing fractal sequence" that tracks a
// trend's internal structure well enough to detect an inner 3-point fractal
// and the gap that separates a real pullback from noise.
type sfSeq struct {
	trend *model.Trend
	sfs   []model.Swing
}

func (s *sfSeq) clear() {
	s.trend = nil
	s.sfs = nil
}

func (s *sfSeq) updateTrend(sw model.Swing) {
	if s.trend == nil {
		t := model.Trend{
			Direction:    sw.Direction,
			SwingStartID: sw.ID,
			SwingEndID:   sw.ID,
			SBarStartID:  sw.SBarStartID,
			SBarEndID:    sw.SBarEndID,
			High:         sw.High,
			Low:          sw.Low,
			Span:         sw.Span,
			Volume:       sw.Volume,
			StartOI:      sw.StartOI,
			EndOI:        sw.EndOI,
			CreatedAt:    sw.CreatedAt,
		}
		s.trend = &t
	}
	t := s.trend
	t.SwingEndID = sw.ID
	t.SBarEndID = sw.SBarEndID
	t.High = maxF(t.High, sw.High)
	t.Low = minF(t.Low, sw.Low)
	t.Span += sw.Span
	t.Volume += sw.Volume
	t.EndOI = sw.EndOI
}

func (s *sfSeq) aggSwing(sw model.Swing) {
	if s.trend == nil || sw.Direction == s.trend.Direction {
		return
	}
	tmp := sw
	for len(s.sfs) > 0 {
		prev := s.sfs[len(s.sfs)-1]
		inclusive := (prev.High >= tmp.High && prev.Low <= tmp.Low) ||
			(prev.High <= tmp.High && prev.Low >= tmp.Low)
		if !inclusive {
			break
		}
		if s.trend.Direction == model.DirUp {
			tmp.High = maxF(tmp.High, prev.High)
			tmp.Low = maxF(tmp.Low, prev.Low)
		} else {
			tmp.High = minF(tmp.High, prev.High)
			tmp.Low = minF(tmp.Low, prev.Low)
		}
		s.sfs = s.sfs[:len(s.sfs)-1]
	}
	s.sfs = append(s.sfs, tmp)
}

func (s *sfSeq) fractalType() sfFractalType {
	if len(s.sfs) < 3 {
		return sfNone
	}
	right := s.sfs[len(s.sfs)-1]
	mid := s.sfs[len(s.sfs)-2]
	left := s.sfs[len(s.sfs)-3]

	if mid.High >= left.High && mid.High >= right.High && mid.Low >= left.Low && mid.Low >= right.Low {
		return sfTop
	}
	if mid.High <= left.High && mid.High <= right.High && mid.Low <= left.Low && mid.Low <= right.Low {
		return sfBottom
	}
	return sfNone
}

func (s *sfSeq) hasGap() bool {
	if len(s.sfs) < 3 {
		return false
	}
	right := s.sfs[len(s.sfs)-1]
	mid := s.sfs[len(s.sfs)-2]
	left := s.sfs[len(s.sfs)-3]
	switch s.fractalType() {
	case sfTop:
		return left.High < mid.Low && mid.Low < right.High
	case sfBottom:
		return left.Low > mid.High && mid.High > right.Low
	default:
		return false
	}
}

func (s *sfSeq) cloneOf() sfSeq {
	out := sfSeq{sfs: append([]model.Swing(nil), s.sfs...)}
	if s.trend != nil {
		t := *s.trend
		out.trend = &t
	}
	return out
}

// RebuildFromSwings recomputes the entire trend chain from the full
// completed-swing history. swingBacktrackChanged mirrors the CBar-layer
// convention: a pure tail extension downstream doesn't report a backtrack id
// unless the swing layer itself already invalidated something upstream.
func (m *Manager) RebuildFromSwings(swings []model.Swing, swingBacktrackChanged bool) (backtrackID uint64, changed bool) {
	previous := snapshot(m.rows)
	m.rows = nil
	m.activeSFS.clear()
	m.pullbackSFS.clear()

	var completed []model.Swing
	for _, sw := range swings {
		if sw.State == model.SwingConfirmed {
			completed = append(completed, sw)
		}
	}

	if len(completed) < 3 {
		return earlyBacktrack(previous, swingBacktrackChanged)
	}

	seedEndIndex := -1
	for i := 2; i < len(completed); i++ {
		a, b, c := completed[i-2], completed[i-1], completed[i]
		if canSeedTrend(a, b, c) {
			t := model.Trend{
				ID:           m.gen.Next(),
				Direction:    a.Direction,
				SwingStartID: a.ID,
				SwingEndID:   c.ID,
				SBarStartID:  a.SBarStartID,
				SBarEndID:    c.SBarEndID,
				High:         maxF(a.High, c.High),
				Low:          minF(a.Low, c.Low),
				Span:         a.Span + b.Span + c.Span,
				Volume:       a.Volume + b.Volume + c.Volume,
				StartOI:      a.StartOI,
				EndOI:        c.EndOI,
				CreatedAt:    time.Now(),
			}
			m.rows = append(m.rows, t)
			tc := t
			m.activeSFS.trend = &tc
			m.activeSFS.aggSwing(b)
			seedEndIndex = i
			break
		}
	}

	if seedEndIndex < 0 {
		return earlyBacktrack(previous, swingBacktrackChanged)
	}

	for i := seedEndIndex + 1; i < len(completed); i++ {
		m.buildTrendStep(completed[i], completed)
	}

	return m.finish(previous, swingBacktrackChanged)
}

// earlyBacktrack mirrors the source's early-exit backtrack rule for the
// "no trend rows could be rebuilt at all" paths (fewer than three completed
// swings, or no seed found): with nothing new to report a diverging row
// from, fall back to the previous chain's first id when the swing layer
// itself reported a change, and to no change otherwise.
func earlyBacktrack(previous []trendSnap, swingBacktrackChanged bool) (uint64, bool) {
	if swingBacktrackChanged && len(previous) > 0 {
		return previous[0].id, true
	}
	return 0, false
}

func (m *Manager) finish(previous []trendSnap, swingBacktrackChanged bool) (uint64, bool) {
	after := snapshot(m.rows)
	if swingBacktrackChanged {
		if id, ok := backtrack.FirstChangedID(previous, after, idOf, rowEqual, true); ok {
			return id, true
		}
		if len(m.rows) > 0 {
			return m.rows[0].ID, true
		}
		return 0, false
	}
	return backtrack.FirstChangedID(previous, after, idOf, rowEqual, false)
}

// updateActiveTrend writes the supplied trend value back as the last row,
// appending if the chain is empty.
func (m *Manager) updateActiveTrend(t model.Trend) {
	if len(m.rows) == 0 {
		m.rows = append(m.rows, t)
		return
	}
	m.rows[len(m.rows)-1] = t
}

func (m *Manager) buildTrendStep(sw model.Swing, swings []model.Swing) {
	if m.pullbackSFS.trend != nil {
		m.buildPullbackStep(sw, swings)
		return
	}

	m.activeSFS.updateTrend(sw)
	m.activeSFS.aggSwing(sw)
	if m.activeSFS.trend != nil {
		m.updateActiveTrend(*m.activeSFS.trend)
	}

	ft := m.activeSFS.fractalType()
	if ft == sfNone {
		return
	}

	if m.activeSFS.hasGap() {
		m.pullbackSFS = m.splitPullbackFromSeq(m.activeSFS, swings)
		return
	}

	if m.activeSFS.trend == nil {
		return
	}
	m.activeSFS.trend.IsCompleted = true
	completedTrend := *m.activeSFS.trend
	newDirection := completedTrend.Direction.Opposite()

	completedTrend = m.confirmTrend(completedTrend, swings)
	m.updateActiveTrend(completedTrend)

	startSwing, ok := nextSwingByID(swings, completedTrend.SwingEndID)
	if !ok {
		m.pullbackSFS.clear()
		m.activeSFS.clear()
		return
	}

	newTrend := model.Trend{
		ID:           m.gen.Next(),
		Direction:    newDirection,
		SwingStartID: startSwing.ID,
		SwingEndID:   sw.ID,
		SBarStartID:  startSwing.SBarStartID,
		SBarEndID:    sw.SBarEndID,
		High:         maxF(startSwing.High, sw.High),
		Low:          minF(startSwing.Low, sw.Low),
		Span:         startSwing.Span + sw.Span,
		Volume:       startSwing.Volume + sw.Volume,
		StartOI:      startSwing.StartOI,
		EndOI:        sw.EndOI,
		CreatedAt:    time.Now(),
	}
	m.rows = append(m.rows, newTrend)
	m.activeSFS.clear()
	ntc := newTrend
	m.activeSFS.trend = &ntc
	rebuildSFSForTrend(&m.activeSFS, swings)
	m.pullbackSFS.clear()
}

func (m *Manager) buildPullbackStep(sw model.Swing, swings []model.Swing) {
	active := m.activeSFS.trend
	if active == nil {
		return
	}
	isNewLimit := (active.Direction == model.DirUp && sw.High > active.High) ||
		(active.Direction == model.DirDown && sw.Low < active.Low)

	if isNewLimit {
		m.activeSFS.updateTrend(sw)
		m.activeSFS.aggSwing(sw)
		if m.activeSFS.trend != nil {
			m.updateActiveTrend(*m.activeSFS.trend)
		}
		m.pullbackSFS.clear()
		return
	}

	m.pullbackSFS.updateTrend(sw)
	m.pullbackSFS.aggSwing(sw)

	f := m.pullbackSFS.fractalType()
	if f == sfNone {
		m.activeSFS.updateTrend(sw)
		m.activeSFS.aggSwing(sw)
		if m.activeSFS.trend != nil {
			m.updateActiveTrend(*m.activeSFS.trend)
		}
		return
	}

	var pullbackDir model.Direction
	hasPullbackDir := m.pullbackSFS.trend != nil
	if hasPullbackDir {
		pullbackDir = m.pullbackSFS.trend.Direction
	}
	qualifies := hasPullbackDir && ((pullbackDir == model.DirUp && f == sfTop) || (pullbackDir == model.DirDown && f == sfBottom))

	if !qualifies {
		m.activeSFS.aggSwing(sw)
		m.activeSFS.updateTrend(sw)
		if m.activeSFS.trend != nil {
			m.updateActiveTrend(*m.activeSFS.trend)
		}
		m.pullbackSFS.aggSwing(sw)
		m.pullbackSFS.updateTrend(sw)
		return
	}

	m.activeSFS.trend.IsCompleted = true
	completedTrend := *m.activeSFS.trend
	newDirection := completedTrend.Direction.Opposite()

	completedTrend = m.confirmTrend(completedTrend, swings)
	m.updateActiveTrend(completedTrend)

	if m.pullbackSFS.hasGap() {
		m.activeSFS = m.pullbackSFS.cloneOf()
		if m.activeSFS.trend != nil {
			m.updateActiveTrend(*m.activeSFS.trend)
		}
		m.pullbackSFS = m.splitPullbackFromSeq(m.activeSFS, swings)
		return
	}

	if m.pullbackSFS.trend != nil {
		pullbackTrend := *m.pullbackSFS.trend
		pullbackTrend.IsCompleted = true
		pullbackTrend = m.confirmTrend(pullbackTrend, swings)
		m.updateActiveTrend(pullbackTrend)

		startSwing, ok := nextSwingByID(swings, pullbackTrend.SwingEndID)
		if !ok {
			m.pullbackSFS.clear()
			m.activeSFS.clear()
			return
		}

		newTrend := model.Trend{
			ID:           m.gen.Next(),
			Direction:    newDirection,
			SwingStartID: startSwing.ID,
			SwingEndID:   sw.ID,
			SBarStartID:  startSwing.SBarStartID,
			SBarEndID:    sw.SBarEndID,
			High:         maxF(startSwing.High, sw.High),
			Low:          minF(startSwing.Low, sw.Low),
			Span:         startSwing.Span + sw.Span,
			Volume:       startSwing.Volume + sw.Volume,
			StartOI:      startSwing.StartOI,
			EndOI:        sw.EndOI,
			CreatedAt:    time.Now(),
		}
		m.rows = append(m.rows, newTrend)
		m.pullbackSFS.clear()
		m.activeSFS.clear()
		ntc := newTrend
		m.activeSFS.trend = &ntc
		rebuildSFSForTrend(&m.activeSFS, swings)
		return
	}

	newTrend := model.Trend{
		ID:           m.gen.Next(),
		Direction:    newDirection,
		SwingStartID: sw.ID,
		SwingEndID:   sw.ID,
		SBarStartID:  sw.SBarStartID,
		SBarEndID:    sw.SBarEndID,
		High:         sw.High,
		Low:          sw.Low,
		Span:         sw.Span,
		Volume:       sw.Volume,
		StartOI:      sw.StartOI,
		EndOI:        sw.EndOI,
		CreatedAt:    time.Now(),
	}
	m.rows = append(m.rows, newTrend)
	m.activeSFS.clear()
	ntc := newTrend
	m.activeSFS.trend = &ntc
	m.pullbackSFS.clear()
}

func (m *Manager) splitPullbackFromSeq(base sfSeq, swings []model.Swing) sfSeq {
	var out sfSeq
	if base.trend == nil || !base.hasGap() {
		return out
	}
	activeTrend := base.trend
	oppositeDirection := activeTrend.Direction.Opposite()
	limitKind := limitMin
	if activeTrend.Direction == model.DirUp {
		limitKind = limitMax
	}
	limitSwing, ok := findLimitSwing(swings, activeTrend.SwingStartID, activeTrend.SwingEndID, oppositeDirection, limitKind)
	if !ok {
		return out
	}

	swingList := swingsInRange(swings, limitSwing.ID, activeTrend.SwingEndID)
	if len(swingList) == 0 {
		return out
	}

	t := model.Trend{
		Direction:    oppositeDirection,
		SwingStartID: limitSwing.ID,
		SwingEndID:   activeTrend.SwingEndID,
		SBarStartID:  limitSwing.SBarStartID,
		SBarEndID:    activeTrend.SBarEndID,
		High:         limitSwing.High,
		Low:          limitSwing.Low,
		StartOI:      limitSwing.StartOI,
		EndOI:        activeTrend.EndOI,
		CreatedAt:    time.Now(),
	}
	out.trend = &t

	for _, item := range swingList {
		out.aggSwing(item)
		tr := out.trend
		tr.SwingEndID = item.ID
		tr.SBarEndID = item.SBarEndID
		tr.High = maxF(tr.High, item.High)
		tr.Low = minF(tr.Low, item.Low)
		tr.Span += item.Span
		tr.Volume += item.Volume
		tr.EndOI = item.EndOI
	}
	return out
}

// confirmTrend finalizes a completed trend's true extremes by rescanning the
// swings it spans, and trims the previous trend's end to match if the start
// moved.
func (m *Manager) confirmTrend(t model.Trend, swings []model.Swing) model.Trend {
	t.IsCompleted = true

	startLimitKind := limitMin
	if t.Direction == model.DirDown {
		startLimitKind = limitMax
	}
	if startSwing, ok := findLimitSwing(swings, t.SwingStartID, t.SwingEndID, t.Direction, startLimitKind); ok {
		if startSwing.ID != t.SwingStartID {
			t.SwingStartID = startSwing.ID
			t.SBarStartID = startSwing.SBarStartID
			t.High = maxF(t.High, startSwing.High)
			t.Low = minF(t.Low, startSwing.Low)

			if len(m.rows) >= 2 {
				prevIdx := len(m.rows) - 2
				if m.rows[prevIdx].IsCompleted {
					if prevEndSwing, ok := prevSwingByID(swings, t.SwingStartID); ok {
						if m.rows[prevIdx].SwingEndID != prevEndSwing.ID {
							m.rows[prevIdx].SwingEndID = prevEndSwing.ID
							m.rows[prevIdx].SBarEndID = prevEndSwing.SBarEndID
							m.rows[prevIdx].High = maxF(m.rows[prevIdx].High, prevEndSwing.High)
							m.rows[prevIdx].Low = minF(m.rows[prevIdx].Low, prevEndSwing.Low)
						}
					}
				}
			}
		}
	}

	endLimitKind := limitMax
	if t.Direction == model.DirDown {
		endLimitKind = limitMin
	}
	if endSwing, ok := findLimitSwing(swings, t.SwingStartID, t.SwingEndID, t.Direction, endLimitKind); ok {
		t.SwingEndID = endSwing.ID
		t.SBarEndID = endSwing.SBarEndID
		t.High = maxF(t.High, endSwing.High)
		t.Low = minF(t.Low, endSwing.Low)
		t.EndOI = endSwing.EndOI
	}

	if span, volume, startOI, endOI, ok := statsFromSwings(swings, t.SwingStartID, t.SwingEndID); ok {
		t.Span = span
		t.Volume = volume
		t.StartOI = startOI
		t.EndOI = endOI
	}

	return t
}

func canSeedTrend(a, b, c model.Swing) bool {
	overlap := maxF(a.Low, maxF(b.Low, c.Low)) <= minF(a.High, minF(b.High, c.High))
	if !overlap {
		return false
	}
	if !(a.Direction == b.Direction.Opposite() && b.Direction == c.Direction.Opposite()) {
		return false
	}
	switch a.Direction {
	case model.DirDown:
		return c.High < a.High && c.Low < a.Low
	case model.DirUp:
		return c.High > a.High && c.Low > a.Low
	default:
		return false
	}
}

type limitKind int

const (
	limitMax limitKind = iota
	limitMin
)

func nextSwingByID(swings []model.Swing, currID uint64) (model.Swing, bool) {
	for i, sw := range swings {
		if sw.ID == currID {
			if i+1 < len(swings) {
				return swings[i+1], true
			}
			return model.Swing{}, false
		}
	}
	return model.Swing{}, false
}

func prevSwingByID(swings []model.Swing, currID uint64) (model.Swing, bool) {
	for i, sw := range swings {
		if sw.ID == currID {
			if i == 0 {
				return model.Swing{}, false
			}
			return swings[i-1], true
		}
	}
	return model.Swing{}, false
}

func swingsInRange(swings []model.Swing, startID, endID uint64) []model.Swing {
	var out []model.Swing
	for _, sw := range swings {
		if startID <= sw.ID && sw.ID <= endID {
			out = append(out, sw)
		}
	}
	return out
}

func findLimitSwing(swings []model.Swing, startID, endID uint64, direction model.Direction, kind limitKind) (model.Swing, bool) {
	var candidates []model.Swing
	for _, sw := range swingsInRange(swings, startID, endID) {
		if sw.Direction == direction {
			candidates = append(candidates, sw)
		}
	}
	if len(candidates) == 0 {
		return model.Swing{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		var vi, vj float64
		switch kind {
		case limitMax:
			vi, vj = candidates[i].High, candidates[j].High
		default:
			vi, vj = candidates[i].Low, candidates[j].Low
		}
		return vi < vj
	})
	if kind == limitMax {
		return candidates[len(candidates)-1], true
	}
	return candidates[0], true
}

func rebuildSFSForTrend(seq *sfSeq, swings []model.Swing) {
	if seq.trend == nil {
		return
	}
	seq.sfs = nil
	for _, sw := range swingsInRange(swings, seq.trend.SwingStartID, seq.trend.SwingEndID) {
		seq.aggSwing(sw)
	}
}

func statsFromSwings(swings []model.Swing, startID, endID uint64) (span int, volume, startOI, endOI float64, ok bool) {
	inRange := swingsInRange(swings, startID, endID)
	if len(inRange) == 0 {
		return 0, 0, 0, 0, false
	}
	for _, sw := range inRange {
		span += sw.Span
		volume += sw.Volume
	}
	return span, volume, inRange[0].StartOI, inRange[len(inRange)-1].EndOI, true
}

type trendSnap struct {
	id, swingStart, swingEnd, sbarStart, sbarEnd uint64
	high, low                                    float64
	span                                         int
	volume, startOI, endOI                       float64
	direction                                    model.Direction
	isCompleted                                  bool
}

func snapshot(rows []model.Trend) []trendSnap {
	out := make([]trendSnap, len(rows))
	for i, t := range rows {
		out[i] = trendSnap{t.ID, t.SwingStartID, t.SwingEndID, t.SBarStartID, t.SBarEndID,
			t.High, t.Low, t.Span, t.Volume, t.StartOI, t.EndOI, t.Direction, t.IsCompleted}
	}
	return out
}

func idOf(t trendSnap) uint64 { return t.id }

func rowEqual(a, b trendSnap) bool {
	return a.id == b.id && a.direction == b.direction &&
		a.swingStart == b.swingStart && a.swingEnd == b.swingEnd &&
		a.sbarStart == b.sbarStart && a.sbarEnd == b.sbarEnd &&
		backtrack.ApproxEqualF64(a.high, b.high) && backtrack.ApproxEqualF64(a.low, b.low) &&
		a.span == b.span &&
		backtrack.ApproxEqualF64(a.volume, b.volume) &&
		backtrack.ApproxEqualF64(a.startOI, b.startOI) &&
		backtrack.ApproxEqualF64(a.endOI, b.endOI) &&
		a.isCompleted == b.isCompleted
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
