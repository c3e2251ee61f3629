// Package cbar maintains the non-inclusive merged-bar chain for one
// timeframe. Grounded on the rebuild/backtrack shape of
// original_source/struxis/src/cbar_manager.rs, but the merge step below
// implements only the "plain" max/min variant — SPEC_FULL.md §9 open
// question 1 adopts it as canonical over the source's deprecated
// directional variant.
package cbar

import (
	"github.com/ligl/struxis/internal/idgen"
	"github.com/ligl/struxis/internal/model"
	"github.com/ligl/struxis/internal/structural/backtrack"
)

// Manager holds the CBar chain for one timeframe.
type Manager struct {
	rows []model.CBar
	gen  *idgen.Generator
}

// New creates an empty CBar manager using the shared CBar ID generator.
func New() *Manager {
	return &Manager{gen: idgen.CBar()}
}

// Rows returns the current chain (read-only snapshot: caller must not mutate).
func (m *Manager) Rows() []model.CBar { return m.rows }

// Last returns the most recent CBar, or nil if the chain is empty.
func (m *Manager) Last() *model.CBar {
	if len(m.rows) == 0 {
		return nil
	}
	return &m.rows[len(m.rows)-1]
}

// OnSBar folds one new SBar into the chain and returns the backtrack id, if
// any row at or before the tail changed. A pure tail append is never itself
// a backtrack (matching first_backtrack_cbar_id's append_as_change=false);
// CBar is the bottom-most derived layer, with no further upstream to defer to.
func (m *Manager) OnSBar(b *model.SBar) (backtrackID uint64, changed bool) {
	before := snapshot(m.rows)

	m.rows = append(m.rows, model.CBar{
		SBarStartID: b.ID,
		SBarEndID:   b.ID,
		High:        b.High,
		Low:         b.Low,
		CreatedAt:   b.Datetime,
	})

	m.mergeInclusive()
	m.assignIDs()
	m.recomputeFractals()

	after := snapshot(m.rows)
	return backtrack.FirstChangedID(before, after, idOf, rowEqual, false)
}

// mergeInclusive repeatedly collapses the last two rows while one's range
// contains the other's, per SPEC_FULL.md §4.7 step 2 (plain variant).
func (m *Manager) mergeInclusive() {
	for len(m.rows) >= 2 {
		last := &m.rows[len(m.rows)-1]
		prev := &m.rows[len(m.rows)-2]
		if !last.IsInclusive(prev) {
			return
		}
		merged := model.CBar{
			SBarStartID: prev.SBarStartID,
			SBarEndID:   last.SBarEndID,
			High:        maxF(last.High, prev.High),
			Low:         minF(last.Low, prev.Low),
			CreatedAt:   prev.CreatedAt,
		}
		m.rows = m.rows[:len(m.rows)-2]
		m.rows = append(m.rows, merged)
	}
}

// assignIDs stamps fresh ids onto any trailing rows lacking one. Since merges
// only ever touch the tail, only the last row can be missing an id after a
// merge; everything before it was already assigned on a prior call.
func (m *Manager) assignIDs() {
	for i := range m.rows {
		if m.rows[i].ID == 0 {
			m.rows[i].ID = m.gen.Next()
		}
	}
}

// recomputeFractals relabels every interior row; endpoints are always None.
func (m *Manager) recomputeFractals() {
	n := len(m.rows)
	for i := range m.rows {
		m.rows[i].Fractal = model.FractalNone
	}
	for i := 1; i < n-1; i++ {
		m.rows[i].Fractal = model.VerifyFractal(&m.rows[i-1], &m.rows[i], &m.rows[i+1])
	}
}

// FractalAt returns the fractal type at a given CBar id, and whether found.
func (m *Manager) FractalAt(id uint64) (model.FractalType, bool) {
	for i := range m.rows {
		if m.rows[i].ID == id {
			return m.rows[i].Fractal, true
		}
	}
	return model.FractalNone, false
}

// IndexOf returns the slice index of the row with the given id, or -1.
func (m *Manager) IndexOf(id uint64) int {
	for i := range m.rows {
		if m.rows[i].ID == id {
			return i
		}
	}
	return -1
}

type rowSnap struct {
	id, start, end   uint64
	high, low        float64
	fractal          model.FractalType
}

func snapshot(rows []model.CBar) []rowSnap {
	out := make([]rowSnap, len(rows))
	for i, r := range rows {
		out[i] = rowSnap{r.ID, r.SBarStartID, r.SBarEndID, r.High, r.Low, r.Fractal}
	}
	return out
}

func idOf(r rowSnap) uint64 { return r.id }

func rowEqual(a, b rowSnap) bool {
	return a.id == b.id && a.start == b.start && a.end == b.end &&
		backtrack.ApproxEqualF64(a.high, b.high) && backtrack.ApproxEqualF64(a.low, b.low) &&
		a.fractal == b.fractal
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
