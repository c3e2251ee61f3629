// Package sbar is the append-only store for the raw ingested candles of one
// timeframe, stamping each with a fresh id and the owning timeframe as it
// arrives. Grounded on original_source/struxis/src/sbar_manager.rs, minus the
// polars dataframe cache (no Go analogue is wired anywhere in this tree).
package sbar

import (
	"github.com/ligl/struxis/internal/idgen"
	"github.com/ligl/struxis/internal/model"
)

// Manager holds the SBar history for one timeframe.
type Manager struct {
	timeframe model.Timeframe
	rows      []model.SBar
	gen       *idgen.Generator
}

func New(tf model.Timeframe) *Manager {
	return &Manager{timeframe: tf, gen: idgen.SBar()}
}

// Append stamps bar with a fresh id and this manager's timeframe, appends it,
// and returns the stamped copy.
func (m *Manager) Append(bar model.SBar) model.SBar {
	bar.ID = m.gen.Next()
	bar.Timeframe = m.timeframe
	m.rows = append(m.rows, bar)
	return bar
}

// LastN returns up to the last n bars in chronological order.
func (m *Manager) LastN(n int) []model.SBar {
	if n >= len(m.rows) {
		return append([]model.SBar(nil), m.rows...)
	}
	return append([]model.SBar(nil), m.rows[len(m.rows)-n:]...)
}

func (m *Manager) Rows() []model.SBar { return m.rows }

func (m *Manager) RowCount() int { return len(m.rows) }

func (m *Manager) Last() *model.SBar {
	if len(m.rows) == 0 {
		return nil
	}
	return &m.rows[len(m.rows)-1]
}
