package sbar

import (
	"testing"

	"github.com/ligl/struxis/internal/model"
)

func TestAppendStampsIDAndTimeframe(t *testing.T) {
	m := New(model.TFM1)
	b := m.Append(model.SBar{Symbol: "BTCUSDT", Close: 100})
	if b.ID == 0 {
		t.Fatalf("expected a non-zero id to be stamped")
	}
	if b.Timeframe != model.TFM1 {
		t.Fatalf("expected timeframe to be stamped to TFM1, got %v", b.Timeframe)
	}
	if m.RowCount() != 1 {
		t.Fatalf("expected row count 1, got %d", m.RowCount())
	}
}

func TestLastNCapsAtAvailableRows(t *testing.T) {
	m := New(model.TFM1)
	for i := 0; i < 3; i++ {
		m.Append(model.SBar{Close: float64(i)})
	}
	rows := m.LastN(10)
	if len(rows) != 3 {
		t.Fatalf("expected LastN to cap at 3 available rows, got %d", len(rows))
	}
	rows2 := m.LastN(2)
	if len(rows2) != 2 || rows2[1].Close != 2 {
		t.Fatalf("expected last 2 rows in order, got %+v", rows2)
	}
}
