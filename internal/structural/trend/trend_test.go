package trend

import (
	"testing"

	"github.com/ligl/struxis/internal/model"
)

func confirmedSwing(id uint64, dir model.Direction, high, low float64, span int) model.Swing {
	return model.Swing{
		ID: id, Direction: dir, High: high, Low: low, Span: span,
		SBarStartID: id, SBarEndID: id, State: model.SwingConfirmed,
	}
}

func TestCanSeedTrendRequiresAlternatingDirectionsAndBreakout(t *testing.T) {
	a := confirmedSwing(1, model.DirUp, 110, 100, 1)
	b := confirmedSwing(2, model.DirDown, 108, 103, 1)
	c := confirmedSwing(3, model.DirUp, 115, 105, 1)

	if !canSeedTrend(a, b, c) {
		t.Fatalf("expected an alternating up/down/up triple with higher high+low to seed a trend")
	}

	cFlat := confirmedSwing(3, model.DirUp, 109, 101, 1)
	if canSeedTrend(a, b, cFlat) {
		t.Fatalf("expected no seed when the third swing fails to break past the first")
	}
}

func TestRebuildFromSwingsSeedsATrendOnThreeAlternatingSwings(t *testing.T) {
	swings := []model.Swing{
		confirmedSwing(1, model.DirUp, 110, 100, 1),
		confirmedSwing(2, model.DirDown, 108, 103, 1),
		confirmedSwing(3, model.DirUp, 120, 106, 1),
	}
	m := New()
	m.RebuildFromSwings(swings, false)

	rows := m.Rows()
	if len(rows) == 0 {
		t.Fatalf("expected a seeded trend, got none")
	}
	if rows[0].Direction != model.DirUp {
		t.Fatalf("expected the seed trend to inherit the first swing's direction, got %v", rows[0].Direction)
	}
}

func TestRebuildFromSwingsWithFewerThanThreeCompletedProducesNoTrend(t *testing.T) {
	swings := []model.Swing{
		confirmedSwing(1, model.DirUp, 110, 100, 1),
		{ID: 2, Direction: model.DirDown, State: model.SwingForming},
	}
	m := New()
	m.RebuildFromSwings(swings, false)
	if len(m.Rows()) != 0 {
		t.Fatalf("expected no trend with fewer than three completed swings, got %d", len(m.Rows()))
	}
}
