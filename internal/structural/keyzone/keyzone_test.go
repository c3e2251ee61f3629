package keyzone

import (
	"testing"
	"time"

	"github.com/ligl/struxis/internal/model"
)

func sbar(id uint64, o, h, l, c float64) model.SBar {
	return model.SBar{ID: id, Open: o, High: h, Low: l, Close: c, Datetime: time.Unix(int64(id), 0)}
}

func TestRefineZoneBoundsNarrowsTowardMostTouchedPrice(t *testing.T) {
	sbars := []model.SBar{
		sbar(1, 100, 105, 99, 104),
		sbar(2, 104, 106, 101, 102),
		sbar(3, 102, 108, 100, 107),
	}
	lower, upper, touches, lastTouch := refineZoneBounds(sbars, 1, 3, model.DirUp, 99, 108)
	if lower > upper {
		t.Fatalf("expected lower <= upper, got lower=%v upper=%v", lower, upper)
	}
	if touches == 0 {
		t.Fatalf("expected at least one touch recorded")
	}
	if lastTouch != 3 {
		t.Fatalf("expected last touch id to be the scope's final bar, got %d", lastTouch)
	}
}

func TestClassifyZoneSignalDetectsBreakoutFailure(t *testing.T) {
	zone := &model.KeyZone{Lower: 100, Upper: 105, DirectionHint: model.DirUp, TouchCount: 1}
	prev := sbar(1, 104, 107, 103, 106) // closed above the zone
	bar := sbar(2, 106, 106, 101, 102)  // fails back inside

	signal := classifyZoneSignal(zone, &bar, &prev)
	if signal == nil || signal.Behavior != model.BehaviorBreakoutFailure {
		t.Fatalf("expected BreakoutFailure, got %+v", signal)
	}
}

func TestEvaluateLatestSignalPicksStrongestAcrossZones(t *testing.T) {
	m := New()
	m.rows = []model.KeyZone{
		{ID: 1, Lower: 100, Upper: 101, DirectionHint: model.DirUp},
		{ID: 2, Lower: 100, Upper: 110, DirectionHint: model.DirUp},
	}
	bar := sbar(3, 100, 110, 100, 109)
	signal := m.EvaluateLatestSignal(&bar, nil)
	if signal == nil {
		t.Fatalf("expected a signal")
	}
	// The bar closes beyond zone 1 in its hint direction (no signal) and
	// inside zone 2, so zone 2's signal is the strongest.
	if signal.ZoneID != 2 {
		t.Fatalf("expected zone 2's signal to be picked, got zone %d", signal.ZoneID)
	}
}

// TestEvaluateLatestSignalDoesNotMutateTouchCount checks that repeated
// classification against the same zone never touches TouchCount/LastTouchID:
// those are set once, during refine_zone_bounds's sweep, and held fixed for
// the zone's life — evaluate_latest_signal only ever appends reactions.
func TestEvaluateLatestSignalDoesNotMutateTouchCount(t *testing.T) {
	m := New()
	m.rows = []model.KeyZone{
		{ID: 1, Lower: 100, Upper: 101, DirectionHint: model.DirUp, TouchCount: 1, LastTouchID: 1},
	}
	bar := sbar(2, 100, 101, 100, 100.8) // closes inside the zone on an up body

	for i := 0; i < 5; i++ {
		m.EvaluateLatestSignal(&bar, nil)
	}

	zone := m.Rows()[0]
	if zone.TouchCount != 1 {
		t.Fatalf("expected TouchCount to stay fixed at 1 across repeated calls, got %d", zone.TouchCount)
	}
	if zone.LastTouchID != 1 {
		t.Fatalf("expected LastTouchID to stay fixed at 1 across repeated calls, got %d", zone.LastTouchID)
	}
	if len(zone.Reactions) != 5 {
		t.Fatalf("expected 5 accumulated reactions, got %d", len(zone.Reactions))
	}
}
