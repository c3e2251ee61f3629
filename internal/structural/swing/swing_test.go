package swing

import (
	"testing"

	"github.com/ligl/struxis/internal/model"
)

func TestFractalOverlapUsesFullThreeCBarEnvelope(t *testing.T) {
	// A fractal's high/low price spans all three legs, not just the middle
	// bar, so two fractals whose middle bars sit apart can still overlap
	// once their side legs are taken into account.
	left1 := model.CBar{ID: 1, High: 10, Low: 8}
	mid1 := model.CBar{ID: 2, High: 9, Low: 7}
	right1 := model.CBar{ID: 3, High: 12, Low: 9}
	start := fractalTriple{&left1, &mid1, &right1}

	left2 := model.CBar{ID: 4, High: 11, Low: 6}
	mid2 := model.CBar{ID: 5, High: 13, Low: 11}
	right2 := model.CBar{ID: 6, High: 10, Low: 8}
	end := fractalTriple{&left2, &mid2, &right2}

	if !fractalOverlap(start, end, true) {
		t.Fatalf("expected full-envelope overlap, got none")
	}
}

func TestFractalOverlapDistinguishesTouchingFromIntersection(t *testing.T) {
	left1 := model.CBar{ID: 1, High: 10, Low: 8}
	mid1 := model.CBar{ID: 2, High: 10, Low: 8}
	right1 := model.CBar{ID: 3, High: 10, Low: 8}
	start := fractalTriple{&left1, &mid1, &right1}

	left2 := model.CBar{ID: 4, High: 8, Low: 5}
	mid2 := model.CBar{ID: 5, High: 8, Low: 5}
	right2 := model.CBar{ID: 6, High: 8, Low: 5}
	end := fractalTriple{&left2, &mid2, &right2}

	if !fractalOverlap(start, end, true) {
		t.Fatalf("boundary touch should count as overlap under strict=true")
	}
	if fractalOverlap(start, end, false) {
		t.Fatalf("boundary touch should not count as overlap under strict=false")
	}
}

// buildImpulseChain produces a rise to a top fractal at id 4, a pullback
// bottom fractal at id 6, then a higher push to a top fractal at id 8. The
// first three CBars hold no fractal.
func buildImpulseChain() []model.CBar {
	return []model.CBar{
		{ID: 1, High: 100, Low: 95},
		{ID: 2, High: 105, Low: 99}, // rising
		{ID: 3, High: 112, Low: 104},
		{ID: 4, High: 118, Low: 110}, // local top forming around here
		{ID: 5, High: 115, Low: 106},
		{ID: 6, High: 108, Low: 100}, // pullback bottom
		{ID: 7, High: 120, Low: 107}, // resumes up past the prior top
		{ID: 8, High: 125, Low: 116},
		{ID: 9, High: 121, Low: 112},
	}
}

func TestRebuildFromCBarsProducesNonEmptyConfirmedChain(t *testing.T) {
	m := New()
	cbars := buildImpulseChain()
	_, _ = m.RebuildFromCBars(cbars, false)

	rows := m.Rows()
	if len(rows) == 0 {
		t.Fatalf("expected at least one swing, got none")
	}
	for i, s := range rows[:len(rows)-1] {
		if s.State == model.SwingForming {
			t.Fatalf("row %d: only the last row may remain Forming, got %v", i, s.State)
		}
	}
}

// TestRebuildFromCBarsIsBacktrackStable checks that growing the swing chain by
// a pure tail append — no existing swing row changes, only new rows appear
// past the old tail — reports no backtrack id when the CBar layer itself
// reported no change, matching the source's append_as_change=false behavior.
// Every rebuild stamps fresh swing ids, so the only pure tail append is
// growth from an empty chain: cbars[:3] holds no fractal and yields no rows.
func TestRebuildFromCBarsIsBacktrackStable(t *testing.T) {
	m := New()
	cbars := buildImpulseChain()
	m.RebuildFromCBars(cbars[:3], false)
	firstRows := append([]model.Swing(nil), m.Rows()...)

	id, changed := m.RebuildFromCBars(cbars, false)
	if changed {
		t.Fatalf("pure tail append with no upstream backtrack should not report one, got id=%d", id)
	}
	_ = firstRows
}

// TestRebuildFromCBarsReportsAppendWhenCBarLayerChanged checks the opposite
// side of the same rule: the identical pure tail append, but with the CBar
// layer reporting its own change, must surface the first newly appended
// row's id as the backtrack id.
func TestRebuildFromCBarsReportsAppendWhenCBarLayerChanged(t *testing.T) {
	m := New()
	cbars := buildImpulseChain()
	m.RebuildFromCBars(cbars[:3], false)

	id, changed := m.RebuildFromCBars(cbars, true)
	if !changed {
		t.Fatalf("expected a backtrack id when the CBar layer itself reported a change")
	}
	_ = id
}
