package cbar

import (
	"testing"

	"github.com/ligl/struxis/internal/model"
)

func sbar(id uint64, high, low float64) *model.SBar {
	return &model.SBar{ID: id, High: high, Low: low}
}

// TestOnSBarMergesThreeInclusiveBarsIntoOne covers Scenario A: three SBars
// whose ranges nest inside one another collapse into a single CBar spanning
// all three SBar ids, with the widest high/low of the three.
func TestOnSBarMergesThreeInclusiveBarsIntoOne(t *testing.T) {
	m := New()
	m.OnSBar(sbar(1, 10, 1))
	m.OnSBar(sbar(2, 9, 2))
	m.OnSBar(sbar(3, 12, 0))

	rows := m.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected the three SBars to collapse into one CBar, got %d rows: %+v", len(rows), rows)
	}
	row := rows[0]
	if row.SBarStartID != 1 || row.SBarEndID != 3 {
		t.Fatalf("expected merged CBar to span SBar ids 1..3, got start=%d end=%d", row.SBarStartID, row.SBarEndID)
	}
	if row.High != 12 {
		t.Fatalf("expected merged high 12, got %v", row.High)
	}
	if row.Low != 0 {
		t.Fatalf("expected merged low 0, got %v", row.Low)
	}
	if row.ID == 0 {
		t.Fatalf("expected the merged row to carry a stamped id")
	}
}

// TestOnSBarCascadesMergeThroughPriorRow covers the inclusive-merge
// chain-rewrite case: a new SBar first merges with the immediately prior
// CBar row, and that merged result is itself inclusive of the row before it,
// cascading a second collapse rather than stopping after one merge.
func TestOnSBarCascadesMergeThroughPriorRow(t *testing.T) {
	m := New()
	m.OnSBar(sbar(1, 10, 8))
	m.OnSBar(sbar(2, 15, 9))

	rows := m.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected the first two SBars to stay as separate CBars, got %d rows: %+v", len(rows), rows)
	}

	id, changed := m.OnSBar(sbar(3, 20, 7))
	if !changed {
		t.Fatalf("expected the cascading merge to report a backtrack id")
	}
	_ = id

	rows = m.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected the third SBar's merge to cascade through the prior row, collapsing to one CBar, got %d rows: %+v", len(rows), rows)
	}
	row := rows[0]
	if row.SBarStartID != 1 || row.SBarEndID != 3 {
		t.Fatalf("expected the cascaded CBar to span SBar ids 1..3, got start=%d end=%d", row.SBarStartID, row.SBarEndID)
	}
	if row.High != 20 {
		t.Fatalf("expected cascaded high 20, got %v", row.High)
	}
	if row.Low != 7 {
		t.Fatalf("expected cascaded low 7, got %v", row.Low)
	}
}

// TestOnSBarPureAppendIsNotReportedAsBacktrack checks that a new SBar which
// neither merges with nor alters any existing CBar row — a genuine tail
// append — is not reported as a backtrack, matching cbar's
// append_as_change=false convention (it is the bottom-most derived layer).
func TestOnSBarPureAppendIsNotReportedAsBacktrack(t *testing.T) {
	m := New()
	m.OnSBar(sbar(1, 10, 8))

	_, changed := m.OnSBar(sbar(2, 30, 25))
	if changed {
		t.Fatalf("expected a non-merging, non-altering append to report no backtrack id")
	}
	if len(m.Rows()) != 2 {
		t.Fatalf("expected two separate CBar rows, got %d", len(m.Rows()))
	}
}

func TestFractalAtAndIndexOfLookUpByID(t *testing.T) {
	m := New()
	m.OnSBar(sbar(1, 10, 8))
	m.OnSBar(sbar(2, 30, 25))
	m.OnSBar(sbar(3, 20, 15))

	rows := m.Rows()
	if len(rows) != 3 {
		t.Fatalf("expected three distinct CBar rows, got %d: %+v", len(rows), rows)
	}

	midID := rows[1].ID
	idx := m.IndexOf(midID)
	if idx != 1 {
		t.Fatalf("expected IndexOf to find the middle row at index 1, got %d", idx)
	}
	if _, ok := m.FractalAt(midID); !ok {
		t.Fatalf("expected FractalAt to find the middle row's fractal classification")
	}
	if _, ok := m.FractalAt(999999); ok {
		t.Fatalf("expected FractalAt to report not-found for an unknown id")
	}
}
