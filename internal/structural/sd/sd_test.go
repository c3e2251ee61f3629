package sd

import (
	"testing"
	"time"

	"github.com/ligl/struxis/internal/model"
)

func bar(id uint64, o, h, l, c, vol, oi float64) model.SBar {
	return model.SBar{ID: id, Open: o, High: h, Low: l, Close: c, Volume: vol, OpenInterest: oi, Datetime: time.Unix(int64(id), 0)}
}

func TestEvaluateWindowEmptyReturnsFailedStage(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	result := e.EvaluateWindow(nil)
	if result.Stage != model.SDFailed {
		t.Fatalf("expected Failed stage on an empty window, got %v", result.Stage)
	}
}

func TestEvaluateWindowStrongUptrendScoresPositive(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	bars := []model.SBar{
		bar(1, 100, 102, 99, 101, 1000, 500),
		bar(2, 101, 104, 100, 103, 1200, 520),
		bar(3, 103, 107, 102, 106, 1500, 560),
		bar(4, 106, 110, 105, 109, 1800, 600),
	}
	result := e.EvaluateWindow(bars)
	if result.Score <= 0 {
		t.Fatalf("expected a positive score for a clean uptrend, got %v", result.Score)
	}
}

func TestApplyPatchOverridesOnlySetFields(t *testing.T) {
	base := DefaultConfig()
	stable := 0.9
	patched := base.ApplyPatch(Patch{StableThreshold: &stable})
	if patched.StableThreshold != 0.9 {
		t.Fatalf("expected stable_threshold override to apply, got %v", patched.StableThreshold)
	}
	if patched.F1Weight != base.F1Weight {
		t.Fatalf("expected untouched fields to remain at default, got f1_weight=%v", patched.F1Weight)
	}
}
