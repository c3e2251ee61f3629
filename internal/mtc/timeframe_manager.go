package mtc

import (
	"github.com/ligl/struxis/internal/model"
	"github.com/ligl/struxis/internal/structural/cbar"
	"github.com/ligl/struxis/internal/structural/keyzone"
	"github.com/ligl/struxis/internal/structural/sbar"
	"github.com/ligl/struxis/internal/structural/sd"
	"github.com/ligl/struxis/internal/structural/swing"
	"github.com/ligl/struxis/internal/structural/trend"
)

// backtrackIDs carries the per-layer invalidation ids produced by one append.
type backtrackIDs struct {
	cbar  uint64
	hasCbar bool
	swing uint64
	hasSwing bool
	trend uint64
	hasTrend bool
}

// timeframeManager chains the structural pipeline for one timeframe:
// SBar -> CBar -> Swing -> Trend -> KeyZone -> SD.
type timeframeManager struct {
	timeframe model.Timeframe

	sbarMgr    *sbar.Manager
	cbarMgr    *cbar.Manager
	swingMgr   *swing.Manager
	trendMgr   *trend.Manager
	keyzoneMgr *keyzone.Manager

	sdEvaluator sd.Evaluator

	latestKeyZoneSignal *model.KeyZoneSignal
	latestSD            *model.SDResult
}

func newTimeframeManager(tf model.Timeframe) *timeframeManager {
	return &timeframeManager{
		timeframe:   tf,
		sbarMgr:     sbar.New(tf),
		cbarMgr:     cbar.New(),
		swingMgr:    swing.New(),
		trendMgr:    trend.New(),
		keyzoneMgr:  keyzone.New(),
		sdEvaluator: sd.NewEvaluator(sd.DefaultConfig()),
	}
}

func (t *timeframeManager) setSDConfig(cfg sd.Config) {
	t.sdEvaluator = sd.NewEvaluator(cfg)
}

func (t *timeframeManager) append(bar model.SBar) backtrackIDs {
	stamped := t.sbarMgr.Append(bar)

	cbarBacktrackID, cbarChanged := t.cbarMgr.OnSBar(&stamped)

	swingBacktrackID, swingChanged := t.swingMgr.RebuildFromCBars(t.cbarMgr.Rows(), cbarChanged)

	trendBacktrackID, trendChanged := t.trendMgr.RebuildFromSwings(t.swingMgr.Rows(), swingChanged)

	t.keyzoneMgr.RebuildFrom(
		t.timeframe,
		lastNSwings(t.swingMgr.Rows(), 20),
		lastNTrends(t.trendMgr.Rows(), 20),
		t.sbarMgr.LastN(200),
	)

	recent := t.sbarMgr.LastN(2)
	if len(recent) > 0 {
		last := recent[len(recent)-1]
		var prev *model.SBar
		if len(recent) > 1 {
			prev = &recent[0]
		}
		t.latestKeyZoneSignal = t.keyzoneMgr.EvaluateLatestSignal(&last, prev)
	} else {
		t.latestKeyZoneSignal = nil
	}

	keyzoneBias := 0.0
	if t.latestKeyZoneSignal != nil {
		keyzoneBias = t.latestKeyZoneSignal.SignedStrength()
	}
	result := t.sdEvaluator.EvaluateWindowWithBias(t.sbarMgr.LastN(50), keyzoneBias)
	t.latestSD = &result

	return backtrackIDs{
		cbar: cbarBacktrackID, hasCbar: cbarChanged,
		swing: swingBacktrackID, hasSwing: swingChanged,
		trend: trendBacktrackID, hasTrend: trendChanged,
	}
}

func lastNSwings(rows []model.Swing, n int) []model.Swing {
	if len(rows) <= n {
		return rows
	}
	return rows[len(rows)-n:]
}

func lastNTrends(rows []model.Trend, n int) []model.Trend {
	if len(rows) <= n {
		return rows
	}
	return rows[len(rows)-n:]
}
