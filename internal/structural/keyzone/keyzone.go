// Package keyzone derives horizontal price zones from the most recent
// swings and trends, refines their bounds by maximizing the bar-touch count
// within a tick-sized sweep, and classifies each new SBar's reaction against
// every live zone. Grounded on original_source/struxis/src/keyzone.rs:
// KeyZoneManager.rebuild_from, refine_zone_bounds, estimate_tick_size, and
// classify_zone_signal.
package keyzone

import (
	"math"

	"github.com/ligl/struxis/internal/model"
)

// Manager holds the current key-zone set for one timeframe.
type Manager struct {
	rows         []model.KeyZone
	idCursor     uint64
	latestSignal *model.KeyZoneSignal
}

func New() *Manager {
	return &Manager{}
}

func (m *Manager) Rows() []model.KeyZone { return m.rows }

func (m *Manager) LatestSignal() *model.KeyZoneSignal { return m.latestSignal }

// RebuildFrom replaces the zone set with one zone per each of the last five
// swings and the last five trends.
func (m *Manager) RebuildFrom(tf model.Timeframe, swings []model.Swing, trends []model.Trend, sbars []model.SBar) {
	m.rows = nil
	m.latestSignal = nil

	for _, sw := range lastN(swings, 5) {
		m.pushZoneFromSwing(tf, sw, sbars)
	}
	for _, tr := range lastNTrends(trends, 5) {
		m.pushZoneFromTrend(tf, tr, sbars)
	}
}

func (m *Manager) pushZoneFromSwing(tf model.Timeframe, sw model.Swing, sbars []model.SBar) {
	m.idCursor++
	lower, upper, touchCount, lastTouch := refineZoneBounds(sbars, sw.SBarStartID, sw.SBarEndID, sw.Direction, sw.Low, sw.High)
	m.rows = append(m.rows, model.KeyZone{
		ID:            m.idCursor,
		Timeframe:     tf,
		Origin:        model.OriginSwing,
		Orientation:   orientationFor(sw.Direction),
		Upper:         upper,
		Lower:         lower,
		TouchCount:    touchCount,
		LastTouchID:   lastTouch,
		SBarStartID:   sw.SBarStartID,
		SBarEndID:     sw.SBarEndID,
		DirectionHint: sw.Direction,
	})
}

func (m *Manager) pushZoneFromTrend(tf model.Timeframe, tr model.Trend, sbars []model.SBar) {
	m.idCursor++
	lower, upper, touchCount, lastTouch := refineZoneBounds(sbars, tr.SBarStartID, tr.SBarEndID, tr.Direction, tr.Low, tr.High)
	m.rows = append(m.rows, model.KeyZone{
		ID:            m.idCursor,
		Timeframe:     tf,
		Origin:        model.OriginTrend,
		Orientation:   orientationFor(tr.Direction),
		Upper:         upper,
		Lower:         lower,
		TouchCount:    touchCount,
		LastTouchID:   lastTouch,
		SBarStartID:   tr.SBarStartID,
		SBarEndID:     tr.SBarEndID,
		DirectionHint: tr.Direction,
	})
}

func orientationFor(dir model.Direction) model.KeyZoneOrientation {
	if dir == model.DirUp {
		return model.OrientationSupport
	}
	return model.OrientationResistance
}

// EvaluateLatestSignal classifies latestBar's reaction against every live
// zone and returns the strongest signal observed, recording a reaction entry
// on every zone that fired.
func (m *Manager) EvaluateLatestSignal(latestBar *model.SBar, prevBar *model.SBar) *model.KeyZoneSignal {
	var best *model.KeyZoneSignal
	for i := range m.rows {
		zone := &m.rows[i]
		signal := classifyZoneSignal(zone, latestBar, prevBar)
		if signal == nil {
			continue
		}
		zone.Reactions = append(zone.Reactions, *signal)
		if best == nil || signal.Strength > best.Strength {
			s := *signal
			best = &s
		}
	}
	m.latestSignal = best
	return best
}

func classifyZoneSignal(zone *model.KeyZone, bar *model.SBar, prev *model.SBar) *model.KeyZoneSignal {
	overlapLow := maxF(bar.Low, zone.Lower)
	overlapHigh := minF(bar.High, zone.Upper)
	if overlapHigh <= overlapLow {
		return nil
	}

	zoneSpan := maxF(zone.Upper-zone.Lower, 1e-6)
	overlapRatio := clamp01((overlapHigh - overlapLow) / zoneSpan)
	bodyRatio := clamp01(bar.Body() / maxF(bar.TotalRange(), 1e-6))
	closesInside := zone.Lower <= bar.Close && bar.Close <= zone.Upper

	var closesOppositeSide, directionalBody bool
	switch zone.DirectionHint {
	case model.DirUp:
		closesOppositeSide = bar.Close < zone.Lower
		directionalBody = bar.Close >= bar.Open
	case model.DirDown:
		closesOppositeSide = bar.Close > zone.Upper
		directionalBody = bar.Close <= bar.Open
	}

	prevBrokeWithHint := false
	if prev != nil {
		switch zone.DirectionHint {
		case model.DirUp:
			prevBrokeWithHint = prev.Close > zone.Upper
		case model.DirDown:
			prevBrokeWithHint = prev.Close < zone.Lower
		}
	}
	if prevBrokeWithHint && closesInside {
		return &model.KeyZoneSignal{
			ZoneID:    zone.ID,
			Behavior:  model.BehaviorBreakoutFailure,
			Direction: zone.DirectionHint,
			Strength:  clamp01(0.65 + 0.35*overlapRatio),
			SBarID:    bar.ID,
		}
	}

	prevTouched := prev != nil && prev.Low <= zone.Upper && prev.High >= zone.Lower
	if prevTouched && zone.TouchCount >= 2 && directionalBody {
		return &model.KeyZoneSignal{
			ZoneID:    zone.ID,
			Behavior:  model.BehaviorSecondPush,
			Direction: zone.DirectionHint,
			Strength:  clamp01(0.55 + 0.45*bodyRatio),
			SBarID:    bar.ID,
		}
	}

	if closesInside && directionalBody {
		behavior := model.BehaviorWeakAccept
		if overlapRatio >= 0.55 && bodyRatio >= 0.45 {
			behavior = model.BehaviorStrongAccept
		}
		return &model.KeyZoneSignal{
			ZoneID:    zone.ID,
			Behavior:  behavior,
			Direction: zone.DirectionHint,
			Strength:  clamp01(0.4*overlapRatio + 0.6*bodyRatio),
			SBarID:    bar.ID,
		}
	}

	if closesOppositeSide || !directionalBody {
		behavior := model.BehaviorWeakReject
		if closesOppositeSide || bodyRatio >= 0.45 {
			behavior = model.BehaviorStrongReject
		}
		return &model.KeyZoneSignal{
			ZoneID:    zone.ID,
			Behavior:  behavior,
			Direction: zone.DirectionHint,
			Strength:  clamp01(0.5*overlapRatio + 0.5*bodyRatio),
			SBarID:    bar.ID,
		}
	}

	return nil
}

// refineZoneBounds maximizes the bar-touch count within the tick-sized sweep
// between the swing/trend's extreme and the far side of its first body,
// tightening the zone toward where price actually reacted.
func refineZoneBounds(sbars []model.SBar, startID, endID uint64, direction model.Direction, fallbackLower, fallbackUpper float64) (lower, upper float64, touchCount int, lastTouchID uint64) {
	scope := sbarsInRange(sbars, startID, endID)
	if len(scope) == 0 {
		return fallbackLower, fallbackUpper, 0, 0
	}

	tick := maxF(estimateTickSize(scope), 1e-6)

	var startPrice, endPrice float64
	lower, upper = fallbackLower, fallbackUpper

	switch direction {
	case model.DirUp:
		hi := -math.MaxFloat64
		minBodyTop := math.MaxFloat64
		for _, b := range scope {
			hi = maxF(hi, b.High)
			minBodyTop = minF(minBodyTop, maxF(b.Open, b.Close))
		}
		upper = hi
		startPrice, endPrice = minBodyTop, hi
	case model.DirDown:
		lo := math.MaxFloat64
		maxBodyBottom := -math.MaxFloat64
		for _, b := range scope {
			lo = minF(lo, b.Low)
			maxBodyBottom = maxF(maxBodyBottom, minF(b.Open, b.Close))
		}
		lower = lo
		startPrice, endPrice = lo, maxBodyBottom
	}

	if endPrice <= startPrice {
		return minF(lower, upper), maxF(upper, lower), len(scope), scope[len(scope)-1].ID
	}

	bestPrice := startPrice
	bestCount := 0
	for price := startPrice; price <= endPrice+tick*0.5; price += tick {
		count := 0
		for _, b := range scope {
			if b.Low <= price && price <= b.High {
				count++
			}
		}
		if count > bestCount {
			bestCount = count
			bestPrice = price
		}
	}

	switch direction {
	case model.DirUp:
		lower = bestPrice
	case model.DirDown:
		upper = bestPrice
	}

	if bestCount < 1 {
		bestCount = 1
	}
	return minF(lower, upper), maxF(upper, lower), bestCount, scope[len(scope)-1].ID
}

func estimateTickSize(scope []model.SBar) float64 {
	minStep := math.MaxFloat64
	for _, b := range scope {
		candidates := [4]float64{
			absF(b.High - b.Low),
			absF(b.Close - b.Open),
			absF(b.High - b.Open),
			absF(b.Low - b.Open),
		}
		for _, step := range candidates {
			if step > 1e-9 && step < minStep {
				minStep = step
			}
		}
	}
	if minStep == math.MaxFloat64 {
		return 0.2
	}
	return maxF(minStep/10.0, 1e-4)
}

func sbarsInRange(sbars []model.SBar, startID, endID uint64) []model.SBar {
	var out []model.SBar
	for _, b := range sbars {
		if startID <= b.ID && b.ID <= endID {
			out = append(out, b)
		}
	}
	return out
}

func lastN(swings []model.Swing, n int) []model.Swing {
	if len(swings) <= n {
		return swings
	}
	return swings[len(swings)-n:]
}

func lastNTrends(trends []model.Trend, n int) []model.Trend {
	if len(trends) <= n {
		return trends
	}
	return trends[len(trends)-n:]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
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

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
