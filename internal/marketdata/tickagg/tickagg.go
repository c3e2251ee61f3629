// Package tickagg aggregates raw ticks into M1 SBars and M1 bars into
// coarser timeframes. Grounded on original_source/struxis/src/tick.rs
// (TickBarAggregator, BarWindowAggregator). Volume/turnover on a tick are
// cumulative-since-session-start counters on many venues; per the
// counter-reset-safe delta rule, a counter that goes backward (a session
// reset) contributes a zero delta for that tick rather than a negative one.
package tickagg

import (
	"time"

	"github.com/ligl/struxis/internal/model"
)

// Tick is one raw trade/quote print from an adapter.
type Tick struct {
	Symbol       string
	Venue        string
	Datetime     int64 // unix millis
	LastPrice    float64
	Volume       float64 // cumulative since session start
	Turnover     float64 // cumulative since session start
	OpenInterest float64
}

// TickBarAggregator folds a stream of ticks into M1 SBars, emitting the
// previous bar each time a tick crosses into a new minute.
type TickBarAggregator struct {
	current      *model.SBar
	hasLast      bool
	lastVolume   float64
	lastTurnover float64
}

func NewTickBarAggregator() *TickBarAggregator {
	return &TickBarAggregator{}
}

// Update folds tick into the in-progress M1 bar. It returns the previous
// bar (non-nil) exactly when tick belongs to a new minute.
func (a *TickBarAggregator) Update(tick Tick) *model.SBar {
	minuteMs := floorToMinuteMs(tick.Datetime)

	deltaVolume := 0.0
	deltaTurnover := 0.0
	if a.hasLast {
		if tick.Volume >= a.lastVolume {
			deltaVolume = tick.Volume - a.lastVolume
		}
		if tick.Turnover >= a.lastTurnover {
			deltaTurnover = tick.Turnover - a.lastTurnover
		}
	}
	a.lastVolume = tick.Volume
	a.lastTurnover = tick.Turnover
	a.hasLast = true

	if a.current == nil {
		a.current = newMinuteBar(tick, minuteMs, deltaVolume, deltaTurnover)
		return nil
	}

	if a.current.Datetime.UnixMilli() == minuteMs {
		if tick.LastPrice > a.current.High {
			a.current.High = tick.LastPrice
		}
		if tick.LastPrice < a.current.Low {
			a.current.Low = tick.LastPrice
		}
		a.current.Close = tick.LastPrice
		a.current.Volume += deltaVolume
		a.current.Turnover += deltaTurnover
		a.current.OpenInterest = tick.OpenInterest
		return nil
	}

	finished := a.current
	a.current = newMinuteBar(tick, minuteMs, deltaVolume, deltaTurnover)
	return finished
}

// Flush returns and clears the in-progress bar, if any.
func (a *TickBarAggregator) Flush() *model.SBar {
	bar := a.current
	a.current = nil
	return bar
}

func newMinuteBar(tick Tick, minuteMs int64, deltaVolume, deltaTurnover float64) *model.SBar {
	return &model.SBar{
		Symbol: tick.Symbol, Venue: tick.Venue, Timeframe: model.TFM1,
		Datetime: time.UnixMilli(minuteMs).UTC(),
		Open:     tick.LastPrice, High: tick.LastPrice, Low: tick.LastPrice, Close: tick.LastPrice,
		Volume: deltaVolume, OpenInterest: tick.OpenInterest, Turnover: deltaTurnover,
	}
}

func floorToMinuteMs(ms int64) int64 {
	const minuteMs = 60_000
	return ms - ms%minuteMs
}

// BarWindowAggregator buffers consecutive M1 bars and emits one coarser bar
// (open from the first, close from the last, high/low/volume/turnover
// aggregated) once window bars have accumulated.
type BarWindowAggregator struct {
	timeframe model.Timeframe
	window    int
	buffer    []model.SBar
}

// NewBarWindowAggregator returns nil if timeframe resolves to a 1-bar window
// (M1 itself needs no resampling).
func NewBarWindowAggregator(tf model.Timeframe) *BarWindowAggregator {
	window := int(tf) / int(model.TFM1)
	if window <= 1 {
		return nil
	}
	return &BarWindowAggregator{timeframe: tf, window: window, buffer: make([]model.SBar, 0, window)}
}

// Update folds m1Bar into the buffer, returning the resampled bar once the
// window fills (and resetting the buffer for the next window).
func (a *BarWindowAggregator) Update(m1Bar model.SBar) *model.SBar {
	a.buffer = append(a.buffer, m1Bar)
	if len(a.buffer) < a.window {
		return nil
	}

	first := a.buffer[0]
	last := a.buffer[len(a.buffer)-1]

	high := a.buffer[0].High
	low := a.buffer[0].Low
	var volume, turnover float64
	for _, b := range a.buffer {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
		volume += b.Volume
		turnover += b.Turnover
	}

	a.buffer = a.buffer[:0]

	return &model.SBar{
		Symbol: first.Symbol, Venue: first.Venue, Timeframe: a.timeframe,
		Datetime: last.Datetime,
		Open:     first.Open, High: high, Low: low, Close: last.Close,
		Volume: volume, OpenInterest: last.OpenInterest, Turnover: turnover,
	}
}
