// Package engine is the Analysis Engine snapshot contract: a three-timeframe
// (higher/trade/entry) view over one symbol's MultiTimeframeContext, exported
// as a single consistent-at-a-point-in-time Snapshot. Grounded on
// original_source/struxis/src/engine.rs.
package engine

import (
	"github.com/ligl/struxis/internal/model"
	"github.com/ligl/struxis/internal/mtc"
)

// TimeframeAnalysis is one timeframe's latest structural state.
type TimeframeAnalysis struct {
	Timeframe     model.Timeframe
	LatestCBar    *model.CBar
	LatestSwing   *model.Swing
	LatestTrend   *model.Trend
	KeyZoneSignal *model.KeyZoneSignal
	SD            *model.SDResult
}

// Snapshot is the read-only export surface for one symbol across its three
// registered analysis timeframes.
type Snapshot struct {
	Symbol string
	Higher TimeframeAnalysis
	Trade  TimeframeAnalysis
	Entry  TimeframeAnalysis
}

// Engine composes a MultiTimeframeContext over three nested timeframes.
type Engine struct {
	mtc      *mtc.Context
	higherTF model.Timeframe
	tradeTF  model.Timeframe
	entryTF  model.Timeframe
}

// New creates an Engine using the standard M5/M15/H1 entry/trade/higher split.
func New(symbol string) *Engine {
	return WithTimeframes(symbol, model.TFH1, model.TFM15, model.TFM5)
}

// WithTimeframes creates an Engine over an explicit higher/trade/entry split.
func WithTimeframes(symbol string, higherTF, tradeTF, entryTF model.Timeframe) *Engine {
	ctx := mtc.New(symbol)
	return FromContext(ctx, higherTF, tradeTF, entryTF)
}

// FromContext wraps an existing MultiTimeframeContext (already populated by
// a Receiver, say) in the higher/trade/entry snapshot view, registering any
// of the three timeframes not already present. Register is idempotent, so
// this is safe to call after the context has bars in it.
func FromContext(ctx *mtc.Context, higherTF, tradeTF, entryTF model.Timeframe) *Engine {
	ctx.Register(entryTF)
	ctx.Register(tradeTF)
	ctx.Register(higherTF)
	return &Engine{mtc: ctx, higherTF: higherTF, tradeTF: tradeTF, entryTF: entryTF}
}

// Append runs bar through tf's structural pipeline.
func (e *Engine) Append(tf model.Timeframe, bar model.SBar) {
	e.mtc.Append(tf, bar)
}

// MTC exposes the underlying context, for subscribing to its event bus or
// setting per-timeframe SD configs.
func (e *Engine) MTC() *mtc.Context { return e.mtc }

// Snapshot exports the current higher/trade/entry structural state.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Symbol: e.mtc.Symbol(),
		Higher: e.timeframeAnalysis(e.higherTF),
		Trade:  e.timeframeAnalysis(e.tradeTF),
		Entry:  e.timeframeAnalysis(e.entryTF),
	}
}

func (e *Engine) timeframeAnalysis(tf model.Timeframe) TimeframeAnalysis {
	ta := TimeframeAnalysis{Timeframe: tf, KeyZoneSignal: e.mtc.GetKeyZoneSignal(tf), SD: e.mtc.GetSD(tf)}
	if cbars := e.mtc.GetCBarWindow(tf, 1); len(cbars) > 0 {
		c := cbars[len(cbars)-1]
		ta.LatestCBar = &c
	}
	if swings := e.mtc.GetSwingWindow(tf, 1); len(swings) > 0 {
		s := swings[len(swings)-1]
		ta.LatestSwing = &s
	}
	if trends := e.mtc.GetTrendWindow(tf, 1); len(trends) > 0 {
		tr := trends[len(trends)-1]
		ta.LatestTrend = &tr
	}
	return ta
}
