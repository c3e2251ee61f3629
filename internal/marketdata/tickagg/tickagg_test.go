package tickagg

import (
	"testing"

	"github.com/ligl/struxis/internal/model"
)

func TestTickBarAggregatorEmitsOnMinuteRollover(t *testing.T) {
	a := NewTickBarAggregator()

	if bar := a.Update(Tick{Symbol: "X", Datetime: 0, LastPrice: 100, Volume: 10, Turnover: 1000}); bar != nil {
		t.Fatalf("expected no bar on first tick, got %+v", bar)
	}
	if bar := a.Update(Tick{Symbol: "X", Datetime: 30_000, LastPrice: 101, Volume: 15, Turnover: 1510}); bar != nil {
		t.Fatalf("expected no bar within the same minute, got %+v", bar)
	}

	bar := a.Update(Tick{Symbol: "X", Datetime: 60_000, LastPrice: 99, Volume: 20, Turnover: 2000})
	if bar == nil {
		t.Fatalf("expected the first minute's bar to flush on rollover")
	}
	if bar.Open != 100 || bar.High != 101 || bar.Low != 100 || bar.Close != 101 {
		t.Fatalf("unexpected OHLC: %+v", bar)
	}
	// The first tick has no prior cumulative to diff against, so only the
	// second tick's delta (15 - 10) counts.
	if bar.Volume != 5 {
		t.Fatalf("expected accumulated delta volume 5, got %v", bar.Volume)
	}
}

func TestTickBarAggregatorTreatsCounterResetAsZeroDelta(t *testing.T) {
	a := NewTickBarAggregator()
	a.Update(Tick{Symbol: "X", Datetime: 0, LastPrice: 100, Volume: 1000, Turnover: 100000})
	bar := a.Update(Tick{Symbol: "X", Datetime: 0, LastPrice: 101, Volume: 5, Turnover: 500})

	if bar != nil {
		t.Fatalf("same-minute tick should not flush")
	}
	flushed := a.Flush()
	if flushed.Volume != 0 {
		t.Fatalf("expected a counter reset to contribute zero delta volume, got %v", flushed.Volume)
	}
}

func TestBarWindowAggregatorM1ReturnsNil(t *testing.T) {
	if NewBarWindowAggregator(model.TFM1) != nil {
		t.Fatalf("expected no resampler needed for M1 itself")
	}
}

func TestBarWindowAggregatorEmitsAfterWindowFills(t *testing.T) {
	agg := NewBarWindowAggregator(model.TFM5)
	var out *model.SBar
	for i := 0; i < 5; i++ {
		base := float64(100 + i)
		out = agg.Update(model.SBar{Symbol: "X", Open: base, High: base + 1, Low: base - 1, Close: base, Volume: 10})
	}
	if out == nil {
		t.Fatalf("expected a resampled bar after 5 M1 bars")
	}
	if out.Volume != 50 {
		t.Fatalf("expected summed volume 50, got %v", out.Volume)
	}
	if out.Timeframe != model.TFM5 {
		t.Fatalf("expected timeframe M5, got %v", out.Timeframe)
	}
}
