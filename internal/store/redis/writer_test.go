package redis

import (
	"testing"

	"github.com/ligl/struxis/internal/model"
)

func TestStreamKeyIncludesTimeframeVenueAndSymbol(t *testing.T) {
	bar := model.SBar{Symbol: "BTCUSDT", Venue: "BINANCE", Timeframe: model.TFM5}
	if got, want := streamKey(bar), "candle:300s:BINANCE:BTCUSDT"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestMaxLenForFloorsAtTwoHundred(t *testing.T) {
	if got := maxLenFor(model.TFD1); got != 200 {
		t.Fatalf("expected floor of 200 for a coarse timeframe, got %d", got)
	}
	if got := maxLenFor(model.TFM1); got != 200 {
		t.Fatalf("expected floor of 200 for M1 (10800/60=180), got %d", got)
	}
}
