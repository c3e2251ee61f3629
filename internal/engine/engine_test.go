package engine

import (
	"testing"
	"time"

	"github.com/ligl/struxis/internal/model"
)

func TestSnapshotReflectsLatestAppendsPerTimeframe(t *testing.T) {
	e := New("BTCUSDT")

	e.Append(model.TFM5, model.SBar{Open: 100, High: 102, Low: 99, Close: 101, Datetime: time.Unix(0, 0)})
	e.Append(model.TFM15, model.SBar{Open: 100, High: 103, Low: 98, Close: 102, Datetime: time.Unix(0, 0)})
	e.Append(model.TFH1, model.SBar{Open: 100, High: 105, Low: 97, Close: 104, Datetime: time.Unix(0, 0)})

	snap := e.Snapshot()
	if snap.Symbol != "BTCUSDT" {
		t.Fatalf("expected symbol BTCUSDT, got %q", snap.Symbol)
	}
	if snap.Entry.Timeframe != model.TFM5 || snap.Trade.Timeframe != model.TFM15 || snap.Higher.Timeframe != model.TFH1 {
		t.Fatalf("expected entry=M5 trade=M15 higher=H1, got entry=%v trade=%v higher=%v",
			snap.Entry.Timeframe, snap.Trade.Timeframe, snap.Higher.Timeframe)
	}
	if snap.Entry.LatestCBar == nil {
		t.Fatalf("expected a latest cbar on the entry timeframe after one append")
	}
}
