package barlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ligl/struxis/internal/model"
)

func TestAppendThenReadAllRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "bars.log")

	w, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := model.SBar{
		Symbol: "BTCUSDT", Venue: "BINANCE", Timeframe: model.TFM1,
		Datetime: time.UnixMilli(1700000000123).UTC(),
		Open:     50000.1, High: 50010.5, Low: 49990.25, Close: 50005.75,
		Volume: 12.5, OpenInterest: 0, Turnover: 625000.125,
	}
	if err := w.Append(want); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 bar, got %d", len(got))
	}

	b := got[0]
	if b.Symbol != want.Symbol || b.Venue != want.Venue || b.Timeframe != want.Timeframe {
		t.Fatalf("identity mismatch: %+v", b)
	}
	if !b.Datetime.Equal(want.Datetime) {
		t.Fatalf("expected datetime %v, got %v", want.Datetime, b.Datetime)
	}
	if b.Open != want.Open || b.High != want.High || b.Low != want.Low || b.Close != want.Close {
		t.Fatalf("OHLC mismatch: %+v", b)
	}
	if b.Volume != want.Volume || b.OpenInterest != want.OpenInterest || b.Turnover != want.Turnover {
		t.Fatalf("volume/oi/turnover mismatch: %+v", b)
	}
}

func TestReadAllSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bars.log")

	w, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bar := model.SBar{Symbol: "X", Venue: "Y", Datetime: time.UnixMilli(0)}
	w.Append(bar)
	w.w.WriteString("\n\n") // two blank lines between the records
	w.Append(bar)
	w.Close()

	bars, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
}
