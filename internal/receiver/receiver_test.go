package receiver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ligl/struxis/internal/marketdata/tickagg"
	"github.com/ligl/struxis/internal/model"
	"github.com/ligl/struxis/internal/mtc"
)

func TestIngestBarForwardsDirectlyToMTC(t *testing.T) {
	ctx := mtc.New("BTCUSDT")
	r := New(ctx)
	r.RegisterTimeframe(model.TFM1)

	r.IngestBar(BarInput{Symbol: "BTCUSDT", Timeframe: model.TFM1, Open: 1, High: 2, Low: 0.5, Close: 1.5})

	if ctx.Count(model.TFM1) != 1 {
		t.Fatalf("expected 1 bar recorded on M1")
	}
}

func TestIngestTickAggregatesAndResamples(t *testing.T) {
	ctx := mtc.New("BTCUSDT")
	r := New(ctx)
	r.RegisterTimeframe(model.TFM1)
	r.RegisterTimeframe(model.TFM5)

	for minute := int64(0); minute < 5; minute++ {
		r.IngestTick(tickagg.Tick{
			Symbol: "BTCUSDT", Datetime: minute * 60_000, LastPrice: 100 + float64(minute), Volume: float64(minute) * 10,
		})
		// next minute's first tick flushes the previous bar
		r.IngestTick(tickagg.Tick{
			Symbol: "BTCUSDT", Datetime: minute*60_000 + 60_000, LastPrice: 100 + float64(minute) + 0.5, Volume: float64(minute)*10 + 5,
		})
	}
	r.FlushTicks()

	if ctx.Count(model.TFM1) < 5 {
		t.Fatalf("expected at least 5 M1 bars, got %d", ctx.Count(model.TFM1))
	}
}

func TestParseDatetimeAcceptsRFC3339AndCommonLayout(t *testing.T) {
	if _, err := ParseDatetime("2024-01-02T15:04:05Z"); err != nil {
		t.Fatalf("expected RFC3339 to parse: %v", err)
	}
	if _, err := ParseDatetime("2024-01-02 15:04:05"); err != nil {
		t.Fatalf("expected common layout to parse: %v", err)
	}
	if _, err := ParseDatetime("not-a-date"); err == nil {
		t.Fatalf("expected an error for an unparseable datetime")
	}
}

func TestIngestCSVSkipsBadRowsWithoutAborting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bars.csv")
	content := "datetime,open,high,low,close,volume\n" +
		"2024-01-01T00:00:00Z,1,2,0.5,1.5,100\n" +
		"not-a-date,1,2,0.5,1.5,100\n" +
		"2024-01-01T00:01:00Z,1.5,2.5,1,2,100\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	ctx := mtc.New("I2601")
	r := New(ctx)
	r.RegisterTimeframe(model.TFM1)

	count, errs := r.IngestCSV(path, "I2601", "SIM", model.TFM1)
	if count != 2 {
		t.Fatalf("expected 2 good rows ingested, got %d (errs=%v)", count, errs)
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 row error, got %d", len(errs))
	}
}
