// Package receiver normalizes external bar and tick inputs into SBars and
// forwards them into a MultiTimeframeContext, handling tick->M1 and
// M1->coarser-timeframe aggregation along the way. Grounded on
// original_source/struxis/src/receiver.rs.
package receiver

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/ligl/struxis/internal/marketdata/tickagg"
	"github.com/ligl/struxis/internal/model"
	"github.com/ligl/struxis/internal/mtc"
	"github.com/ligl/struxis/internal/structerr"
)

// BarInput is a normalized external bar, ready to become an SBar.
type BarInput struct {
	Symbol       string
	Venue        string
	Timeframe    model.Timeframe
	Datetime     time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	OpenInterest float64
	Turnover     float64
}

func (b BarInput) toSBar() model.SBar {
	return model.SBar{
		Symbol: b.Symbol, Venue: b.Venue, Timeframe: b.Timeframe, Datetime: b.Datetime,
		Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
		Volume: b.Volume, OpenInterest: b.OpenInterest, Turnover: b.Turnover,
	}
}

// Receiver is the normalization/aggregation boundary between external bar
// and tick sources and the structural pipeline.
type Receiver struct {
	ctx         *mtc.Context
	registered  map[model.Timeframe]bool
	tickAggs    map[string]*tickagg.TickBarAggregator
	windowAggs  map[model.Timeframe]*tickagg.BarWindowAggregator
}

func New(ctx *mtc.Context) *Receiver {
	return &Receiver{
		ctx:        ctx,
		registered: make(map[model.Timeframe]bool),
		tickAggs:   make(map[string]*tickagg.TickBarAggregator),
		windowAggs: make(map[model.Timeframe]*tickagg.BarWindowAggregator),
	}
}

// RegisterTimeframe registers tf on the underlying context and, if tf is
// coarser than M1, attaches a window aggregator for M1->tf resampling.
func (r *Receiver) RegisterTimeframe(tf model.Timeframe) {
	r.ctx.Register(tf)
	r.registered[tf] = true
	if agg := tickagg.NewBarWindowAggregator(tf); agg != nil {
		r.windowAggs[tf] = agg
	}
}

// IngestBar forwards a single normalized bar straight to its timeframe.
func (r *Receiver) IngestBar(input BarInput) {
	r.ctx.Append(input.Timeframe, input.toSBar())
}

// IngestBatch forwards a sequence of normalized bars, in order.
func (r *Receiver) IngestBatch(inputs []BarInput) {
	for _, in := range inputs {
		r.IngestBar(in)
	}
}

// IngestTick folds tick into its per-(symbol,venue) M1 aggregator, emitting
// and forwarding any completed M1 bar (and any coarser bars it completes).
// Returns the number of timeframes a bar was forwarded to.
func (r *Receiver) IngestTick(tick tickagg.Tick) int {
	key := tick.Symbol + "::" + tick.Venue
	agg, ok := r.tickAggs[key]
	if !ok {
		agg = tickagg.NewTickBarAggregator()
		r.tickAggs[key] = agg
	}

	if bar := agg.Update(tick); bar != nil {
		return r.forwardM1Bar(*bar)
	}
	return 0
}

// FlushTicks drains every in-progress per-symbol M1 aggregator, forwarding
// each partial bar. Call at session end so the final, not-yet-closed minute
// isn't silently dropped.
func (r *Receiver) FlushTicks() int {
	emitted := 0
	for _, agg := range r.tickAggs {
		if bar := agg.Flush(); bar != nil {
			emitted += r.forwardM1Bar(*bar)
		}
	}
	return emitted
}

// IngestM1Bar forwards one already-closed M1 bar straight to the M1
// timeframe (if registered) and resamples it into any registered coarser
// timeframe. Use this for adapters that already emit finished M1 bars
// rather than raw ticks (IngestTick is for the tick-level path).
func (r *Receiver) IngestM1Bar(bar model.SBar) int {
	return r.forwardM1Bar(bar)
}

func (r *Receiver) forwardM1Bar(m1Bar model.SBar) int {
	emitted := 0
	if r.registered[model.TFM1] {
		r.ctx.Append(model.TFM1, m1Bar)
		emitted++
	}
	for tf, agg := range r.windowAggs {
		if tfBar := agg.Update(m1Bar); tfBar != nil {
			r.ctx.Append(tf, *tfBar)
			emitted++
		}
	}
	return emitted
}

// MTC exposes the underlying context.
func (r *Receiver) MTC() *mtc.Context { return r.ctx }

// IngestCSV loads rows from a CSV bar file and forwards them in file order.
// Columns: datetime,open,high,low,close[,volume][,open_interest][,turnover].
// A tolerant datetime parser tries RFC3339 first, then a small set of common
// "YYYY-MM-DD HH:MM:SS"-style layouts. A parse failure on one row is
// reported without aborting the remaining rows; the returned count is rows
// successfully ingested.
func (r *Receiver) IngestCSV(path, symbol, venue string, tf model.Timeframe) (int, []error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, []error{&structerr.IOError{Op: "open csv", Cause: err}}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, []error{&structerr.CSVError{Row: 0, Cause: err}}
	}
	col := columnIndex(header)

	var errs []error
	count := 0
	row := 0
	for {
		row++
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			errs = append(errs, &structerr.CSVError{Row: row, Cause: err})
			continue
		}

		input, err := parseRow(record, col, symbol, venue, tf)
		if err != nil {
			errs = append(errs, &structerr.CSVError{Row: row, Cause: err})
			continue
		}
		r.IngestBar(input)
		count++
	}
	return count, errs
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	return idx
}

func parseRow(record []string, col map[string]int, symbol, venue string, tf model.Timeframe) (BarInput, error) {
	get := func(names ...string) string {
		for _, n := range names {
			if i, ok := col[n]; ok && i < len(record) {
				return record[i]
			}
		}
		return ""
	}
	parseF := func(names ...string) float64 {
		v, _ := strconv.ParseFloat(get(names...), 64)
		return v
	}

	dt, err := ParseDatetime(get("datetime"))
	if err != nil {
		return BarInput{}, err
	}

	return BarInput{
		Symbol: symbol, Venue: venue, Timeframe: tf, Datetime: dt,
		Open:  parseF("open", "open_price"),
		High:  parseF("high", "high_price"),
		Low:   parseF("low", "low_price"),
		Close: parseF("close", "close_price"),
		Volume:       parseF("volume"),
		OpenInterest: parseF("open_interest"),
		Turnover:     parseF("turnover", "money"),
	}, nil
}

var datetimeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006/01/02 15:04:05.999999999",
	"20060102150405.999999999",
}

// ParseDatetime tries RFC3339 first, then a small set of common
// "YYYY-MM-DD HH:MM:SS"-style layouts.
func ParseDatetime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, structerr.ErrInvalidDatetime
}
