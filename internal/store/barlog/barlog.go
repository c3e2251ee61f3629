// Package barlog is the append-only, pipe-delimited bar log: one line per
// M1 bar, read back bit-for-bit into an equivalent SBar. Grounded on the
// append-mode file handling in teacher's internal/store/sqlite/writer.go
// (open once, write in a single goroutine), reworked onto a flat text
// format per the persisted bar log contract rather than a database.
package barlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ligl/struxis/internal/model"
	"github.com/ligl/struxis/internal/structerr"
)

// Writer appends SBars to a single file, one line per bar, in the format
// <ts_ms>|<symbol>|<venue>|<open>|<high>|<low>|<close>|<volume>|<open_interest>|<turnover>.
type Writer struct {
	f *os.File
	w *bufio.Writer
}

// New opens path in append mode, creating any missing directory components.
func New(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &structerr.IOError{Op: "mkdir barlog dir", Cause: err}
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &structerr.IOError{Op: "open barlog", Cause: err}
	}

	return &Writer{f: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one bar and flushes immediately so a crash loses at most
// the in-flight write, not the whole buffer.
func (w *Writer) Append(bar model.SBar) error {
	line := formatLine(bar)
	if _, err := w.w.WriteString(line); err != nil {
		return &structerr.IOError{Op: "write barlog line", Cause: err}
	}
	if err := w.w.Flush(); err != nil {
		return &structerr.IOError{Op: "flush barlog", Cause: err}
	}
	return nil
}

func formatLine(bar model.SBar) string {
	return fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s|%s|%s\n",
		bar.Datetime.UnixMilli(), bar.Symbol, bar.Venue,
		formatFloat(bar.Open), formatFloat(bar.High), formatFloat(bar.Low), formatFloat(bar.Close),
		formatFloat(bar.Volume), formatFloat(bar.OpenInterest), formatFloat(bar.Turnover))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return &structerr.IOError{Op: "flush barlog on close", Cause: err}
	}
	return w.f.Close()
}

// ReadAll reads every bar from path in file order. Timeframe on returned
// bars is always model.TFM1, since the log format implies it.
func ReadAll(path string) ([]model.SBar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &structerr.IOError{Op: "open barlog for read", Cause: err}
	}
	defer f.Close()

	var bars []model.SBar
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Text()
		if raw == "" {
			continue
		}
		bar, err := parseLine(raw)
		if err != nil {
			return nil, fmt.Errorf("barlog line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
	if err := scanner.Err(); err != nil {
		return nil, &structerr.IOError{Op: "scan barlog", Cause: err}
	}
	return bars, nil
}

func parseLine(raw string) (model.SBar, error) {
	fields := strings.Split(raw, "|")
	if len(fields) != 10 {
		return model.SBar{}, fmt.Errorf("expected 10 fields, got %d", len(fields))
	}

	tsMs, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return model.SBar{}, fmt.Errorf("timestamp_ms: %w", err)
	}

	floats := make([]float64, 7)
	for i, idx := range []int{3, 4, 5, 6, 7, 8, 9} {
		v, err := strconv.ParseFloat(fields[idx], 64)
		if err != nil {
			return model.SBar{}, fmt.Errorf("field %d: %w", idx, err)
		}
		floats[i] = v
	}

	return model.SBar{
		Symbol: fields[1], Venue: fields[2], Timeframe: model.TFM1,
		Datetime: time.UnixMilli(tsMs).UTC(),
		Open:     floats[0], High: floats[1], Low: floats[2], Close: floats[3],
		Volume: floats[4], OpenInterest: floats[5], Turnover: floats[6],
	}, nil
}
