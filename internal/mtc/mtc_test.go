package mtc

import (
	"testing"
	"time"

	"github.com/ligl/struxis/internal/model"
)

func TestAppendFiresAllSixEventsInOrder(t *testing.T) {
	ctx := New("BTCUSDT")
	ctx.Register(model.TFM1)

	var seen []EventType
	ctx.Subscribe(nil, func(tf model.Timeframe, event EventType, payload EventPayload) {
		seen = append(seen, event)
	})

	ctx.Append(model.TFM1, model.SBar{Open: 100, High: 101, Low: 99, Close: 100.5, Datetime: time.Unix(0, 0)})

	want := []EventType{EventSBarCreated, EventCBarChanged, EventSwingChanged, EventTrendChanged, EventTimeframeEnd, EventNewBar}
	if len(seen) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(seen), seen)
	}
	for i, e := range want {
		if seen[i] != e {
			t.Fatalf("event %d: expected %v, got %v", i, e, seen[i])
		}
	}
}

func TestAppendPopulatesSBarWindowAndSD(t *testing.T) {
	ctx := New("BTCUSDT")
	ctx.Register(model.TFM1)

	for i := 0; i < 5; i++ {
		base := float64(100 + i)
		ctx.Append(model.TFM1, model.SBar{
			Open: base, High: base + 2, Low: base - 1, Close: base + 1,
			Volume: 1000, Datetime: time.Unix(int64(i*60), 0),
		})
	}

	window := ctx.GetSBarWindow(model.TFM1, 10)
	if len(window) != 5 {
		t.Fatalf("expected 5 sbars in window, got %d", len(window))
	}

	sd := ctx.GetSD(model.TFM1)
	if sd == nil {
		t.Fatalf("expected a non-nil SD result after appends")
	}
}

func TestAppendOnUnregisteredTimeframeIsANoop(t *testing.T) {
	ctx := New("BTCUSDT")
	ctx.Append(model.TFH1, model.SBar{Close: 1})
	if ctx.Count(model.TFH1) != 0 {
		t.Fatalf("expected no rows recorded for an unregistered timeframe")
	}
}
