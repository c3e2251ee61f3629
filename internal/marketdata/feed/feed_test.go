package feed

import (
	"testing"
	"time"

	"github.com/ligl/struxis/internal/marketdata/ingress"
	"github.com/ligl/struxis/internal/model"
)

func TestIngestDeliversToSubscriberAndUpdatesMetrics(t *testing.T) {
	f := New()
	sub := f.Subscribe("I2601", 300)

	n := f.Ingest(model.SBar{Symbol: "I2601", Close: 100.5, Datetime: time.Unix(0, 0)}, 300)
	if n != 1 {
		t.Fatalf("expected 1 receiver, got %d", n)
	}

	select {
	case bar := <-sub:
		if bar.Close != 100.5 {
			t.Fatalf("expected close 100.5, got %v", bar.Close)
		}
	default:
		t.Fatalf("expected a bar on the subscriber channel")
	}

	m := f.Metrics()
	if m.Published != 1 {
		t.Fatalf("expected published=1, got %d", m.Published)
	}
	if f.SubscriberCount("I2601", 300) != 1 {
		t.Fatalf("expected subscriber_count=1")
	}
}

func TestIngestUnderCapacityOneDropPolicyDropNewestKeepsFirst(t *testing.T) {
	f := WithConfig(Config{ChannelCapacity: 8, IngressCapacity: 1, OverloadPolicy: ingress.DropNewest})

	f.Ingest(model.SBar{Close: 1}, 60)
	f.Ingest(model.SBar{Close: 2}, 60)

	m := f.Metrics()
	if m.DroppedNewest != 1 {
		t.Fatalf("expected 1 dropped-newest event, got %d", m.DroppedNewest)
	}
	bar, ok := f.PopIngress()
	if !ok || bar.Close != 1 {
		t.Fatalf("expected the first bar to survive under DropNewest, got %v ok=%v", bar, ok)
	}
}

func TestIngestUnderCapacityOneDropPolicyDropOldestKeepsSecond(t *testing.T) {
	f := WithConfig(Config{ChannelCapacity: 8, IngressCapacity: 1, OverloadPolicy: ingress.DropOldest})

	f.Ingest(model.SBar{Close: 1}, 60)
	f.Ingest(model.SBar{Close: 2}, 60)

	m := f.Metrics()
	if m.DroppedOldest != 1 {
		t.Fatalf("expected 1 dropped-oldest event, got %d", m.DroppedOldest)
	}
	bar, ok := f.PopIngress()
	if !ok || bar.Close != 2 {
		t.Fatalf("expected the second bar to survive under DropOldest, got %v ok=%v", bar, ok)
	}
}
