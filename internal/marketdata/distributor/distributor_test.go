package distributor

import (
	"testing"
	"time"

	"github.com/ligl/struxis/internal/model"
)

func TestSubscribeThenBroadcastDeliversToSubscriber(t *testing.T) {
	d := New(8)
	sub := d.Subscribe("btcusdt", 300)

	if got := d.SubscriberCount("BTCUSDT", 300); got != 1 {
		t.Fatalf("expected 1 subscriber (key is case-folded), got %d", got)
	}

	bar := model.SBar{Symbol: "BTCUSDT", Close: 100.5, Datetime: time.Unix(0, 0)}
	n := d.Broadcast("btcusdt", 300, bar)
	if n != 1 {
		t.Fatalf("expected broadcast to reach 1 subscriber, got %d", n)
	}

	select {
	case got := <-sub:
		if got.Close != 100.5 {
			t.Fatalf("expected close 100.5, got %v", got.Close)
		}
	default:
		t.Fatalf("expected a bar to be waiting on the subscriber channel")
	}
}

func TestBroadcastWithNoSubscribersReturnsZero(t *testing.T) {
	d := New(8)
	n := d.Broadcast("ethusdt", 60, model.SBar{})
	if n != 0 {
		t.Fatalf("expected 0 receivers for an unsubscribed channel, got %d", n)
	}
}

func TestBroadcastDropsForFullSubscriberChannel(t *testing.T) {
	d := New(1)
	var drops int
	d.OnDrop(func(key string, idx int) { drops++ })

	sub := d.Subscribe("ethusdt", 60)
	d.Broadcast("ethusdt", 60, model.SBar{Close: 1})
	d.Broadcast("ethusdt", 60, model.SBar{Close: 2})

	if drops != 1 {
		t.Fatalf("expected exactly 1 drop once the buffer filled, got %d", drops)
	}
	<-sub
}

func TestActiveChannelsListsOnlyChannelsWithSubscribers(t *testing.T) {
	d := New(4)
	d.Subscribe("btcusdt", 60)

	active := d.ActiveChannels()
	if len(active) != 1 || active[0] != "btcusdt:60" {
		t.Fatalf("expected [\"btcusdt:60\"], got %v", active)
	}
}

func TestDistributorUsesAtLeastEightShards(t *testing.T) {
	d := New(1)
	if d.shardCount < 8 {
		t.Fatalf("expected shard count clamped to at least 8, got %d", d.shardCount)
	}
}
