package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ligl/struxis/internal/model"
	"github.com/ligl/struxis/internal/structerr"
)

// fakeAdapter lets tests control connect/poll failures deterministically.
type fakeAdapter struct {
	venue          string
	connectFails   int
	connectCalls   int
	pollFails      int
	pollCalls      int
	subscribed     []string
	heartbeatFails bool
}

func (f *fakeAdapter) Venue() string { return f.venue }

func (f *fakeAdapter) Connect(ctx context.Context) error {
	f.connectCalls++
	if f.connectFails > 0 {
		f.connectFails--
		return errors.New("connect failed")
	}
	return nil
}

func (f *fakeAdapter) SubscribeSymbol(ctx context.Context, symbol string) error {
	f.subscribed = append(f.subscribed, symbol)
	return nil
}

func (f *fakeAdapter) Heartbeat(ctx context.Context) error {
	if f.heartbeatFails {
		return errors.New("heartbeat failed")
	}
	return nil
}

func (f *fakeAdapter) PollBar(ctx context.Context) (*model.SBar, error) {
	f.pollCalls++
	if f.pollFails > 0 {
		f.pollFails--
		return nil, errors.New("poll failed")
	}
	return &model.SBar{Symbol: "X", Close: 1}, nil
}

func TestPollBarReconnectsOnFirstFailure(t *testing.T) {
	fa := &fakeAdapter{venue: "MOCK", pollFails: 1}
	r := NewWithConfig(fa, LifecycleConfig{
		HeartbeatInterval: time.Hour,
		HeartbeatTimeout:  time.Hour,
		Reconnect:         ReconnectPolicy{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxRetries: 3},
	}, nil)

	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	bar, err := r.PollBar(context.Background())
	if err != nil {
		t.Fatalf("expected poll to recover after one reconnect, got %v", err)
	}
	if bar == nil {
		t.Fatalf("expected a bar")
	}
	if r.Stats().ReconnectTotal < 2 {
		t.Fatalf("expected at least 2 reconnects (initial connect + recovery), got %d", r.Stats().ReconnectTotal)
	}
}

func TestSubscribeSymbolReplaysOnReconnect(t *testing.T) {
	fa := &fakeAdapter{venue: "MOCK"}
	r := New(fa, nil)

	_ = r.SubscribeSymbol(context.Background(), "BTCUSDT")
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	found := false
	for _, s := range fa.subscribed {
		if s == "BTCUSDT" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected BTCUSDT to be replayed on connect, got %v", fa.subscribed)
	}
}

func TestConnectExhaustsRetriesReturnsConnectionFailedError(t *testing.T) {
	fa := &fakeAdapter{venue: "MOCK", connectFails: 10}
	r := NewWithConfig(fa, LifecycleConfig{
		HeartbeatInterval: time.Hour,
		HeartbeatTimeout:  time.Hour,
		Reconnect:         ReconnectPolicy{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxRetries: 2},
	}, nil)

	err := r.Connect(context.Background())
	if err == nil {
		t.Fatalf("expected an error once retries are exhausted")
	}
	var cfe *structerr.ConnectionFailedError
	if !errors.As(err, &cfe) {
		t.Fatalf("expected a *structerr.ConnectionFailedError, got %T: %v", err, err)
	}
}
