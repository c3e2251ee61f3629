package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/ligl/struxis/internal/structerr"
)

func TestPollBarRequiresConnectFirst(t *testing.T) {
	a := New("I2601", "MOCK", 100.0)
	_, err := a.PollBar(context.Background())
	if !errors.Is(err, structerr.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestPollBarEmitsIncreasingBarAfterConnect(t *testing.T) {
	a := New("I2601", "MOCK", 100.0)
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	bar, err := a.PollBar(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if bar.Symbol != "I2601" || bar.Venue != "MOCK" {
		t.Fatalf("unexpected bar identity: %+v", bar)
	}
	if bar.Close <= bar.Open {
		t.Fatalf("expected close > open, got open=%v close=%v", bar.Open, bar.Close)
	}
}
