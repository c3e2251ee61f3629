package ctp

import (
	"context"
	"testing"
)

func TestPollBarDriftsOpenInterestUpward(t *testing.T) {
	a := New("IF2601", "CFFEX", 3800.0)
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	first, err := a.PollBar(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	second, err := a.PollBar(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if second.OpenInterest <= first.OpenInterest {
		t.Fatalf("expected open interest to drift upward, got %v then %v", first.OpenInterest, second.OpenInterest)
	}
	if !second.Datetime.After(first.Datetime) {
		t.Fatalf("expected strictly increasing bar timestamps")
	}
}
