package ingress

import (
	"sync"
	"testing"
)

func TestPushDropNewestKeepsFirst(t *testing.T) {
	r := NewWithPolicy[int](1, DropNewest)
	if res := r.Push(1); res != Enqueued {
		t.Fatalf("expected Enqueued, got %v", res)
	}
	if res := r.Push(2); res != DroppedNewest {
		t.Fatalf("expected DroppedNewest, got %v", res)
	}
	v, ok := r.Pop()
	if !ok || v != 1 {
		t.Fatalf("expected first value 1 to survive, got %v ok=%v", v, ok)
	}
}

func TestPushDropOldestKeepsSecond(t *testing.T) {
	r := NewWithPolicy[int](1, DropOldest)
	r.Push(1)
	if res := r.Push(2); res != DroppedOldest {
		t.Fatalf("expected DroppedOldest, got %v", res)
	}
	v, ok := r.Pop()
	if !ok || v != 2 {
		t.Fatalf("expected surviving value 2, got %v ok=%v", v, ok)
	}
}

func TestPopOnEmptyReturnsFalse(t *testing.T) {
	r := New[int](4)
	if _, ok := r.Pop(); ok {
		t.Fatalf("expected Pop on empty ring to report ok=false")
	}
}

func TestFIFOOrderSurvivesWraparound(t *testing.T) {
	r := New[int](3)
	for i := 0; i < 10; i++ {
		r.Push(i)
		if i >= 3 {
			v, ok := r.Pop()
			if !ok || v != i-2 {
				t.Fatalf("iteration %d: expected %d, got %v ok=%v", i, i-2, v, ok)
			}
		}
	}
}

func TestConcurrentPushPopIsRaceSafe(t *testing.T) {
	r := New[int](16)
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				r.Push(base*1000 + i)
			}
		}(p)
	}
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				r.Pop()
			}
		}()
	}
	wg.Wait()
}
