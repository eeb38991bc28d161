package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestForEachBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	out := make([]int, 20)
	err := forEach(context.Background(), len(out), 3, func(_ context.Context, i int) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		out[i] = i * i
		inFlight.Add(-1)
		return nil
	})
	if err != nil {
		t.Fatalf("forEach: %v", err)
	}
	if peak.Load() > 3 {
		t.Fatalf("expected at most 3 calls in flight, saw %d", peak.Load())
	}
	for i, v := range out {
		if v != i*i {
			t.Fatalf("slot %d = %d", i, v)
		}
	}
}

func TestForEachReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	err := forEach(context.Background(), 10, 2, func(ctx context.Context, i int) error {
		if i == 1 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestForEachEmpty(t *testing.T) {
	if err := forEach(context.Background(), 0, 4, nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
