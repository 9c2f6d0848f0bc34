package utils

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSetNoDuplicates(t *testing.T) {
	s := NewSet[string]()

	added := s.Add("+15550100")
	if !added {
		t.Error("first Add should return true")
	}

	added = s.Add("+15550100")
	if added {
		t.Error("second Add of same key should return false")
	}

	if s.Size() != 1 {
		t.Errorf("size: got %d, want 1", s.Size())
	}
}

func TestSetConcurrency(t *testing.T) {
	s := NewSet[string]()
	var added int64
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Add("same") {
				atomic.AddInt64(&added, 1)
			}
		}()
	}
	wg.Wait()

	if added != 1 {
		t.Errorf("expected exactly 1 successful add, got %d", added)
	}
}

func TestPacerSpacing(t *testing.T) {
	interval := 50 * time.Millisecond
	p := NewPacer(interval)
	ctx := context.Background()

	var timestamps []time.Time
	for i := 0; i < 3; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("wait: %v", err)
		}
		timestamps = append(timestamps, time.Now())
	}

	// rate.Limiter may release a hair early; allow a small tolerance.
	min := interval - 5*time.Millisecond
	for i := 1; i < len(timestamps); i++ {
		gap := timestamps[i].Sub(timestamps[i-1])
		if gap < min {
			t.Errorf("gap between action %d and %d: %v < minimum %v", i-1, i, gap, min)
		}
	}
}

func TestPacerDisabled(t *testing.T) {
	p := NewPacer(0)
	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("disabled pacer should not block")
	}
}

func TestRetryDoStopsOnSuccess(t *testing.T) {
	calls := 0
	r := &RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Logger: NewNopLogger()}
	err := r.Do(context.Background(), "op", func() error {
		calls++
		if calls < 2 {
			return context.DeadlineExceeded
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls: got %d, want 2", calls)
	}
}

func TestRetryDoExhausted(t *testing.T) {
	calls := 0
	r := &RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, Logger: NewNopLogger()}
	err := r.Do(context.Background(), "open-maps", func() error {
		calls++
		return context.DeadlineExceeded
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 2 {
		t.Errorf("calls: got %d, want 2", calls)
	}
}
