package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTickerRunsJob(t *testing.T) {
	var runs atomic.Int32
	ticker := NewTicker(10 * time.Millisecond)
	if err := ticker.Start(context.Background(), func(time.Time) { runs.Add(1) }); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	defer ticker.Stop()

	deadline := time.After(time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("джоба должна выполняться периодически, получили %d запусков", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestTickerStopPreventsFurtherRuns(t *testing.T) {
	var runs atomic.Int32
	ticker := NewTicker(10 * time.Millisecond)
	if err := ticker.Start(context.Background(), func(time.Time) { runs.Add(1) }); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	time.Sleep(35 * time.Millisecond)
	ticker.Stop()

	after := runs.Load()
	time.Sleep(35 * time.Millisecond)
	if runs.Load() != after {
		t.Fatalf("после Stop джоба вызываться не должна")
	}
}

func TestTickerContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	ticker := NewTicker(10 * time.Millisecond)
	if err := ticker.Start(ctx, func(time.Time) { runs.Add(1) }); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	cancel()
	time.Sleep(15 * time.Millisecond)
	after := runs.Load()
	time.Sleep(35 * time.Millisecond)
	if runs.Load() != after {
		t.Fatalf("после отмены контекста джоба вызываться не должна")
	}
	ticker.Stop()
}

func TestTickerDoubleStart(t *testing.T) {
	ticker := NewTicker(time.Hour)
	if err := ticker.Start(context.Background(), func(time.Time) {}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	defer ticker.Stop()

	if err := ticker.Start(context.Background(), func(time.Time) {}); err != ErrAlreadyStarted {
		t.Fatalf("ожидали ErrAlreadyStarted, получили %v", err)
	}
}
