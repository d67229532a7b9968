package responder

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleRunsImmediatelyAndOnTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32

	done := make(chan struct{})
	go func() {
		Schedule(ctx, 10*time.Millisecond, func(context.Context) {
			if runs.Add(1) == 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Schedule() did not stop after cancel")
	}
	if got := runs.Load(); got != 3 {
		t.Errorf("runs = %d, want 3", got)
	}
}

func TestScheduleFirstRunBeforeTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := make(chan time.Time, 1)
	start := time.Now()
	go Schedule(ctx, time.Hour, func(context.Context) {
		select {
		case first <- time.Now():
		default:
		}
	})

	select {
	case at := <-first:
		if at.Sub(start) > time.Second {
			t.Errorf("first run after %v, want immediate", at.Sub(start))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first run did not happen")
	}
}

func TestScheduleRunsDoNotOverlap(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var active, maxActive, runs atomic.Int32

	done := make(chan struct{})
	go func() {
		Schedule(ctx, time.Millisecond, func(context.Context) {
			n := active.Add(1)
			if n > maxActive.Load() {
				maxActive.Store(n)
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			if runs.Add(1) == 5 {
				cancel()
			}
		})
		close(done)
	}()

	<-done
	if maxActive.Load() != 1 {
		t.Errorf("max concurrent runs = %d, want 1", maxActive.Load())
	}
}
