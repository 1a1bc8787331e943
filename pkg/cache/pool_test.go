package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRevalidationPool_ExecutesTasks(t *testing.T) {
	pool := NewRevalidationPool(2, 8, zerolog.Nop())
	defer pool.Shutdown(time.Second)

	var ran atomic.Int32
	done := make(chan struct{})

	ok := pool.Submit(&refreshTask{
		key: "k",
		run: func(ctx context.Context) {
			ran.Add(1)
			close(done)
		},
		abandon: func() {},
	})
	if !ok {
		t.Fatal("Submit returned false on a running pool")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run within 1s")
	}
	if ran.Load() != 1 {
		t.Errorf("task ran %d times, want 1", ran.Load())
	}
}

func TestRevalidationPool_DropOldest(t *testing.T) {
	pool := NewRevalidationPool(1, 1, zerolog.Nop())
	defer pool.Shutdown(time.Second)

	blocker := make(chan struct{})
	started := make(chan struct{})
	pool.Submit(&refreshTask{
		key:     "blocker",
		run:     func(ctx context.Context) { close(started); <-blocker },
		abandon: func() {},
	})
	<-started // worker is now occupied; the queue is empty

	var oldAbandoned atomic.Bool
	var newRan atomic.Bool
	newDone := make(chan struct{})

	pool.Submit(&refreshTask{
		key:     "old",
		run:     func(ctx context.Context) {},
		abandon: func() { oldAbandoned.Store(true) },
	})
	pool.Submit(&refreshTask{
		key:     "new",
		run:     func(ctx context.Context) { newRan.Store(true); close(newDone) },
		abandon: func() {},
	})

	if !oldAbandoned.Load() {
		t.Error("oldest queued task should be abandoned when the queue overflows")
	}

	close(blocker)
	select {
	case <-newDone:
	case <-time.After(time.Second):
		t.Fatal("newest task did not run after the worker freed up")
	}
	if !newRan.Load() {
		t.Error("newest task should survive the overflow")
	}
}

func TestRevalidationPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewRevalidationPool(1, 4, zerolog.Nop())
	pool.Shutdown(time.Second)

	var abandoned atomic.Bool
	ok := pool.Submit(&refreshTask{
		key:     "k",
		run:     func(ctx context.Context) { t.Error("task must not run after shutdown") },
		abandon: func() { abandoned.Store(true) },
	})

	if ok {
		t.Error("Submit after Shutdown should return false")
	}
	if !abandoned.Load() {
		t.Error("rejected task should be abandoned")
	}
}

func TestRevalidationPool_ShutdownDrainsQueued(t *testing.T) {
	pool := NewRevalidationPool(1, 4, zerolog.Nop())

	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		pool.Submit(&refreshTask{
			key:     "k",
			run:     func(ctx context.Context) { ran.Add(1) },
			abandon: func() {},
		})
	}

	pool.Shutdown(time.Second)

	if ran.Load() != 3 {
		t.Errorf("Shutdown drained %d tasks, want 3", ran.Load())
	}
}

func TestRevalidationPool_ShutdownGraceBounded(t *testing.T) {
	pool := NewRevalidationPool(1, 4, zerolog.Nop())

	started := make(chan struct{})
	pool.Submit(&refreshTask{
		key: "slow",
		run: func(ctx context.Context) {
			close(started)
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
		},
		abandon: func() {},
	})
	<-started

	start := time.Now()
	pool.Shutdown(100 * time.Millisecond)
	elapsed := time.Since(start)

	if elapsed > time.Second {
		t.Errorf("Shutdown took %v, should be bounded by the grace period", elapsed)
	}

	// The abandoned task observes cancellation through its context.
	pool.mu.Lock()
	closed := pool.closed
	pool.mu.Unlock()
	if !closed {
		t.Error("pool should be closed after Shutdown")
	}
}

func TestRevalidationPool_ShutdownTwice(t *testing.T) {
	pool := NewRevalidationPool(1, 4, zerolog.Nop())
	pool.Shutdown(time.Second)
	pool.Shutdown(time.Second) // must not panic
}
