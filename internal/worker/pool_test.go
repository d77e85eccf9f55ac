package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestPool_RunsAllTasks(t *testing.T) {
	p := NewPool(4)
	var done int64
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if !p.Submit(ctx, func() { atomic.AddInt64(&done, 1) }) {
			t.Fatal("submit rejected with live context")
		}
	}
	p.Stop()

	if done != 100 {
		t.Fatalf("expected 100 completed tasks, got %d", done)
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	const workers = 3
	p := NewPool(workers)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	for i := 0; i < 30; i++ {
		p.Submit(ctx, func() {
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()

			mu.Lock()
			current--
			mu.Unlock()
		})
	}
	p.Stop()

	if peak > workers {
		t.Fatalf("concurrency exceeded %d workers: peak %d", workers, peak)
	}
}

func TestPool_SubmitAfterCancel(t *testing.T) {
	// A single worker blocked on a full queue forces Submit to pick the
	// ctx.Done branch.
	p := NewPool(1)
	block := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	p.Submit(ctx, func() { <-block })
	for i := 0; i < 64; i++ {
		p.Submit(ctx, func() {})
	}

	cancel()
	if p.Submit(ctx, func() {}) {
		t.Fatal("expected submit to fail once the queue is full and ctx is done")
	}

	close(block)
	p.Stop()
}

func TestNewPool_CoercesWorkerCount(t *testing.T) {
	p := NewPool(0)
	var ran bool
	p.Submit(context.Background(), func() { ran = true })
	p.Stop()
	if !ran {
		t.Fatal("expected task to run on coerced single worker")
	}
}
