// Package worker provides a small bounded-concurrency pool used by the
// reconciliation sweeper to fan out provider status checks without spawning
// one goroutine per transaction.
package worker

import (
	"context"
	"sync"
)

type task func()

// Pool runs submitted tasks on a fixed number of goroutines. Submit blocks
// once the queue is full, which gives the sweeper natural backpressure.
type Pool struct {
	wg   sync.WaitGroup
	jobs chan task
}

// NewPool starts n workers (n < 1 is coerced to 1).
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{jobs: make(chan task, 64)}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
	return p
}

// Submit enqueues f, or drops it and reports false when ctx is done first.
func (p *Pool) Submit(ctx context.Context, f func()) bool {
	select {
	case p.jobs <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop closes the queue and waits for in-flight tasks to finish.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
}
