// Package worker runs independent tasks across a bounded pool of
// goroutines, aggregating failures without cancelling sibling tasks.
package worker

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrWorkerFailure wraps one or more task failures surfaced after Wait.
var ErrWorkerFailure = errors.New("worker: task failure")

// Pool runs tasks with at most N concurrently active at a time. A task
// returning an error does not cancel other tasks: every task runs to
// completion and failures are collected for Wait to report together,
// matching the "continue draining, report at shutdown" policy.
type Pool struct {
	g *errgroup.Group

	mu       sync.Mutex
	failures []error
}

// New creates a Pool with concurrency n. n <= 0 is treated as 1: when
// N == 1, or in single-output mode, the caller may also simply invoke
// tasks directly instead of going through a Pool.
func New(n int) *Pool {
	if n <= 0 {
		n = 1
	}
	g := &errgroup.Group{}
	g.SetLimit(n)
	return &Pool{g: g}
}

// Go schedules task to run, possibly later if the pool is at capacity. A
// panic inside task is recovered and recorded as a failure rather than
// crashing the process.
func (p *Pool) Go(task func() error) {
	p.g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				p.record(fmt.Errorf("worker panic: %v", r))
			}
		}()
		if err := task(); err != nil {
			p.record(err)
		}
		return nil
	})
}

func (p *Pool) record(err error) {
	p.mu.Lock()
	p.failures = append(p.failures, err)
	p.mu.Unlock()
}

// Wait blocks until every scheduled task has finished, then returns an
// aggregated ErrWorkerFailure if any task failed, or nil if all succeeded.
func (p *Pool) Wait() error {
	p.g.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.failures) == 0 {
		return nil
	}
	return fmt.Errorf("%w (%d task(s)): %w", ErrWorkerFailure, len(p.failures), errors.Join(p.failures...))
}
