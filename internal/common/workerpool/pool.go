// internal/common/workerpool/pool.go
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/panics"

	"eligibility-engine/internal/common/logger"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// PanicError carries a panic recovered from a task.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

type job struct {
	ctx context.Context
	fn  func(context.Context)
}

// Pool runs tasks on a fixed set of goroutines fed by a bounded queue.
type Pool struct {
	tasks  chan job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	logger logger.Logger
}

func New(workers, queueSize int, log logger.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	p := &Pool{
		tasks:  make(chan job, queueSize),
		logger: log,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	log.Debug("worker pool started", map[string]interface{}{
		"workers":   workers,
		"queueSize": queueSize,
	})

	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for j := range p.tasks {
		if j.ctx.Err() != nil {
			continue
		}

		var pc panics.Catcher
		pc.Try(func() { j.fn(j.ctx) })
		if r := pc.Recovered(); r != nil {
			p.logger.Error("task panicked", map[string]interface{}{
				"worker": id,
				"panic":  fmt.Sprint(r.Value),
			})
		}
	}
}

// Submit queues fn. It blocks while the queue is full, until ctx is done.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- job{ctx: ctx, fn: fn}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for queued ones to finish. Safe to call more than once.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// Do runs fn on the pool and waits for its result. A panic in fn comes back as *PanicError.
// If ctx ends first Do returns ctx.Err() and the task's result is discarded.
func Do[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}

	var zero T
	done := make(chan outcome, 1)

	err := p.Submit(ctx, func(taskCtx context.Context) {
		var out outcome
		var pc panics.Catcher
		pc.Try(func() { out.val, out.err = fn(taskCtx) })
		if r := pc.Recovered(); r != nil {
			out = outcome{err: &PanicError{Value: r.Value, Stack: r.Stack}}
		}
		done <- out
	})
	if err != nil {
		return zero, err
	}

	select {
	case out := <-done:
		return out.val, out.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
