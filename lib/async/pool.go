// Package async provides bounded worker pool utilities.
package async

import (
	"context"
	"fmt"
	"sync"

	"github.com/coachpo/pgpool/errs"
)

// Task represents a unit of work executed by the pool workers.
type Task func(context.Context) error

// Workers defines a bounded worker pool enforcing backpressure when saturated.
type Workers struct {
	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan job
	wg     sync.WaitGroup
	once   sync.Once
}

type job struct {
	ctx context.Context
	fn  Task
}

// NewWorkers creates a worker pool with the given concurrency and queue depth.
func NewWorkers(workers, queue int) (*Workers, error) {
	if workers <= 0 {
		return nil, errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("workers must be >0"))
	}
	if queue < 0 {
		queue = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := new(Workers)
	w.ctx = ctx
	w.cancel = cancel
	w.jobs = make(chan job, queue)
	for i := 0; i < workers; i++ {
		go w.worker()
	}
	return w, nil
}

// Submit schedules the provided task for execution respecting pool backpressure.
func (w *Workers) Submit(ctx context.Context, fn Task) error {
	if fn == nil {
		return errs.New("lib/async", errs.CodeInvalid, errs.WithMessage("task must not be nil"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-w.ctx.Done():
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("workers closed"))
	default:
	}
	w.wg.Add(1)
	select {
	case <-w.ctx.Done():
		w.wg.Done()
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("workers closed"))
	case <-ctx.Done():
		w.wg.Done()
		return fmt.Errorf("submit context: %w", ctx.Err())
	case w.jobs <- job{ctx: ctx, fn: fn}:
		return nil
	default:
		w.wg.Done()
		return errs.New("lib/async", errs.CodeUnavailable, errs.WithMessage("workers at capacity"))
	}
}

// Close stops accepting new tasks and cancels workers. Tasks still queued
// when Close runs are dropped.
func (w *Workers) Close() {
	w.once.Do(func() {
		w.cancel()
		for {
			select {
			case <-w.jobs:
				w.wg.Done()
			default:
				return
			}
		}
	})
}

// Shutdown waits for in-flight tasks to complete or until the context expires.
func (w *Workers) Shutdown(ctx context.Context) error {
	w.Close()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (w *Workers) worker() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case job := <-w.jobs:
			ctx := job.ctx
			if ctx == nil {
				ctx = w.ctx
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						// swallow panics to keep the worker alive.
						_ = r
					}
				}()
				if err := job.fn(ctx); err != nil {
					// Task errors belong to the submitter; swallow to keep the worker running.
					_ = err
				}
			}()
			w.wg.Done()
		}
	}
}
