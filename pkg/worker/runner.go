// Package worker runs fire-and-forget background tasks outside the request lifecycle.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskError is reported to the error hook when a background task fails.
type TaskError struct {
	Task string
	Err  error
}

func (e TaskError) Error() string {
	return fmt.Sprintf("task %s: %v", e.Task, e.Err)
}

func (e TaskError) Unwrap() error {
	return e.Err
}

// Runner starts tasks in their own goroutines with a detached, time-boxed context.
// A task failure is logged and handed to OnError; it never reaches the caller of Go.
type Runner struct {
	logger  *zap.Logger
	timeout time.Duration
	onError func(TaskError)
	wg      sync.WaitGroup
}

// NewRunner creates a runner whose tasks are cancelled after timeout.
func NewRunner(logger *zap.Logger, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Runner{
		logger:  logger.Named("worker"),
		timeout: timeout,
	}
}

// OnError registers a hook receiving every task failure. Must be set before the first Go call.
func (r *Runner) OnError(fn func(TaskError)) {
	r.onError = fn
}

// Go schedules fn and returns immediately.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		err := r.run(ctx, fn)
		if err == nil {
			r.logger.Debug("background task completed", zap.String("task", name))
			return
		}

		r.logger.Warn("background task failed", zap.String("task", name), zap.Error(err))
		if r.onError != nil {
			r.onError(TaskError{Task: name, Err: err})
		}
	}()
}

func (r *Runner) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx)
}

// Wait blocks until all scheduled tasks have returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
