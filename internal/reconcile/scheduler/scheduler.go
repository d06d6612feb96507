package scheduler

import (
	"context"
	"sync"
	"time"

	"keepr-backend/internal/reconcile/usecase"

	"go.uber.org/zap"
)

// Runner is one batch reconciliation
type Runner interface {
	Run(ctx context.Context) (*usecase.Result, error)
}

// Scheduler runs the reconciler on a fixed interval inside the API process.
// The cron endpoint stays the primary trigger; this covers deployments without an external timer.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler; an interval of zero disables it
func NewScheduler(runner Runner, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger.Named("scheduler"),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the scheduler loop
func (s *Scheduler) Start() {
	if s.interval <= 0 {
		s.logger.Info("in-process reconciliation disabled")
		close(s.done)
		return
	}

	s.logger.Info("starting reconciliation scheduler", zap.Duration("interval", s.interval))

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runOnce()
			case <-s.stopChan:
				s.logger.Info("scheduler stopped")
				return
			}
		}
	}()
}

// Stop ends the loop and waits for a run in progress to return
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	<-s.done
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop cancels a run in progress
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	result, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("reconciliation run failed", zap.Error(err))
		return
	}
	if err := result.Err(); err != nil {
		s.logger.Warn("reconciliation finished with user errors", zap.Error(err))
	}
}
