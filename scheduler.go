package cycler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/clock"
	"github.com/ethereum/go-ethereum/log"
)

// RunScheduler triggers cycle runs, once or on an interval.
type RunScheduler struct {
	interval time.Duration
	runOnce  bool
	logger   log.Logger
	clock    clock.Clock
	callback func(ctx context.Context) error

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewRunScheduler creates a RunScheduler. A nil clock uses the system clock.
func NewRunScheduler(interval time.Duration, runOnce bool, logger log.Logger, clk clock.Clock) *RunScheduler {
	if clk == nil {
		clk = clock.SystemClock
	}
	return &RunScheduler{
		interval: interval,
		runOnce:  runOnce,
		logger:   logger,
		clock:    clk,
		done:     make(chan struct{}),
	}
}

// RegisterCallback registers the function run on every trigger.
func (s *RunScheduler) RegisterCallback(callback func(ctx context.Context) error) {
	s.callback = callback
}

// Start runs the callback immediately. In run-once mode its error is
// returned; otherwise later runs happen in the background every interval
// and their errors are only logged.
func (s *RunScheduler) Start(ctx context.Context) error {
	if s.callback == nil {
		return errors.New("callback must be registered before starting scheduler")
	}
	if !s.runOnce && s.interval <= 0 {
		return errors.New("interval must be positive in continuous mode")
	}

	s.done = make(chan struct{})
	s.running.Store(true)

	if s.runOnce {
		s.logger.Info("Starting scheduler in run-once mode")
		return s.callback(ctx)
	}

	s.logger.Info("Starting scheduler in continuous mode", "interval", s.interval)
	if err := s.callback(ctx); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.clock.After(s.interval):
				if !s.running.Load() {
					s.logger.Debug("Scheduler stopped, exiting periodic runner")
					return
				}
				s.logger.Info("Running periodic cycle")
				if err := s.callback(ctx); err != nil {
					s.logger.Error("Error running periodic cycle", "err", err)
				}

			case <-s.done:
				s.logger.Debug("Done signal received, stopping periodic runner")
				return

			case <-ctx.Done():
				s.logger.Debug("Context canceled, stopping periodic runner")
				s.running.Store(false)
				return
			}
		}
	}()

	return nil
}

// Stop prevents further runs. A run in progress is not interrupted.
func (s *RunScheduler) Stop() error {
	if !s.running.Load() {
		s.logger.Debug("Scheduler already stopped, nothing to do")
		return nil
	}
	s.running.Store(false)
	close(s.done)
	return nil
}

// Stopped returns true if the scheduler is stopped.
func (s *RunScheduler) Stopped() bool {
	return !s.running.Load()
}

// WaitForShutdown blocks until the periodic goroutine has exited or ctx
// expires.
func (s *RunScheduler) WaitForShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for scheduler to stop", "err", ctx.Err())
		return ctx.Err()
	}
}
