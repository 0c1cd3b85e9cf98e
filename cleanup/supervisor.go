package cleanup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/clock"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/time/rate"

	"github.com/ethereum-optimism/infra/op-cycler/metrics"
)

// DefaultPollInterval is the fixed backoff between drain polls
const DefaultPollInterval = 30 * time.Second

// ErrDrainTimeout is returned by Drain when MaxDrain elapses with jobs still
// running. It is only possible when MaxDrain is set.
var ErrDrainTimeout = errors.New("cleanup drain timed out")

// Clock is the subset of op-service's clock.Clock the supervisor needs
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Config holds configuration for a Supervisor
type Config struct {
	Log          log.Logger
	Releaser     Releaser
	Clock        Clock         // defaults to the system clock
	PollInterval time.Duration // defaults to DefaultPollInterval
	// MaxDrain bounds Drain. Zero means no bound: the drain waits for every
	// job to reach a terminal state, however long that takes.
	MaxDrain time.Duration
	// IssueRate paces IssueTeardown calls. Zero means unlimited.
	IssueRate  rate.Limit
	IssueBurst int
}

// Supervisor issues teardown jobs and tracks them until observed terminal.
// The tracked set is always exactly the jobs issued but not yet observed
// terminal.
type Supervisor struct {
	log          log.Logger
	releaser     Releaser
	clock        Clock
	pollInterval time.Duration
	maxDrain     time.Duration
	limiter      *rate.Limiter

	mu      sync.Mutex
	handles map[string]*Handle // by job ID
	order   []string
}

// NewSupervisor creates a new Supervisor
func NewSupervisor(cfg Config) (*Supervisor, error) {
	if cfg.Releaser == nil {
		return nil, errors.New("releaser is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.SystemClock
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	limit := cfg.IssueRate
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.IssueBurst
	if burst < 1 {
		burst = 1
	}

	return &Supervisor{
		log:          cfg.Log,
		releaser:     cfg.Releaser,
		clock:        cfg.Clock,
		pollInterval: cfg.PollInterval,
		maxDrain:     cfg.MaxDrain,
		limiter:      rate.NewLimiter(limit, burst),
		handles:      make(map[string]*Handle),
	}, nil
}

// Begin asks the releaser to start tearing down the target identified by
// key, registers a Running handle and returns without waiting for the
// teardown to finish.
func (s *Supervisor) Begin(ctx context.Context, key string) (*Handle, error) {
	if key == "" {
		return nil, errors.New("target key cannot be empty")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting to issue teardown for %s: %w", key, err)
	}

	jobID, err := s.releaser.IssueTeardown(ctx, key)
	if err != nil {
		metrics.RecordCleanupIssueError()
		return nil, fmt.Errorf("issuing teardown for %s: %w", key, err)
	}

	h := &Handle{
		Key:      key,
		JobID:    jobID,
		IssuedAt: s.clock.Now(),
		state:    StateRunning,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.handles[jobID]; ok {
		s.log.Warn("Teardown job already tracked", "key", key, "job", jobID)
		return existing, nil
	}
	s.handles[jobID] = h
	s.order = append(s.order, jobID)
	metrics.SetCleanupJobsTracked(len(s.handles))

	s.log.Info("Issued background teardown", "key", key, "job", jobID)
	return h, nil
}

// Tracked returns the handles still being tracked, in issue order
func (s *Supervisor) Tracked() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Handle, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.handles[id])
	}
	return out
}

// discard stops tracking a handle observed terminal
func (s *Supervisor) discard(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, h.JobID)
	for i, id := range s.order {
		if id == h.JobID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	metrics.SetCleanupJobsTracked(len(s.handles))
}

// DrainReport summarizes a completed drain
type DrainReport struct {
	Polls     int
	Completed []string // target keys
	Failed    []string // target keys; resource-leak signal, not a test failure
	Pending   []string // target keys still running when a bounded drain gave up
	Elapsed   time.Duration
}

// Drain blocks until no handles remain tracked. Each round it polls every
// tracked handle, logs and discards the terminal ones, and sleeps the poll
// interval if any are still running. Failed teardowns are logged as
// warnings and do not make Drain return an error.
func (s *Supervisor) Drain(ctx context.Context) (*DrainReport, error) {
	start := s.clock.Now()
	report := &DrainReport{}
	defer func() {
		report.Elapsed = s.clock.Now().Sub(start)
		metrics.RecordDrain(report.Elapsed, report.Polls)
	}()

	for {
		handles := s.Tracked()
		if len(handles) == 0 {
			s.log.Info("All cleanup jobs drained", "polls", report.Polls,
				"completed", len(report.Completed), "failed", len(report.Failed))
			return report, nil
		}

		report.Polls++
		var running []*Handle
		for _, h := range handles {
			state, err := s.releaser.QueryStatus(ctx, h.JobID)
			if err != nil {
				s.log.Warn("Failed to query cleanup job, will retry", "key", h.Key, "job", h.JobID, "err", err)
				running = append(running, h)
				continue
			}
			if !state.Terminal() {
				running = append(running, h)
				continue
			}

			h.resolve(state, s.clock.Now())
			switch state {
			case StateCompleted:
				s.log.Info("Cleanup job completed", "key", h.Key, "job", h.JobID,
					"took", h.ResolvedAt().Sub(h.IssuedAt))
				report.Completed = append(report.Completed, h.Key)
			case StateFailed:
				s.log.Warn("Cleanup job failed, resources may have leaked", "key", h.Key, "job", h.JobID)
				report.Failed = append(report.Failed, h.Key)
			}
			metrics.RecordCleanupJob(string(state))
			s.discard(h)
		}

		if len(running) == 0 {
			continue
		}

		if s.maxDrain > 0 && s.clock.Now().Sub(start) >= s.maxDrain {
			for _, h := range running {
				report.Pending = append(report.Pending, h.Key)
			}
			s.log.Error("Giving up on cleanup drain", "pending", strings.Join(report.Pending, ","), "maxDrain", s.maxDrain)
			return report, fmt.Errorf("%w after %v: %d job(s) still running", ErrDrainTimeout, s.maxDrain, len(running))
		}

		s.log.Info("Waiting for cleanup jobs", "running", len(running), "interval", s.pollInterval)
		select {
		case <-s.clock.After(s.pollInterval):
		case <-ctx.Done():
			return report, ctx.Err()
		}
	}
}
