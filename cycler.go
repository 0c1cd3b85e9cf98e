// Package cycler runs a named test cycle from a plan file against one
// platform, reusing provisioned targets across setup groups and reporting
// the results.
package cycler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-cycler/cleanup"
	"github.com/ethereum-optimism/infra/op-cycler/invoker"
	"github.com/ethereum-optimism/infra/op-cycler/logging"
	"github.com/ethereum-optimism/infra/op-cycler/metrics"
	"github.com/ethereum-optimism/infra/op-cycler/plan"
	"github.com/ethereum-optimism/infra/op-cycler/provisioner"
	"github.com/ethereum-optimism/infra/op-cycler/reporting"
	"github.com/ethereum-optimism/infra/op-cycler/runner"
	"github.com/ethereum-optimism/infra/op-cycler/service"
	"github.com/ethereum-optimism/infra/op-cycler/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// Cycler implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = (*Cycler)(nil)

// Cycler is the op-cycler service. Each run loads the plan afresh, so edits
// to the plan file are picked up by the next periodic run.
type Cycler struct {
	config    *Config
	version   string
	scheduler *RunScheduler
	emitter   *reporting.Emitter
	svc       *service.Service

	current atomic.Value // name of the cycle in progress, or ""
	mu      sync.Mutex
	result  *runner.Result
	paths   *reporting.Paths

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New creates the service. shutdownCallback is invoked once a run-once
// cycle has passed.
func New(config *Config, version string, shutdownCallback func(error)) (*Cycler, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		return nil, errors.New("config logger is required")
	}

	config.Log.Debug("Creating cycler with config",
		"plan", config.PlanFile,
		"cycle", config.Cycle,
		"platform", config.Platform,
		"priorities", config.Priorities.Priorities(),
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"deployPerTest", config.DeployPerTest,
		"forceDelete", config.ForceDelete)

	hostname, _ := os.Hostname()
	emitter, err := reporting.NewEmitter(reporting.EmitterConfig{
		Log:      config.Log,
		Quiet:    config.Quiet,
		Color:    true,
		Hostname: hostname,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create report emitter: %w", err)
	}

	c := &Cycler{
		config:           config,
		version:          version,
		scheduler:        NewRunScheduler(config.RunInterval, config.RunOnce, config.Log, nil),
		emitter:          emitter,
		shutdownCallback: shutdownCallback,
	}
	c.current.Store("")
	svcCfg := config.Service
	svcCfg.Status = c.status
	c.svc = service.New(svcCfg)
	c.scheduler.RegisterCallback(c.runCycle)
	return c, nil
}

// Start runs the cycle immediately and, unless in run-once mode, again on
// every interval.
// Start implements the cliapp.Lifecycle interface.
func (c *Cycler) Start(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.config.Log.Error("Runtime error occurred", "error", r)
			err = NewRuntimeError(fmt.Errorf("panic: %v", r))
		}
	}()

	c.config.Log.Info("Starting op-cycler", "version", c.version)
	c.svc.Start(ctx)

	if err := c.scheduler.Start(ctx); err != nil {
		c.config.Log.Error("Cycle run failed", "err", err)
		return err
	}

	if c.config.RunOnce {
		c.config.Log.Info("Cycle completed, exiting (run-once mode)")
		go func() {
			if c.shutdownCallback != nil {
				c.shutdownCallback(nil)
			}
		}()
	}
	return nil
}

// Stop stops the service. A cycle already running finishes first.
// Stop implements the cliapp.Lifecycle interface.
func (c *Cycler) Stop(ctx context.Context) error {
	c.config.Log.Info("Stopping op-cycler")
	if err := c.scheduler.Stop(); err != nil {
		return err
	}
	err := c.scheduler.WaitForShutdown(ctx)
	c.svc.Shutdown()
	c.config.Log.Info("op-cycler stopped")
	return err
}

// Stopped returns true if the service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (c *Cycler) Stopped() bool {
	return c.scheduler.Stopped()
}

// LastResult returns the result and report paths of the most recent
// completed cycle
func (c *Cycler) LastResult() (*runner.Result, *reporting.Paths) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.paths
}

func (c *Cycler) status() string {
	if name, _ := c.current.Load().(string); name != "" {
		return "running " + name
	}
	return ""
}

// runCycle wires a fresh provisioner, supervisor and invoker for one run
// of the configured cycle, runs it and emits the reports. In run-once mode
// a cycle that did not pass yields a CycleFailureError. Anything that
// prevented a verdict yields a RuntimeError.
func (c *Cycler) runCycle(ctx context.Context) error {
	cfg := c.config
	runID := uuid.New().String()
	logger := cfg.Log.New("run_id", runID)

	p, err := plan.Load(plan.Config{Log: logger, File: cfg.PlanFile})
	if err != nil {
		metrics.RecordErrorDetails("plan", err)
		return NewRuntimeError(err)
	}
	cycle, err := p.Resolve(plan.ResolveOptions{
		Cycle:          cfg.Cycle,
		Platform:       cfg.Platform,
		Iterations:     cfg.Iterations,
		DefaultTimeout: cfg.DefaultTimeout,
		JobID:          cfg.JobID,
	})
	if err != nil {
		metrics.RecordErrorDetails("plan", err)
		return NewRuntimeError(err)
	}
	platform, _ := p.Platform(cfg.Platform)

	prov, err := provisioner.New(provisioner.Config{
		Log:             logger.New("component", "provisioner"),
		Platform:        cfg.Platform,
		DeployCommand:   platform.Deploy,
		TeardownCommand: platform.Teardown,
		WorkDir:         cfg.WorkDir,
		TeardownTimeout: cfg.TeardownTimeout,
	})
	if err != nil {
		return NewRuntimeError(err)
	}
	defer func() {
		if err := prov.Close(); err != nil {
			logger.Warn("Provisioner did not shut down cleanly", "err", err)
		}
	}()

	sup, err := cleanup.NewSupervisor(cleanup.Config{
		Log:          logger.New("component", "cleanup"),
		Releaser:     prov,
		PollInterval: cfg.DrainInterval,
		MaxDrain:     cfg.MaxDrain,
		IssueRate:    cfg.TeardownRate,
		IssueBurst:   1,
	})
	if err != nil {
		return NewRuntimeError(err)
	}

	inv, err := invoker.New(invoker.Config{
		Log:            logger,
		Deployer:       prov,
		DefaultTimeout: cfg.DefaultTimeout,
		WorkDir:        cfg.WorkDir,
	})
	if err != nil {
		return NewRuntimeError(err)
	}

	cycleLogger, err := logging.NewCycleLogger(cfg.LogDir, runID, logger)
	if err != nil {
		return NewRuntimeError(err)
	}
	defer func() {
		if err := cycleLogger.Close(); err != nil {
			logger.Warn("Failed to close cycle logs", "err", err)
		}
	}()

	if snap, err := plan.Snapshot(cycle, cfg.Platform); err != nil {
		logger.Warn("Failed to snapshot resolved cycle", "err", err)
	} else if _, err := cycleLogger.WriteFile(plan.SnapshotFilename, snap); err != nil {
		logger.Warn("Failed to write resolved cycle", "err", err)
	}

	cycleRunner, err := runner.NewCycleRunner(runner.Config{
		Log:           logger,
		Invoker:       inv,
		Cleaner:       sup,
		CycleLogger:   cycleLogger,
		Platform:      cfg.Platform,
		Priorities:    cfg.Priorities,
		RunID:         runID,
		DeployPerTest: cfg.DeployPerTest,
		ForceDelete:   cfg.ForceDelete,
	})
	if err != nil {
		return NewRuntimeError(err)
	}

	c.current.Store(cycle.Name)
	defer c.current.Store("")

	result, err := cycleRunner.Run(ctx, cycle)
	if err != nil {
		cycle.SetState(types.CycleStateAborted)
		metrics.RecordErrorDetails("cycle", err)
		return NewRuntimeError(err)
	}

	paths, err := c.emitter.Emit(cycleLogger.Dir(), newReport(result, cfg.JobID))
	if err != nil {
		metrics.RecordErrorDetails("report", err)
		return NewRuntimeError(fmt.Errorf("failed to write reports: %w", err))
	}

	c.mu.Lock()
	c.result = result
	c.paths = paths
	c.mu.Unlock()

	logger.Info("Cycle run completed", "cycle", result.Cycle, "status", result.Status, "reports", cycleLogger.Dir())
	if result.Status == types.OutcomePass {
		return nil
	}
	if !cfg.RunOnce {
		logger.Warn("Cycle did not pass", "status", result.Status, "totals", result.Totals.String())
		return nil
	}
	return &CycleFailureError{Cycle: result.Cycle, Status: result.Status, Totals: result.Totals}
}

// newReport projects a runner result onto the report emitter's input
func newReport(result *runner.Result, jobID string) *reporting.Report {
	r := &reporting.Report{
		RunID:    result.RunID,
		Cycle:    result.Cycle,
		Platform: result.Platform,
		JobID:    jobID,
		Status:   result.Status,
		Totals:   result.Totals,
		Suite:    result.Suite,
		Rows:     result.Rows,
		Skipped:  result.Skipped,
		Duration: result.Duration,
		TextRows: result.TextSummary,
	}
	if result.Drain != nil {
		r.CleanupCompleted = len(result.Drain.Completed)
		r.CleanupFailed = result.Drain.Failed
		r.CleanupPending = result.Drain.Pending
	}
	return r
}
