package cycler

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/ethereum-optimism/infra/op-cycler/flags"
	"github.com/ethereum-optimism/infra/op-cycler/plan"
	"github.com/ethereum-optimism/infra/op-cycler/service"
	"github.com/ethereum-optimism/infra/op-cycler/types"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	PlanFile        string
	Cycle           string
	Platform        string
	Priorities      *types.PriorityFilter // nil admits every priority
	Iterations      int                   // default iteration count for tests that do not set one
	DeployPerTest   bool                  // deploy and release a target around every test
	ForceDelete     bool                  // release targets even after a failed test
	JobID           string
	WorkDir         string
	LogDir          string        // Directory to store per-test logs and reports
	RunInterval     time.Duration // Interval between cycle runs
	RunOnce         bool          // Indicates if the service should exit after one cycle
	DefaultTimeout  time.Duration // Default timeout for individual tests, can be overridden by the plan
	TeardownTimeout time.Duration
	DrainInterval   time.Duration
	MaxDrain        time.Duration // zero waits for every teardown
	TeardownRate    rate.Limit    // zero disables pacing
	Quiet           bool
	Service         service.Config
	Log             log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	planFile := ctx.String(flags.PlanFile.Name)
	if planFile == "" {
		return nil, errors.New("plan file is required")
	}
	absPlanFile, err := filepath.Abs(planFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for plan file '%s': %w", planFile, err)
	}

	cycle := ctx.String(flags.Cycle.Name)
	if cycle == "" {
		return nil, errors.New("cycle is required")
	}
	platform := ctx.String(flags.Platform.Name)
	if platform == "" {
		return nil, errors.New("platform is required")
	}

	priorities, err := plan.ParsePriorityFilter(ctx.String(flags.Priority.Name))
	if err != nil {
		return nil, err
	}

	iterations := ctx.Int(flags.Iterations.Name)
	if iterations < 1 {
		return nil, fmt.Errorf("iterations must be at least 1, got %d", iterations)
	}

	teardownRate := ctx.Float64(flags.TeardownRate.Name)
	if teardownRate < 0 {
		return nil, fmt.Errorf("teardown rate must not be negative, got %v", teardownRate)
	}
	if ctx.Duration(flags.MaxDrain.Name) < 0 {
		return nil, errors.New("max drain must not be negative")
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	// Get log directory, default to "logs" if not specified
	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = "logs"
	}
	logDir, err = filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}

	workDir := ctx.String(flags.WorkDir.Name)
	if workDir == "" {
		workDir = "."
	}
	workDir, err = filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for work directory '%s': %w", workDir, err)
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	return &Config{
		PlanFile:        absPlanFile,
		Cycle:           cycle,
		Platform:        platform,
		Priorities:      priorities,
		Iterations:      iterations,
		DeployPerTest:   ctx.Bool(flags.DeployPerTest.Name),
		ForceDelete:     ctx.Bool(flags.ForceDelete.Name),
		JobID:           ctx.String(flags.JobID.Name),
		WorkDir:         workDir,
		LogDir:          logDir,
		RunInterval:     runInterval,
		RunOnce:         runOnce,
		DefaultTimeout:  ctx.Duration(flags.DefaultTimeout.Name),
		TeardownTimeout: ctx.Duration(flags.TeardownTimeout.Name),
		DrainInterval:   ctx.Duration(flags.DrainInterval.Name),
		MaxDrain:        ctx.Duration(flags.MaxDrain.Name),
		TeardownRate:    rate.Limit(teardownRate),
		Quiet:           ctx.Bool(flags.Quiet.Name),
		Service: service.Config{
			HealthzHost:     ctx.String(flags.HealthzAddr.Name),
			HealthzPort:     ctx.Int(flags.HealthzPort.Name),
			MetricsHost:     metricsCfg.ListenAddr,
			MetricsPort:     metricsCfg.ListenPort,
			MetricsDisabled: !metricsCfg.Enabled,
		},
		Log: log,
	}, nil
}
