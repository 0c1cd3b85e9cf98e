package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_CYCLER"

var (
	PlanFile = &cli.StringFlag{
		Name:     "plan",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "PLAN"),
		Usage:    "Path to the plan file describing platforms, setup types and cycles (eg. 'plan.yaml')",
	}
	Cycle = &cli.StringFlag{
		Name:     "cycle",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "CYCLE"),
		Usage:    "Name of the cycle to run",
	}
	Platform = &cli.StringFlag{
		Name:     "platform",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "PLATFORM"),
		Usage:    "Platform to run the cycle on (eg. 'Azure')",
	}
	Priority = &cli.StringFlag{
		Name:    "priority",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PRIORITY"),
		Usage:   "Comma separated priorities to run (eg. '0,1'). Empty runs every priority.",
	}
	Iterations = &cli.IntFlag{
		Name:    "iterations",
		Value:   1,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ITERATIONS"),
		Usage:   "Number of times to run each test that does not set its own iteration count",
	}
	DeployPerTest = &cli.BoolFlag{
		Name:    "deploy-per-test",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DEPLOY_PER_TEST"),
		Usage:   "Deploy a fresh target for every test instead of reusing targets across a setup group",
	}
	ForceDelete = &cli.BoolFlag{
		Name:    "force-delete",
		Value:   true,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FORCE_DELETE"),
		Usage:   "Tear down targets even when their last test did not pass. Set --force-delete=false to keep them for debugging",
	}
	JobID = &cli.StringFlag{
		Name:    "job-id",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "JOB_ID"),
		Usage:   "Identifier of the external job this run belongs to, recorded in reports",
	}
	WorkDir = &cli.StringFlag{
		Name:    "workdir",
		Value:   ".",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WORKDIR"),
		Usage:   "Working directory for test, deploy and teardown commands",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory to store per-test logs and reports",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between cycle runs (e.g. '6h'). Set to 0 or omit for run-once mode.",
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   30 * time.Minute,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DEFAULT_TIMEOUT"),
		Usage:   "Default timeout of a single test, unless overridden in the plan",
	}
	TeardownTimeout = &cli.DurationFlag{
		Name:    "teardown-timeout",
		Value:   30 * time.Minute,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEARDOWN_TIMEOUT"),
		Usage:   "Timeout of a single background teardown command",
	}
	DrainInterval = &cli.DurationFlag{
		Name:    "drain-interval",
		Value:   30 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DRAIN_INTERVAL"),
		Usage:   "Interval between status polls of outstanding teardowns at the end of a cycle",
	}
	MaxDrain = &cli.DurationFlag{
		Name:    "max-drain",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MAX_DRAIN"),
		Usage:   "Upper bound on the end-of-cycle teardown drain. 0 waits until every teardown finishes.",
	}
	TeardownRate = &cli.Float64Flag{
		Name:    "teardown-rate",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEARDOWN_RATE"),
		Usage:   "Maximum teardowns issued per second. 0 disables pacing.",
	}
	Quiet = &cli.BoolFlag{
		Name:    "quiet",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "QUIET"),
		Usage:   "Do not print the results table to the console",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   "0.0.0.0",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Healthz listening address",
	}
	HealthzPort = &cli.IntFlag{
		Name:    "healthz.port",
		Value:   8080,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_PORT"),
		Usage:   "Healthz listening port",
	}
)

var requiredFlags = []cli.Flag{
	PlanFile,
	Cycle,
	Platform,
}

var optionalFlags = []cli.Flag{
	Priority,
	Iterations,
	DeployPerTest,
	ForceDelete,
	JobID,
	WorkDir,
	LogDir,
	RunInterval,
	DefaultTimeout,
	TeardownTimeout,
	DrainInterval,
	MaxDrain,
	TeardownRate,
	Quiet,
	HealthzAddr,
	HealthzPort,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
