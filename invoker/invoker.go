// Package invoker runs test case commands against provisioned targets.
package invoker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-cycler/runner"
	"github.com/ethereum-optimism/infra/op-cycler/types"
)

const (
	// ResultPrefix marks the line a test command uses to report its outcome
	ResultPrefix = "RESULT:"
	// SummaryPrefix marks an optional one-line summary
	SummaryPrefix = "SUMMARY:"

	EnvTarget   = "CYCLER_TARGET"
	EnvTest     = "CYCLER_TEST"
	EnvCaseDir  = "CYCLER_CASE_DIR"
	EnvPlatform = "CYCLER_PLATFORM"
	EnvRunID    = "CYCLER_RUN_ID"
	EnvParam    = "CYCLER_PARAM_"

	// killGrace bounds how long output is still collected after a timed
	// out command is killed
	killGrace = 5 * time.Second
)

// Deployer provisions a target for a test case
type Deployer interface {
	Deploy(ctx context.Context, spec types.TestCaseSpec) (*types.Target, error)
}

// Config holds configuration for a CommandInvoker
type Config struct {
	Log            log.Logger
	Deployer       Deployer
	DefaultTimeout time.Duration
	WorkDir        string
}

// CommandInvoker implements runner.Invoker by running each test case's
// command as a child process
type CommandInvoker struct {
	log            log.Logger
	deployer       Deployer
	defaultTimeout time.Duration
	workDir        string
}

var _ runner.Invoker = (*CommandInvoker)(nil)

// New creates a new CommandInvoker
func New(cfg Config) (*CommandInvoker, error) {
	if cfg.Deployer == nil {
		return nil, errors.New("deployer is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = runner.DefaultTestTimeout
	}
	return &CommandInvoker{
		log:            cfg.Log,
		deployer:       cfg.Deployer,
		defaultTimeout: cfg.DefaultTimeout,
		workDir:        cfg.WorkDir,
	}, nil
}

// Invoke deploys a target if asked to, then runs the test command.
//
// The outcome comes from a "RESULT: <PASS|FAIL|ABORTED>" line on the
// command's output. Without one, exit status zero is PASS and anything else
// FAIL. A command that exceeds its timeout is ABORTED and its target is
// marked bad.
func (i *CommandInvoker) Invoke(ctx context.Context, rc *runner.RunContext, req runner.Request) (runner.Response, error) {
	logger := rc.Log
	if logger == nil {
		logger = i.log
	}

	if req.ExecuteSetup {
		target, err := i.deployer.Deploy(ctx, req.Spec)
		if err != nil {
			return runner.Response{}, fmt.Errorf("setup failed: %w", err)
		}
		rc.Target = target
		logger.Info("Deployed target", "key", target.Key, "setup", target.SetupKey)
	}
	if rc.Target == nil {
		return runner.Response{}, errors.New("no target available")
	}
	if len(req.Spec.Command) == 0 {
		return runner.Response{}, fmt.Errorf("test %s has no command", req.Spec.Name)
	}

	timeout := req.Spec.Timeout
	if timeout <= 0 {
		timeout = i.defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, req.Spec.Command[0], req.Spec.Command[1:]...)
	cmd.Dir = i.workDir
	cmd.Env = append(os.Environ(), i.env(rc, req)...)
	cmd.WaitDelay = killGrace

	var captured bytes.Buffer
	out := io.Writer(&captured)
	if rc.Output != nil {
		out = io.MultiWriter(&captured, rc.Output)
	}
	cmd.Stdout = out
	cmd.Stderr = out

	logger.Debug("Running test command", "command", strings.Join(req.Spec.Command, " "), "timeout", timeout)
	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		rc.Target.Bad = true
		logger.Warn("Test canceled", "took", elapsed)
		return runner.Response{Outcome: string(types.OutcomeAborted), Summary: "canceled"}, nil
	case runCtx.Err() != nil:
		rc.Target.Bad = true
		logger.Error("Test timed out", "timeout", timeout)
		return runner.Response{
			Outcome: string(types.OutcomeAborted),
			Summary: fmt.Sprintf("timed out after %v", timeout),
		}, nil
	}

	result, summary := parseOutput(captured.String())
	if result != "" {
		logger.Info("Test reported result", "result", result, "took", elapsed)
		return runner.Response{Outcome: result, Summary: summary}, nil
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		return runner.Response{Outcome: string(types.OutcomePass), Summary: summary}, nil
	case errors.As(runErr, &exitErr):
		if summary == "" {
			summary = fmt.Sprintf("exit status %d", exitErr.ExitCode())
		}
		return runner.Response{Outcome: string(types.OutcomeFail), Summary: summary}, nil
	default:
		return runner.Response{}, fmt.Errorf("running test command: %w", runErr)
	}
}

func (i *CommandInvoker) env(rc *runner.RunContext, req runner.Request) []string {
	vars := req.Spec.Env.Vars()
	vars = append(vars,
		EnvTarget+"="+rc.Target.Key,
		EnvTest+"="+req.Spec.Name,
		EnvCaseDir+"="+req.LogDir,
		EnvPlatform+"="+rc.Platform,
		EnvRunID+"="+rc.RunID,
	)
	keys := make([]string, 0, len(req.Spec.Params))
	for k := range req.Spec.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vars = append(vars, EnvParam+strings.ToUpper(k)+"="+req.Spec.Params[k])
	}
	return vars
}

// parseOutput returns the last RESULT and SUMMARY values found in out
func parseOutput(out string) (result, summary string) {
	scanner := bufio.NewScanner(strings.NewReader(stripansi.Strip(out)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, ResultPrefix):
			result = strings.TrimSpace(strings.TrimPrefix(line, ResultPrefix))
		case strings.HasPrefix(line, SummaryPrefix):
			summary = strings.TrimSpace(strings.TrimPrefix(line, SummaryPrefix))
		}
	}
	return result, summary
}
