package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-cycler/cleanup"
	"github.com/ethereum-optimism/infra/op-cycler/logging"
	"github.com/ethereum-optimism/infra/op-cycler/metrics"
	"github.com/ethereum-optimism/infra/op-cycler/plan"
	"github.com/ethereum-optimism/infra/op-cycler/types"
)

// Cleaner issues background teardowns and waits for them at cycle end
type Cleaner interface {
	Begin(ctx context.Context, key string) (*cleanup.Handle, error)
	Drain(ctx context.Context) (*cleanup.DrainReport, error)
}

// Config holds configuration for creating a CycleRunner
type Config struct {
	Log         log.Logger
	Invoker     Invoker
	Cleaner     Cleaner
	CycleLogger *logging.CycleLogger // per-case log files; nil logs to Log only
	Platform    string
	Priorities  *types.PriorityFilter // nil admits every priority
	RunID       string
	// DeployPerTest deploys and releases a target around every test case
	DeployPerTest bool
	// ForceDelete releases targets whose last test did not pass. Without
	// it such targets are left running for debugging.
	ForceDelete bool
}

// CycleRunner runs the sub-invocations of a cycle one at a time
type CycleRunner struct {
	log           log.Logger
	invoker       Invoker
	cleaner       Cleaner
	cycleLogger   *logging.CycleLogger
	platform      string
	priorities    *types.PriorityFilter
	runID         string
	deployPerTest bool
	forceDelete   bool
	tracer        trace.Tracer
}

// Result is the outcome of a completed cycle
type Result struct {
	RunID       string
	Cycle       string
	Platform    string
	Status      types.Outcome
	Totals      types.CycleResultAccumulator
	Suite       types.JUnitSuite
	Rows        []types.SummaryRow
	Skipped     []string
	Warnings    int
	Drain       *cleanup.DrainReport
	DrainErr    error
	Duration    time.Duration
	TextSummary string
	HTMLSummary string
}

// NewCycleRunner creates a new CycleRunner
func NewCycleRunner(cfg Config) (*CycleRunner, error) {
	if cfg.Invoker == nil {
		return nil, errors.New("invoker is required")
	}
	if cfg.Cleaner == nil {
		return nil, errors.New("cleaner is required")
	}
	if cfg.Platform == "" {
		return nil, errors.New("platform is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	return &CycleRunner{
		log:           cfg.Log,
		invoker:       cfg.Invoker,
		cleaner:       cfg.Cleaner,
		cycleLogger:   cfg.CycleLogger,
		platform:      cfg.Platform,
		priorities:    cfg.Priorities,
		runID:         cfg.RunID,
		deployPerTest: cfg.DeployPerTest,
		forceDelete:   cfg.ForceDelete,
		tracer:        otel.Tracer("cycle runner"),
	}, nil
}

// Run schedules every test of cycle, then releases the last target and
// drains outstanding teardowns. Test faults are recorded as aborted cases;
// the only error returned is a PlanError for a cycle that cannot start.
func (r *CycleRunner) Run(ctx context.Context, cycle *types.TestCycle) (*Result, error) {
	if cycle == nil {
		return nil, &plan.PlanError{Reason: "no cycle to run"}
	}
	if cycle.CaseResults == nil {
		return nil, &plan.PlanError{Cycle: cycle.Name, Reason: "cycle shell is not initialized"}
	}

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("cycle %s", cycle.Name))
	defer span.End()
	span.SetAttributes(attribute.String("platform", r.platform), attribute.String("run_id", r.runID))

	start := time.Now()
	cycleLog := r.log.New("cycle", cycle.Name, "platform", r.platform)
	cycle.SetState(types.CycleStateRunning)

	subs := BuildPlan(cycle.Tests, PlanOptions{DeployPerTest: r.deployPerTest})
	cycleLog.Info("Starting cycle", "tests", len(cycle.Tests), "subInvocations", len(subs),
		"deployPerTest", r.deployPerTest, "forceDelete", r.forceDelete)

	agg := NewAggregator(cycleLog, cycle, r.platform, r.runID)
	result := &Result{RunID: r.runID, Cycle: cycle.Name, Platform: r.platform}

	var live *types.Target
	var lastOutcome types.Outcome
	seq := 0
	for _, sub := range subs {
		if reason := r.skipReason(sub.Spec); reason != "" {
			if sub.Iteration == 1 {
				cycleLog.Info("Skipping test", "test", sub.Spec.OriginalName, "reason", reason)
				result.Skipped = append(result.Skipped, sub.Spec.OriginalName)
			}
			continue
		}
		seq++
		cycle.CurrentTest = sub.Spec.Name

		setup := sub.ExecuteSetup
		decision := SetupReuse
		switch {
		case setup:
			decision = SetupDeploy
			if len(sub.SetupChange) > 0 {
				cycleLog.Info("Setup group changed, deploying new target", "test", sub.Spec.Name,
					"changed", strings.Join(sub.SetupChange, ","))
			}
		case live == nil || live.Bad:
			cycleLog.Warn("No usable target for test, forcing setup", "test", sub.Spec.Name)
			setup = true
			decision = SetupForced
		}
		metrics.RecordSetup(r.platform, decision)

		if setup && live != nil {
			r.release(ctx, cycleLog, live, lastOutcome)
			live = nil
		}

		res, logText, target := r.dispatch(ctx, seq, sub, setup, live)
		live = target
		res = agg.Add(res, logText)
		lastOutcome = res.Outcome

		if sub.ExecuteTeardown && live != nil {
			r.release(ctx, cycleLog, live, lastOutcome)
			live = nil
		}
	}
	cycle.CurrentTest = ""

	if live != nil {
		cycleLog.Info("Releasing remaining target", "key", live.Key)
		r.release(ctx, cycleLog, live, lastOutcome)
	}

	cycle.SetState(types.CycleStateDraining)
	result.Drain, result.DrainErr = r.cleaner.Drain(ctx)
	if result.DrainErr != nil {
		cycleLog.Error("Cleanup drain did not complete", "err", result.DrainErr)
		metrics.RecordErrorDetails("drain", result.DrainErr)
		span.RecordError(result.DrainErr)
	}

	result.Totals = agg.Accumulator()
	result.Status = result.Totals.Status()
	result.Suite = agg.Suite()
	result.Rows = agg.Rows()
	result.Warnings = agg.Warnings()
	result.Duration = time.Since(start)
	result.TextSummary = cycle.TextSummary.String()
	result.HTMLSummary = cycle.HTMLSummary.String()

	cycle.Status = result.Status
	cycle.SetState(types.CycleStateCompleted)

	metrics.RecordCycle(r.platform, r.runID, cycle.Name, result.Status, result.Totals, result.Duration)
	span.SetAttributes(attribute.String("status", string(result.Status)))
	cycleLog.Info("Cycle finished", "status", result.Status, "totals", result.Totals.String(),
		"skipped", len(result.Skipped), "duration", result.Duration)
	return result, nil
}

func (r *CycleRunner) skipReason(spec types.TestCaseSpec) string {
	if !spec.SupportsPlatform(r.platform) {
		return fmt.Sprintf("platform %s not supported", r.platform)
	}
	if !r.priorities.Allows(spec.Priority) {
		return fmt.Sprintf("priority %d filtered out", spec.Priority)
	}
	return ""
}

// dispatch runs one sub-invocation with its own log file and returns its
// raw result, the captured log text and the live target afterwards
func (r *CycleRunner) dispatch(ctx context.Context, seq int, sub SubInvocation, setup bool, live *types.Target) (types.CaseResult, string, *types.Target) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("test %s", sub.Spec.Name))
	defer span.End()

	rc := &RunContext{
		Log:      r.log.New("test", sub.Spec.Name),
		Output:   io.Discard,
		Platform: r.platform,
		RunID:    r.runID,
	}
	if !setup {
		rc.Target = live
	}

	var caseLog *logging.CaseLogger
	if r.cycleLogger != nil {
		var err error
		caseLog, err = r.cycleLogger.OpenCase(seq, sub.Spec.Name)
		if err != nil {
			r.log.Error("Failed to open case log, logging to cycle log", "test", sub.Spec.Name, "err", err)
			metrics.RecordErrorDetails("case_log", err)
		} else {
			rc.Log = caseLog.Log
			rc.Output = caseLog.Output()
			rc.CaseDir = caseLog.Dir
		}
	}

	req := Request{
		Spec:            sub.Spec,
		ExecuteSetup:    setup,
		ExecuteTeardown: sub.ExecuteTeardown,
		LogDir:          rc.CaseDir,
	}
	rc.Log.Info("Running test", "seq", seq, "iteration", sub.Iteration, "of", sub.Iterations,
		"setup", req.ExecuteSetup, "teardown", req.ExecuteTeardown)

	start := time.Now()
	resp, err := r.invoke(ctx, rc, req)
	duration := time.Since(start)

	res := types.CaseResult{
		Sequence:     seq,
		Name:         sub.Spec.Name,
		OriginalName: sub.Spec.OriginalName,
		Outcome:      types.Outcome(resp.Outcome),
		Duration:     duration,
		Summary:      resp.Summary,
		LogPath:      rc.CaseDir,
	}
	if err != nil {
		rc.Log.Error("Test execution fault", "err", err)
		res.Outcome = types.OutcomeAborted
		res.Summary = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if rc.Target != nil {
		res.TargetKey = rc.Target.Key
	}
	span.SetAttributes(attribute.String("outcome", string(res.Outcome)))

	var logText string
	if caseLog != nil {
		res.LogPath = caseLog.Path
		text, err := caseLog.Text()
		if err != nil {
			r.log.Warn("Failed to read case log", "test", sub.Spec.Name, "err", err)
		}
		logText = text
	}
	return res, logText, rc.Target
}

// invoke calls the Invoker, converting a panic into an error
func (r *CycleRunner) invoke(ctx context.Context, rc *RunContext, req Request) (resp Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			rc.Log.Error("Panic in test invoker", "test", req.Spec.Name, "panic", rec, "stack", string(debug.Stack()))
			resp = Response{}
			err = fmt.Errorf("runtime error: %v", rec)
		}
	}()
	return r.invoker.Invoke(ctx, rc, req)
}

// release hands target to the cleaner unless it is kept for debugging
func (r *CycleRunner) release(ctx context.Context, logger log.Logger, target *types.Target, last types.Outcome) {
	if last != types.OutcomePass && !r.forceDelete {
		logger.Warn("Keeping target of unsuccessful test for debugging", "key", target.Key, "outcome", last)
		return
	}
	if _, err := r.cleaner.Begin(ctx, target.Key); err != nil {
		logger.Warn("Failed to issue teardown, target may leak", "key", target.Key, "err", err)
		metrics.RecordErrorDetails("teardown", err)
	}
}
