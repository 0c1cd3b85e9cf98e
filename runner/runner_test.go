package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-cycler/cleanup"
	"github.com/ethereum-optimism/infra/op-cycler/logging"
	"github.com/ethereum-optimism/infra/op-cycler/plan"
	"github.com/ethereum-optimism/infra/op-cycler/types"
)

// fakeInvoker deploys a numbered target whenever setup is requested and
// passes every test unless behave says otherwise
type fakeInvoker struct {
	requests []Request
	targets  []*types.Target // target seen by each request after setup
	deployed int
	behave   func(rc *RunContext, req Request) (Response, error)
}

func (f *fakeInvoker) Invoke(_ context.Context, rc *RunContext, req Request) (Response, error) {
	f.requests = append(f.requests, req)
	if req.ExecuteSetup {
		f.deployed++
		rc.Target = &types.Target{Key: fmt.Sprintf("vm-%d", f.deployed), Platform: rc.Platform}
	}
	f.targets = append(f.targets, rc.Target)
	if f.behave != nil {
		return f.behave(rc, req)
	}
	return Response{Outcome: "PASS", Summary: "ok"}, nil
}

func (f *fakeInvoker) names() []string {
	var out []string
	for _, r := range f.requests {
		out = append(out, r.Spec.Name)
	}
	return out
}

type fakeCleaner struct {
	mu       sync.Mutex
	begun    []string
	drains   int
	beginErr error
	drainErr error
}

func (f *fakeCleaner) Begin(_ context.Context, key string) (*cleanup.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	f.begun = append(f.begun, key)
	return &cleanup.Handle{Key: key, JobID: "job-" + key}, nil
}

func (f *fakeCleaner) Drain(context.Context) (*cleanup.DrainReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++
	return &cleanup.DrainReport{Polls: 1, Completed: append([]string(nil), f.begun...)}, f.drainErr
}

func newTestRunner(t *testing.T, inv Invoker, cl Cleaner, mod func(*Config)) *CycleRunner {
	t.Helper()
	cfg := Config{
		Log:      log.New(),
		Invoker:  inv,
		Cleaner:  cl,
		Platform: "Azure",
		RunID:    "run-1",
	}
	if mod != nil {
		mod(&cfg)
	}
	r, err := NewCycleRunner(cfg)
	require.NoError(t, err)
	return r
}

func TestNewCycleRunnerValidation(t *testing.T) {
	_, err := NewCycleRunner(Config{Cleaner: &fakeCleaner{}, Platform: "Azure"})
	assert.Error(t, err)
	_, err = NewCycleRunner(Config{Invoker: &fakeInvoker{}, Platform: "Azure"})
	assert.Error(t, err)
	_, err = NewCycleRunner(Config{Invoker: &fakeInvoker{}, Cleaner: &fakeCleaner{}})
	assert.Error(t, err)
}

func TestRunSetupGroups(t *testing.T) {
	inv := &fakeInvoker{}
	cl := &fakeCleaner{}
	r := newTestRunner(t, inv, cl, nil)

	cycle := types.NewTestCycle("smoke", "job", []types.TestCaseSpec{spec("A", "X"), spec("B", "X"), spec("C", "Y")})
	res, err := r.Run(context.Background(), cycle)
	require.NoError(t, err)

	require.Len(t, inv.requests, 3)
	assert.True(t, inv.requests[0].ExecuteSetup)
	assert.False(t, inv.requests[1].ExecuteSetup)
	assert.True(t, inv.requests[2].ExecuteSetup)
	assert.Same(t, inv.targets[0], inv.targets[1], "B reuses A's target")

	assert.Equal(t, []string{"vm-1", "vm-2"}, cl.begun)
	assert.Equal(t, 1, cl.drains)

	assert.Equal(t, types.OutcomePass, res.Status)
	assert.Equal(t, 3, res.Totals.TotalPass)
	assert.Equal(t, types.OutcomePass, cycle.Status)
	assert.Equal(t, types.CycleStateCompleted, cycle.State)
	require.Len(t, cycle.CaseResults, 3)
	assert.Equal(t, "vm-2", cycle.CaseResults[2].TargetKey)
	assert.Equal(t, []int{1, 2, 3}, []int{cycle.CaseResults[0].Sequence, cycle.CaseResults[1].Sequence, cycle.CaseResults[2].Sequence})
}

// TestRunCountsDispatchedOnly tests that the totals match the dispatched
// sub-invocations after iteration expansion and skipping
func TestRunCountsDispatchedOnly(t *testing.T) {
	hyperVOnly := spec("HV", "X")
	hyperVOnly.Platforms = []string{"HyperV"}
	lowPriority := spec("LOW", "X")
	lowPriority.Priority = 3

	tests := []types.TestCaseSpec{
		spec("A", "X"),
		hyperVOnly,
		withIterations(spec("B", "X"), 3),
		lowPriority,
		spec("C", "Y"),
	}
	inv := &fakeInvoker{
		behave: func(rc *RunContext, req Request) (Response, error) {
			if req.Spec.Name == "B-2" {
				return Response{Outcome: "FAIL", Summary: "disk missing"}, nil
			}
			return Response{Outcome: "PASS"}, nil
		},
	}
	r := newTestRunner(t, inv, &fakeCleaner{}, func(c *Config) {
		c.Priorities = types.NewPriorityFilter(0, 1)
	})

	res, err := r.Run(context.Background(), types.NewTestCycle("c", "job", tests))
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B-1", "B-2", "B-3", "C"}, inv.names())
	assert.Equal(t, 5, res.Totals.TotalCases)
	assert.Equal(t, len(inv.requests), res.Totals.TotalPass+res.Totals.TotalFail+res.Totals.TotalAborted)
	assert.Equal(t, 1, res.Totals.TotalFail)
	assert.Equal(t, types.OutcomeFail, res.Status)
	assert.Equal(t, []string{"HV", "LOW"}, res.Skipped)
	assert.Len(t, res.Suite.Cases, 5)
	assert.Len(t, res.Rows, 5)
}

func TestRunInvokerPanicIsAborted(t *testing.T) {
	inv := &fakeInvoker{
		behave: func(rc *RunContext, req Request) (Response, error) {
			if req.Spec.Name == "B" {
				var m map[string]int
				m["boom"]++ // nil map write
			}
			return Response{Outcome: "PASS"}, nil
		},
	}
	r := newTestRunner(t, inv, &fakeCleaner{}, nil)

	cycle := types.NewTestCycle("c", "job", []types.TestCaseSpec{spec("A", "X"), spec("B", "Y"), spec("C", "Z")})
	res, err := r.Run(context.Background(), cycle)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, inv.names(), "C still runs after B panics")
	assert.Equal(t, types.OutcomeAborted, cycle.CaseResults[1].Outcome)
	assert.Contains(t, cycle.CaseResults[1].Summary, "runtime error")
	assert.Equal(t, types.OutcomePass, cycle.CaseResults[2].Outcome)
	assert.Equal(t, 1, res.Totals.TotalAborted)
	assert.Equal(t, types.OutcomeAborted, res.Status)
}

func TestRunInvokerErrorIsAborted(t *testing.T) {
	inv := &fakeInvoker{
		behave: func(rc *RunContext, req Request) (Response, error) {
			return Response{Outcome: "PASS"}, errors.New("ssh unreachable")
		},
	}
	r := newTestRunner(t, inv, &fakeCleaner{}, nil)

	cycle := types.NewTestCycle("c", "job", []types.TestCaseSpec{spec("A", "X")})
	res, err := r.Run(context.Background(), cycle)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeAborted, cycle.CaseResults[0].Outcome)
	assert.Equal(t, "ssh unreachable", cycle.CaseResults[0].Summary)
	assert.Equal(t, 1, res.Totals.TotalAborted)
}

func TestRunEmptyOutcomeIsAborted(t *testing.T) {
	inv := &fakeInvoker{
		behave: func(rc *RunContext, req Request) (Response, error) {
			return Response{Outcome: ""}, nil
		},
	}
	r := newTestRunner(t, inv, &fakeCleaner{}, nil)

	cycle := types.NewTestCycle("c", "job", []types.TestCaseSpec{spec("A", "X"), spec("B", "X")})
	res, err := r.Run(context.Background(), cycle)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Totals.TotalAborted)
	assert.Equal(t, 2, res.Warnings)
	for _, c := range cycle.CaseResults {
		assert.Equal(t, types.OutcomeAborted, c.Outcome)
	}
}

func TestRunForcesSetupWithoutTarget(t *testing.T) {
	inv := &fakeInvoker{}
	inv.behave = func(rc *RunContext, req Request) (Response, error) {
		if req.Spec.Name == "A" {
			rc.Target = nil
			return Response{}, errors.New("deploy failed")
		}
		return Response{Outcome: "PASS"}, nil
	}
	cl := &fakeCleaner{}
	r := newTestRunner(t, inv, cl, nil)

	_, err := r.Run(context.Background(), types.NewTestCycle("c", "job", []types.TestCaseSpec{spec("A", "X"), spec("B", "X")}))
	require.NoError(t, err)
	require.Len(t, inv.requests, 2)
	assert.True(t, inv.requests[1].ExecuteSetup, "B deploys because A left no target")
	assert.Equal(t, []string{"vm-2"}, cl.begun)
}

func TestRunForcesSetupForBadTarget(t *testing.T) {
	inv := &fakeInvoker{}
	inv.behave = func(rc *RunContext, req Request) (Response, error) {
		if req.Spec.Name == "A" {
			rc.Target.Bad = true
		}
		return Response{Outcome: "PASS"}, nil
	}
	cl := &fakeCleaner{}
	r := newTestRunner(t, inv, cl, nil)

	_, err := r.Run(context.Background(), types.NewTestCycle("c", "job", []types.TestCaseSpec{spec("A", "X"), spec("B", "X")}))
	require.NoError(t, err)
	assert.True(t, inv.requests[1].ExecuteSetup)
	assert.Equal(t, []string{"vm-1", "vm-2"}, cl.begun, "the bad target is released before redeploying")
}

func TestRunPreservesFailedTargets(t *testing.T) {
	failA := func(rc *RunContext, req Request) (Response, error) {
		if req.Spec.Name == "A" {
			return Response{Outcome: "FAIL"}, nil
		}
		return Response{Outcome: "PASS"}, nil
	}
	tests := []types.TestCaseSpec{spec("A", "X"), spec("B", "Y")}

	t.Run("kept without force delete", func(t *testing.T) {
		cl := &fakeCleaner{}
		r := newTestRunner(t, &fakeInvoker{behave: failA}, cl, nil)
		_, err := r.Run(context.Background(), types.NewTestCycle("c", "job", tests))
		require.NoError(t, err)
		assert.Equal(t, []string{"vm-2"}, cl.begun)
	})

	t.Run("released with force delete", func(t *testing.T) {
		cl := &fakeCleaner{}
		r := newTestRunner(t, &fakeInvoker{behave: failA}, cl, func(c *Config) { c.ForceDelete = true })
		_, err := r.Run(context.Background(), types.NewTestCycle("c", "job", tests))
		require.NoError(t, err)
		assert.Equal(t, []string{"vm-1", "vm-2"}, cl.begun)
	})
}

func TestRunReleasesTargetOfSkippedTail(t *testing.T) {
	tail := spec("B", "X")
	tail.Platforms = []string{"HyperV"}
	cl := &fakeCleaner{}
	r := newTestRunner(t, &fakeInvoker{}, cl, nil)

	_, err := r.Run(context.Background(), types.NewTestCycle("c", "job", []types.TestCaseSpec{spec("A", "X"), tail}))
	require.NoError(t, err)
	assert.Equal(t, []string{"vm-1"}, cl.begun)
}

func TestRunTeardownIssueErrorDoesNotFailCycle(t *testing.T) {
	cl := &fakeCleaner{beginErr: errors.New("api down")}
	r := newTestRunner(t, &fakeInvoker{}, cl, nil)

	res, err := r.Run(context.Background(), types.NewTestCycle("c", "job", []types.TestCaseSpec{spec("A", "X")}))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomePass, res.Status)
}

func TestRunDrainErrorIsReported(t *testing.T) {
	cl := &fakeCleaner{drainErr: cleanup.ErrDrainTimeout}
	r := newTestRunner(t, &fakeInvoker{}, cl, nil)

	res, err := r.Run(context.Background(), types.NewTestCycle("c", "job", []types.TestCaseSpec{spec("A", "X")}))
	require.NoError(t, err)
	assert.ErrorIs(t, res.DrainErr, cleanup.ErrDrainTimeout)
	assert.Equal(t, types.OutcomePass, res.Status)
}

func TestRunRejectsUninitializedCycle(t *testing.T) {
	r := newTestRunner(t, &fakeInvoker{}, &fakeCleaner{}, nil)

	_, err := r.Run(context.Background(), nil)
	assert.True(t, plan.IsPlanError(err))

	_, err = r.Run(context.Background(), &types.TestCycle{Name: "c"})
	assert.True(t, plan.IsPlanError(err))
}

func TestRunEmptyCycleStillCompletes(t *testing.T) {
	cl := &fakeCleaner{}
	r := newTestRunner(t, &fakeInvoker{}, cl, nil)

	res, err := r.Run(context.Background(), types.NewTestCycle("c", "job", nil))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Totals.TotalCases)
	assert.Equal(t, types.OutcomeAborted, res.Status)
	assert.Equal(t, 1, cl.drains)
}

func TestRunWritesCaseLogs(t *testing.T) {
	cycleLogger, err := logging.NewCycleLogger(t.TempDir(), "run-1", log.New())
	require.NoError(t, err)

	inv := &fakeInvoker{
		behave: func(rc *RunContext, req Request) (Response, error) {
			rc.Log.Info("checking disks", "test", req.Spec.Name)
			_, _ = rc.Output.Write([]byte("RESULT: PASS\n"))
			assert.Equal(t, rc.CaseDir, req.LogDir)
			return Response{Outcome: "PASS", Summary: "disks ok"}, nil
		},
	}
	r := newTestRunner(t, inv, &fakeCleaner{}, func(c *Config) { c.CycleLogger = cycleLogger })

	cycle := types.NewTestCycle("c", "job", []types.TestCaseSpec{spec("A", "X"), spec("B", "X")})
	res, err := r.Run(context.Background(), cycle)
	require.NoError(t, err)

	require.Len(t, res.Suite.Cases, 2)
	assert.Contains(t, res.Suite.Cases[0].LogText, "checking disks")
	assert.Contains(t, res.Suite.Cases[0].LogText, "RESULT: PASS")
	assert.Contains(t, res.Suite.Cases[0].LogText, "test=A")
	assert.NotContains(t, res.Suite.Cases[0].LogText, "test=B")
	assert.FileExists(t, cycle.CaseResults[1].LogPath)
	assert.Equal(t, "cycle-c", res.Suite.Name)
	assert.Contains(t, res.TextSummary, "disks ok")
}

// TestRunWithSupervisor drives the runner against a real supervisor whose
// teardowns finish immediately
func TestRunWithSupervisor(t *testing.T) {
	rel := &instantReleaser{}
	sup, err := cleanup.NewSupervisor(cleanup.Config{Log: log.New(), Releaser: rel, PollInterval: time.Millisecond})
	require.NoError(t, err)
	r := newTestRunner(t, &fakeInvoker{}, sup, nil)

	res, err := r.Run(context.Background(), types.NewTestCycle("c", "job",
		[]types.TestCaseSpec{spec("A", "X"), spec("B", "Y"), spec("C", "Z")}))
	require.NoError(t, err)
	require.NotNil(t, res.Drain)
	assert.Equal(t, []string{"vm-1", "vm-2", "vm-3"}, res.Drain.Completed)
	assert.Empty(t, sup.Tracked())
}

type instantReleaser struct {
	mu sync.Mutex
	n  int
}

func (r *instantReleaser) IssueTeardown(context.Context, string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
	return fmt.Sprintf("job-%d", r.n), nil
}

func (r *instantReleaser) QueryStatus(context.Context, string) (cleanup.State, error) {
	return cleanup.StateCompleted, nil
}
