package types

import (
	"fmt"
	"strings"
	"time"
)

// CycleState tracks where a cycle is in its lifecycle
type CycleState string

const (
	CycleStatePending   CycleState = "pending"
	CycleStateRunning   CycleState = "running"
	CycleStateDraining  CycleState = "draining"
	CycleStateCompleted CycleState = "completed"
	CycleStateAborted   CycleState = "aborted" // plan-level failure before any test ran
)

// TestCycle is one ordered run of test cases sharing a reporting context.
// The runner owns it exclusively for the duration of a run.
type TestCycle struct {
	Name  string
	Tests []TestCaseSpec

	State          CycleState
	Status         Outcome
	CurrentTest    string
	StateTimestamp time.Time
	JobID          string

	TextSummary strings.Builder
	HTMLSummary strings.Builder

	CaseResults []CaseResult
}

// NewTestCycle creates a cycle shell with every placeholder field present
func NewTestCycle(name, jobID string, tests []TestCaseSpec) *TestCycle {
	return &TestCycle{
		Name:           name,
		Tests:          tests,
		State:          CycleStatePending,
		StateTimestamp: time.Now(),
		JobID:          jobID,
		CaseResults:    make([]CaseResult, 0, len(tests)),
	}
}

// SetState moves the cycle to state and stamps the transition time
func (c *TestCycle) SetState(state CycleState) {
	c.State = state
	c.StateTimestamp = time.Now()
}

// CaseResult is the record of exactly one dispatched sub-invocation
type CaseResult struct {
	Sequence     int // 1-based dispatch order
	Name         string
	OriginalName string
	Outcome      Outcome
	Duration     time.Duration
	Summary      string
	LogPath      string
	TargetKey    string
}

// CycleResultAccumulator holds running totals for a cycle. The counters
// only ever increase.
type CycleResultAccumulator struct {
	TotalCases   int
	TotalPass    int
	TotalFail    int
	TotalAborted int
}

// Add counts one outcome. Anything other than Pass or Fail counts as
// Aborted so the totals always add up.
func (a *CycleResultAccumulator) Add(outcome Outcome) {
	a.TotalCases++
	switch outcome {
	case OutcomePass:
		a.TotalPass++
	case OutcomeFail:
		a.TotalFail++
	default:
		a.TotalAborted++
	}
}

// Status derives the overall cycle outcome: Pass only when every case
// passed; Fail if anything failed; Aborted if the worst was an abort.
func (a CycleResultAccumulator) Status() Outcome {
	switch {
	case a.TotalFail > 0:
		return OutcomeFail
	case a.TotalAborted > 0:
		return OutcomeAborted
	case a.TotalPass > 0:
		return OutcomePass
	default:
		return OutcomeAborted
	}
}

// PassRate returns the share of passed cases as a percentage
func (a CycleResultAccumulator) PassRate() float64 {
	if a.TotalCases == 0 {
		return 0
	}
	return float64(a.TotalPass) / float64(a.TotalCases) * 100
}

func (a CycleResultAccumulator) String() string {
	return fmt.Sprintf("total=%d pass=%d fail=%d aborted=%d",
		a.TotalCases, a.TotalPass, a.TotalFail, a.TotalAborted)
}
