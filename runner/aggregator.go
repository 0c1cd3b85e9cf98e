package runner

import (
	"fmt"
	"html"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-cycler/metrics"
	"github.com/ethereum-optimism/infra/op-cycler/types"
)

// Aggregator folds case results into the cycle's counters and report
// projections, in the order they are added
type Aggregator struct {
	log      log.Logger
	cycle    *types.TestCycle
	platform string
	runID    string

	acc      types.CycleResultAccumulator
	suite    types.JUnitSuite
	rows     []types.SummaryRow
	warnings int
}

// NewAggregator creates an Aggregator writing into cycle
func NewAggregator(logger log.Logger, cycle *types.TestCycle, platform, runID string) *Aggregator {
	if logger == nil {
		logger = log.New()
	}
	return &Aggregator{
		log:      logger,
		cycle:    cycle,
		platform: platform,
		runID:    runID,
		suite: types.JUnitSuite{
			Name:      JUnitSuitePrefix + cycle.Name,
			Timestamp: time.Now(),
		},
	}
}

// Add records one dispatched sub-invocation and returns the record as
// stored. An empty or unrecognized outcome is stored as Aborted.
func (a *Aggregator) Add(res types.CaseResult, logText string) types.CaseResult {
	outcome, ok := types.ParseOutcome(string(res.Outcome))
	if !ok {
		a.warnings++
		a.log.Warn("Unrecognized test outcome, recording as aborted",
			"test", res.Name, "outcome", string(res.Outcome))
		metrics.RecordReportIntegrityWarning(a.cycle.Name)
		if res.Summary == "" {
			res.Summary = fmt.Sprintf("invalid outcome %q", string(res.Outcome))
		}
	}
	res.Outcome = outcome

	a.acc.Add(outcome)
	a.cycle.CaseResults = append(a.cycle.CaseResults, res)

	a.suite.Cases = append(a.suite.Cases, types.JUnitCase{
		Name:     res.Name,
		Suite:    a.suite.Name,
		Duration: res.Duration,
		Outcome:  outcome,
		LogText:  logText,
	})

	row := types.SummaryRow{
		Sequence: res.Sequence,
		Name:     res.Name,
		Summary:  res.Summary,
		Duration: res.Duration,
		Outcome:  outcome,
		Color:    types.ColorFor(outcome),
		LogPath:  res.LogPath,
	}
	a.rows = append(a.rows, row)
	fmt.Fprintf(&a.cycle.TextSummary, "%3d. %-40s %-8s %8.2f min  %s\n",
		row.Sequence, row.Name, row.Outcome, row.Duration.Minutes(), row.Summary)
	fmt.Fprintf(&a.cycle.HTMLSummary,
		"<tr><td>%d</td><td>%s</td><td>%s</td><td>%.2f min</td><td style=\"color:%s\">%s</td></tr>\n",
		row.Sequence, html.EscapeString(row.Name), html.EscapeString(row.Summary),
		row.Duration.Minutes(), row.Color, row.Outcome)

	metrics.RecordCase(a.platform, a.runID, a.cycle.Name, res.OriginalName, outcome, res.Duration)
	a.log.Info("Test case finished", "seq", res.Sequence, "test", res.Name,
		"outcome", outcome, "duration", res.Duration, "totals", a.acc.String())
	return res
}

// Accumulator returns the current totals
func (a *Aggregator) Accumulator() types.CycleResultAccumulator {
	return a.acc
}

// Suite returns the JUnit projection
func (a *Aggregator) Suite() types.JUnitSuite {
	return a.suite
}

// Rows returns the summary projection
func (a *Aggregator) Rows() []types.SummaryRow {
	return a.rows
}

// Warnings returns how many results had an unrecognized outcome
func (a *Aggregator) Warnings() int {
	return a.warnings
}
