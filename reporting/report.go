// Package reporting renders the results of a cycle as JUnit XML, an HTML
// summary, a plain-text summary and a console table.
package reporting

import (
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-cycler/types"
)

const (
	JUnitFilename   = "junit.xml"
	HTMLFilename    = "summary.html"
	SummaryFilename = "summary.log"
)

// Report is everything the emitter needs about a finished cycle
type Report struct {
	RunID    string
	Cycle    string
	Platform string
	JobID    string
	Status   types.Outcome
	Totals   types.CycleResultAccumulator
	Suite    types.JUnitSuite
	Rows     []types.SummaryRow
	Skipped  []string
	Duration time.Duration

	// TextRows is the incremental plain-text summary built during the run
	TextRows string

	CleanupCompleted int
	CleanupFailed    []string
	CleanupPending   []string
}

// Title returns a one-line heading for the report
func (r *Report) Title() string {
	return fmt.Sprintf("Cycle %s on %s (%s)", r.Cycle, r.Platform, formatMinutes(r.Duration))
}

func formatMinutes(d time.Duration) string {
	return fmt.Sprintf("%.2f min", d.Minutes())
}
