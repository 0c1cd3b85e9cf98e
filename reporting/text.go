package reporting

import (
	"fmt"
	"io"
	"strings"
)

// WriteText writes the plain-text summary: a header, the per-case rows and
// the totals
func WriteText(w io.Writer, r *Report) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", r.Title())
	fmt.Fprintf(&sb, "Run: %s\n", r.RunID)
	if r.JobID != "" {
		fmt.Fprintf(&sb, "Job: %s\n", r.JobID)
	}
	sb.WriteString(strings.Repeat("=", 72) + "\n")
	sb.WriteString(r.TextRows)
	sb.WriteString(strings.Repeat("-", 72) + "\n")
	fmt.Fprintf(&sb, "Status: %s  Total: %d  Passed: %d  Failed: %d  Aborted: %d  Pass rate: %.1f%%\n",
		r.Status, r.Totals.TotalCases, r.Totals.TotalPass, r.Totals.TotalFail, r.Totals.TotalAborted, r.Totals.PassRate())
	if len(r.Skipped) > 0 {
		fmt.Fprintf(&sb, "Skipped: %s\n", strings.Join(r.Skipped, ", "))
	}
	fmt.Fprintf(&sb, "Cleanup: %d completed, %d failed", r.CleanupCompleted, len(r.CleanupFailed))
	if len(r.CleanupPending) > 0 {
		fmt.Fprintf(&sb, ", %d still running", len(r.CleanupPending))
	}
	sb.WriteString("\n")
	for _, key := range r.CleanupFailed {
		fmt.Fprintf(&sb, "  leaked: %s\n", key)
	}
	for _, key := range r.CleanupPending {
		fmt.Fprintf(&sb, "  still running: %s\n", key)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
