package reporting

import (
	"fmt"
	"io"
	"time"

	"github.com/jstemmer/go-junit-report/v2/junit"

	"github.com/ethereum-optimism/infra/op-cycler/types"
)

// JUnitWriter renders a cycle's suite as JUnit XML. Case and suite times
// are written in minutes.
type JUnitWriter struct {
	Hostname string
}

// Build converts the suite into go-junit-report's document model
func (j *JUnitWriter) Build(r *Report) junit.Testsuites {
	suite := junit.Testsuite{
		Name:      r.Suite.Name,
		Hostname:  j.Hostname,
		Package:   r.Platform,
		Timestamp: r.Suite.Timestamp.Format(time.RFC3339),
		Time:      minutes(r.Duration),
	}
	suite.AddProperty("timeUnit", "minutes")
	suite.AddProperty("runId", r.RunID)
	if r.JobID != "" {
		suite.AddProperty("jobId", r.JobID)
	}
	for _, key := range r.CleanupFailed {
		suite.AddProperty("cleanupFailed", key)
	}
	for _, key := range r.CleanupPending {
		suite.AddProperty("cleanupPending", key)
	}

	for _, c := range r.Suite.Cases {
		tc := junit.Testcase{
			Name:      c.Name,
			Classname: c.Suite,
			Time:      minutes(c.Duration),
			Status:    string(c.Outcome),
		}
		switch c.Outcome {
		case types.OutcomeFail:
			tc.Failure = &junit.Result{Message: "test failed", Type: string(c.Outcome)}
		case types.OutcomeAborted:
			tc.Error = &junit.Result{Message: "test aborted", Type: string(c.Outcome)}
		}
		if c.LogText != "" {
			tc.SystemOut = &junit.Output{Data: c.LogText}
		}
		suite.AddTestcase(tc)
	}

	var doc junit.Testsuites
	doc.AddSuite(suite)
	return doc
}

// Write renders the report as JUnit XML to w
func (j *JUnitWriter) Write(w io.Writer, r *Report) error {
	doc := j.Build(r)
	if err := doc.WriteXML(w); err != nil {
		return fmt.Errorf("writing junit xml: %w", err)
	}
	return nil
}

func minutes(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Minutes())
}
