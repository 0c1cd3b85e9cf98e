package plan

import (
	"errors"
	"fmt"
)

// PlanError is a fatal plan-level condition detected before any test is
// scheduled, such as a setup type whose base image cannot be resolved.
type PlanError struct {
	Cycle  string
	Test   string
	Reason string
}

func (e *PlanError) Error() string {
	if e.Test == "" {
		return fmt.Sprintf("plan error in cycle %q: %s", e.Cycle, e.Reason)
	}
	return fmt.Sprintf("plan error in cycle %q, test %q: %s", e.Cycle, e.Test, e.Reason)
}

// IsPlanError checks if the error is or wraps a PlanError
func IsPlanError(err error) bool {
	var planErr *PlanError
	return err != nil && errors.As(err, &planErr)
}
