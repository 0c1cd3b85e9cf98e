package cycler

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-cycler/exitcodes"
	"github.com/ethereum-optimism/infra/op-cycler/plan"
	"github.com/ethereum-optimism/infra/op-cycler/types"
)

// RuntimeError is an operational failure that prevented a cycle from
// producing a verdict: an unreadable plan, a PlanError, invalid flags.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// CycleFailureError reports a cycle that completed with at least one
// failed or aborted case
type CycleFailureError struct {
	Cycle  string
	Status types.Outcome
	Totals types.CycleResultAccumulator
}

func (e *CycleFailureError) Error() string {
	return fmt.Sprintf("cycle %s %s: %s", e.Cycle, e.Status, e.Totals.String())
}

// IsCycleFailureError checks if the error is or wraps a CycleFailureError
func IsCycleFailureError(err error) bool {
	var failErr *CycleFailureError
	return err != nil && errors.As(err, &failErr)
}

// ExitCode maps an error returned by the service to a process exit code
func ExitCode(err error) int {
	switch {
	case err == nil:
		return exitcodes.Success
	case IsRuntimeError(err), plan.IsPlanError(err):
		return exitcodes.RuntimeErr
	default:
		// cycle failures and anything unclassified
		return exitcodes.TestFailure
	}
}
