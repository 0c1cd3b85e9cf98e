// Package cleanup supervises asynchronous teardown of released targets and
// drains them at the end of a cycle.
package cleanup

import (
	"context"
	"fmt"
	"time"
)

// State is the lifecycle state of a teardown job
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether s is a final state
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Releaser is the teardown side of the target provisioner
type Releaser interface {
	// IssueTeardown starts releasing the target identified by key and
	// returns without waiting for the release to finish.
	IssueTeardown(ctx context.Context, key string) (jobID string, err error)
	// QueryStatus reports the current state of a previously issued job
	QueryStatus(ctx context.Context, jobID string) (State, error)
}

// Handle tracks one issued teardown. Its state moves from Running to a
// terminal state exactly once.
type Handle struct {
	Key      string
	JobID    string
	IssuedAt time.Time

	state      State
	resolvedAt time.Time
}

// State returns the last observed state
func (h *Handle) State() State {
	return h.state
}

// ResolvedAt returns when the handle was observed terminal, or the zero time
func (h *Handle) ResolvedAt() time.Time {
	return h.resolvedAt
}

// resolve records a terminal state. It returns false if the handle was
// already terminal, leaving it untouched.
func (h *Handle) resolve(state State, at time.Time) bool {
	if h.state.Terminal() || !state.Terminal() {
		return false
	}
	h.state = state
	h.resolvedAt = at
	return true
}

func (h *Handle) String() string {
	return fmt.Sprintf("%s(job=%s, state=%s)", h.Key, h.JobID, h.state)
}
