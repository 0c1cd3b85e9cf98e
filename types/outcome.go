// Package types contains shared types used across the cycle controller
package types

import "strings"

// Outcome represents the result of a single sub-invocation. Pass, Fail and
// Aborted are the only values a CaseResult may carry.
type Outcome string

const (
	OutcomePass    Outcome = "PASS"
	OutcomeFail    Outcome = "FAIL"
	OutcomeAborted Outcome = "ABORTED"
)

// String implements the Stringer interface for Outcome
func (o Outcome) String() string {
	return string(o)
}

// ParseOutcome maps an invoker result string onto an Outcome. Matching is
// case-insensitive and ignores surrounding whitespace. An empty or
// unrecognized value is coerced to OutcomeAborted and ok is false, so the
// caller can emit a diagnostic.
func ParseOutcome(raw string) (outcome Outcome, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PASS", "PASSED":
		return OutcomePass, true
	case "FAIL", "FAILED":
		return OutcomeFail, true
	case "ABORTED", "ABORT":
		return OutcomeAborted, true
	default:
		return OutcomeAborted, false
	}
}
