// Package runner schedules the test cases of one cycle against shared
// provisioned targets.
//
// The main components are:
//   - BuildPlan: expands an ordered test list into sub-invocations and
//     decides which of them deploy a target and which release it
//   - CycleRunner: dispatches sub-invocations one at a time through the
//     Invoker, releases targets through the cleanup supervisor and drains
//     outstanding teardowns at the end of the cycle
//   - Aggregator: folds every CaseResult into the cycle counters and the
//     JUnit and summary projections
//   - RunContext: the per-dispatch state handed to the Invoker in place of
//     process-wide variables
package runner
