// Package exitcodes defines the exit codes used by op-cycler.
package exitcodes

// Exit code constants used by op-cycler:
//
// * Success (0): every dispatched test case passed
// * TestFailure (1): at least one test case failed or was aborted
// * RuntimeErr (2): plan errors, configuration errors and other runtime failures
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures or aborts
	RuntimeErr  = 2 // Runtime or plan errors
)
