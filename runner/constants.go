package runner

import "time"

const (
	// DefaultTestTimeout is used for test cases that do not set a timeout
	DefaultTestTimeout = 30 * time.Minute

	// Setup decision labels for metrics and logs
	SetupDeploy = "deploy"
	SetupReuse  = "reuse"
	SetupForced = "forced"

	// JUnitSuitePrefix is prepended to the cycle name to form the suite name
	JUnitSuitePrefix = "cycle-"
)
