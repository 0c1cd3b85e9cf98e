package types

import "time"

// Target is a provisioned VM or cloud deployment that tests run against
type Target struct {
	Key        string // identity used to tear the target down
	Platform   string
	SetupKey   string // setup-group key the target was deployed for
	DeployedAt time.Time
	// Bad is set when a test leaves the target unusable; the next test
	// deploys a fresh one even if it shares the setup group.
	Bad bool
}
