package runner

import (
	"fmt"

	"github.com/ethereum-optimism/infra/op-cycler/setupkey"
	"github.com/ethereum-optimism/infra/op-cycler/types"
)

// SubInvocation is one concrete execution of a test case after iteration
// expansion
type SubInvocation struct {
	Spec            types.TestCaseSpec
	TestIndex       int // position of the test case in the cycle
	Iteration       int // 1-based
	Iterations      int
	ExecuteSetup    bool
	ExecuteTeardown bool
	// SetupChange names the key fields that differ from the previous test
	// when a new setup group starts
	SetupChange []string
}

// PlanOptions controls plan expansion
type PlanOptions struct {
	// DeployPerTest deploys and releases a target around every test case
	DeployPerTest bool
}

// BuildPlan expands tests into sub-invocations in dispatch order.
//
// A test deploys when it is first, when its setup key differs from the
// previous test's, or when DeployPerTest is set. It releases its target when
// it is last, when the next test's key differs, or when DeployPerTest is
// set. A test with K > 1 iterations runs K sub-invocations on one target:
// only the first may deploy and only the last may release.
func BuildPlan(tests []types.TestCaseSpec, opts PlanOptions) []SubInvocation {
	n := len(tests)
	keys := make([]setupkey.Key, n)
	for i := range tests {
		keys[i] = setupkey.Compute(tests[i])
	}

	var subs []SubInvocation
	for i, spec := range tests {
		setup := opts.DeployPerTest || i == 0 || keys[i] != keys[i-1]
		teardown := opts.DeployPerTest || i == n-1 || keys[i] != keys[i+1]

		var change []string
		if i > 0 && keys[i] != keys[i-1] {
			change = setupkey.Diff(keys[i-1], keys[i])
		}

		k := spec.IterationCount()
		for it := 1; it <= k; it++ {
			sub := SubInvocation{
				Spec:       spec,
				TestIndex:  i,
				Iteration:  it,
				Iterations: k,
			}
			if k > 1 {
				sub.Spec.Name = fmt.Sprintf("%s-%d", spec.Name, it)
			}
			switch {
			case k == 1:
				sub.ExecuteSetup, sub.ExecuteTeardown = setup, teardown
			case it == 1:
				sub.ExecuteSetup = setup
			case it == k:
				sub.ExecuteTeardown = teardown
			}
			if it == 1 {
				sub.SetupChange = change
			}
			subs = append(subs, sub)
		}
	}
	return subs
}
