package runner

import (
	"context"
	"io"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-cycler/types"
)

// RunContext carries the state of one dispatch: where it logs and which
// target it runs against. The runner creates a fresh one per
// sub-invocation and reads Target back after the Invoker returns.
type RunContext struct {
	Log      log.Logger
	Output   io.Writer // raw process output, appended to the case log
	CaseDir  string
	Platform string
	RunID    string
	// Target is the live target. It is nil on entry when the Invoker is
	// asked to deploy, and the Invoker sets it once a target exists.
	Target *types.Target
}

// Request asks the Invoker to run one sub-invocation
type Request struct {
	Spec            types.TestCaseSpec
	ExecuteSetup    bool
	ExecuteTeardown bool
	LogDir          string
}

// Response is what the Invoker reports back. Outcome is the raw outcome
// string; anything other than PASS, FAIL or ABORTED is recorded as
// ABORTED.
type Response struct {
	Outcome string
	Summary string
}

// Invoker executes a single sub-invocation. A returned error or a panic is
// recorded as an aborted case.
type Invoker interface {
	Invoke(ctx context.Context, rc *RunContext, req Request) (Response, error)
}

// InvokerFunc adapts a function to the Invoker interface
type InvokerFunc func(ctx context.Context, rc *RunContext, req Request) (Response, error)

func (f InvokerFunc) Invoke(ctx context.Context, rc *RunContext, req Request) (Response, error) {
	return f(ctx, rc, req)
}
