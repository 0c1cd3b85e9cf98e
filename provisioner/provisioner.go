// Package provisioner deploys and tears down test targets by running the
// platform's deploy and teardown commands.
package provisioner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/ethereum-optimism/infra/op-cycler/cleanup"
	"github.com/ethereum-optimism/infra/op-cycler/setupkey"
	"github.com/ethereum-optimism/infra/op-cycler/types"
)

const (
	// EnvTarget names the variable carrying the target key into teardown
	EnvTarget   = "CYCLER_TARGET"
	EnvPlatform = "CYCLER_PLATFORM"
	EnvTest     = "CYCLER_TEST"

	DefaultTeardownTimeout = 30 * time.Minute
)

// CommandRunner runs a command and returns its standard output
type CommandRunner func(ctx context.Context, argv []string, env []string, dir string) (string, error)

// Config holds configuration for a CommandProvisioner
type Config struct {
	Log             log.Logger
	Platform        string
	DeployCommand   []string
	TeardownCommand []string
	WorkDir         string
	TeardownTimeout time.Duration
	Runner          CommandRunner // defaults to ExecRunner
}

// CommandProvisioner implements cleanup.Releaser. Teardowns run on a
// worker pool so IssueTeardown never waits for one to finish.
type CommandProvisioner struct {
	log             log.Logger
	platform        string
	deployCmd       []string
	teardownCmd     []string
	workDir         string
	teardownTimeout time.Duration
	run             CommandRunner

	ctx    context.Context
	cancel context.CancelFunc
	pool   *pool.ContextPool

	mu   sync.Mutex
	jobs map[string]cleanup.State
}

var _ cleanup.Releaser = (*CommandProvisioner)(nil)

// New creates a CommandProvisioner. Close must be called to wait for
// outstanding teardowns.
func New(cfg Config) (*CommandProvisioner, error) {
	if cfg.Platform == "" {
		return nil, errors.New("platform is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.TeardownTimeout <= 0 {
		cfg.TeardownTimeout = DefaultTeardownTimeout
	}
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &CommandProvisioner{
		log:             cfg.Log,
		platform:        cfg.Platform,
		deployCmd:       cfg.DeployCommand,
		teardownCmd:     cfg.TeardownCommand,
		workDir:         cfg.WorkDir,
		teardownTimeout: cfg.TeardownTimeout,
		run:             cfg.Runner,
		ctx:             ctx,
		cancel:          cancel,
		pool:            pool.New().WithContext(ctx),
		jobs:            make(map[string]cleanup.State),
	}, nil
}

// Deploy provisions a target for spec. The target key is the last
// non-empty line the deploy command prints; without one, or without a
// deploy command, a key is generated.
func (p *CommandProvisioner) Deploy(ctx context.Context, spec types.TestCaseSpec) (*types.Target, error) {
	key := setupkey.Compute(spec)
	target := &types.Target{
		Platform:   p.platform,
		SetupKey:   key.String(),
		DeployedAt: time.Now(),
	}

	if len(p.deployCmd) == 0 {
		target.Key = p.generateKey()
		p.log.Debug("No deploy command configured, using local target", "key", target.Key)
		return target, nil
	}

	env := append(spec.Env.Vars(), EnvPlatform+"="+p.platform, EnvTest+"="+spec.OriginalName)
	p.log.Info("Deploying target", "test", spec.Name, "setup", target.SetupKey)
	out, err := p.run(ctx, p.deployCmd, env, p.workDir)
	if err != nil {
		return nil, fmt.Errorf("deploying target for %s: %w", spec.Name, err)
	}

	target.Key = lastLine(out)
	if target.Key == "" {
		target.Key = p.generateKey()
		p.log.Warn("Deploy command printed no target key, generated one", "key", target.Key)
	}
	p.log.Info("Target deployed", "key", target.Key)
	return target, nil
}

// IssueTeardown starts tearing down key in the background
func (p *CommandProvisioner) IssueTeardown(_ context.Context, key string) (string, error) {
	if err := p.ctx.Err(); err != nil {
		return "", fmt.Errorf("provisioner closed: %w", err)
	}
	jobID := uuid.New().String()

	p.mu.Lock()
	p.jobs[jobID] = cleanup.StateRunning
	p.mu.Unlock()

	if len(p.teardownCmd) == 0 {
		p.setState(jobID, cleanup.StateCompleted)
		return jobID, nil
	}

	p.pool.Go(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, p.teardownTimeout)
		defer cancel()

		env := []string{EnvTarget + "=" + key, EnvPlatform + "=" + p.platform}
		if _, err := p.run(ctx, p.teardownCmd, env, p.workDir); err != nil {
			p.log.Warn("Teardown command failed", "key", key, "job", jobID, "err", err)
			p.setState(jobID, cleanup.StateFailed)
			return nil
		}
		p.setState(jobID, cleanup.StateCompleted)
		return nil
	})
	return jobID, nil
}

// QueryStatus reports the state of a job returned by IssueTeardown
func (p *CommandProvisioner) QueryStatus(_ context.Context, jobID string) (cleanup.State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.jobs[jobID]
	if !ok {
		return "", fmt.Errorf("unknown teardown job %q", jobID)
	}
	return state, nil
}

// Close waits for every running teardown to finish
func (p *CommandProvisioner) Close() error {
	err := p.pool.Wait()
	p.cancel()
	return err
}

func (p *CommandProvisioner) setState(jobID string, state cleanup.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs[jobID] = state
}

func (p *CommandProvisioner) generateKey() string {
	return fmt.Sprintf("%s-%s", strings.ToLower(p.platform), uuid.New().String()[:8])
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

// ExecRunner runs argv as a child process with env appended to the
// current environment
func ExecRunner(ctx context.Context, argv []string, env []string, dir string) (string, error) {
	if len(argv) == 0 {
		return "", errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.String(), fmt.Errorf("%w: %s", err, msg)
		}
		return stdout.String(), err
	}
	return stdout.String(), nil
}
