package cycler

import (
	"flag"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/ethereum-optimism/infra/op-cycler/flags"
)

func newCLIContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range flags.Flags {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(&cli.App{Flags: flags.Flags}, set, nil)
}

var requiredArgs = []string{"--plan", "plan.yaml", "--cycle", "smoke", "--platform", "Azure"}

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig(newCLIContext(t, requiredArgs...), log.New())
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(cfg.PlanFile))
	assert.Equal(t, "plan.yaml", filepath.Base(cfg.PlanFile))
	assert.Equal(t, "smoke", cfg.Cycle)
	assert.Equal(t, "Azure", cfg.Platform)
	assert.Equal(t, 1, cfg.Iterations)
	assert.True(t, cfg.RunOnce)
	assert.False(t, cfg.DeployPerTest)
	assert.True(t, cfg.ForceDelete, "targets are released by default")
	assert.True(t, filepath.IsAbs(cfg.LogDir))
	assert.Equal(t, "logs", filepath.Base(cfg.LogDir))
	assert.Equal(t, 30*time.Minute, cfg.DefaultTimeout)
	assert.Equal(t, 30*time.Second, cfg.DrainInterval)
	assert.Zero(t, cfg.MaxDrain)
	assert.Zero(t, cfg.TeardownRate)
	assert.True(t, cfg.Priorities.Allows(7), "no filter admits every priority")
	assert.Equal(t, 8080, cfg.Service.HealthzPort)
	assert.True(t, cfg.Service.MetricsDisabled)
	assert.NotNil(t, cfg.Log)
}

func TestNewConfigOptions(t *testing.T) {
	args := append([]string{
		"--priority", "0, 1",
		"--iterations", "3",
		"--deploy-per-test",
		"--force-delete=false",
		"--run-interval", "6h",
		"--max-drain", "1h",
		"--teardown-rate", "0.5",
		"--job-id", "job-42",
		"--metrics.enabled",
	}, requiredArgs...)

	cfg, err := NewConfig(newCLIContext(t, args...), log.New())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, cfg.Priorities.Priorities())
	assert.False(t, cfg.Priorities.Allows(2))
	assert.Equal(t, 3, cfg.Iterations)
	assert.True(t, cfg.DeployPerTest)
	assert.False(t, cfg.ForceDelete)
	assert.False(t, cfg.RunOnce)
	assert.Equal(t, 6*time.Hour, cfg.RunInterval)
	assert.Equal(t, time.Hour, cfg.MaxDrain)
	assert.Equal(t, rate.Limit(0.5), cfg.TeardownRate)
	assert.Equal(t, "job-42", cfg.JobID)
	assert.False(t, cfg.Service.MetricsDisabled)
}

func TestNewConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing platform", args: []string{"--plan", "p.yaml", "--cycle", "smoke"}, want: "platform"},
		{name: "bad priority", args: append([]string{"--priority", "high"}, requiredArgs...), want: "invalid priority"},
		{name: "negative priority", args: append([]string{"--priority", "-1"}, requiredArgs...), want: "invalid priority"},
		{name: "zero iterations", args: append([]string{"--iterations", "0"}, requiredArgs...), want: "iterations"},
		{name: "negative rate", args: append([]string{"--teardown-rate", "-1"}, requiredArgs...), want: "teardown rate"},
		{name: "negative drain", args: append([]string{"--max-drain", "-1s"}, requiredArgs...), want: "max drain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(newCLIContext(t, tt.args...), log.New())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
