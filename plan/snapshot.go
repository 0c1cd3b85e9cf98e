package plan

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-cycler/types"
)

// SnapshotFilename is the name of the resolved cycle written next to a
// run's reports
const SnapshotFilename = "cycle.yaml"

type snapshot struct {
	Cycle    string               `yaml:"cycle"`
	Platform string               `yaml:"platform"`
	JobID    string               `yaml:"jobId,omitempty"`
	Tests    []types.TestCaseSpec `yaml:"tests"`
}

// Snapshot renders a resolved cycle as YAML, with every inherited
// environment field filled in.
func Snapshot(cycle *types.TestCycle, platform string) ([]byte, error) {
	if cycle == nil {
		return nil, fmt.Errorf("no cycle to snapshot")
	}
	data, err := yaml.Marshal(snapshot{
		Cycle:    cycle.Name,
		Platform: platform,
		JobID:    cycle.JobID,
		Tests:    cycle.Tests,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cycle %s: %w", cycle.Name, err)
	}
	return data, nil
}
