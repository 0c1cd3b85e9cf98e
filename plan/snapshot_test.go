package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSnapshot(t *testing.T) {
	p, err := Parse([]byte(samplePlanYAML), FormatYAML)
	require.NoError(t, err)
	cycle, err := p.Resolve(ResolveOptions{Cycle: "smoke", Platform: "Azure", DefaultTimeout: time.Hour, JobID: "job-9"})
	require.NoError(t, err)

	data, err := Snapshot(cycle, "Azure")
	require.NoError(t, err)

	var got snapshot
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, "smoke", got.Cycle)
	assert.Equal(t, "Azure", got.Platform)
	assert.Equal(t, "job-9", got.JobID)
	require.Len(t, got.Tests, 2)

	bvt := got.Tests[0]
	assert.Equal(t, "BVT-VERIFY-DEPLOYMENT", bvt.Name)
	assert.Equal(t, 5*time.Minute, bvt.Timeout)
	require.NotNil(t, bvt.Env.Location)
	assert.Equal(t, "westus2", *bvt.Env.Location, "platform defaults are written out")
	require.NotNil(t, bvt.Env.OverrideSize)
	assert.Equal(t, "Standard_D2s_v3", *bvt.Env.OverrideSize)

	disk := got.Tests[1]
	assert.Equal(t, 3, disk.Iterations)
	assert.Equal(t, time.Hour, disk.Timeout)
	assert.Equal(t, []string{"./disk.sh", "--quick"}, disk.Command)
	assert.Equal(t, map[string]string{"disks": "4"}, disk.Params)
}

func TestSnapshotNilCycle(t *testing.T) {
	_, err := Snapshot(nil, "Azure")
	require.Error(t, err)
}
