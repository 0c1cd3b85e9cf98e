package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		raw    string
		want   Outcome
		wantOK bool
	}{
		{"PASS", OutcomePass, true},
		{" pass\n", OutcomePass, true},
		{"Failed", OutcomeFail, true},
		{"ABORTED", OutcomeAborted, true},
		{"", OutcomeAborted, false},
		{"SKIPPED", OutcomeAborted, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseOutcome(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestCycleResultAccumulator(t *testing.T) {
	var acc CycleResultAccumulator
	assert.Equal(t, OutcomeAborted, acc.Status(), "an empty cycle is not a pass")

	acc.Add(OutcomePass)
	acc.Add(OutcomePass)
	assert.Equal(t, OutcomePass, acc.Status())

	acc.Add(Outcome("weird"))
	assert.Equal(t, OutcomeAborted, acc.Status())

	acc.Add(OutcomeFail)
	assert.Equal(t, OutcomeFail, acc.Status())

	assert.Equal(t, 4, acc.TotalCases)
	assert.Equal(t, acc.TotalCases, acc.TotalPass+acc.TotalFail+acc.TotalAborted)
	assert.InDelta(t, 50.0, acc.PassRate(), 0.001)
}

func TestEnvironmentWithDefaults(t *testing.T) {
	env := Environment{OSType: Ptr("Linux"), BaseImage: Ptr("")}
	defaults := Environment{
		OSType:    Ptr("Windows"),
		BaseImage: Ptr("ubuntu.vhd"),
		Location:  Ptr("westus2"),
	}

	merged := env.WithDefaults(defaults)
	require.NotNil(t, merged.Location)
	assert.Equal(t, "westus2", *merged.Location)
	assert.Equal(t, "Linux", *merged.OSType, "specified fields win")
	assert.Equal(t, "", *merged.BaseImage, "present-but-empty is still specified")
	assert.Nil(t, merged.DiskType)

	*defaults.Location = "eastus"
	assert.Equal(t, "westus2", *merged.Location, "defaults are copied, not aliased")
}

func TestTestCaseSpecSupportsPlatform(t *testing.T) {
	spec := TestCaseSpec{Platforms: []string{"Azure", "HyperV"}}
	assert.True(t, spec.SupportsPlatform("azure"))
	assert.False(t, spec.SupportsPlatform("WSL"))
	assert.True(t, TestCaseSpec{}.SupportsPlatform("anything"))
}

func TestPriorityFilter(t *testing.T) {
	var nilFilter *PriorityFilter
	assert.True(t, nilFilter.Allows(3))
	assert.True(t, NewPriorityFilter().Allows(3))

	f := NewPriorityFilter(2, 0)
	assert.True(t, f.Allows(0))
	assert.False(t, f.Allows(1))
	assert.Equal(t, []int{0, 2}, f.Priorities())
}
