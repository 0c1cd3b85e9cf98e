package runner

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-cycler/types"
)

func TestAggregatorAdd(t *testing.T) {
	cycle := types.NewTestCycle("smoke", "job", nil)
	agg := NewAggregator(log.New(), cycle, "Azure", "run-1")

	outcomes := []string{"PASS", "failed", "", "exploded", "ABORTED"}
	for i, o := range outcomes {
		stored := agg.Add(types.CaseResult{
			Sequence: i + 1,
			Name:     "T<" + o + ">",
			Outcome:  types.Outcome(o),
			Duration: 90 * time.Second,
		}, "log text")
		assert.Contains(t, []types.Outcome{types.OutcomePass, types.OutcomeFail, types.OutcomeAborted}, stored.Outcome)
	}

	acc := agg.Accumulator()
	assert.Equal(t, types.CycleResultAccumulator{TotalCases: 5, TotalPass: 1, TotalFail: 1, TotalAborted: 3}, acc)
	assert.Equal(t, 2, agg.Warnings())
	assert.Equal(t, types.OutcomeFail, acc.Status())

	require.Len(t, cycle.CaseResults, 5)
	assert.Equal(t, types.OutcomeFail, cycle.CaseResults[1].Outcome)
	assert.Equal(t, `invalid outcome ""`, cycle.CaseResults[2].Summary)

	suite := agg.Suite()
	assert.Equal(t, "cycle-smoke", suite.Name)
	require.Len(t, suite.Cases, 5)
	assert.Equal(t, "log text", suite.Cases[0].LogText)
	assert.Equal(t, suite.Name, suite.Cases[0].Suite)

	rows := agg.Rows()
	require.Len(t, rows, 5)
	assert.Equal(t, types.ColorGreen, rows[0].Color)
	assert.Equal(t, types.ColorRed, rows[1].Color)
	assert.Equal(t, types.ColorYellow, rows[2].Color)

	assert.Contains(t, cycle.TextSummary.String(), "1.50 min")
	assert.Contains(t, cycle.HTMLSummary.String(), "T&lt;PASS&gt;")
}

// TestAggregatorCountersMonotonic tests that no Add ever lowers a counter
func TestAggregatorCountersMonotonic(t *testing.T) {
	agg := NewAggregator(log.New(), types.NewTestCycle("c", "job", nil), "Azure", "run-1")
	prev := agg.Accumulator()
	for _, o := range []string{"PASS", "FAIL", "", "PASS", "ABORTED", "nope"} {
		agg.Add(types.CaseResult{Name: "t", Outcome: types.Outcome(o)}, "")
		cur := agg.Accumulator()
		assert.Equal(t, prev.TotalCases+1, cur.TotalCases)
		assert.GreaterOrEqual(t, cur.TotalPass, prev.TotalPass)
		assert.GreaterOrEqual(t, cur.TotalFail, prev.TotalFail)
		assert.GreaterOrEqual(t, cur.TotalAborted, prev.TotalAborted)
		assert.Equal(t, cur.TotalCases, cur.TotalPass+cur.TotalFail+cur.TotalAborted)
		prev = cur
	}
}
