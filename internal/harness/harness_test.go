package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func uint64Ptr(v uint64) *uint64 { return &v }

func TestRun_ArmsRealtimeBeforeFirstStep(t *testing.T) {
	scenario := &Scenario{
		Name:  "deliver_only",
		Chain: ChainSetup{Levels: []LevelState{{LevelID: 4, Hints: 1}}},
		Steps: []Step{
			{Action: StepDeliver, Event: &ChainEvent{Kind: "LevelCreated", Block: 3, Tx: "0x04", LevelID: 4, Size: 2, HintCount: 1}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, "realtime", string(result.Trace[0].Origin))
	assert.Equal(t, "inserted", result.Trace[0].Outcome)
	require.Len(t, result.State.Levels, 1)
	assert.Nil(t, result.State.Cursor)
}

func TestRun_BackfillOverrideAndUpToDate(t *testing.T) {
	scenario := &Scenario{
		Name:    "override",
		PassIDs: []string{"a", "b"},
		Sync:    SyncSetup{StartBlock: 50, BatchSize: 4, Resume: true},
		Chain: ChainSetup{
			Height: 10,
			Levels: []LevelState{{LevelID: 1}},
			Events: []ChainEvent{{Kind: "LevelCreated", Block: 2, Tx: "0x01", LevelID: 1}},
		},
		Steps: []Step{
			{Action: StepBackfill},
			{Action: StepBackfill, From: int64Ptr(1)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.Len(t, result.Trace, 3)

	assert.Equal(t, TracePass, result.Trace[0].Type)
	assert.Equal(t, "a", result.Trace[0].PassID)
	assert.Equal(t, "up_to_date", result.Trace[0].Status)

	assert.Equal(t, TraceApply, result.Trace[1].Type)
	assert.Equal(t, "b", result.Trace[2].PassID)
	assert.Equal(t, "completed", result.Trace[2].Status)
	assert.Equal(t, 3, result.Trace[2].Batches)

	require.NotNil(t, result.State.Cursor)
	assert.Equal(t, uint64(10), *result.State.Cursor)
}

func TestRun_FailingAssertionsMarkResult(t *testing.T) {
	scenario := &Scenario{
		Name:  "failing",
		Steps: []Step{{Action: StepBackfill}},
		Assertions: []Assertion{
			{Type: AssertLevel, LevelID: 1, Expect: map[string]interface{}{"size": 3}},
			{Type: AssertCursor, Block: uint64Ptr(5)},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Expected: level 1")
	assert.Contains(t, result.Errors[1], "Actual: none")
}

func TestRun_RepeatDelivery(t *testing.T) {
	scenario := &Scenario{
		Name:  "repeat",
		Chain: ChainSetup{Levels: []LevelState{{LevelID: 2}}},
		Steps: []Step{
			{Action: StepDeliver, Event: &ChainEvent{Kind: "LevelCreated", Block: 1, Tx: "0x01", LevelID: 2}},
			{Action: StepDeliver, Repeat: 3, Event: &ChainEvent{Kind: "LevelSolved", Block: 2, Tx: "0x02", LevelID: 2}},
		},
		Assertions: []Assertion{
			{Type: AssertLevel, LevelID: 2, Expect: map[string]interface{}{"completion_count": 1}},
			{Type: AssertOutcomeCount, Outcome: "duplicate", Count: 2},
			{Type: AssertSolveCount, Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Len(t, result.Trace, 4)
}
