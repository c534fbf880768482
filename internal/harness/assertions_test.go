package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yibigame/levelindexer/internal/domain"
)

func sampleResult() *Result {
	cursor := uint64(30)
	r := NewResult()
	r.Trace = []TraceEvent{
		{Seq: 1, Type: TraceApply, Origin: domain.OriginBackfill, Kind: domain.KindLevelCreated, LevelID: 1, Block: 5, Tx: "0x01", Outcome: "inserted"},
		{Seq: 2, Type: TraceApply, Origin: domain.OriginRealtime, Kind: domain.KindLevelSolved, LevelID: 1, Block: 40, Tx: "0x02", Outcome: "duplicate"},
	}
	r.State = State{
		Levels: []domain.LevelRecord{{
			LevelID: 1, Name: "one", Size: 4, Creator: "0xc1", OriginTx: "0x01",
			Hints: []domain.Hint{{Value: 1}}, HintCount: 1, CompletionCount: 2,
			CreatedAt: time.Date(2025, 1, 1, 0, 1, 0, 0, time.UTC),
		}},
		Solves: []domain.SolveRecord{{LevelID: 1}, {LevelID: 1}, {LevelID: 8}},
		Cursor: &cursor,
	}
	return r
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	block := uint64(30)
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertLevel, LevelID: 1, Expect: map[string]interface{}{
			"name": "one", "size": 4, "hints": 1, "completion_count": 2, "created_at": "2025-01-01T00:01:00Z",
		}},
		{Type: AssertLevelAbsent, LevelID: 8},
		{Type: AssertSolveCount, LevelID: 1, Count: 2},
		{Type: AssertSolveCount, Count: 3},
		{Type: AssertLevelCount, Count: 1},
		{Type: AssertCursor, Block: &block},
		{Type: AssertOutcomeCount, Outcome: "duplicate", Count: 1},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{"level field", Assertion{Type: AssertLevel, LevelID: 1, Expect: map[string]interface{}{"size": 9}}, "Actual: size=4"},
		{"level missing", Assertion{Type: AssertLevel, LevelID: 2, Expect: map[string]interface{}{"size": 9}}, "Actual: not found"},
		{"level present", Assertion{Type: AssertLevelAbsent, LevelID: 1}, "Actual: level exists"},
		{"solve count", Assertion{Type: AssertSolveCount, LevelID: 8, Count: 2}, "Actual: count 1"},
		{"cursor unset expected", Assertion{Type: AssertCursor}, "Expected: none"},
		{"outcome", Assertion{Type: AssertOutcomeCount, Outcome: "orphaned", Count: 1}, "Assertion failed: outcome_count orphaned"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion})
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.want)
			assert.Contains(t, errs[0], "Full trace:")
		})
	}
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{Type: "cursor", Expected: "1", Actual: "2", Trace: sampleResult().Trace}
	msg := err.Error()
	assert.Contains(t, msg, "[1] backfill LevelCreated level=1 block=5 tx=0x01 -> inserted")
	assert.Contains(t, msg, "[2] realtime LevelSolved level=1 block=40 tx=0x02 -> duplicate")
}
