package harness

import (
	"github.com/yibigame/levelindexer/internal/domain"
)

// Trace event types.
const (
	TraceApply = "apply"
	TracePass  = "pass"
)

// TraceEvent is one entry in a scenario trace: either an event handed to the
// projector or a finished backfill pass.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`

	// Apply fields.
	Origin  domain.Origin `json:"origin,omitempty"`
	Kind    domain.Kind   `json:"kind,omitempty"`
	LevelID uint64        `json:"level_id,omitempty"`
	Block   uint64        `json:"block,omitempty"`
	Tx      string        `json:"tx,omitempty"`
	Outcome string        `json:"outcome,omitempty"`

	// Pass fields.
	PassID          string `json:"pass_id,omitempty"`
	Status          string `json:"status,omitempty"`
	Start           uint64 `json:"start,omitempty"`
	Height          uint64 `json:"height,omitempty"`
	Batches         int    `json:"batches,omitempty"`
	Events          int    `json:"events,omitempty"`
	LastSyncedBlock uint64 `json:"last_synced_block,omitempty"`

	// Error is the failure reported by the projector or the pass, if any.
	Error string `json:"error,omitempty"`
}

// State is the replica contents after the last step.
type State struct {
	Levels []domain.LevelRecord `json:"levels"`
	Solves []domain.SolveRecord `json:"solves"`
	// Cursor is nil when no batch was ever committed.
	Cursor *uint64 `json:"cursor,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every assertion holds.
	Pass bool `json:"pass"`

	// Trace contains every projection and pass in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final replica contents.
	State State `json:"state"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// OutcomeCount returns how many projections in the trace ended with outcome.
func (r *Result) OutcomeCount(outcome string) int {
	n := 0
	for _, ev := range r.Trace {
		if ev.Type == TraceApply && ev.Outcome == outcome {
			n++
		}
	}
	return n
}
