package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/yibigame/levelindexer/internal/domain"
	"github.com/yibigame/levelindexer/internal/projector"
	"github.com/yibigame/levelindexer/internal/realtime"
	"github.com/yibigame/levelindexer/internal/store"
	"github.com/yibigame/levelindexer/internal/syncer"
	"github.com/yibigame/levelindexer/internal/testutil"
)

// FallbackEpoch is the first processing time handed out when a block time
// cannot be resolved. Each fallback advances it by one second.
var FallbackEpoch = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

// errBlockTimeUnavailable is injected by fail_block_time.
var errBlockTimeUnavailable = errors.New("block time unavailable")

// errQueryFailed is injected by fail_queries.
var errQueryFailed = errors.New("query failed")

// Harness is the scenario execution engine.
// It wires both synchronization paths over an in-memory chain and store
// with a deterministic clock and pass ids.
type Harness struct {
	store    *store.Store
	chain    *testutil.ChainSource
	syncer   *syncer.Coordinator
	recorder *recorder
	seq      *sequence
}

// sequence hands out trace positions shared by the recorder and the passes.
type sequence struct {
	mu sync.Mutex
	n  int64
}

func (s *sequence) next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return s.n
}

// recorder wraps the projector and traces every application.
type recorder struct {
	next *projector.Projector
	seq  *sequence

	mu    sync.Mutex
	trace []TraceEvent
}

func (r *recorder) Apply(ctx context.Context, ev domain.Event) (projector.Outcome, error) {
	outcome, err := r.next.Apply(ctx, ev)

	te := TraceEvent{
		Type:    TraceApply,
		Origin:  ev.Meta.Origin,
		Kind:    ev.Kind,
		LevelID: ev.LevelID(),
		Block:   ev.Meta.BlockNumber,
		Tx:      ev.Meta.TxRef,
		Outcome: outcome.String(),
	}
	switch {
	case projector.IsDataError(err):
		te.Outcome = projector.OutcomeDropped.String()
		te.Error = err.Error()
	case err != nil:
		te.Outcome = "error"
		te.Error = err.Error()
	}

	r.mu.Lock()
	te.Seq = r.seq.next()
	r.trace = append(r.trace, te)
	r.mu.Unlock()
	return outcome, err
}

func (r *recorder) append(te TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	te.Seq = r.seq.next()
	r.trace = append(r.trace, te)
}

func (r *recorder) snapshot() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TraceEvent{}, r.trace...)
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory database and chain. The
// realtime subscriptions are armed before the first step. Step failures
// that the service would only log (aborted passes, rejected deliveries)
// are recorded in the trace; Run returns an error only when the scenario
// cannot be executed at all.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	src := testutil.NewChainSource(scenario.Chain.Height)
	for _, lvl := range scenario.Chain.Levels {
		src.AddLevel(domain.LevelDetail{
			LevelID: lvl.LevelID,
			Hints:   testutil.Hints(lvl.Hints),
		})
	}
	for _, e := range scenario.Chain.Events {
		src.Add(e.Event())
	}

	// Suppress logs in tests
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewDeterministicClock(FallbackEpoch, time.Second)
	seq := &sequence{}
	rec := &recorder{
		next: projector.New(st, src, logger, projector.WithClock(clock.Now)),
		seq:  seq,
	}

	h := &Harness{
		store: st,
		chain: src,
		syncer: syncer.New(src, rec, st, syncer.Config{
			StartBlock: scenario.Sync.StartBlock,
			BatchSize:  scenario.Sync.BatchSize,
			Resume:     scenario.Sync.Resume,
		}, logger,
			syncer.WithPassIDs(testutil.NewFixedPassIDs(scenario.PassIDs...)),
			syncer.WithSleep(func(context.Context, time.Duration) error { return nil }),
		),
		recorder: rec,
		seq:      seq,
	}

	ctx := context.Background()
	if err := realtime.New(src, rec, logger).Arm(ctx); err != nil {
		return nil, fmt.Errorf("failed to arm realtime path: %w", err)
	}

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}
	}

	result := NewResult()
	result.Trace = rec.snapshot()
	state, err := h.collectState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect state: %w", err)
	}
	result.State = state

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, step Step) error {
	switch step.Action {
	case StepBackfill:
		res, err := h.syncer.Run(ctx, step.From)
		te := TraceEvent{
			Type:            TracePass,
			PassID:          res.PassID,
			Status:          string(res.Status),
			Start:           res.Start,
			Height:          res.Height,
			Batches:         res.Batches,
			Events:          res.Events,
			LastSyncedBlock: res.LastSyncedBlock,
		}
		if err != nil {
			te.Error = err.Error()
		}
		h.recorder.append(te)

	case StepDeliver:
		ev := step.Event.Event()
		n := step.Repeat
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			if h.chain.Emit(ctx, ev) == 0 {
				return fmt.Errorf("no subscription for %s", ev.Kind)
			}
		}

	case StepSetHeight:
		h.chain.SetHeight(step.Height)

	case StepFailBlockTime:
		h.chain.BlockTimeErr = errBlockTimeUnavailable

	case StepRestoreBlockTime:
		h.chain.BlockTimeErr = nil

	case StepFailQueries:
		from := uint64(*step.From)
		h.chain.QueryErr = func(_ domain.Kind, start, _ uint64) error {
			if start >= from {
				return errQueryFailed
			}
			return nil
		}

	case StepRestoreQueries:
		h.chain.QueryErr = nil

	default:
		return fmt.Errorf("unknown step action %q", step.Action)
	}
	return nil
}

func (h *Harness) collectState(ctx context.Context) (State, error) {
	levels, err := h.store.ListLevels(ctx, domain.LevelFilter{Sort: domain.SortLevelID})
	if err != nil {
		return State{}, err
	}
	solves, err := h.store.ListSolves(ctx, domain.SolveFilter{})
	if err != nil {
		return State{}, err
	}
	state := State{Levels: levels, Solves: solves}

	block, ok, err := h.store.Cursor(ctx)
	if err != nil {
		return State{}, err
	}
	if ok {
		state.Cursor = &block
	}
	return state, nil
}
