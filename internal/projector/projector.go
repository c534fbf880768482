package projector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yibigame/levelindexer/internal/domain"
)

// Store is the subset of store.Backend the projector writes through.
type Store interface {
	FindLevel(ctx context.Context, levelID uint64) (domain.LevelRecord, bool, error)
	InsertLevel(ctx context.Context, rec domain.LevelRecord) (bool, error)
	InsertSolve(ctx context.Context, rec domain.SolveRecord) (bool, error)
	IncrementCompletions(ctx context.Context, levelID uint64) (bool, error)
}

// Reader is the subset of chain.Source used to enrich events.
type Reader interface {
	BlockTime(ctx context.Context, meta domain.Meta) (time.Time, error)
	ReadLevel(ctx context.Context, levelID uint64) (domain.LevelDetail, error)
}

// Outcome describes what applying one event did to the replica.
type Outcome int

const (
	// OutcomeFailed is returned with non-data errors; the replica may not
	// reflect the event.
	OutcomeFailed Outcome = iota
	// OutcomeInserted means a new record was written.
	OutcomeInserted
	// OutcomeDuplicate means the natural key was already present; nothing changed.
	OutcomeDuplicate
	// OutcomeDropped means the event was rejected as a data error.
	OutcomeDropped
	// OutcomeOrphaned means a solve was stored for a level that is not known
	// yet, so no completion was counted.
	OutcomeOrphaned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFailed:
		return "failed"
	case OutcomeInserted:
		return "inserted"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeDropped:
		return "dropped"
	case OutcomeOrphaned:
		return "orphaned"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Option configures a Projector.
type Option func(*Projector)

// WithClock replaces the processing-time source used when a block time
// cannot be resolved.
func WithClock(now func() time.Time) Option {
	return func(p *Projector) {
		p.now = now
	}
}

// Projector applies canonical events to the store. It is safe for concurrent
// use; every mutation is a single conditional statement at the store.
type Projector struct {
	store  Store
	reader Reader
	log    *slog.Logger
	now    func() time.Time
}

// New creates a projector writing to store and enriching from reader.
func New(store Store, reader Reader, logger *slog.Logger, opts ...Option) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Projector{
		store:  store,
		reader: reader,
		log:    logger.With("component", "projector"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply dispatches ev to its handler.
func (p *Projector) Apply(ctx context.Context, ev domain.Event) (Outcome, error) {
	switch ev.Kind {
	case domain.KindLevelCreated:
		return p.HandleCreated(ctx, ev)
	case domain.KindLevelSolved:
		return p.HandleSolved(ctx, ev)
	}
	return OutcomeDropped, newMalformed(ev, fmt.Sprintf("unknown kind %q", ev.Kind))
}

// HandleCreated materializes a level exactly once.
//
// The existence check only avoids the contract read for levels that are
// already known; InsertLevel is the authoritative conditional insert.
func (p *Projector) HandleCreated(ctx context.Context, ev domain.Event) (Outcome, error) {
	if ev.Created == nil {
		return OutcomeDropped, newMalformed(ev, "creation event without payload")
	}
	if ev.Meta.TxRef == "" {
		return OutcomeDropped, newMissingTxRef(ev)
	}
	c := ev.Created
	log := p.log.With("level_id", c.LevelID, "tx", ev.Meta.TxRef, "origin", ev.Meta.Origin)

	_, found, err := p.store.FindLevel(ctx, c.LevelID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("find level %d: %w", c.LevelID, err)
	}
	if found {
		log.Debug("level already materialized")
		return OutcomeDuplicate, nil
	}

	createdAt := p.blockTime(ctx, ev, log)

	detail, err := p.reader.ReadLevel(ctx, c.LevelID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("read level %d: %w", c.LevelID, err)
	}

	inserted, err := p.store.InsertLevel(ctx, domain.LevelRecord{
		LevelID:         c.LevelID,
		Name:            c.Name,
		Size:            c.Size,
		Creator:         c.Creator,
		OriginTx:        ev.Meta.TxRef,
		Hints:           detail.Hints,
		HintCount:       c.HintCount,
		CompletionCount: 0,
		CreatedAt:       createdAt,
	})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("insert level %d: %w", c.LevelID, err)
	}
	if !inserted {
		log.Debug("level inserted concurrently")
		return OutcomeDuplicate, nil
	}

	log.Info("level saved", "name", c.Name, "size", c.Size, "hints", c.HintCount)
	return OutcomeInserted, nil
}

// HandleSolved records a solve once per (level, tx) and counts it against the
// level if the level is already known. Orphaned solves are kept but not
// counted later.
func (p *Projector) HandleSolved(ctx context.Context, ev domain.Event) (Outcome, error) {
	if ev.Solved == nil {
		return OutcomeDropped, newMalformed(ev, "completion event without payload")
	}
	if ev.Meta.TxRef == "" {
		return OutcomeDropped, newMissingTxRef(ev)
	}
	s := ev.Solved
	log := p.log.With("level_id", s.LevelID, "tx", ev.Meta.TxRef, "origin", ev.Meta.Origin)

	ts := p.blockTime(ctx, ev, log)

	inserted, err := p.store.InsertSolve(ctx, domain.SolveRecord{
		LevelID:   s.LevelID,
		Solver:    s.Solver,
		TxRef:     ev.Meta.TxRef,
		Timestamp: ts,
	})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("insert solve for level %d: %w", s.LevelID, err)
	}
	if !inserted {
		log.Debug("solve already recorded")
		return OutcomeDuplicate, nil
	}

	updated, err := p.store.IncrementCompletions(ctx, s.LevelID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("increment completions for level %d: %w", s.LevelID, err)
	}
	if !updated {
		log.Warn("solve for unknown level, completion not counted", "solver", s.Solver)
		return OutcomeOrphaned, nil
	}

	log.Info("solve saved", "solver", s.Solver)
	return OutcomeInserted, nil
}

// blockTime resolves the event's block timestamp, substituting processing time
// on failure.
func (p *Projector) blockTime(ctx context.Context, ev domain.Event, log *slog.Logger) time.Time {
	ts, err := p.reader.BlockTime(ctx, ev.Meta)
	if err == nil && !ts.IsZero() {
		return ts
	}
	now := p.now()
	log.Warn("block time unavailable, using processing time", "block", ev.Meta.BlockNumber, "error", err)
	return now
}
