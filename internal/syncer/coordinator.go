package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/yibigame/levelindexer/internal/domain"
	"github.com/yibigame/levelindexer/internal/projector"
)

// DefaultBatchSize replaces a zero Config.BatchSize in New. DefaultBatchDelay
// is only a default for configuration; New keeps a zero delay.
const (
	DefaultBatchSize  = 10
	DefaultBatchDelay = 200 * time.Millisecond
)

// Source is the bounded-query half of chain.Source.
type Source interface {
	QueryRange(ctx context.Context, kind domain.Kind, from, to uint64) ([]domain.Event, error)
	CurrentHeight(ctx context.Context) (uint64, error)
}

// Applier applies one canonical event. *projector.Projector implements it.
type Applier interface {
	Apply(ctx context.Context, ev domain.Event) (projector.Outcome, error)
}

// CursorStore persists the last synced block.
type CursorStore interface {
	Cursor(ctx context.Context) (uint64, bool, error)
	SetCursor(ctx context.Context, block uint64) error
}

// Config controls a backfill pass.
type Config struct {
	// StartBlock is the first block of the pass. Zero or negative skips
	// backfill entirely.
	StartBlock int64
	// BatchSize is the width W of each batch in blocks.
	BatchSize uint64
	// BatchDelay is the fixed pause between batches. Zero disables it;
	// DefaultBatchDelay is the deployment default.
	BatchDelay time.Duration
	// Resume starts the pass after the persisted cursor when that is later
	// than StartBlock.
	Resume bool
}

// Status summarizes how a pass ended.
type Status string

const (
	StatusCompleted      Status = "completed"
	StatusAborted        Status = "aborted"
	StatusSkipped        Status = "skipped"
	StatusUpToDate       Status = "up_to_date"
	StatusAlreadyRunning Status = "already_running"
)

// Result reports what a pass did.
type Result struct {
	PassID  string
	Status  Status
	Start   uint64
	Height  uint64
	Batches int
	Events  int
	// Applied counts events that changed the replica; Duplicates, Orphaned
	// and Dropped count the rest.
	Applied    int
	Duplicates int
	Orphaned   int
	Dropped    int
	// LastSyncedBlock is the cursor after the last committed batch, zero if
	// no batch was committed.
	LastSyncedBlock uint64
}

// Coordinator drives backfill passes. One Coordinator is shared by every
// caller in the process; at most one pass runs at a time.
type Coordinator struct {
	source  Source
	applier Applier
	cursor  CursorStore
	cfg     Config
	ids     PassIDGenerator
	log     *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error

	running atomic.Bool
	// last holds the last synced block plus one; zero means none.
	last atomic.Uint64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPassIDs replaces the pass id generator.
func WithPassIDs(g PassIDGenerator) Option {
	return func(c *Coordinator) {
		c.ids = g
	}
}

// WithSleep replaces the inter-batch wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Coordinator) {
		c.sleep = sleep
	}
}

// New creates a coordinator.
func New(source Source, applier Applier, cursor CursorStore, cfg Config, logger *slog.Logger, opts ...Option) *Coordinator {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		source:  source,
		applier: applier,
		cursor:  cursor,
		cfg:     cfg,
		ids:     UUIDv7Generator{},
		log:     logger.With("component", "syncer"),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Syncing reports whether a pass is in flight.
func (c *Coordinator) Syncing() bool {
	return c.running.Load()
}

// LastSyncedBlock returns the cursor committed by this process, if any.
func (c *Coordinator) LastSyncedBlock() (uint64, bool) {
	v := c.last.Load()
	if v == 0 {
		return 0, false
	}
	return v - 1, true
}

func (c *Coordinator) setLast(block uint64) {
	c.last.Store(block + 1)
}

// Run executes one backfill pass. startOverride, when non-nil, replaces the
// configured start block and disables resume.
//
// A concurrent call returns immediately with StatusAlreadyRunning. A query,
// projection or cursor failure aborts the rest of the pass and is returned
// together with the partial Result. Data errors drop the offending event and
// the pass continues.
func (c *Coordinator) Run(ctx context.Context, startOverride *int64) (Result, error) {
	if !c.running.CompareAndSwap(false, true) {
		c.log.Debug("backfill already running")
		return Result{Status: StatusAlreadyRunning}, nil
	}
	defer c.running.Store(false)

	res := Result{PassID: c.ids.Generate()}
	log := c.log.With("pass_id", res.PassID)

	start := c.cfg.StartBlock
	if startOverride != nil {
		start = *startOverride
	}
	if start <= 0 {
		log.Warn("start block not configured or <= 0, skipping backfill")
		res.Status = StatusSkipped
		return res, nil
	}
	res.Start = uint64(start)

	if c.cfg.Resume && startOverride == nil {
		block, ok, err := c.cursor.Cursor(ctx)
		if err != nil {
			res.Status = StatusAborted
			return res, fmt.Errorf("read cursor: %w", err)
		}
		if ok {
			c.setLast(block)
			if block+1 > res.Start {
				log.Info("resuming after persisted cursor", "cursor", block)
				res.Start = block + 1
			}
		}
	}

	height, err := c.source.CurrentHeight(ctx)
	if err != nil {
		res.Status = StatusAborted
		return res, fmt.Errorf("capture height: %w", err)
	}
	res.Height = height

	batches := Batches(res.Start, height, c.cfg.BatchSize)
	if len(batches) == 0 {
		log.Info("nothing to backfill", "start", res.Start, "height", height)
		res.Status = StatusUpToDate
		return res, nil
	}
	log.Info("backfill plan", "from", res.Start, "to", height, "batch_size", c.cfg.BatchSize, "batches", len(batches))

	for i, r := range batches {
		if err := c.runBatch(ctx, log, r, &res); err != nil {
			res.Status = StatusAborted
			log.Error("backfill aborted", "from", r.From, "to", r.To, "error", err)
			return res, err
		}
		if i < len(batches)-1 {
			if err := c.sleep(ctx, c.cfg.BatchDelay); err != nil {
				res.Status = StatusAborted
				return res, err
			}
		}
	}

	res.Status = StatusCompleted
	log.Info("backfill complete", "last_synced_block", res.LastSyncedBlock, "events", res.Events,
		"applied", res.Applied, "duplicates", res.Duplicates, "orphaned", res.Orphaned, "dropped", res.Dropped)
	return res, nil
}

// runBatch applies creations then completions in r and commits the cursor.
func (c *Coordinator) runBatch(ctx context.Context, log *slog.Logger, r Range, res *Result) error {
	counts := make(map[domain.Kind]int, len(domain.Kinds))
	for _, kind := range domain.Kinds {
		events, err := c.source.QueryRange(ctx, kind, r.From, r.To)
		if err != nil {
			return fmt.Errorf("query %s %s: %w", kind, r, err)
		}
		counts[kind] = len(events)

		for _, ev := range events {
			outcome, err := c.applier.Apply(ctx, ev)
			if err != nil {
				if projector.IsDataError(err) {
					log.Warn("dropping event", "kind", ev.Kind, "block", ev.Meta.BlockNumber, "error", err)
					res.Events++
					res.Dropped++
					continue
				}
				return fmt.Errorf("apply %s: %w", ev, err)
			}
			res.Events++
			switch outcome {
			case projector.OutcomeInserted:
				res.Applied++
			case projector.OutcomeDuplicate:
				res.Duplicates++
			case projector.OutcomeOrphaned:
				res.Orphaned++
			}
		}
	}

	if err := c.cursor.SetCursor(ctx, r.To); err != nil {
		return fmt.Errorf("commit cursor %d: %w", r.To, err)
	}
	c.setLast(r.To)
	res.LastSyncedBlock = r.To
	res.Batches++

	log.Info("processed batch", "from", r.From, "to", r.To,
		"created", counts[domain.KindLevelCreated], "solved", counts[domain.KindLevelSolved])
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
