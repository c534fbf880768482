package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yibigame/levelindexer/internal/chain"
	"github.com/yibigame/levelindexer/internal/domain"
)

// GenesisTime is the timestamp of block 0 on a ChainSource. Block n is
// mined at GenesisTime + n*BlockInterval.
var GenesisTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// BlockInterval is the spacing between ChainSource blocks.
const BlockInterval = 12 * time.Second

// ErrLevelNotFound is returned by ReadLevel for a level never registered.
var ErrLevelNotFound = errors.New("level not found")

// QueryCall records one QueryRange invocation.
type QueryCall struct {
	Kind domain.Kind
	From uint64
	To   uint64
}

// ChainSource is an in-memory chain.Source.
//
// Events added with Add are returned by QueryRange; Emit delivers an event to
// the subscribed handlers synchronously, as the push transport would.
//
// Thread-safety: All methods are safe for concurrent use.
type ChainSource struct {
	mu       sync.Mutex
	height   uint64
	events   []domain.Event
	levels   map[uint64]domain.LevelDetail
	handlers map[domain.Kind][]chain.Handler
	queries  []QueryCall

	// QueryErr, when set, is consulted before every QueryRange; a non-nil
	// result fails the call.
	QueryErr func(kind domain.Kind, from, to uint64) error
	// BlockTimeErr fails every BlockTime call when set.
	BlockTimeErr error
	// HeightErr fails CurrentHeight when set.
	HeightErr error
	// SubscribeErr, when set, is consulted before every Subscribe; a non-nil
	// result fails the call without registering the handler.
	SubscribeErr func(kind domain.Kind) error
	// Disconnected forces Connected to report false.
	Disconnected bool
}

var _ chain.Source = (*ChainSource)(nil)

// NewChainSource creates a chain at the given height.
func NewChainSource(height uint64) *ChainSource {
	return &ChainSource{
		height:   height,
		levels:   make(map[uint64]domain.LevelDetail),
		handlers: make(map[domain.Kind][]chain.Handler),
	}
}

// SetHeight moves the chain head.
func (c *ChainSource) SetHeight(h uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height = h
}

// Add records historical events. Events are kept ordered by block and log
// index.
func (c *ChainSource) Add(events ...domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, events...)
	sort.SliceStable(c.events, func(i, j int) bool {
		a, b := c.events[i].Meta, c.events[j].Meta
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		return a.LogIndex < b.LogIndex
	})
}

// AddLevel registers the structure returned by ReadLevel.
func (c *ChainSource) AddLevel(detail domain.LevelDetail) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.levels[detail.LevelID] = detail
}

// Queries returns the QueryRange calls made so far.
func (c *ChainSource) Queries() []QueryCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]QueryCall(nil), c.queries...)
}

// Emit delivers ev to every handler subscribed to its kind and returns the
// number of handlers invoked.
func (c *ChainSource) Emit(ctx context.Context, ev domain.Event) int {
	c.mu.Lock()
	handlers := append([]chain.Handler(nil), c.handlers[ev.Kind]...)
	c.mu.Unlock()

	ev = ev.WithOrigin(domain.OriginRealtime)
	for _, h := range handlers {
		h(ctx, ev)
	}
	return len(handlers)
}

// Subscriptions returns the number of handlers registered for kind.
func (c *ChainSource) Subscriptions(kind domain.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[kind])
}

func (c *ChainSource) QueryRange(ctx context.Context, kind domain.Kind, from, to uint64) ([]domain.Event, error) {
	c.mu.Lock()
	c.queries = append(c.queries, QueryCall{Kind: kind, From: from, To: to})
	queryErr := c.QueryErr
	c.mu.Unlock()

	if queryErr != nil {
		if err := queryErr(kind, from, to); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Event
	for _, ev := range c.events {
		if ev.Kind != kind || ev.Meta.BlockNumber < from || ev.Meta.BlockNumber > to {
			continue
		}
		out = append(out, ev.WithOrigin(domain.OriginBackfill))
	}
	return out, nil
}

func (c *ChainSource) CurrentHeight(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.HeightErr != nil {
		return 0, c.HeightErr
	}
	return c.height, nil
}

func (c *ChainSource) Subscribe(ctx context.Context, kind domain.Kind, handler chain.Handler) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %s", chain.ErrUnknownKind, kind)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubscribeErr != nil {
		if err := c.SubscribeErr(kind); err != nil {
			return err
		}
	}
	c.handlers[kind] = append(c.handlers[kind], handler)
	return nil
}

func (c *ChainSource) BlockTime(ctx context.Context, meta domain.Meta) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.BlockTimeErr != nil {
		return time.Time{}, c.BlockTimeErr
	}
	return BlockTime(meta.BlockNumber), nil
}

func (c *ChainSource) ReadLevel(ctx context.Context, levelID uint64) (domain.LevelDetail, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	detail, ok := c.levels[levelID]
	if !ok {
		return domain.LevelDetail{}, fmt.Errorf("getLevel(%d): %w", levelID, ErrLevelNotFound)
	}
	return detail, nil
}

// Connected reports whether every event kind has a subscriber.
func (c *ChainSource) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Disconnected {
		return false
	}
	for _, kind := range domain.Kinds {
		if len(c.handlers[kind]) == 0 {
			return false
		}
	}
	return true
}

// BlockTime returns the timestamp of block n on a ChainSource.
func BlockTime(n uint64) time.Time {
	return GenesisTime.Add(time.Duration(n) * BlockInterval)
}
