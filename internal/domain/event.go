package domain

import "fmt"

// Kind names one of the two event streams emitted by the level contract.
type Kind string

const (
	// KindLevelCreated is emitted once per created level.
	KindLevelCreated Kind = "LevelCreated"
	// KindLevelSolved is emitted once per accepted solution.
	KindLevelSolved Kind = "LevelSolved"
)

// Kinds lists the event kinds in backfill order: creations before completions.
var Kinds = []Kind{KindLevelCreated, KindLevelSolved}

// Valid reports whether k is a known event kind.
func (k Kind) Valid() bool {
	return k == KindLevelCreated || k == KindLevelSolved
}

// Origin records which synchronization path delivered an event.
type Origin string

const (
	OriginBackfill Origin = "backfill"
	OriginRealtime Origin = "realtime"
)

// Meta carries the transport-supplied references of an event.
type Meta struct {
	// TxRef is the hex transaction hash. Empty means the transport could not
	// attribute the log to a transaction.
	TxRef       string
	BlockNumber uint64
	// BlockHash is the hex block hash, empty when unknown.
	BlockHash string
	LogIndex  uint
	Origin    Origin
}

// Created is the payload of a LevelCreated event.
type Created struct {
	LevelID   uint64
	Creator   string
	Name      string
	Size      int
	HintCount int
}

// Solved is the payload of a LevelSolved event. PathLength and IsFirst are
// decoded for diagnostics only; they are not persisted.
type Solved struct {
	LevelID    uint64
	Solver     string
	PathLength uint64
	IsFirst    bool
}

// Event is the canonical event. Exactly one of Created or Solved is set,
// matching Kind.
type Event struct {
	Kind    Kind
	Meta    Meta
	Created *Created
	Solved  *Solved
}

// NewCreated builds a canonical LevelCreated event.
func NewCreated(meta Meta, c Created) Event {
	return Event{Kind: KindLevelCreated, Meta: meta, Created: &c}
}

// NewSolved builds a canonical LevelSolved event.
func NewSolved(meta Meta, s Solved) Event {
	return Event{Kind: KindLevelSolved, Meta: meta, Solved: &s}
}

// LevelID returns the level the event refers to.
func (e Event) LevelID() uint64 {
	switch {
	case e.Created != nil:
		return e.Created.LevelID
	case e.Solved != nil:
		return e.Solved.LevelID
	}
	return 0
}

// WithOrigin returns a copy of e stamped with origin o.
func (e Event) WithOrigin(o Origin) Event {
	e.Meta.Origin = o
	return e
}

func (e Event) String() string {
	return fmt.Sprintf("%s(level=%d tx=%s block=%d)", e.Kind, e.LevelID(), e.Meta.TxRef, e.Meta.BlockNumber)
}
