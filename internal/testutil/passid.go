package testutil

import "sync"

// FixedPassIDs returns predetermined backfill pass ids in order.
//
// This enables golden comparison of pass logs and results. Once the list is
// exhausted the last id is repeated. With no ids it always returns
// "test-pass-default".
//
// Implements syncer.PassIDGenerator.
//
// Thread-safety: FixedPassIDs is safe for concurrent use via internal mutex.
type FixedPassIDs struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedPassIDs creates a generator over ids.
func NewFixedPassIDs(ids ...string) *FixedPassIDs {
	if len(ids) == 0 {
		ids = []string{"test-pass-default"}
	}
	return &FixedPassIDs{ids: ids}
}

// Generate returns the next id.
func (g *FixedPassIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.ids[g.idx]
	if g.idx < len(g.ids)-1 {
		g.idx++
	}
	return id
}
