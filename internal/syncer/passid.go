package syncer

import "github.com/google/uuid"

// PassIDGenerator generates correlation ids for backfill passes.
// Implemented by UUIDv7Generator (production) and testutil.FixedPassIDs.
type PassIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 pass ids, so log lines from
// successive passes sort in the order the passes started.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
