// Package projector turns canonical events into store mutations.
//
// The projector is the single writer of the replica and the convergence point
// of the backfill and realtime paths. Every handler is idempotent on the
// event's natural key: a creation is keyed by level id and a completion by
// (level id, transaction hash). Duplicate deliveries are reported as
// OutcomeDuplicate, never as errors.
//
// Errors fall in two groups. A *DataError means the event itself is unusable
// and was dropped; retrying cannot help. Any other error comes from the store
// or the chain and leaves the replica unchanged for that event.
package projector
