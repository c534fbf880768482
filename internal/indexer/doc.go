// Package indexer owns the synchronization collaborators for the lifetime of
// the process.
//
// A Service is constructed once at startup and passed to whatever needs it.
// Start arms the realtime subscriptions and only then runs one backfill pass,
// so events produced above the pass's captured height are already being
// delivered. Run additionally serves the health, status and metrics endpoints
// until its context ends.
package indexer
