// Package syncer runs the historical backfill pass.
//
// A pass captures the chain height once, partitions [start, height] into
// fixed-width batches and, for each batch, applies creation events before
// completion events. The persisted cursor advances after every batch, so an
// aborted pass keeps the batches it already applied. Blocks above the
// captured height are left to the realtime path.
package syncer
