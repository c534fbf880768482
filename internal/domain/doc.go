// Package domain defines the canonical types shared by every layer of the
// level indexer.
//
// Two families of types live here:
//
//   - Canonical events (Event, Created, Solved): the transport-independent
//     representation of a LevelCreated or LevelSolved occurrence after the
//     chain package has normalized a log. Downstream code assumes exactly this
//     shape regardless of which path (backfill or realtime) delivered it.
//   - Replica records (LevelRecord, SolveRecord): the rows materialized by the
//     projector into the persistent store.
//
// Natural keys: a LevelRecord is identified by LevelID; a SolveRecord by
// (LevelID, TxRef). The store enforces both as uniqueness constraints.
package domain
