// Package store provides the persistent replica of levels and solve records.
//
// Two backends implement Backend:
//   - Store: SQLite, the default for single-node deployments and tests
//   - PostgresStore: Postgres via pgx, selected by a postgres:// DSN
//
// # Idempotency
//
// Every write the projector issues is safe under duplicate, concurrent
// delivery:
//
//   - levels.level_id is the primary key; InsertLevel uses
//     ON CONFLICT(level_id) DO NOTHING and reports whether a row was inserted
//   - solve_records has UNIQUE(level_id, tx_hash); InsertSolve does the same
//   - IncrementCompletions is a single UPDATE that touches zero rows when the
//     level is unknown
//
// No check-then-insert window exists at this boundary: the uniqueness
// constraint decides which of two racing inserts wins.
//
// # Cursor
//
// sync_state holds a single row with the last block the backfill pass has
// durably applied.
//
// # SQLite configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - a single open connection, so realtime and backfill writes serialize
package store
