// Package harness runs end-to-end synchronization scenarios.
//
// A scenario describes a chain (historical events, contract level state and
// head height), the sync configuration, and an ordered list of steps that
// drive the two synchronization paths against a fresh in-memory store.
// Every projection is recorded in a trace; the trace and the final replica
// state are rendered as a deterministic text snapshot for golden comparison.
//
// # Scenario Format
//
//	name: backfill_then_realtime
//	description: "Creation found by backfill, completion by realtime"
//	sync:
//	  start_block: 100
//	  batch_size: 10
//	chain:
//	  height: 125
//	  levels:
//	    - { level_id: 7, hints: 3 }
//	  events:
//	    - { kind: LevelCreated, block: 105, tx: "0x01", level_id: 7, size: 4, hint_count: 3 }
//	steps:
//	  - action: backfill
//	  - action: deliver
//	    event: { kind: LevelSolved, block: 130, tx: "0x02", level_id: 7 }
//	assertions:
//	  - type: level
//	    level_id: 7
//	    expect: { completion_count: 1 }
//
// # Steps
//
//   - backfill: run one pass; "from" overrides the configured start block
//   - deliver: push "event" through the realtime path, "repeat" times
//   - set_height: move the chain head to "height"
//   - fail_block_time / restore_block_time: toggle block time lookups
//   - fail_queries: fail range queries whose first block is >= "from"
//   - restore_queries: clear query failures
//
// # Assertion Types
//
//   - level: the level exists and its fields match "expect"
//   - level_absent: no level with "level_id" exists
//   - solve_count: "count" solve records exist for "level_id" (all levels if 0)
//   - level_count: "count" levels exist
//   - cursor: the persisted cursor equals "block"
//   - outcome_count: "count" projections ended with "outcome"
//
// # Determinism
//
// Block n is timestamped testutil.BlockTime(n); processing-time fallbacks come
// from a testutil.DeterministicClock; pass ids from testutil.FixedPassIDs.
// The realtime subscriptions are armed before the first step, as the service
// does at startup.
package harness
