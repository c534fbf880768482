package store

import (
	"context"
	"fmt"
	"time"

	"github.com/yibigame/levelindexer/internal/domain"
)

// InsertLevel inserts a level record.
// Uses ON CONFLICT(level_id) DO NOTHING - a duplicate id is reported as
// inserted=false, not as an error.
func (s *Store) InsertLevel(ctx context.Context, rec domain.LevelRecord) (bool, error) {
	hintsJSON, err := marshalHints(rec.Hints)
	if err != nil {
		return false, fmt.Errorf("insert level: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO levels
		(level_id, name, size, creator, tx_hash, hints, hint_count, completion_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(level_id) DO NOTHING
	`,
		int64(rec.LevelID),
		rec.Name,
		rec.Size,
		rec.Creator,
		rec.OriginTx,
		hintsJSON,
		rec.HintCount,
		rec.CompletionCount,
		toMillis(rec.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert level: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert level: rows affected: %w", err)
	}
	return n > 0, nil
}

// InsertSolve inserts a solve record.
// Uses ON CONFLICT(level_id, tx_hash) DO NOTHING so a redelivered completion
// event does not produce a second record.
func (s *Store) InsertSolve(ctx context.Context, rec domain.SolveRecord) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO solve_records
		(level_id, solver_address, tx_hash, timestamp)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(level_id, tx_hash) DO NOTHING
	`,
		int64(rec.LevelID),
		rec.Solver,
		rec.TxRef,
		toMillis(rec.Timestamp),
	)
	if err != nil {
		return false, fmt.Errorf("insert solve: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert solve: rows affected: %w", err)
	}
	return n > 0, nil
}

// IncrementCompletions adds one to a level's completion count.
// Returns false if no level with that id exists.
func (s *Store) IncrementCompletions(ctx context.Context, levelID uint64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE levels SET completion_count = completion_count + 1
		WHERE level_id = ?
	`, int64(levelID))
	if err != nil {
		return false, fmt.Errorf("increment completions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("increment completions: rows affected: %w", err)
	}
	return n > 0, nil
}

// SetCursor records the last block applied by the backfill pass.
func (s *Store) SetCursor(ctx context.Context, block uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (id, last_synced_block, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_synced_block = excluded.last_synced_block,
			updated_at = excluded.updated_at
	`, int64(block), toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}
