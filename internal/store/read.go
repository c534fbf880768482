package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/yibigame/levelindexer/internal/domain"
)

const levelColumns = `level_id, name, size, creator, tx_hash, hints, hint_count, completion_count, created_at`

// FindLevel retrieves a single level by id.
func (s *Store) FindLevel(ctx context.Context, levelID uint64) (domain.LevelRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+levelColumns+`
		FROM levels
		WHERE level_id = ?
	`, int64(levelID))

	rec, err := scanLevel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LevelRecord{}, false, nil
	}
	if err != nil {
		return domain.LevelRecord{}, false, err
	}
	return rec, true, nil
}

// levelOrderColumns whitelists sortable columns; user input never reaches SQL.
var levelOrderColumns = map[domain.LevelSort]string{
	domain.SortLevelID:         "level_id",
	domain.SortCreatedAt:       "created_at",
	domain.SortCompletionCount: "completion_count",
	domain.SortSize:            "size",
}

// ListLevels returns levels matching f.
// Ties are broken by level_id so paging is stable.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListLevels(ctx context.Context, f domain.LevelFilter) ([]domain.LevelRecord, error) {
	var (
		q    strings.Builder
		args []any
	)
	q.WriteString("SELECT " + levelColumns + " FROM levels")
	if f.Creator != "" {
		q.WriteString(" WHERE creator = ?")
		args = append(args, domain.NormalizeAddress(f.Creator))
	}
	q.WriteString(" ORDER BY " + orderClause(f.Sort, f.Descending))
	q.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, sqliteLimit(f.Limit), f.Offset)

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query levels: %w", err)
	}
	defer rows.Close()

	levels := []domain.LevelRecord{}
	for rows.Next() {
		rec, err := scanLevel(rows)
		if err != nil {
			return nil, err
		}
		levels = append(levels, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate levels: %w", err)
	}
	return levels, nil
}

// ListSolves returns solve records matching f ordered by id.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListSolves(ctx context.Context, f domain.SolveFilter) ([]domain.SolveRecord, error) {
	var (
		q     strings.Builder
		args  []any
		conds []string
	)
	q.WriteString("SELECT id, level_id, solver_address, tx_hash, timestamp FROM solve_records")
	if f.Solver != "" {
		conds = append(conds, "solver_address = ?")
		args = append(args, domain.NormalizeAddress(f.Solver))
	}
	if f.LevelID != nil {
		conds = append(conds, "level_id = ?")
		args = append(args, int64(*f.LevelID))
	}
	if len(conds) > 0 {
		q.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	q.WriteString(" ORDER BY id ASC LIMIT ? OFFSET ?")
	args = append(args, sqliteLimit(f.Limit), f.Offset)

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query solves: %w", err)
	}
	defer rows.Close()

	solves := []domain.SolveRecord{}
	for rows.Next() {
		var (
			rec     domain.SolveRecord
			levelID int64
			ts      int64
		)
		if err := rows.Scan(&rec.ID, &levelID, &rec.Solver, &rec.TxRef, &ts); err != nil {
			return nil, fmt.Errorf("scan solve: %w", err)
		}
		rec.LevelID = uint64(levelID)
		rec.Timestamp = fromMillis(ts)
		solves = append(solves, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate solves: %w", err)
	}
	return solves, nil
}

// Cursor returns the persisted last synced block.
func (s *Store) Cursor(ctx context.Context) (uint64, bool, error) {
	var block int64
	err := s.db.QueryRowContext(ctx, `SELECT last_synced_block FROM sync_state WHERE id = 1`).Scan(&block)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read cursor: %w", err)
	}
	return uint64(block), true, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLevel(row rowScanner) (domain.LevelRecord, error) {
	var (
		rec       domain.LevelRecord
		levelID   int64
		hintsJSON string
		createdAt int64
	)
	err := row.Scan(
		&levelID,
		&rec.Name,
		&rec.Size,
		&rec.Creator,
		&rec.OriginTx,
		&hintsJSON,
		&rec.HintCount,
		&rec.CompletionCount,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan level: %w", err)
	}

	rec.LevelID = uint64(levelID)
	rec.CreatedAt = fromMillis(createdAt)
	rec.Hints, err = unmarshalHints(hintsJSON)
	if err != nil {
		return rec, err
	}
	return rec, nil
}

func orderClause(sort domain.LevelSort, desc bool) string {
	col, ok := levelOrderColumns[sort]
	if !ok {
		col = "level_id"
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	if col == "level_id" {
		return col + " " + dir
	}
	return col + " " + dir + ", level_id ASC"
}

// sqliteLimit maps "no limit" (<= 0) onto SQLite's LIMIT -1.
func sqliteLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
