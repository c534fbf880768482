package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yibigame/levelindexer/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS levels (
	level_id         BIGINT PRIMARY KEY,
	name             TEXT        NOT NULL,
	size             INTEGER     NOT NULL,
	creator          TEXT        NOT NULL,
	tx_hash          TEXT        NOT NULL,
	hints            JSONB       NOT NULL,
	hint_count       INTEGER     NOT NULL DEFAULT 0,
	completion_count BIGINT      NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_levels_creator ON levels(creator);
CREATE INDEX IF NOT EXISTS idx_levels_created_at ON levels(created_at);
CREATE INDEX IF NOT EXISTS idx_levels_completion_count ON levels(completion_count);

CREATE TABLE IF NOT EXISTS solve_records (
	id             BIGSERIAL PRIMARY KEY,
	level_id       BIGINT      NOT NULL,
	solver_address TEXT        NOT NULL,
	tx_hash        TEXT        NOT NULL,
	timestamp      TIMESTAMPTZ NOT NULL,
	UNIQUE (level_id, tx_hash)
);
CREATE INDEX IF NOT EXISTS idx_solve_records_level_id ON solve_records(level_id);
CREATE INDEX IF NOT EXISTS idx_solve_records_solver ON solve_records(solver_address);

CREATE TABLE IF NOT EXISTS sync_state (
	id                INTEGER PRIMARY KEY CHECK (id = 1),
	last_synced_block BIGINT      NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// PostgresStore is the Postgres backend.
// Idempotency relies on the same uniqueness constraints as the SQLite schema.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to connStr, verifies the connection and creates the
// schema if needed.
func OpenPostgres(ctx context.Context, connStr string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func (p *PostgresStore) FindLevel(ctx context.Context, levelID uint64) (domain.LevelRecord, bool, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+levelColumns+` FROM levels WHERE level_id = $1
	`, int64(levelID))

	rec, err := scanPgLevel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LevelRecord{}, false, nil
	}
	if err != nil {
		return domain.LevelRecord{}, false, err
	}
	return rec, true, nil
}

func (p *PostgresStore) InsertLevel(ctx context.Context, rec domain.LevelRecord) (bool, error) {
	hintsJSON, err := marshalHints(rec.Hints)
	if err != nil {
		return false, fmt.Errorf("insert level: %w", err)
	}
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO levels
		(level_id, name, size, creator, tx_hash, hints, hint_count, completion_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9)
		ON CONFLICT (level_id) DO NOTHING
	`,
		int64(rec.LevelID), rec.Name, rec.Size, rec.Creator, rec.OriginTx,
		hintsJSON, rec.HintCount, rec.CompletionCount, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert level: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *PostgresStore) InsertSolve(ctx context.Context, rec domain.SolveRecord) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO solve_records (level_id, solver_address, tx_hash, timestamp)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (level_id, tx_hash) DO NOTHING
	`, int64(rec.LevelID), rec.Solver, rec.TxRef, rec.Timestamp.UTC())
	if err != nil {
		return false, fmt.Errorf("insert solve: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *PostgresStore) IncrementCompletions(ctx context.Context, levelID uint64) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE levels SET completion_count = completion_count + 1 WHERE level_id = $1
	`, int64(levelID))
	if err != nil {
		return false, fmt.Errorf("increment completions: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *PostgresStore) ListLevels(ctx context.Context, f domain.LevelFilter) ([]domain.LevelRecord, error) {
	var (
		q    strings.Builder
		args []any
	)
	q.WriteString("SELECT " + levelColumns + " FROM levels")
	if f.Creator != "" {
		args = append(args, domain.NormalizeAddress(f.Creator))
		fmt.Fprintf(&q, " WHERE creator = $%d", len(args))
	}
	q.WriteString(" ORDER BY " + orderClause(f.Sort, f.Descending))
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&q, " LIMIT $%d", len(args))
	}
	args = append(args, f.Offset)
	fmt.Fprintf(&q, " OFFSET $%d", len(args))

	rows, err := p.pool.Query(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query levels: %w", err)
	}
	defer rows.Close()

	levels := []domain.LevelRecord{}
	for rows.Next() {
		rec, err := scanPgLevel(rows)
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

func (p *PostgresStore) ListSolves(ctx context.Context, f domain.SolveFilter) ([]domain.SolveRecord, error) {
	var (
		q     strings.Builder
		args  []any
		conds []string
	)
	q.WriteString("SELECT id, level_id, solver_address, tx_hash, timestamp FROM solve_records")
	if f.Solver != "" {
		args = append(args, domain.NormalizeAddress(f.Solver))
		conds = append(conds, fmt.Sprintf("solver_address = $%d", len(args)))
	}
	if f.LevelID != nil {
		args = append(args, int64(*f.LevelID))
		conds = append(conds, fmt.Sprintf("level_id = $%d", len(args)))
	}
	if len(conds) > 0 {
		q.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	q.WriteString(" ORDER BY id ASC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&q, " LIMIT $%d", len(args))
	}
	args = append(args, f.Offset)
	fmt.Fprintf(&q, " OFFSET $%d", len(args))

	rows, err := p.pool.Query(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query solves: %w", err)
	}
	defer rows.Close()

	solves := []domain.SolveRecord{}
	for rows.Next() {
		var (
			rec     domain.SolveRecord
			levelID int64
			ts      time.Time
		)
		if err := rows.Scan(&rec.ID, &levelID, &rec.Solver, &rec.TxRef, &ts); err != nil {
			return nil, fmt.Errorf("scan solve: %w", err)
		}
		rec.LevelID = uint64(levelID)
		rec.Timestamp = ts.UTC()
		solves = append(solves, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate solves: %w", err)
	}
	return solves, nil
}

func (p *PostgresStore) Cursor(ctx context.Context) (uint64, bool, error) {
	var block int64
	err := p.pool.QueryRow(ctx, `SELECT last_synced_block FROM sync_state WHERE id = 1`).Scan(&block)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read cursor: %w", err)
	}
	return uint64(block), true, nil
}

func (p *PostgresStore) SetCursor(ctx context.Context, block uint64) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO sync_state (id, last_synced_block, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET
			last_synced_block = EXCLUDED.last_synced_block,
			updated_at = EXCLUDED.updated_at
	`, int64(block))
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

func scanPgLevel(row pgx.Row) (domain.LevelRecord, error) {
	var (
		rec       domain.LevelRecord
		levelID   int64
		hintsJSON string
		createdAt time.Time
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
		if errors.Is(err, pgx.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan level: %w", err)
	}
	rec.LevelID = uint64(levelID)
	rec.CreatedAt = createdAt.UTC()
	rec.Hints, err = unmarshalHints(hintsJSON)
	return rec, err
}
