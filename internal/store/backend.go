package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/yibigame/levelindexer/internal/domain"
)

// Backend is the persistent replica consumed by the projector, the backfill
// coordinator and the CLI.
type Backend interface {
	// FindLevel returns the level with the given id; found is false when absent.
	FindLevel(ctx context.Context, levelID uint64) (rec domain.LevelRecord, found bool, err error)

	// InsertLevel inserts rec unless a level with the same id exists.
	// inserted is false when the row already existed.
	InsertLevel(ctx context.Context, rec domain.LevelRecord) (inserted bool, err error)

	// InsertSolve inserts rec unless a record with the same (level, tx) exists.
	InsertSolve(ctx context.Context, rec domain.SolveRecord) (inserted bool, err error)

	// IncrementCompletions adds one to the level's completion count.
	// updated is false when the level does not exist.
	IncrementCompletions(ctx context.Context, levelID uint64) (updated bool, err error)

	ListLevels(ctx context.Context, f domain.LevelFilter) ([]domain.LevelRecord, error)
	ListSolves(ctx context.Context, f domain.SolveFilter) ([]domain.SolveRecord, error)

	// Cursor returns the persisted last synced block; ok is false if no
	// backfill batch has ever been committed.
	Cursor(ctx context.Context) (block uint64, ok bool, err error)
	SetCursor(ctx context.Context, block uint64) error

	Close() error
}

var (
	_ Backend = (*Store)(nil)
	_ Backend = (*PostgresStore)(nil)
)

// Driver names accepted by OpenBackend.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// OpenBackend opens the backend named by driver. An empty driver is inferred
// from the DSN: postgres:// and postgresql:// URLs select Postgres, anything
// else is treated as a SQLite path.
func OpenBackend(ctx context.Context, driver, dsn string) (Backend, error) {
	if driver == "" {
		driver = DriverFromDSN(dsn)
	}
	switch driver {
	case DriverSQLite:
		return Open(dsn)
	case DriverPostgres:
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// DriverFromDSN infers the driver from a DSN.
func DriverFromDSN(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}
