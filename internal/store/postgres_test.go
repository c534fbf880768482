package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yibigame/levelindexer/internal/domain"
)

// Postgres tests need a disposable database:
//
//	LEVELINDEXER_TEST_POSTGRES=postgres://postgres@localhost:5432/levelindexer_test go test ./internal/store
func openTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("LEVELINDEXER_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("LEVELINDEXER_TEST_POSTGRES not set")
	}
	ctx := context.Background()
	p, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	_, err = p.pool.Exec(ctx, `TRUNCATE levels, solve_records, sync_state RESTART IDENTITY`)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPostgres_Idempotency(t *testing.T) {
	p := openTestPostgres(t)
	ctx := context.Background()

	inserted, err := p.InsertLevel(ctx, createTestLevel(7, "0xc"))
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = p.InsertLevel(ctx, createTestLevel(7, "0xc"))
	require.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = p.InsertSolve(ctx, createTestSolve(7, "0xs", "0xt"))
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = p.InsertSolve(ctx, createTestSolve(7, "0xs", "0xt"))
	require.NoError(t, err)
	assert.False(t, inserted)

	updated, err := p.IncrementCompletions(ctx, 7)
	require.NoError(t, err)
	assert.True(t, updated)

	rec, found, err := p.FindLevel(ctx, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), rec.CompletionCount)
	assert.Equal(t, createTestLevel(7, "0xc").Hints, rec.Hints)
}

func TestPostgres_ListAndCursor(t *testing.T) {
	p := openTestPostgres(t)
	ctx := context.Background()

	for i := uint64(1); i <= 3; i++ {
		_, err := p.InsertLevel(ctx, createTestLevel(i, "0xc"))
		require.NoError(t, err)
	}
	levels, err := p.ListLevels(ctx, domain.LevelFilter{Descending: true, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 2}, levelIDs(levels))

	require.NoError(t, p.SetCursor(ctx, 125))
	block, ok, err := p.Cursor(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(125), block)
}
