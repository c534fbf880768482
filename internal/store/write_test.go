package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertLevel_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	inserted, err := s.InsertLevel(ctx, createTestLevel(7, "0xc"))
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := createTestLevel(7, "0xother")
	dup.Name = "changed"
	inserted, err = s.InsertLevel(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	rec, found, err := s.FindLevel(ctx, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "level", rec.Name, "first insert wins")
	assert.Equal(t, "0xc", rec.Creator)
}

func TestInsertLevel_ConcurrentDuplicates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.InsertLevel(ctx, createTestLevel(42, "0xc"))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
	levels, err := s.ListLevels(ctx, domainFilterAll())
	require.NoError(t, err)
	assert.Len(t, levels, 1)
}

func TestInsertSolve_DedupOnLevelAndTx(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	inserted, err := s.InsertSolve(ctx, createTestSolve(7, "0xs", "0xt1"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.InsertSolve(ctx, createTestSolve(7, "0xs", "0xt1"))
	require.NoError(t, err)
	assert.False(t, inserted)

	// Same tx for a different level is a distinct natural key.
	inserted, err = s.InsertSolve(ctx, createTestSolve(8, "0xs", "0xt1"))
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestIncrementCompletions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	updated, err := s.IncrementCompletions(ctx, 7)
	require.NoError(t, err)
	assert.False(t, updated, "unknown level is not updated")

	_, err = s.InsertLevel(ctx, createTestLevel(7, "0xc"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		updated, err = s.IncrementCompletions(ctx, 7)
		require.NoError(t, err)
		assert.True(t, updated)
	}

	rec, _, err := s.FindLevel(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.CompletionCount)
}

func TestCursor_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Cursor(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetCursor(ctx, 109))
	require.NoError(t, s.SetCursor(ctx, 119))

	block, ok, err := s.Cursor(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(119), block)
}
