package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yibigame/levelindexer/internal/domain"
	"github.com/yibigame/levelindexer/internal/projector"
	"github.com/yibigame/levelindexer/internal/store"
	"github.com/yibigame/levelindexer/internal/testutil"
)

type fixture struct {
	src    *testutil.ChainSource
	store  *store.Store
	proj   *projector.Projector
	sleeps []time.Duration
}

func newFixture(t *testing.T, height uint64) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	src := testutil.NewChainSource(height)
	return &fixture{
		src:   src,
		store: st,
		proj:  projector.New(st, src, nil),
	}
}

func (f *fixture) coordinator(cfg Config, opts ...Option) *Coordinator {
	opts = append([]Option{
		WithPassIDs(testutil.NewFixedPassIDs("pass-1", "pass-2")),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return nil
		}),
	}, opts...)
	return New(f.src, f.proj, f.store, cfg, nil, opts...)
}

func (f *fixture) addLevel(levelID, block uint64, tx string, size, hints int) {
	f.src.Add(testutil.Created(levelID, block, tx, size, hints))
	f.src.AddLevel(domain.LevelDetail{LevelID: levelID, Size: size, Hints: testutil.Hints(hints)})
}

func TestRun_BatchesCreationsBeforeCompletions(t *testing.T) {
	f := newFixture(t, 125)
	f.addLevel(7, 105, testutil.TxRef(1), 4, 3)
	// The solve sits in the same batch as the creation but is queried after it.
	f.src.Add(testutil.Solved(7, 101, testutil.TxRef(2), "0xs1"))
	c := f.coordinator(Config{StartBlock: 100, BatchSize: 10, BatchDelay: DefaultBatchDelay})

	res, err := c.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "pass-1", res.PassID)
	assert.Equal(t, uint64(100), res.Start)
	assert.Equal(t, uint64(125), res.Height)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, uint64(125), res.LastSyncedBlock)

	assert.Equal(t, []testutil.QueryCall{
		{Kind: domain.KindLevelCreated, From: 100, To: 109},
		{Kind: domain.KindLevelSolved, From: 100, To: 109},
		{Kind: domain.KindLevelCreated, From: 110, To: 119},
		{Kind: domain.KindLevelSolved, From: 110, To: 119},
		{Kind: domain.KindLevelCreated, From: 120, To: 125},
		{Kind: domain.KindLevelSolved, From: 120, To: 125},
	}, f.src.Queries())
	assert.Equal(t, []time.Duration{DefaultBatchDelay, DefaultBatchDelay}, f.sleeps)

	rec, found, err := f.store.FindLevel(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), rec.CompletionCount)
	assert.Equal(t, 3, rec.HintCount)

	cursor, ok, err := f.store.Cursor(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(125), cursor)

	last, ok := c.LastSyncedBlock()
	assert.True(t, ok)
	assert.Equal(t, uint64(125), last)
	assert.False(t, c.Syncing())
}

func TestRun_ZeroBatchDelayIsKept(t *testing.T) {
	f := newFixture(t, 125)
	c := f.coordinator(Config{StartBlock: 100, BatchSize: 10})

	_, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{0, 0}, f.sleeps)
}

func TestRun_DoesNotChaseHead(t *testing.T) {
	f := newFixture(t, 125)
	f.addLevel(7, 130, testutil.TxRef(1), 4, 0)
	c := f.coordinator(Config{StartBlock: 100})

	res, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(125), res.LastSyncedBlock)

	_, found, err := f.store.FindLevel(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, found, "events above the captured height belong to the realtime path")
}

func TestRun_SkipsWithoutStart(t *testing.T) {
	for _, start := range []int64{0, -5} {
		f := newFixture(t, 125)
		c := f.coordinator(Config{StartBlock: start})

		res, err := c.Run(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, StatusSkipped, res.Status)
		assert.Empty(t, f.src.Queries())

		_, ok := c.LastSyncedBlock()
		assert.False(t, ok)
	}
}

func TestRun_StartOverride(t *testing.T) {
	f := newFixture(t, 125)
	c := f.coordinator(Config{})

	from := int64(120)
	res, err := c.Run(context.Background(), &from)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, uint64(120), res.Start)
	assert.Equal(t, 1, res.Batches)
}

func TestRun_QueryErrorAbortsAndKeepsCommittedBatches(t *testing.T) {
	f := newFixture(t, 125)
	f.addLevel(7, 105, testutil.TxRef(1), 4, 0)
	f.addLevel(8, 121, testutil.TxRef(2), 4, 0)
	f.src.QueryErr = func(kind domain.Kind, from, to uint64) error {
		if from == 110 && kind == domain.KindLevelSolved {
			return errors.New("timeout")
		}
		return nil
	}
	c := f.coordinator(Config{StartBlock: 100})

	res, err := c.Run(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "timeout")
	assert.Equal(t, StatusAborted, res.Status)
	assert.Equal(t, 1, res.Batches)
	assert.Equal(t, uint64(109), res.LastSyncedBlock)

	cursor, ok, err := f.store.Cursor(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(109), cursor)

	_, found, _ := f.store.FindLevel(context.Background(), 8)
	assert.False(t, found)
	assert.False(t, c.Syncing(), "guard released after abort")

	// A later pass from a later start completes the range.
	f.src.QueryErr = nil
	from := int64(110)
	res, err = c.Run(context.Background(), &from)
	require.NoError(t, err)
	assert.Equal(t, "pass-2", res.PassID)
	_, found, _ = f.store.FindLevel(context.Background(), 8)
	assert.True(t, found)
}

func TestRun_ProjectionFailureAborts(t *testing.T) {
	f := newFixture(t, 125)
	// No AddLevel: ReadLevel fails, which is a transport-class error.
	f.src.Add(testutil.Created(7, 105, testutil.TxRef(1), 4, 0))
	c := f.coordinator(Config{StartBlock: 100})

	res, err := c.Run(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, testutil.ErrLevelNotFound)
	assert.Equal(t, StatusAborted, res.Status)
	assert.Equal(t, 0, res.Batches)

	_, ok, err := f.store.Cursor(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRun_DataErrorsAreDroppedNotFatal(t *testing.T) {
	f := newFixture(t, 109)
	f.addLevel(7, 105, "", 4, 0)
	f.src.Add(testutil.Solved(7, 106, testutil.TxRef(2), "0xs1"))
	c := f.coordinator(Config{StartBlock: 100})

	res, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 2, res.Events)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 1, res.Orphaned)
}

func TestRun_Resume(t *testing.T) {
	f := newFixture(t, 125)
	ctx := context.Background()
	require.NoError(t, f.store.SetCursor(ctx, 115))
	c := f.coordinator(Config{StartBlock: 100, Resume: true})

	last, ok := c.LastSyncedBlock()
	assert.False(t, ok)
	assert.Zero(t, last)

	res, err := c.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(116), res.Start)
	assert.Equal(t, []testutil.QueryCall{
		{Kind: domain.KindLevelCreated, From: 116, To: 125},
		{Kind: domain.KindLevelSolved, From: 116, To: 125},
	}, f.src.Queries())
}

func TestRun_ResumeIgnoresEarlierCursor(t *testing.T) {
	f := newFixture(t, 125)
	ctx := context.Background()
	require.NoError(t, f.store.SetCursor(ctx, 50))
	c := f.coordinator(Config{StartBlock: 100, Resume: true})

	res, err := c.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), res.Start)
}

func TestRun_UpToDate(t *testing.T) {
	f := newFixture(t, 125)
	ctx := context.Background()
	require.NoError(t, f.store.SetCursor(ctx, 125))
	c := f.coordinator(Config{StartBlock: 100, Resume: true})

	res, err := c.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusUpToDate, res.Status)
	assert.Empty(t, f.src.Queries())

	last, ok := c.LastSyncedBlock()
	assert.True(t, ok)
	assert.Equal(t, uint64(125), last)
}

func TestRun_HeightError(t *testing.T) {
	f := newFixture(t, 125)
	f.src.HeightErr = errors.New("rpc down")
	c := f.coordinator(Config{StartBlock: 100})

	res, err := c.Run(context.Background(), nil)
	assert.ErrorContains(t, err, "capture height")
	assert.Equal(t, StatusAborted, res.Status)
}

// blockingSource blocks the first height call until released.
type blockingSource struct {
	*testutil.ChainSource
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingSource) CurrentHeight(ctx context.Context) (uint64, error) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.ChainSource.CurrentHeight(ctx)
}

func TestRun_ConcurrentInvocationIsNoOp(t *testing.T) {
	f := newFixture(t, 105)
	src := &blockingSource{ChainSource: f.src, entered: make(chan struct{}), release: make(chan struct{})}
	c := New(src, f.proj, f.store, Config{StartBlock: 100}, nil,
		WithSleep(func(context.Context, time.Duration) error { return nil }))

	done := make(chan Result)
	go func() {
		res, err := c.Run(context.Background(), nil)
		assert.NoError(t, err)
		done <- res
	}()

	<-src.entered
	assert.True(t, c.Syncing())
	res, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyRunning, res.Status)

	close(src.release)
	first := <-done
	assert.Equal(t, StatusCompleted, first.Status)
	assert.NotEmpty(t, first.PassID)
	assert.False(t, c.Syncing())
}

func TestRun_CancelledDuringDelay(t *testing.T) {
	f := newFixture(t, 125)
	ctx, cancel := context.WithCancel(context.Background())
	c := f.coordinator(Config{StartBlock: 100}, WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepCtx(ctx, time.Hour)
	}))

	res, err := c.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusAborted, res.Status)
	assert.Equal(t, 1, res.Batches)
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
