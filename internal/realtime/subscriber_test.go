package realtime

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yibigame/levelindexer/internal/chain"
	"github.com/yibigame/levelindexer/internal/domain"
	"github.com/yibigame/levelindexer/internal/projector"
	"github.com/yibigame/levelindexer/internal/store"
	"github.com/yibigame/levelindexer/internal/testutil"
)

func setup(t *testing.T) (*testutil.ChainSource, *store.Store, *Subscriber, *bytes.Buffer) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	src := testutil.NewChainSource(0)
	sub := New(src, projector.New(st, src, logger), logger)
	return src, st, sub, &buf
}

func TestArm_SubscribesEveryKind(t *testing.T) {
	src, _, sub, _ := setup(t)

	require.NoError(t, sub.Arm(context.Background()))
	assert.Equal(t, 1, src.Subscriptions(domain.KindLevelCreated))
	assert.Equal(t, 1, src.Subscriptions(domain.KindLevelSolved))
	assert.True(t, src.Connected())
}

type failingSource struct{ err error }

func (f failingSource) Subscribe(ctx context.Context, kind domain.Kind, handler chain.Handler) error {
	return f.err
}

func TestArm_ReturnsConfigurationErrors(t *testing.T) {
	sub := New(failingSource{err: chain.ErrNoSubscriber}, nil, nil)

	err := sub.Arm(context.Background())
	assert.ErrorContains(t, err, "arm LevelCreated subscription")
	assert.ErrorIs(t, err, chain.ErrNoSubscriber)
}

func TestArm_RetriesTransportErrors(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	src := testutil.NewChainSource(0)
	failures := map[domain.Kind]int{domain.KindLevelCreated: 2, domain.KindLevelSolved: 1}
	src.SubscribeErr = func(kind domain.Kind) error {
		if failures[kind] > 0 {
			failures[kind]--
			return errors.New("dial tcp: connection refused")
		}
		return nil
	}
	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	sub := New(src, projector.New(st, src, logger), logger, WithRetryDelay(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, sub.Arm(ctx))
	assert.False(t, src.Connected())

	require.Eventually(t, src.Connected, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, src.Subscriptions(domain.KindLevelCreated))
	assert.Equal(t, 1, src.Subscriptions(domain.KindLevelSolved))
	assert.Contains(t, buf.String(), "subscription unavailable, retrying")
}

func TestArm_StopsRetryingOnCancel(t *testing.T) {
	src := testutil.NewChainSource(0)
	src.SubscribeErr = func(domain.Kind) error { return errors.New("connection refused") }
	sub := New(src, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), WithRetryDelay(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, sub.Arm(ctx))
	cancel()
	assert.False(t, src.Connected())
}

// syncBuffer is a bytes.Buffer safe for the retry goroutines to log into.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDelivery_ProjectsThroughSharedPath(t *testing.T) {
	src, st, sub, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, sub.Arm(ctx))
	src.AddLevel(domain.LevelDetail{LevelID: 7, Hints: testutil.Hints(3)})

	src.Emit(ctx, testutil.Created(7, 105, testutil.TxRef(1), 4, 3))
	src.Emit(ctx, testutil.Solved(7, 130, testutil.TxRef(2), "0xs1"))
	src.Emit(ctx, testutil.Solved(7, 130, testutil.TxRef(2), "0xs1"))

	rec, found, err := st.FindLevel(ctx, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), rec.CompletionCount)
}

func TestDelivery_ErrorsAreLoggedNotFatal(t *testing.T) {
	src, st, sub, buf := setup(t)
	ctx := context.Background()
	require.NoError(t, sub.Arm(ctx))

	// Unknown to ReadLevel: apply fails with a transport-class error.
	src.Emit(ctx, testutil.Created(7, 105, testutil.TxRef(1), 4, 3))
	// Missing tx: data error.
	src.Emit(ctx, testutil.Solved(8, 130, "", "0xs1"))

	out := buf.String()
	assert.Contains(t, out, "failed to apply event")
	assert.Contains(t, out, "dropping event")
	assert.Contains(t, out, "MISSING_TX_REF")

	// The subscription keeps delivering.
	src.AddLevel(domain.LevelDetail{LevelID: 7})
	src.Emit(ctx, testutil.Created(7, 105, testutil.TxRef(1), 4, 3))
	_, found, err := st.FindLevel(ctx, 7)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestDelivery_LogsDiagnosticFields(t *testing.T) {
	src, _, sub, buf := setup(t)
	ctx := context.Background()
	require.NoError(t, sub.Arm(ctx))

	ev := testutil.Solved(9, 130, testutil.TxRef(2), "0xs1")
	ev.Solved.PathLength = 16
	ev.Solved.IsFirst = true
	src.Emit(ctx, ev)

	out := buf.String()
	assert.Contains(t, out, "path_length=16")
	assert.Contains(t, out, "is_first=true")
	assert.Contains(t, out, "outcome=orphaned")
}
