package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/yibigame/levelindexer/internal/chain"
	"github.com/yibigame/levelindexer/internal/domain"
	"github.com/yibigame/levelindexer/internal/store"
	"github.com/yibigame/levelindexer/internal/syncer"
	"github.com/yibigame/levelindexer/internal/testutil"
)

const testContract = "0x00000000000000000000000000000000000000aa"

// testEnv is a process environment backed by a map, pointing the store at a
// fresh SQLite file.
type testEnv struct {
	vars   map[string]string
	dbPath string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "levels.db")
	return &testEnv{
		dbPath: dbPath,
		vars: map[string]string{
			"RPC_URL":          "http://rpc.invalid",
			"WS_URL":           "ws://ws.invalid",
			"CONTRACT_ADDRESS": testContract,
			"DATABASE_URL":     dbPath,
		},
	}
}

func (e *testEnv) getenv(key string) string {
	return e.vars[key]
}

// rootOpts returns options wired to the env and, when src is non-nil, to an
// in-memory chain.
func (e *testEnv) rootOpts(src *testutil.ChainSource, format string) *RootOptions {
	opts := &RootOptions{
		Format: format,
		Getenv: e.getenv,
		SyncerOptions: []syncer.Option{
			syncer.WithPassIDs(testutil.NewFixedPassIDs("pass-1", "pass-2")),
			syncer.WithSleep(func(context.Context, time.Duration) error { return nil }),
		},
	}
	if src != nil {
		opts.DialChain = func(context.Context, chain.Config) (chain.Source, func(), error) {
			return src, func() {}, nil
		}
	}
	return opts
}

// seed writes records straight into the env's store.
func (e *testEnv) seed(t *testing.T, levels []domain.LevelRecord, solves []domain.SolveRecord, cursor *uint64) {
	t.Helper()
	st, err := store.Open(e.dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	for _, lvl := range levels {
		_, err := st.InsertLevel(ctx, lvl)
		require.NoError(t, err)
	}
	for _, s := range solves {
		_, err := st.InsertSolve(ctx, s)
		require.NoError(t, err)
	}
	if cursor != nil {
		require.NoError(t, st.SetCursor(ctx, *cursor))
	}
}

func (e *testEnv) openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(e.dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func level(id uint64, name string, size int, creator string, completions int64, created time.Time) domain.LevelRecord {
	return domain.LevelRecord{
		LevelID:         id,
		Name:            name,
		Size:            size,
		Creator:         creator,
		OriginTx:        testutil.TxRef(int(id)),
		Hints:           testutil.Hints(2),
		HintCount:       2,
		CompletionCount: completions,
		CreatedAt:       created,
	}
}
