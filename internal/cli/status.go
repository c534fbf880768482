package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yibigame/levelindexer/internal/domain"
	"github.com/yibigame/levelindexer/internal/store"
)

// StoreStatus is the persisted synchronization state.
type StoreStatus struct {
	LastSyncedBlock *uint64 `json:"lastSyncedBlock"`
	Levels          int     `json:"levels"`
	Solves          int     `json:"solves"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the persisted sync cursor and replica size",
		Long: `Show the last block committed by a backfill pass and the number of
levels and solves in the replica.

For the live view of a running indexer use GET /debug/indexer-status.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.newLogger(cfg, cmd.ErrOrStderr())
	ctx := cmd.Context()

	backend, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore(backend, logger)

	var st StoreStatus
	block, ok, err := backend.Cursor(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read cursor", err)
	}
	if ok {
		st.LastSyncedBlock = &block
	}
	if st.Levels, err = countLevels(ctx, backend); err != nil {
		return WrapExitError(ExitCommandError, "failed to count levels", err)
	}
	if st.Solves, err = countSolves(ctx, backend); err != nil {
		return WrapExitError(ExitCommandError, "failed to count solves", err)
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(st)
	}

	w := cmd.OutOrStdout()
	if st.LastSyncedBlock != nil {
		fmt.Fprintf(w, "Last synced block: %d\n", *st.LastSyncedBlock)
	} else {
		fmt.Fprintln(w, "Last synced block: none")
	}
	fmt.Fprintf(w, "Levels: %d\n", st.Levels)
	fmt.Fprintf(w, "Solves: %d\n", st.Solves)
	return nil
}

func countLevels(ctx context.Context, backend store.Backend) (int, error) {
	levels, err := backend.ListLevels(ctx, domain.LevelFilter{})
	return len(levels), err
}

func countSolves(ctx context.Context, backend store.Backend) (int, error) {
	solves, err := backend.ListSolves(ctx, domain.SolveFilter{})
	return len(solves), err
}
