package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yibigame/levelindexer/internal/indexer"
	"github.com/yibigame/levelindexer/internal/syncer"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	From   int64
	Resume bool
}

// SyncResult is the output of a one-shot backfill pass.
type SyncResult struct {
	PassID          string  `json:"pass_id"`
	Status          string  `json:"status"`
	Start           uint64  `json:"start"`
	Height          uint64  `json:"height"`
	Batches         int     `json:"batches"`
	Events          int     `json:"events"`
	Applied         int     `json:"applied"`
	Duplicates      int     `json:"duplicates"`
	Orphaned        int     `json:"orphaned"`
	Dropped         int     `json:"dropped"`
	LastSyncedBlock *uint64 `json:"last_synced_block"`
	Error           string  `json:"error,omitempty"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one historical backfill pass and exit",
		Long: `Run a single historical backfill pass without realtime subscriptions.

The pass covers [start, head] where head is captured once when the pass
begins. --from overrides START_BLOCK; --resume starts after the persisted
cursor when that is later than the configured start. Only the RPC endpoint
is required.

Exit codes:
  0 - Pass completed, skipped or already up to date
  1 - Pass aborted
  2 - Command error (invalid configuration, store unavailable, etc.)

Examples:
  levelindexer sync --from 1200000
  levelindexer sync --resume --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var from *int64
			if cmd.Flags().Changed("from") {
				from = &opts.From
			}
			return runSync(opts, from, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.From, "from", 0, "start block (overrides START_BLOCK and disables resume)")
	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "start after the persisted cursor")

	return cmd
}

func runSync(opts *SyncOptions, from *int64, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateQuery(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if opts.Resume {
		cfg.Sync.Resume = true
	}

	logger := opts.newLogger(cfg, cmd.ErrOrStderr())
	ctx := cmd.Context()

	backend, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore(backend, logger)

	source, closeSource, err := opts.dialChain(ctx, cfg, false, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	svc := indexer.New(source, backend, indexer.Options{
		Sync:          syncConfig(cfg),
		Contract:      cfg.Contract().Hex(),
		Logger:        logger,
		SyncerOptions: opts.SyncerOptions,
	})

	res, runErr := svc.Backfill(ctx, from)
	out := newSyncResult(res)
	if runErr != nil {
		out.Error = runErr.Error()
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		if err := formatter.SuccessForPass(out.PassID, out); err != nil {
			return err
		}
	} else {
		formatter.VerboseLog("pass %s", out.PassID)
		fmt.Fprint(cmd.OutOrStdout(), formatSyncText(out))
	}

	if runErr != nil {
		return reportedExitError(ExitFailure, "backfill aborted", runErr)
	}
	return nil
}

func newSyncResult(res syncer.Result) SyncResult {
	out := SyncResult{
		PassID:     res.PassID,
		Status:     string(res.Status),
		Start:      res.Start,
		Height:     res.Height,
		Batches:    res.Batches,
		Events:     res.Events,
		Applied:    res.Applied,
		Duplicates: res.Duplicates,
		Orphaned:   res.Orphaned,
		Dropped:    res.Dropped,
	}
	if res.Batches > 0 {
		last := res.LastSyncedBlock
		out.LastSyncedBlock = &last
	}
	return out
}

func formatSyncText(r SyncResult) string {
	switch syncer.Status(r.Status) {
	case syncer.StatusSkipped:
		return "Backfill skipped: start block not configured\n"
	case syncer.StatusUpToDate:
		return fmt.Sprintf("Backfill up to date: start %d is past head %d\n", r.Start, r.Height)
	case syncer.StatusAlreadyRunning:
		return "Backfill already running\n"
	}

	s := fmt.Sprintf("Backfill %s: blocks %d-%d in %d batch(es)\n", r.Status, r.Start, r.Height, r.Batches)
	s += fmt.Sprintf("  Events:     %d (applied %d, duplicates %d, orphaned %d, dropped %d)\n",
		r.Events, r.Applied, r.Duplicates, r.Orphaned, r.Dropped)
	if r.LastSyncedBlock != nil {
		s += fmt.Sprintf("  Last block: %d\n", *r.LastSyncedBlock)
	} else {
		s += "  Last block: none\n"
	}
	if r.Error != "" {
		s += fmt.Sprintf("  Error:      %s\n", r.Error)
	}
	return s
}
