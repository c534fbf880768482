package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/yibigame/levelindexer/internal/domain"
)

// SolvesOptions holds flags for the solves command.
type SolvesOptions struct {
	*RootOptions
	Solver string
	Level  uint64
	Limit  int
	Offset int
}

// NewSolvesCommand creates the solves command.
func NewSolvesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SolvesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "solves",
		Short: "List recorded solves",
		Long: `List solve records in insertion order.

Solves for levels that were not yet known when the solve arrived are
listed too; they are not reflected in the level's completion count.

Examples:
  levelindexer solves --level 7
  levelindexer solves --solver 0xabc... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var level *uint64
			if cmd.Flags().Changed("level") {
				level = &opts.Level
			}
			return runSolves(opts, level, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Solver, "solver", "", "only solves by this address")
	cmd.Flags().Uint64Var(&opts.Level, "level", 0, "only solves of this level")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum number of solves (0 for all)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of solves to skip")

	return cmd
}

func runSolves(opts *SolvesOptions, level *uint64, cmd *cobra.Command) error {
	if opts.Limit < 0 || opts.Offset < 0 {
		return NewExitError(ExitCommandError, "limit and offset must be non-negative")
	}

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

	solves, err := backend.ListSolves(ctx, domain.SolveFilter{
		Solver:  opts.Solver,
		LevelID: level,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list solves", err)
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(solves)
	}
	writeSolvesText(cmd.OutOrStdout(), solves)
	return nil
}

func writeSolvesText(w io.Writer, solves []domain.SolveRecord) {
	if len(solves) == 0 {
		fmt.Fprintln(w, "No solves found.")
		return
	}
	fmt.Fprintf(w, "%-8s %-42s %-20s %s\n", "LEVEL", "SOLVER", "TIMESTAMP", "TX")
	for _, s := range solves {
		fmt.Fprintf(w, "%-8d %-42s %-20s %s\n", s.LevelID, s.Solver, s.Timestamp.UTC().Format(time.RFC3339), s.TxRef)
	}
}
