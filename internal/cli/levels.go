package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yibigame/levelindexer/internal/domain"
)

// LevelsOptions holds flags for the levels command.
type LevelsOptions struct {
	*RootOptions
	Creator string
	Sort    string
	Order   string
	Limit   int
	Offset  int
}

// NewLevelsCommand creates the levels command.
func NewLevelsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LevelsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "levels",
		Short: "List materialized levels",
		Long: `List the levels in the replica.

Sort columns: levelId (default), createdAt, completionCount, size.
Unknown sort columns fall back to levelId.

Examples:
  levelindexer levels --sort completionCount --order desc --limit 10
  levelindexer levels --creator 0xabc... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLevels(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Creator, "creator", "", "only levels created by this address")
	cmd.Flags().StringVar(&opts.Sort, "sort", string(domain.SortLevelID), "sort column")
	cmd.Flags().StringVar(&opts.Order, "order", "asc", "sort order (asc|desc)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum number of levels (0 for all)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of levels to skip")

	return cmd
}

func runLevels(opts *LevelsOptions, cmd *cobra.Command) error {
	order := strings.ToLower(opts.Order)
	if order != "asc" && order != "desc" {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid order %q: must be asc or desc", opts.Order))
	}
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

	levels, err := backend.ListLevels(ctx, domain.LevelFilter{
		Creator:    opts.Creator,
		Sort:       domain.ParseLevelSort(opts.Sort),
		Descending: order == "desc",
		Limit:      opts.Limit,
		Offset:     opts.Offset,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list levels", err)
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(levels)
	}
	writeLevelsText(cmd.OutOrStdout(), levels)
	return nil
}

func writeLevelsText(w io.Writer, levels []domain.LevelRecord) {
	if len(levels) == 0 {
		fmt.Fprintln(w, "No levels found.")
		return
	}
	fmt.Fprintf(w, "%-8s %-24s %-5s %-6s %-11s %-20s %s\n", "ID", "NAME", "SIZE", "HINTS", "COMPLETIONS", "CREATED", "CREATOR")
	for _, lvl := range levels {
		fmt.Fprintf(w, "%-8d %-24s %-5d %-6d %-11d %-20s %s\n",
			lvl.LevelID, truncate(lvl.Name, 24), lvl.Size, lvl.HintCount, lvl.CompletionCount,
			lvl.CreatedAt.UTC().Format(time.RFC3339), lvl.Creator)
	}
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
