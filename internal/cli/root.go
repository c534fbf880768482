package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yibigame/levelindexer/internal/chain"
	"github.com/yibigame/levelindexer/internal/syncer"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Getenv reads the process environment. If nil, defaults to os.Getenv.
	Getenv func(string) string

	// DialChain connects to the ledger (for testing).
	// If nil, defaults to chain.Dial.
	DialChain func(ctx context.Context, cfg chain.Config) (chain.Source, func(), error)

	// SyncerOptions are passed to the backfill coordinator (for testing).
	SyncerOptions []syncer.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the levelindexer CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

// Execute runs the CLI with args and returns the process exit code. A failure
// not already written by the command is reported on stderr, or on stdout as a
// CLIResponse when --format json is selected.
func Execute(args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	code := GetExitCode(err)
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Reported {
		return code
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: stderr, Verbose: opts.Verbose}
	if opts.Format == "json" {
		formatter.Writer = stdout
	}
	_ = formatter.Error(errorCode(code), err.Error(), nil)
	return code
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "levelindexer",
		Short: "Level contract indexer",
		Long: `Mirror the level contract's creation and completion events into a
queryable store.

Historical events are backfilled in bounded block batches while push
subscriptions deliver new events as they are mined. Both paths feed the
same idempotent projector, so overlap between them is harmless.

Configuration comes from an optional YAML file (--config) overridden by
RPC_URL, WS_URL, CONTRACT_ADDRESS, ABI_PATH, START_BLOCK, BLOCK_BATCH_SIZE,
DATABASE_URL and PORT.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewLevelsCommand(opts))
	cmd.AddCommand(NewSolvesCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
