package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yibigame/levelindexer/internal/config"
	"github.com/yibigame/levelindexer/internal/indexer"
	"github.com/yibigame/levelindexer/internal/realtime"
	"github.com/yibigame/levelindexer/internal/syncer"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the indexer",
		Long: `Start the indexer service.

The realtime subscriptions are armed first, then one historical pass runs
from START_BLOCK to the head captured at its start. The health and status
server (GET /healthz, GET /debug/indexer-status, GET /metrics) listens on
the configured address until the process receives SIGINT or SIGTERM.

Example:
  RPC_URL=https://rpc.example WS_URL=wss://ws.example \
  CONTRACT_ADDRESS=0x... START_BLOCK=1200000 levelindexer run
  levelindexer run --config ./levelindexer.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexer(opts, cmd)
		},
	}

	return cmd
}

func runIndexer(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateChain(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	logger := opts.newLogger(cfg, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	backend, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore(backend, logger)

	source, closeSource, err := opts.dialChain(ctx, cfg, true, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	svc := indexer.New(source, backend, indexer.Options{
		Sync:            syncConfig(cfg),
		ListenAddress:   cfg.Server.ListenAddress,
		Contract:        cfg.Contract().Hex(),
		Logger:          logger,
		SyncerOptions:   opts.SyncerOptions,
		RealtimeOptions: []realtime.Option{realtime.WithRetryDelay(cfg.ResubscribeDelay())},
	})

	logger.Info("indexer starting", "contract", cfg.Contract().Hex(), "start_block", cfg.Sync.StartBlock,
		"batch_size", cfg.Sync.BatchSize, "listen", cfg.Server.ListenAddress)
	fmt.Fprintln(cmd.OutOrStdout(), "Indexer started. Press Ctrl-C to stop.")

	if err := svc.Run(ctx); err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		return WrapExitError(ExitFailure, "indexer error", err)
	}

	logger.Info("indexer stopped gracefully")
	return nil
}

// syncConfig maps the loaded configuration onto the coordinator's.
func syncConfig(cfg *config.Config) syncer.Config {
	return syncer.Config{
		StartBlock: cfg.Sync.StartBlock,
		BatchSize:  cfg.Sync.BatchSize,
		BatchDelay: cfg.BatchDelay(),
		Resume:     cfg.Sync.Resume,
	}
}
