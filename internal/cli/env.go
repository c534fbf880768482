package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/yibigame/levelindexer/internal/chain"
	"github.com/yibigame/levelindexer/internal/config"
	"github.com/yibigame/levelindexer/internal/store"
)

func (o *RootOptions) getenv() func(string) string {
	if o.Getenv != nil {
		return o.Getenv
	}
	return os.Getenv
}

// loadConfig resolves the config file and environment into a validated
// configuration.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Resolve(o.ConfigPath, o.getenv())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. --verbose forces debug level.
func (o *RootOptions) newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level, _ := cfg.SlogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// openStore opens the configured replica backend.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Backend, error) {
	driver := cfg.Store.Driver
	if driver == "" {
		driver = store.DriverFromDSN(cfg.Store.DSN)
	}
	logger.Info("opening store", "driver", driver)
	backend, err := store.OpenBackend(ctx, driver, cfg.Store.DSN)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	return backend, nil
}

// closeStore closes backend and logs a failure.
func closeStore(backend store.Backend, logger *slog.Logger) {
	if err := backend.Close(); err != nil {
		logger.Error("error closing store", "error", err)
	}
}

// dialChain connects to the ledger. Without push the WebSocket endpoint is
// not dialed and the returned source cannot subscribe.
func (o *RootOptions) dialChain(ctx context.Context, cfg *config.Config, push bool, logger *slog.Logger) (chain.Source, func(), error) {
	ccfg := chain.Config{
		RPCURL:           cfg.Chain.RPCURL,
		Contract:         cfg.Contract(),
		ABIPath:          cfg.Chain.ABIPath,
		ResubscribeDelay: cfg.ResubscribeDelay(),
		Logger:           logger,
	}
	if push {
		ccfg.WSURL = cfg.Chain.WSURL
	}

	if o.DialChain != nil {
		return o.DialChain(ctx, ccfg)
	}
	client, err := chain.Dial(ctx, ccfg)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to connect to chain", err)
	}
	return client, client.Close, nil
}
