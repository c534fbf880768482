// Package config loads indexer configuration from an optional YAML file and
// the process environment. Environment variables win over the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/yibigame/levelindexer/internal/syncer"
)

// ChainConfig holds the ledger endpoints and contract binding.
type ChainConfig struct {
	RPCURL           string `yaml:"rpc_url"`
	WSURL            string `yaml:"ws_url"`
	ContractAddress  string `yaml:"contract_address"`
	ABIPath          string `yaml:"abi_path"`
	ResubscribeDelay string `yaml:"resubscribe_delay"`
}

// SyncConfig controls the backfill pass.
type SyncConfig struct {
	// StartBlock <= 0 disables backfill.
	StartBlock int64  `yaml:"start_block"`
	BatchSize  uint64 `yaml:"batch_size"`
	BatchDelay string `yaml:"batch_delay"`
	Resume     bool   `yaml:"resume"`
}

// StoreConfig selects the replica backend. An empty driver is inferred from
// the DSN.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ServerConfig holds the health/status HTTP server settings.
type ServerConfig struct {
	ListenAddress string `yaml:"listen_address"`
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the complete indexer configuration.
type Config struct {
	Chain   ChainConfig   `yaml:"chain"`
	Sync    SyncConfig    `yaml:"sync"`
	Store   StoreConfig   `yaml:"store"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Chain: ChainConfig{
			ResubscribeDelay: "5s",
		},
		Sync: SyncConfig{
			BatchSize:  syncer.DefaultBatchSize,
			BatchDelay: syncer.DefaultBatchDelay.String(),
		},
		Store: StoreConfig{
			DSN: "levelindexer.db",
		},
		Server: ServerConfig{
			ListenAddress: ":3001",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from r over the defaults. A nil or empty reader
// yields the defaults. Unknown keys are rejected.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()
	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	return cfg, nil
}

// LoadFile reads configuration from path. An empty path yields the defaults;
// a missing file is an error.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return Load(nil)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}

// ApplyEnv overrides cfg with the deployment environment variables.
// getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("RPC_URL"); v != "" {
		c.Chain.RPCURL = v
	}
	if v := getenv("WS_URL"); v != "" {
		c.Chain.WSURL = v
	}
	if v := getenv("CONTRACT_ADDRESS"); v != "" {
		c.Chain.ContractAddress = v
	}
	if v := getenv("ABI_PATH"); v != "" {
		c.Chain.ABIPath = v
	}
	if v := getenv("START_BLOCK"); v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("START_BLOCK: %w", err)
		}
		c.Sync.StartBlock = n
	}
	if v := getenv("BLOCK_BATCH_SIZE"); v != "" {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("BLOCK_BATCH_SIZE: %w", err)
		}
		c.Sync.BatchSize = n
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Store.DSN = v
		c.Store.Driver = ""
	}
	if v := getenv("PORT"); v != "" {
		// allow PORT=3001 or PORT=:3001
		c.Server.ListenAddress = ":" + strings.TrimPrefix(v, ":")
	}
	return nil
}

// Resolve loads path, applies the environment and validates the common
// settings.
func Resolve(path string, getenv func(string) string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings every command needs.
func (c *Config) Validate() error {
	var errs []error
	if c.Sync.BatchSize == 0 {
		errs = append(errs, errors.New("sync.batch_size must be positive"))
	}
	if _, err := parseDuration(c.Sync.BatchDelay); err != nil {
		errs = append(errs, fmt.Errorf("sync.batch_delay: %w", err))
	}
	if _, err := parseDuration(c.Chain.ResubscribeDelay); err != nil {
		errs = append(errs, fmt.Errorf("chain.resubscribe_delay: %w", err))
	}
	if c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn is required"))
	}
	switch c.Store.Driver {
	case "", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not sqlite or postgres", c.Store.Driver))
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not text or json", c.Logging.Format))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateChain checks the settings needed for both synchronization paths.
func (c *Config) ValidateChain() error {
	var errs []error
	if err := c.ValidateQuery(); err != nil {
		errs = append(errs, err)
	}
	if c.Chain.WSURL == "" {
		errs = append(errs, errors.New("chain.ws_url (WS_URL) is required for realtime subscriptions"))
	}
	return errors.Join(errs...)
}

// ValidateQuery checks the settings needed for bounded range queries only.
func (c *Config) ValidateQuery() error {
	var errs []error
	if c.Chain.RPCURL == "" {
		errs = append(errs, errors.New("chain.rpc_url (RPC_URL) is required"))
	}
	if !common.IsHexAddress(c.Chain.ContractAddress) {
		errs = append(errs, fmt.Errorf("chain.contract_address (CONTRACT_ADDRESS) %q is not a hex address", c.Chain.ContractAddress))
	}
	return errors.Join(errs...)
}

// Contract returns the parsed contract address.
func (c *Config) Contract() common.Address {
	return common.HexToAddress(c.Chain.ContractAddress)
}

// BatchDelay returns the parsed inter-batch delay.
func (c *Config) BatchDelay() time.Duration {
	d, _ := parseDuration(c.Sync.BatchDelay)
	return d
}

// ResubscribeDelay returns the parsed subscription re-arm delay.
func (c *Config) ResubscribeDelay() time.Duration {
	d, _ := parseDuration(c.Chain.ResubscribeDelay)
	return d
}

// SlogLevel maps logging.level onto a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if c.Logging.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging.level: %w", err)
	}
	return lvl, nil
}

// parseDuration parses s; empty means zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}
