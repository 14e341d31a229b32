// Package config defines the top-level configuration for polyvault and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYVAULT_* environment variables.
type Config struct {
	Chain      ChainConfig      `toml:"chain"`
	Probe      ProbeConfig      `toml:"probe"`
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Redis      RedisConfig      `toml:"redis"`
	Audit      AuditConfig      `toml:"audit"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// ChainConfig holds the RPC endpoint and the fixed contract addresses.
type ChainConfig struct {
	RPCURL         string `toml:"rpc_url"`
	ChainID        int64  `toml:"chain_id"`
	FactoryAddress string `toml:"factory_address"`
	OracleAddress  string `toml:"oracle_address"`

	// LogScanFromBlock is the first block searched for VaultCreated events.
	LogScanFromBlock uint64 `toml:"log_scan_from_block"`
	// LogScanChunk splits the scan into ranges of this many blocks; 0 issues
	// one query over the whole range.
	LogScanChunk uint64 `toml:"log_scan_chunk"`

	ConfirmTimeout     duration `toml:"confirm_timeout"`
	PollInterval       duration `toml:"poll_interval"`
	GasLimitMultiplier float64  `toml:"gas_limit_multiplier"`
}

// ProbeConfig selects the existence probing strategies and their order.
type ProbeConfig struct {
	Strategy string `toml:"strategy"` // log_then_sim, sim_then_log, sim, log
}

// WalletConfig holds the signing key source.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints.
type PolymarketConfig struct {
	ClobHost  string `toml:"clob_host"`
	GammaHost string `toml:"gamma_host"`
}

// RedisConfig holds Redis connection parameters. When disabled the creation
// lock and probe cache live in process memory.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	LockTTL    duration `toml:"lock_ttl"`
}

// AuditConfig holds the PostgreSQL connection for the action audit trail.
type AuditConfig struct {
	Enabled       bool     `toml:"enabled"`
	DSN           string   `toml:"dsn"`
	Host          string   `toml:"host"`
	Port          int      `toml:"port"`
	Database      string   `toml:"database"`
	User          string   `toml:"user"`
	Password      string   `toml:"password"`
	SSLMode       string   `toml:"ssl_mode"`
	PoolMaxConns  int      `toml:"pool_max_conns"`
	PoolMinConns  int      `toml:"pool_min_conns"`
	ConnTimeout   duration `toml:"conn_timeout"`
	RunMigrations bool     `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters for the receipt
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// duration wraps time.Duration to support TOML string decoding (e.g. "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:             "https://polygon-rpc.com",
			ChainID:            137,
			FactoryAddress:     "0x63a9F0360e073688854099cc2A9Ca931B006a91A",
			OracleAddress:      "0x2F5e3684cb1F318ec51b00Edba38d79Ac2c0aA9d",
			ConfirmTimeout:     duration{3 * time.Minute},
			PollInterval:       duration{2 * time.Second},
			GasLimitMultiplier: 1.2,
		},
		Probe: ProbeConfig{
			Strategy: "log_then_sim",
		},
		Polymarket: PolymarketConfig{
			ClobHost:  "https://clob.polymarket.com",
			GammaHost: "https://gamma-api.polymarket.com",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "polyvault",
			LockTTL:    duration{5 * time.Minute},
		},
		Audit: AuditConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			ConnTimeout:   duration{10 * time.Second},
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polyvault-receipts",
			ForcePathStyle: true,
			Prefix:         "receipts",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   60,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"vault_created", "action_failed"},
		},
		Mode:     "cli",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"cli":   true,
	"serve": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validProbeStrategies = map[string]bool{
	"":             true,
	"log_then_sim": true,
	"sim_then_log": true,
	"sim":          true,
	"log":          true,
}

var validNotifyEvents = map[string]bool{
	"vault_created":    true,
	"vault_found":      true,
	"action_succeeded": true,
	"action_failed":    true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: cli, serve)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if !isNonZeroAddress(c.Chain.FactoryAddress) {
		errs = append(errs, fmt.Sprintf("chain: factory_address %q is not a valid address", c.Chain.FactoryAddress))
	}
	if !isNonZeroAddress(c.Chain.OracleAddress) {
		errs = append(errs, fmt.Sprintf("chain: oracle_address %q is not a valid address", c.Chain.OracleAddress))
	}
	if c.Chain.ConfirmTimeout.Duration <= 0 {
		errs = append(errs, "chain: confirm_timeout must be > 0")
	}
	if c.Chain.PollInterval.Duration <= 0 {
		errs = append(errs, "chain: poll_interval must be > 0")
	}
	if c.Chain.GasLimitMultiplier != 0 && c.Chain.GasLimitMultiplier < 1 {
		errs = append(errs, "chain: gas_limit_multiplier must be >= 1")
	}

	if !validProbeStrategies[strings.ToLower(c.Probe.Strategy)] {
		errs = append(errs, fmt.Sprintf("probe: unknown strategy %q (valid: log_then_sim, sim_then_log, sim, log)", c.Probe.Strategy))
	}

	// Wallet. The key is only needed once an action runs, so a missing
	// source is not an error here; a half-configured encrypted source is.
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	if c.Polymarket.ClobHost == "" && c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: at least one of clob_host or gamma_host must be set")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Audit.Enabled {
		if strings.TrimSpace(c.Audit.DSN) == "" {
			if c.Audit.Host == "" {
				errs = append(errs, "audit: host must not be empty (or set audit.dsn)")
			}
			if c.Audit.Port <= 0 || c.Audit.Port > 65535 {
				errs = append(errs, fmt.Sprintf("audit: port must be 1-65535, got %d", c.Audit.Port))
			}
			if c.Audit.Database == "" {
				errs = append(errs, "audit: database must not be empty")
			}
		}
		if c.Audit.PoolMaxConns < 1 {
			errs = append(errs, "audit: pool_max_conns must be >= 1")
		}
		if c.Audit.PoolMinConns < 0 || c.Audit.PoolMinConns > c.Audit.PoolMaxConns {
			errs = append(errs, "audit: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.S3.Enabled {
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if c.Server.Enabled || strings.EqualFold(c.Mode, "serve") {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, ev := range c.Notify.Events {
		if !validNotifyEvents[ev] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q", ev))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isNonZeroAddress(s string) bool {
	return common.IsHexAddress(s) && common.HexToAddress(s) != (common.Address{})
}
