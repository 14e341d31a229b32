package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYVAULT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYVAULT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "POLYVAULT_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "POLYVAULT_CHAIN_ID")
	setStr(&cfg.Chain.FactoryAddress, "POLYVAULT_CHAIN_FACTORY_ADDRESS")
	setStr(&cfg.Chain.OracleAddress, "POLYVAULT_CHAIN_ORACLE_ADDRESS")
	setUint64(&cfg.Chain.LogScanFromBlock, "POLYVAULT_CHAIN_LOG_SCAN_FROM_BLOCK")
	setUint64(&cfg.Chain.LogScanChunk, "POLYVAULT_CHAIN_LOG_SCAN_CHUNK")
	setDuration(&cfg.Chain.ConfirmTimeout, "POLYVAULT_CHAIN_CONFIRM_TIMEOUT")
	setDuration(&cfg.Chain.PollInterval, "POLYVAULT_CHAIN_POLL_INTERVAL")
	setFloat64(&cfg.Chain.GasLimitMultiplier, "POLYVAULT_CHAIN_GAS_LIMIT_MULTIPLIER")

	// ── Probe ──
	setStr(&cfg.Probe.Strategy, "POLYVAULT_PROBE_STRATEGY")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POLYVAULT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYVAULT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYVAULT_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYVAULT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "POLYVAULT_POLYMARKET_GAMMA_HOST")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYVAULT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYVAULT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYVAULT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYVAULT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYVAULT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYVAULT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYVAULT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "POLYVAULT_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.LockTTL, "POLYVAULT_REDIS_LOCK_TTL")

	// ── Audit ──
	setBool(&cfg.Audit.Enabled, "POLYVAULT_AUDIT_ENABLED")
	setStr(&cfg.Audit.DSN, "POLYVAULT_AUDIT_DSN")
	setStr(&cfg.Audit.DSN, "POLYVAULT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Audit.Host, "POLYVAULT_AUDIT_HOST")
	setInt(&cfg.Audit.Port, "POLYVAULT_AUDIT_PORT")
	setStr(&cfg.Audit.Database, "POLYVAULT_AUDIT_DATABASE")
	setStr(&cfg.Audit.User, "POLYVAULT_AUDIT_USER")
	setStr(&cfg.Audit.Password, "POLYVAULT_AUDIT_PASSWORD")
	setStr(&cfg.Audit.SSLMode, "POLYVAULT_AUDIT_SSL_MODE")
	setInt(&cfg.Audit.PoolMaxConns, "POLYVAULT_AUDIT_POOL_MAX_CONNS")
	setInt(&cfg.Audit.PoolMinConns, "POLYVAULT_AUDIT_POOL_MIN_CONNS")
	setDuration(&cfg.Audit.ConnTimeout, "POLYVAULT_AUDIT_CONN_TIMEOUT")
	setBool(&cfg.Audit.RunMigrations, "POLYVAULT_AUDIT_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYVAULT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYVAULT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYVAULT_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYVAULT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYVAULT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYVAULT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYVAULT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYVAULT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "POLYVAULT_S3_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYVAULT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYVAULT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYVAULT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "POLYVAULT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "POLYVAULT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "POLYVAULT_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYVAULT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYVAULT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYVAULT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYVAULT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYVAULT_MODE")
	setStr(&cfg.LogLevel, "POLYVAULT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
