package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(137), cfg.Chain.ChainID)
	assert.Equal(t, 3*time.Minute, cfg.Chain.ConfirmTimeout.Duration)
	assert.Equal(t, "https://clob.polymarket.com", cfg.Polymarket.ClobHost)
}

func TestExampleFileMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	def := Defaults()
	assert.Equal(t, def.Chain, cfg.Chain)
	assert.Equal(t, def.Probe, cfg.Probe)
	assert.Equal(t, def.Redis, cfg.Redis)
	assert.Equal(t, def.Server, cfg.Server)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "polyvault.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "serve"

[chain]
rpc_url        = "http://localhost:8545"
log_scan_chunk = 5000
confirm_timeout = "90s"

[probe]
strategy = "sim"
`), 0o600))

	t.Setenv("POLYVAULT_CHAIN_ID", "80002")
	t.Setenv("POLYVAULT_WALLET_PRIVATE_KEY", "0xabc")
	t.Setenv("POLYVAULT_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("POLYVAULT_REDIS_LOCK_TTL", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, "http://localhost:8545", cfg.Chain.RPCURL)
	assert.Equal(t, uint64(5000), cfg.Chain.LogScanChunk)
	assert.Equal(t, 90*time.Second, cfg.Chain.ConfirmTimeout.Duration)
	assert.Equal(t, "sim", cfg.Probe.Strategy)
	assert.Equal(t, int64(80002), cfg.Chain.ChainID)
	assert.Equal(t, "0xabc", cfg.Wallet.PrivateKey)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 30*time.Second, cfg.Redis.LockTTL.Duration)
	// Untouched keys keep their defaults.
	assert.Equal(t, Defaults().Chain.FactoryAddress, cfg.Chain.FactoryAddress)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Chain.FactoryAddress = "0x0000000000000000000000000000000000000000"
	cfg.Chain.OracleAddress = "nope"
	cfg.Probe.Strategy = "random"
	cfg.Wallet.EncryptedKeyPath = "/keys/a.json"
	cfg.Notify.TelegramToken = "t"
	cfg.Notify.Events = []string{"order_filled"}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		"factory_address",
		"oracle_address",
		`unknown strategy "random"`,
		"key_password is required",
		"telegram_token and telegram_chat_id",
		`unknown event "order_filled"`,
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateOptionalSections(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = ""
	cfg.Audit.Enabled = true
	cfg.Audit.PoolMaxConns = 0
	cfg.S3.Enabled = true
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "audit: pool_max_conns")
	assert.Contains(t, err.Error(), "s3: bucket")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Audit.Password = "pw"
	cfg.Server.APIKey = "k"
	cfg.Notify.Events = []string{"vault_created"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Audit.Password)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "", out.Wallet.KeyPassword)

	out.Notify.Events[0] = "changed"
	assert.Equal(t, "0xdeadbeef", cfg.Wallet.PrivateKey)
	assert.Equal(t, "vault_created", cfg.Notify.Events[0])
}
