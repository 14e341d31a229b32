package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyvault/internal/config"
	"github.com/alanyoungcy/polyvault/internal/crypto"
	"github.com/alanyoungcy/polyvault/internal/domain"
)

func newTestApp(cfg config.Config) (*App, *bytes.Buffer) {
	var out bytes.Buffer
	a := New(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.out = &out
	return a, &out
}

func TestParseCommand(t *testing.T) {
	cmd, err := parseCommand([]string{"PUSH", "0xV", "1.5"})
	require.NoError(t, err)
	assert.Equal(t, command{name: "push", args: []string{"0xV", "1.5"}}, cmd)

	cmd, err = parseCommand([]string{"bind", "0xV"})
	require.NoError(t, err)
	assert.Equal(t, []string{"0xV"}, cmd.args)

	_, err = parseCommand([]string{"bind", "0xV", "0xP"})
	require.NoError(t, err)

	cmd, err = parseCommand([]string{"settle", "0xV", "3", "0xP"})
	require.NoError(t, err)
	assert.Equal(t, "0xP", cmd.arg(2))

	cmd, err = parseCommand([]string{"check", "0xV"})
	require.NoError(t, err)
	assert.Equal(t, "", cmd.arg(1), "omitted parent token")

	for _, bad := range [][]string{
		nil,
		{"trade"},
		{"push", "0xV"},
		{"push", "0xV", "1", "0xP", "extra"},
		{"check"},
		{"check", "0xV", "0xP", "extra"},
		{"serve", "now"},
	} {
		_, err := parseCommand(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestActionBudgetCoversTwoConfirmations(t *testing.T) {
	confirm := config.Defaults().Chain.ConfirmTimeout.Duration
	budget := actionBudget(confirm)
	assert.Greater(t, budget, 2*confirm)
	assert.Equal(t, 2*confirm+time.Minute, budget)
}

func TestRunRejectsBadCommandBeforeWiring(t *testing.T) {
	cfg := config.Defaults()
	cfg.Chain.RPCURL = "http://127.0.0.1:1"
	a, _ := newTestApp(cfg)

	err := a.Run(context.Background(), []string{"frobnicate"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "frobnicate"`)
	assert.Empty(t, a.closers)
}

func TestEncryptKey(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	want := ethcrypto.PubkeyToAddress(key.PublicKey)

	cfg := config.Defaults()
	cfg.Wallet.PrivateKey = hexutil.Encode(ethcrypto.FromECDSA(key))
	cfg.Wallet.KeyPassword = "hunter2"
	a, out := newTestApp(cfg)

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, a.Run(context.Background(), []string{"encrypt-key", path}))
	assert.Contains(t, out.String(), want.Hex())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	got, err := crypto.DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, want, ethcrypto.PubkeyToAddress(got.PublicKey))
}

func TestEncryptKeyRequiresKeyAndPassword(t *testing.T) {
	cfg := config.Defaults()
	a, _ := newTestApp(cfg)
	assert.Error(t, a.EncryptKey(filepath.Join(t.TempDir(), "k.json")))

	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	cfg.Wallet.PrivateKey = hexutil.Encode(ethcrypto.FromECDSA(key))
	a, _ = newTestApp(cfg)
	assert.Error(t, a.EncryptKey(filepath.Join(t.TempDir(), "k.json")))
}

func TestStatusPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &statusPrinter{w: &buf}
	p.SetStatus(context.Background(), domain.FieldSettle, "Not resolved yet")
	assert.Equal(t, "[settle] Not resolved yet\n", buf.String())
}
