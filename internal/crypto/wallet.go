package crypto

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/polyvault/internal/domain"
)

// KeyWallet is a domain.Wallet backed by a configured key source. The key is
// loaded on the first RequestAccounts and reused afterwards.
type KeyWallet struct {
	src    KeySource
	logger *slog.Logger

	mu     sync.Mutex
	signer *Signer
}

// NewKeyWallet creates a wallet over src. Nothing is read until the first
// RequestAccounts call.
func NewKeyWallet(src KeySource, logger *slog.Logger) *KeyWallet {
	return &KeyWallet{src: src, logger: logger.With(slog.String("component", "wallet"))}
}

// RequestAccounts returns the session signer, loading the key if needed.
// Without a key source it fails with domain.ErrWalletUnavailable.
func (w *KeyWallet) RequestAccounts(ctx context.Context) (domain.Signer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.signer != nil {
		return w.signer, nil
	}
	if !w.src.Configured() {
		return nil, domain.ErrWalletUnavailable
	}
	key, err := LoadKey(w.src)
	if err != nil {
		return nil, err
	}
	w.signer = NewSigner(key)
	w.logger.InfoContext(ctx, "wallet connected", slog.String("account", w.signer.Address().Hex()))
	return w.signer, nil
}
