// Package vault implements the partition-vault resolution protocol: probing
// for an existing vault, creating one when none exists, keeping the session's
// vault and parent-token binding consistent, and running push/pull/settle
// against the bound vault.
package vault

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyvault/internal/domain"
)

// Binding is the session's current vault and the parent token it splits.
// The two are always replaced together.
type Binding struct {
	Vault   common.Address     `json:"vault"`
	Parent  domain.ParentToken `json:"parent"`
	BoundAt time.Time          `json:"bound_at"`
}

// Session owns the connected signer and the current Binding. It is the only
// holder of the binding; every other component reads it through here.
type Session struct {
	wallet domain.Wallet

	connectMu sync.Mutex

	mu      sync.RWMutex
	signer  domain.Signer
	binding *Binding

	action sync.Mutex
}

// NewSession creates an unbound session over wallet.
func NewSession(wallet domain.Wallet) *Session {
	return &Session{wallet: wallet}
}

// Signer returns the connected signer, requesting accounts from the wallet
// on first use.
func (s *Session) Signer(ctx context.Context) (domain.Signer, error) {
	s.mu.RLock()
	signer := s.signer
	s.mu.RUnlock()
	if signer != nil {
		return signer, nil
	}

	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.mu.RLock()
	signer = s.signer
	s.mu.RUnlock()
	if signer != nil {
		return signer, nil
	}

	signer, err := s.wallet.RequestAccounts(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.signer = signer
	s.mu.Unlock()
	return signer, nil
}

// Account returns the connected address, or the zero address before the
// wallet has been connected.
func (s *Session) Account() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.signer == nil {
		return common.Address{}
	}
	return s.signer.Address()
}

// Binding returns a copy of the current binding.
func (s *Session) Binding() (Binding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.binding == nil {
		return Binding{}, false
	}
	return *s.binding, true
}

func (s *Session) bind(b Binding) {
	s.mu.Lock()
	s.binding = &b
	s.mu.Unlock()
}

// BeginAction claims the session for one user-triggered action. A second
// caller gets domain.ErrActionInFlight until end is called.
func (s *Session) BeginAction() (end func(), err error) {
	if !s.action.TryLock() {
		return nil, domain.ErrActionInFlight
	}
	return s.action.Unlock, nil
}
