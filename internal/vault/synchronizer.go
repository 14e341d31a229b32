package vault

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyvault/internal/chain"
	"github.com/alanyoungcy/polyvault/internal/domain"
)

// Synchronizer binds a vault address into the Session and publishes it to
// every registered view.
type Synchronizer struct {
	session *Session
	client  *chain.Client
	logger  *slog.Logger

	viewsMu sync.RWMutex
	views   []domain.VaultView

	now func() time.Time
}

func NewSynchronizer(session *Session, client *chain.Client, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		session: session,
		client:  client,
		logger:  logger.With(slog.String("component", "synchronizer")),
		now:     time.Now,
	}
}

// AddView registers a display of the current vault.
func (s *Synchronizer) AddView(v domain.VaultView) {
	s.viewsMu.Lock()
	s.views = append(s.views, v)
	s.viewsMu.Unlock()
}

// Sync binds vaultAddr. A string that is not yet a well-formed address is
// ignored and ok is false. The parent token is read from the vault; if the
// vault reverts on parent(), parentFallback is used, and when that is not an
// address either the call fails with domain.ErrMissingParentToken. On any
// error the previous binding is left untouched.
func (s *Synchronizer) Sync(ctx context.Context, vaultAddr, parentFallback string) (b Binding, ok bool, err error) {
	vaultAddr = strings.TrimSpace(vaultAddr)
	if !common.IsHexAddress(vaultAddr) {
		return Binding{}, false, nil
	}
	addr := common.HexToAddress(vaultAddr)

	signer, err := s.session.Signer(ctx)
	if err != nil {
		return Binding{}, false, fmt.Errorf("vault: sync: %w", err)
	}
	from := signer.Address()

	if cur, bound := s.session.Binding(); bound && cur.Vault == addr {
		s.publish(ctx, addr)
		return cur, true, nil
	}

	parent, err := chain.NewVault(s.client, addr).Parent(ctx, from)
	if err != nil {
		// Only a vault that cannot answer parent() is legacy; transport
		// failures are reported as they are.
		if !chain.IsRevert(err) {
			return Binding{}, false, fmt.Errorf("vault: sync %s: read parent: %w", addr.Hex(), err)
		}
		fallback := strings.TrimSpace(parentFallback)
		if !common.IsHexAddress(fallback) {
			return Binding{}, false, fmt.Errorf("vault: sync %s: %w", addr.Hex(), domain.ErrMissingParentToken)
		}
		s.logger.InfoContext(ctx, "vault has no parent(); using fallback",
			slog.String("vault", addr.Hex()),
			slog.String("parent", fallback),
			slog.String("error", err.Error()),
		)
		parent = common.HexToAddress(fallback)
	}

	decimals, err := chain.NewToken(s.client, parent).Decimals(ctx, from)
	if err != nil {
		return Binding{}, false, fmt.Errorf("vault: sync %s: read decimals of %s: %w", addr.Hex(), parent.Hex(), err)
	}

	b = Binding{
		Vault:   addr,
		Parent:  domain.ParentToken{Address: parent, Decimals: decimals},
		BoundAt: s.now(),
	}
	s.session.bind(b)
	s.logger.InfoContext(ctx, "vault bound",
		slog.String("vault", addr.Hex()),
		slog.String("parent", parent.Hex()),
		slog.Int("decimals", int(decimals)),
	)
	s.publish(ctx, addr)
	return b, true, nil
}

func (s *Synchronizer) publish(ctx context.Context, addr common.Address) {
	s.viewsMu.RLock()
	views := append([]domain.VaultView(nil), s.views...)
	s.viewsMu.RUnlock()
	for _, v := range views {
		v.ShowVault(ctx, addr)
	}
}
