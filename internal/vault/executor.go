package vault

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/polyvault/internal/amount"
	"github.com/alanyoungcy/polyvault/internal/chain"
	"github.com/alanyoungcy/polyvault/internal/domain"
)

// Submission is what an action put on chain. Receipts line up with Hashes;
// a hash without a receipt was submitted but never confirmed.
type Submission struct {
	Amount   *big.Int
	Hashes   []common.Hash
	Receipts []*types.Receipt
}

func (s *Submission) add(tx *types.Transaction, r *types.Receipt) {
	s.Hashes = append(s.Hashes, tx.Hash())
	if r != nil {
		s.Receipts = append(s.Receipts, r)
	}
}

// Executor runs the user's state transitions against the bound vault.
type Executor struct {
	session *Session
	client  *chain.Client
	logger  *slog.Logger
}

func NewExecutor(session *Session, client *chain.Client, logger *slog.Logger) *Executor {
	return &Executor{
		session: session,
		client:  client,
		logger:  logger.With(slog.String("component", "executor")),
	}
}

// Push approves the vault for amount of the parent token, waits for the
// approval to be mined, then calls pushDown and waits again.
func (e *Executor) Push(ctx context.Context, rawAmount string) (Submission, error) {
	b, signer, amt, err := e.prepare(ctx, rawAmount)
	if err != nil {
		return Submission{}, err
	}
	sub := Submission{Amount: amt}

	approve, err := chain.NewToken(e.client, b.Parent.Address).Approve(ctx, signer, b.Vault, amt)
	if err != nil {
		return sub, fmt.Errorf("vault: push: approve: %w", err)
	}
	receipt, err := e.client.WaitMined(ctx, approve)
	sub.add(approve, receipt)
	if err != nil {
		return sub, fmt.Errorf("vault: push: approve: %w", err)
	}

	push, err := chain.NewVault(e.client, b.Vault).PushDown(ctx, signer, amt)
	if err != nil {
		return sub, fmt.Errorf("vault: push: pushDown: %w", err)
	}
	receipt, err = e.client.WaitMined(ctx, push)
	sub.add(push, receipt)
	if err != nil {
		return sub, fmt.Errorf("vault: push: pushDown: %w", err)
	}
	return sub, nil
}

// Pull merges amount of YES+NO back into the parent token.
func (e *Executor) Pull(ctx context.Context, rawAmount string) (Submission, error) {
	b, signer, amt, err := e.prepare(ctx, rawAmount)
	if err != nil {
		return Submission{}, err
	}
	return e.single(ctx, "pullUp", amt, func() (*types.Transaction, error) {
		return chain.NewVault(e.client, b.Vault).PullUp(ctx, signer, amt)
	})
}

// Settle redeems amount of the winning token. Resolution is enforced by the
// contract, not checked here.
func (e *Executor) Settle(ctx context.Context, rawAmount string) (Submission, error) {
	b, signer, amt, err := e.prepare(ctx, rawAmount)
	if err != nil {
		return Submission{}, err
	}
	return e.single(ctx, "settle", amt, func() (*types.Transaction, error) {
		return chain.NewVault(e.client, b.Vault).Settle(ctx, signer, amt)
	})
}

// CheckResolution reads resolved() and, only when it is true, winningIndex()
// from the bound vault.
func (e *Executor) CheckResolution(ctx context.Context) (domain.Resolution, error) {
	b, ok := e.session.Binding()
	if !ok {
		return domain.Resolution{}, domain.ErrNoVaultBound
	}
	return e.ResolutionAt(ctx, b.Vault)
}

// ResolutionAt is CheckResolution for an arbitrary vault. The session binding
// is neither required nor changed, so it serves vaults whose parent token is
// unknown.
func (e *Executor) ResolutionAt(ctx context.Context, vaultAddr common.Address) (domain.Resolution, error) {
	signer, err := e.session.Signer(ctx)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("vault: check: %w", err)
	}

	v := chain.NewVault(e.client, vaultAddr)
	resolved, err := v.Resolved(ctx, signer.Address())
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("vault: check: resolved: %w", err)
	}
	if !resolved {
		return domain.Resolution{}, nil
	}
	idx, err := v.WinningIndex(ctx, signer.Address())
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("vault: check: winningIndex: %w", err)
	}
	return domain.Resolution{Resolved: true, WinningIndex: idx}, nil
}

func (e *Executor) prepare(ctx context.Context, rawAmount string) (Binding, domain.Signer, *big.Int, error) {
	b, ok := e.session.Binding()
	if !ok {
		return Binding{}, nil, nil, domain.ErrNoVaultBound
	}
	amt, err := amount.Normalize(rawAmount, b.Parent.Decimals)
	if err != nil {
		return Binding{}, nil, nil, err
	}
	signer, err := e.session.Signer(ctx)
	if err != nil {
		return Binding{}, nil, nil, fmt.Errorf("vault: %w", err)
	}
	return b, signer, amt, nil
}

func (e *Executor) single(ctx context.Context, method string, amt *big.Int, send func() (*types.Transaction, error)) (Submission, error) {
	sub := Submission{Amount: amt}
	tx, err := send()
	if err != nil {
		return sub, fmt.Errorf("vault: %s: %w", method, err)
	}
	receipt, err := e.client.WaitMined(ctx, tx)
	sub.add(tx, receipt)
	if err != nil {
		return sub, fmt.Errorf("vault: %s: %w", method, err)
	}
	e.logger.InfoContext(ctx, method+" mined", slog.String("tx", tx.Hash().Hex()))
	return sub, nil
}
