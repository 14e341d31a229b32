package vault

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/polyvault/internal/domain"
)

// FetchResult is where a fetch-or-create ended up.
type FetchResult struct {
	Vault    common.Address
	Outcomes domain.OutcomeTokenPair
	Created  bool
	// Strategy names the probe that found an existing vault.
	Strategy string
	TxHash   common.Hash
	Receipt  *types.Receipt
}

// Resolver finds the vault for a key, creating it when probing finds none.
// Creation runs under a per-key lock and re-probes once the lock is held so
// the same key is never partitioned twice.
type Resolver struct {
	prober  *Prober
	creator *Creator
	locks   domain.LockManager
	lockTTL time.Duration
	logger  *slog.Logger
}

func NewResolver(prober *Prober, creator *Creator, locks domain.LockManager, lockTTL time.Duration, logger *slog.Logger) *Resolver {
	if locks == nil {
		locks = NewLocalLocks()
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &Resolver{
		prober:  prober,
		creator: creator,
		locks:   locks,
		lockTTL: lockTTL,
		logger:  logger.With(slog.String("component", "resolver")),
	}
}

// FetchOrCreate returns the existing vault for key or creates one.
func (r *Resolver) FetchOrCreate(ctx context.Context, signer domain.Signer, key domain.PartitionKey) (FetchResult, error) {
	if res, done, err := r.probe(ctx, signer, key); done {
		return res, err
	}

	unlock, err := r.locks.Acquire(ctx, "vault:create:"+key.String(), r.lockTTL)
	if err != nil {
		return FetchResult{}, fmt.Errorf("vault: fetch-or-create: %w", err)
	}
	defer unlock()

	if res, done, err := r.probe(ctx, signer, key); done {
		return res, err
	}

	created, err := r.creator.Create(ctx, signer, key)
	if err != nil {
		return FetchResult{Created: false, TxHash: created.TxHash, Receipt: created.Receipt}, err
	}
	r.prober.Remember(ctx, key, created.Vault, created.Outcomes)
	return FetchResult{
		Vault:    created.Vault,
		Outcomes: created.Outcomes,
		Created:  true,
		TxHash:   created.TxHash,
		Receipt:  created.Receipt,
	}, nil
}

// probe reports done=true when the caller must not go on to create.
func (r *Resolver) probe(ctx context.Context, signer domain.Signer, key domain.PartitionKey) (FetchResult, bool, error) {
	res := r.prober.Probe(ctx, signer.Address(), key)
	switch res.Status {
	case domain.ProbeFound:
		r.logger.InfoContext(ctx, "existing vault found",
			slog.String("vault", res.Vault.Hex()),
			slog.String("strategy", res.Strategy),
		)
		return FetchResult{Vault: res.Vault, Outcomes: res.Outcomes, Strategy: res.Strategy}, true, nil
	case domain.ProbeError:
		return FetchResult{}, true, fmt.Errorf("vault: probe %s via %s: %w", key, res.Strategy, res.Err)
	}
	return FetchResult{}, false, nil
}
