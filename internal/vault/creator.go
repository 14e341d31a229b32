package vault

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyvault/internal/chain"
	"github.com/alanyoungcy/polyvault/internal/domain"
	"github.com/alanyoungcy/polyvault/internal/metrics"
)

// Creator submits partition transactions and reads the new vault back from
// the receipt.
type Creator struct {
	factory *chain.Factory
	client  *chain.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewCreator(client *chain.Client, factory *chain.Factory, m *metrics.Metrics, logger *slog.Logger) *Creator {
	return &Creator{
		factory: factory,
		client:  client,
		metrics: m,
		logger:  logger.With(slog.String("component", "creator")),
	}
}

// Create partitions key on chain. Callers must have probed key and seen
// NotFound. A reverted, dropped or unconfirmed transaction yields
// domain.ErrCreationFailed; a mined receipt without a matching VaultCreated
// log yields domain.ErrEventMissing with TxHash and Receipt still set.
func (c *Creator) Create(ctx context.Context, signer domain.Signer, key domain.PartitionKey) (domain.Creation, error) {
	if err := key.Validate(); err != nil {
		return domain.Creation{}, fmt.Errorf("vault: create: %w", err)
	}

	tx, err := c.factory.Partition(ctx, signer, key)
	if err != nil {
		return domain.Creation{}, fmt.Errorf("vault: create %s: %w: %w", key, domain.ErrCreationFailed, err)
	}
	c.logger.InfoContext(ctx, "partition submitted",
		slog.String("key", key.String()),
		slog.String("tx", tx.Hash().Hex()),
	)

	receipt, err := c.client.WaitMined(ctx, tx)
	if err != nil {
		return domain.Creation{TxHash: tx.Hash(), Receipt: receipt},
			fmt.Errorf("vault: create %s: %w: %w", key, domain.ErrCreationFailed, err)
	}

	created := domain.Creation{TxHash: tx.Hash(), Receipt: receipt}
	ev, err := c.factory.ParseVaultCreated(receipt)
	if err != nil {
		return created, fmt.Errorf("vault: create %s: %w", key, err)
	}
	if ev.ParentToken != key.ParentToken || ev.QuestionID != key.QuestionID {
		return created, fmt.Errorf("vault: create %s: event is for %s/%s: %w",
			key, ev.ParentToken.Hex(), ev.QuestionID.Hex(), domain.ErrEventMissing)
	}

	created.Vault = ev.Vault
	created.Outcomes = ev.Outcomes
	c.metrics.ObserveCreated()
	c.logger.InfoContext(ctx, "vault created",
		slog.String("vault", ev.Vault.Hex()),
		slog.String("yes", ev.Outcomes.Yes.Hex()),
		slog.String("no", ev.Outcomes.No.Hex()),
		slog.String("tx", tx.Hash().Hex()),
	)
	return created, nil
}
