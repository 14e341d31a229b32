package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"path"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/polyvault/internal/domain"
)

// ReceiptArchiver uploads mined receipts as JSON to
// <prefix>/<chainID>/<txHash>.json.
type ReceiptArchiver struct {
	writer  domain.BlobWriter
	prefix  string
	chainID *big.Int
	logger  *slog.Logger
}

// archivedReceipt wraps a receipt with the action that produced it.
type archivedReceipt struct {
	Action     domain.Action  `json:"action"`
	Vault      string         `json:"vault,omitempty"`
	ArchivedAt time.Time      `json:"archived_at"`
	Receipt    *types.Receipt `json:"receipt"`
}

func NewReceiptArchiver(w domain.BlobWriter, prefix string, chainID *big.Int, logger *slog.Logger) *ReceiptArchiver {
	return &ReceiptArchiver{
		writer:  w,
		prefix:  prefix,
		chainID: chainID,
		logger:  logger.With(slog.String("component", "receipt_archiver")),
	}
}

// Key returns the object key for txHash.
func (a *ReceiptArchiver) Key(txHash string) string {
	return path.Join(a.prefix, a.chainID.String(), txHash+".json")
}

// Archive uploads every receipt. It keeps going after a failed upload and
// returns the first error.
func (a *ReceiptArchiver) Archive(ctx context.Context, action domain.Action, vault string, receipts []*types.Receipt) error {
	var firstErr error
	for _, r := range receipts {
		if r == nil {
			continue
		}
		body, err := json.Marshal(archivedReceipt{
			Action:     action,
			Vault:      vault,
			ArchivedAt: time.Now().UTC(),
			Receipt:    r,
		})
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("s3blob: marshal receipt %s: %w", r.TxHash.Hex(), err)
			}
			continue
		}
		key := a.Key(r.TxHash.Hex())
		if err := a.writer.Put(ctx, key, bytes.NewReader(body), "application/json"); err != nil {
			a.logger.WarnContext(ctx, "receipt upload failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		a.logger.DebugContext(ctx, "receipt archived", slog.String("key", key))
	}
	return firstErr
}
