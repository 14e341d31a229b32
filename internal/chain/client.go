// Package chain talks to an EVM JSON-RPC endpoint: read-only simulated calls,
// event log queries, signed transaction submission and confirmation waits for
// the partition factory, its vaults and ERC-20 parent tokens.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/alanyoungcy/polyvault/internal/domain"
)

// Backend is the subset of *ethclient.Client this package needs.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Options tunes transaction submission and confirmation.
type Options struct {
	// ConfirmTimeout bounds every confirmation wait. Expiry yields
	// domain.ErrTimedOut.
	ConfirmTimeout time.Duration
	// PollInterval is the receipt polling period.
	PollInterval time.Duration
	// GasLimitMultiplier scales the node's gas estimate. Values <= 1 use the
	// estimate unchanged.
	GasLimitMultiplier float64
	// OnConfirm, when set, observes how long each successful wait took.
	OnConfirm func(time.Duration)
}

// Client wraps a Backend with the chain ID used for signing.
type Client struct {
	backend Backend
	chainID *big.Int
	opts    Options
	logger  *slog.Logger
}

// Dial connects to the JSON-RPC endpoint at rawURL.
func Dial(ctx context.Context, rawURL string) (*ethclient.Client, error) {
	ec, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w: %v", rawURL, domain.ErrNetwork, err)
	}
	return ec, nil
}

// NewClient creates a Client. Zero-valued options fall back to a three
// minute confirmation timeout and a two second poll interval.
func NewClient(backend Backend, chainID int64, opts Options, logger *slog.Logger) *Client {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 3 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Client{
		backend: backend,
		chainID: big.NewInt(chainID),
		opts:    opts,
		logger:  logger.With(slog.String("component", "chain")),
	}
}

// ChainID returns the chain ID transactions are signed for.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Call performs a read-only eth_call against the latest block.
func (c *Client) Call(ctx context.Context, from, to common.Address, data []byte) ([]byte, error) {
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, classify("call "+to.Hex(), err)
	}
	return out, nil
}

// Transact builds, signs and submits a legacy transaction calling to with
// data. It returns as soon as the node accepts the transaction.
func (c *Client) Transact(ctx context.Context, signer domain.Signer, to common.Address, data []byte) (*types.Transaction, error) {
	from := signer.Address()

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, classify("pending nonce", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, classify("suggest gas price", err)
	}
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return nil, classify("estimate gas", err)
	}
	if m := c.opts.GasLimitMultiplier; m > 1 {
		gas = uint64(float64(gas) * m)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    new(big.Int),
		Data:     data,
	})
	signed, err := signer.SignTx(tx, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("chain: sign tx: %w: %v", domain.ErrWalletUnavailable, err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, classify("send tx", err)
	}

	c.logger.InfoContext(ctx, "transaction submitted",
		slog.String("tx", signed.Hash().Hex()),
		slog.String("to", to.Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas", gas),
	)
	return signed, nil
}

// WaitMined polls for the receipt of tx until it is mined, the confirmation
// timeout expires (domain.ErrTimedOut) or ctx is cancelled. A mined but
// failed transaction returns its receipt together with
// domain.ErrTransactionReverted.
func (c *Client) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	hash := tx.Hash()
	start := time.Now()

	waitCtx, cancel := context.WithTimeout(ctx, c.opts.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			if c.opts.OnConfirm != nil {
				c.opts.OnConfirm(time.Since(start))
			}
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("chain: tx %s: %w", hash.Hex(), domain.ErrTransactionReverted)
			}
			c.logger.InfoContext(ctx, "transaction mined",
				slog.String("tx", hash.Hex()),
				slog.Uint64("block", receipt.BlockNumber.Uint64()),
				slog.Uint64("gas_used", receipt.GasUsed),
			)
			return receipt, nil
		}
		if waitCtx.Err() == nil && err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, classify("receipt "+hash.Hex(), err)
		}

		select {
		case <-waitCtx.Done():
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("chain: wait %s: %w", hash.Hex(), ctxErr)
			}
			return nil, fmt.Errorf("chain: wait %s after %s: %w", hash.Hex(), c.opts.ConfirmTimeout, domain.ErrTimedOut)
		case <-ticker.C:
		}
	}
}

// SendAndWait is Transact followed by WaitMined.
func (c *Client) SendAndWait(ctx context.Context, signer domain.Signer, to common.Address, data []byte) (*types.Receipt, error) {
	tx, err := c.Transact(ctx, signer, to, data)
	if err != nil {
		return nil, err
	}
	return c.WaitMined(ctx, tx)
}

// IsRevert reports whether err is a node-reported execution revert as
// opposed to a transport or availability failure.
func IsRevert(err error) bool {
	return errors.Is(err, domain.ErrTransactionReverted)
}

// classify wraps a backend error with the matching domain sentinel. Context
// errors pass through so callers can tell cancellation apart.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("chain: %s: %w", op, err)
	}
	if revertErr(err) {
		return fmt.Errorf("chain: %s: %w: %v", op, domain.ErrTransactionReverted, err)
	}
	return fmt.Errorf("chain: %s: %w: %v", op, domain.ErrNetwork, err)
}

// revertCode is the JSON-RPC error code geth uses for execution reverts.
const revertCode = 3

func revertErr(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertCode {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
