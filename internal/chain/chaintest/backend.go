// Package chaintest provides an in-memory chain.Backend for tests.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CallFunc answers an eth_call whose calldata starts with a registered
// selector.
type CallFunc func(from common.Address, data []byte) ([]byte, error)

// RevertError mimics the JSON-RPC error a node returns for a reverted call.
type RevertError struct{ Reason string }

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

// ErrorCode matches geth's revert error code.
func (e *RevertError) ErrorCode() int { return 3 }

// ErrorData returns the revert reason.
func (e *RevertError) ErrorData() interface{} { return e.Reason }

// Return builds a CallFunc that always answers with out.
func Return(out []byte) CallFunc {
	return func(common.Address, []byte) ([]byte, error) { return out, nil }
}

// Revert builds a CallFunc that always reverts.
func Revert(reason string) CallFunc {
	return func(common.Address, []byte) ([]byte, error) { return nil, &RevertError{Reason: reason} }
}

// Fail builds a CallFunc that fails with err.
func Fail(err error) CallFunc {
	return func(common.Address, []byte) ([]byte, error) { return nil, err }
}

// Sent is a transaction accepted by the backend.
type Sent struct {
	Tx   *types.Transaction
	From common.Address
}

// Backend is a scripted, concurrency-safe fake of a JSON-RPC node.
type Backend struct {
	mu sync.Mutex

	calls    map[common.Address]map[[4]byte]CallFunc
	logs     []types.Log
	head     uint64
	nonces   map[common.Address]uint64
	sent     []Sent
	receipts map[common.Hash]*types.Receipt
	callLog  []string

	// OnSend decides the receipt for each accepted transaction. Returning
	// nil leaves the transaction unmined. When OnSend is nil every
	// transaction is mined successfully with no logs.
	OnSend func(tx *types.Transaction, from common.Address) *types.Receipt

	// Injected failures.
	SendErr     error
	EstimateErr error
	LogsErr     error
	ReceiptErr  error
}

// New returns an empty Backend at block 100.
func New() *Backend {
	return &Backend{
		calls:    make(map[common.Address]map[[4]byte]CallFunc),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
		head:     100,
	}
}

// Handle registers fn for calls to contract whose calldata starts with
// selector.
func (b *Backend) Handle(contract common.Address, selector []byte, fn CallFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.calls[contract]
	if !ok {
		m = make(map[[4]byte]CallFunc)
		b.calls[contract] = m
	}
	var sel [4]byte
	copy(sel[:], selector)
	m[sel] = fn
}

// AddLog appends a log visible to FilterLogs.
func (b *Backend) AddLog(lg types.Log) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logs = append(b.logs, lg)
	if lg.BlockNumber > b.head {
		b.head = lg.BlockNumber
	}
}

// SetHead sets the value returned by BlockNumber.
func (b *Backend) SetHead(n uint64) {
	b.mu.Lock()
	b.head = n
	b.mu.Unlock()
}

// Sent returns every accepted transaction in submission order.
func (b *Backend) Sent() []Sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Sent(nil), b.sent...)
}

// Calls returns "to:selector" for every eth_call in order.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.callLog...)
}

// Mine stores receipt for hash, making a dropped transaction visible.
func (b *Backend) Mine(hash common.Hash, receipt *types.Receipt) {
	b.mu.Lock()
	defer b.mu.Unlock()
	receipt.TxHash = hash
	b.receipts[hash] = receipt
}

func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, &RevertError{}
	}
	var sel [4]byte
	copy(sel[:], msg.Data[:4])

	b.mu.Lock()
	b.callLog = append(b.callLog, fmt.Sprintf("%s:%x", msg.To.Hex(), sel))
	fn := b.calls[*msg.To][sel]
	b.mu.Unlock()

	if fn == nil {
		return nil, &RevertError{Reason: "no handler"}
	}
	return fn(msg.From, msg.Data)
}

func (b *Backend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.LogsErr != nil {
		return nil, b.LogsErr
	}
	var out []types.Log
	for _, lg := range b.logs {
		if matches(lg, q) {
			out = append(out, lg)
		}
	}
	return out, nil
}

func matches(lg types.Log, q ethereum.FilterQuery) bool {
	if q.FromBlock != nil && lg.BlockNumber < q.FromBlock.Uint64() {
		return false
	}
	if q.ToBlock != nil && lg.BlockNumber > q.ToBlock.Uint64() {
		return false
	}
	if len(q.Addresses) > 0 {
		found := false
		for _, a := range q.Addresses {
			if a == lg.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for i, alts := range q.Topics {
		if len(alts) == 0 {
			continue
		}
		if i >= len(lg.Topics) {
			return false
		}
		found := false
		for _, t := range alts {
			if t == lg.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (b *Backend) BlockNumber(context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.head, nil
}

func (b *Backend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

func (b *Backend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(30_000_000_000), nil
}

func (b *Backend) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.EstimateErr != nil {
		return 0, b.EstimateErr
	}
	return 100_000, nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return fmt.Errorf("chaintest: recover sender: %w", err)
	}

	b.mu.Lock()
	if b.SendErr != nil {
		err := b.SendErr
		b.mu.Unlock()
		return err
	}
	b.nonces[from] = tx.Nonce() + 1
	b.sent = append(b.sent, Sent{Tx: tx, From: from})
	b.head++
	block := b.head
	hook := b.OnSend
	b.mu.Unlock()

	var receipt *types.Receipt
	if hook != nil {
		receipt = hook(tx, from)
	} else {
		receipt = &types.Receipt{Status: types.ReceiptStatusSuccessful}
	}
	if receipt == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	receipt.TxHash = tx.Hash()
	receipt.BlockNumber = new(big.Int).SetUint64(block)
	for i, lg := range receipt.Logs {
		lg.TxHash = tx.Hash()
		lg.BlockNumber = block
		lg.Index = uint(i)
		b.logs = append(b.logs, *lg)
	}
	b.receipts[tx.Hash()] = receipt
	return nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ReceiptErr != nil {
		return nil, b.ReceiptErr
	}
	r, ok := b.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// ErrConnection stands in for a transport failure.
var ErrConnection = errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")
