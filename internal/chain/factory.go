package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/polyvault/internal/domain"
)

// VaultCreatedEvent is a decoded factory VaultCreated log.
type VaultCreatedEvent struct {
	ParentToken common.Address
	QuestionID  common.Hash
	Vault       common.Address
	Outcomes    domain.OutcomeTokenPair
	BlockNumber uint64
	Index       uint
	TxHash      common.Hash
}

// Factory binds the partition factory contract.
type Factory struct {
	client  *Client
	address common.Address
}

// NewFactory binds the factory at address.
func NewFactory(client *Client, address common.Address) *Factory {
	return &Factory{client: client, address: address}
}

// Address returns the factory contract address.
func (f *Factory) Address() common.Address { return f.address }

// SimulatePartition evaluates partition(key) as a read-only call from the
// given account. Nothing is submitted.
func (f *Factory) SimulatePartition(ctx context.Context, from common.Address, key domain.PartitionKey) (common.Address, domain.OutcomeTokenPair, error) {
	data, err := FactoryABI.Pack("partition", key.ParentToken, key.Oracle, key.QuestionID)
	if err != nil {
		return common.Address{}, domain.OutcomeTokenPair{}, fmt.Errorf("chain: pack partition: %w", err)
	}
	out, err := f.client.Call(ctx, from, f.address, data)
	if err != nil {
		return common.Address{}, domain.OutcomeTokenPair{}, err
	}
	values, err := FactoryABI.Unpack("partition", out)
	if err != nil || len(values) != 3 {
		return common.Address{}, domain.OutcomeTokenPair{}, fmt.Errorf("chain: decode partition result: %w: %v", domain.ErrTransactionReverted, err)
	}
	vault, _ := values[0].(common.Address)
	yes, _ := values[1].(common.Address)
	no, _ := values[2].(common.Address)
	return vault, domain.OutcomeTokenPair{Yes: yes, No: no}, nil
}

// Partition submits partition(key) and returns the pending transaction.
func (f *Factory) Partition(ctx context.Context, signer domain.Signer, key domain.PartitionKey) (*types.Transaction, error) {
	data, err := FactoryABI.Pack("partition", key.ParentToken, key.Oracle, key.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("chain: pack partition: %w", err)
	}
	return f.client.Transact(ctx, signer, f.address, data)
}

// LogQuery bounds a VaultCreated scan.
type LogQuery struct {
	FromBlock uint64
	// ChunkSize splits the range into windows of at most this many blocks.
	// Zero queries the whole range at once.
	ChunkSize uint64
}

// FindVaultCreated returns the most recent VaultCreated event emitted by the
// factory for the parent token and question ID. ok is false when none exists.
func (f *Factory) FindVaultCreated(ctx context.Context, parent common.Address, questionID common.Hash, q LogQuery) (ev VaultCreatedEvent, ok bool, err error) {
	topics := [][]common.Hash{
		{FactoryABI.Events[EventVaultCreated].ID},
		{common.BytesToHash(parent.Bytes())},
		{questionID},
	}

	if q.ChunkSize == 0 {
		logs, err := f.client.backend.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(q.FromBlock),
			Addresses: []common.Address{f.address},
			Topics:    topics,
		})
		if err != nil {
			return VaultCreatedEvent{}, false, classify("filter VaultCreated", err)
		}
		return f.latest(logs)
	}

	head, err := f.client.backend.BlockNumber(ctx)
	if err != nil {
		return VaultCreatedEvent{}, false, classify("block number", err)
	}
	if head < q.FromBlock {
		return VaultCreatedEvent{}, false, nil
	}
	// Walk backwards so the newest window that matches wins.
	for end := head; ; {
		start := q.FromBlock
		if end >= q.ChunkSize && end-q.ChunkSize+1 > start {
			start = end - q.ChunkSize + 1
		}
		logs, err := f.client.backend.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{f.address},
			Topics:    topics,
		})
		if err != nil {
			return VaultCreatedEvent{}, false, classify("filter VaultCreated", err)
		}
		if ev, ok, err := f.latest(logs); err != nil || ok {
			return ev, ok, err
		}
		if start <= q.FromBlock {
			return VaultCreatedEvent{}, false, nil
		}
		end = start - 1
	}
}

func (f *Factory) latest(logs []types.Log) (VaultCreatedEvent, bool, error) {
	var (
		best  VaultCreatedEvent
		found bool
	)
	for i := range logs {
		ev, err := f.decode(&logs[i])
		if err != nil {
			return VaultCreatedEvent{}, false, err
		}
		if !found || ev.BlockNumber > best.BlockNumber ||
			(ev.BlockNumber == best.BlockNumber && ev.Index > best.Index) {
			best, found = ev, true
		}
	}
	return best, found, nil
}

// ParseVaultCreated extracts the VaultCreated event from a creation receipt.
// Logs from other contracts are ignored.
func (f *Factory) ParseVaultCreated(receipt *types.Receipt) (VaultCreatedEvent, error) {
	if receipt != nil {
		for _, lg := range receipt.Logs {
			if lg.Address != f.address || len(lg.Topics) == 0 ||
				lg.Topics[0] != FactoryABI.Events[EventVaultCreated].ID {
				continue
			}
			return f.decode(lg)
		}
	}
	return VaultCreatedEvent{}, fmt.Errorf("chain: receipt has no %s log: %w", EventVaultCreated, domain.ErrEventMissing)
}

func (f *Factory) decode(lg *types.Log) (VaultCreatedEvent, error) {
	if len(lg.Topics) != 3 {
		return VaultCreatedEvent{}, fmt.Errorf("chain: %s log has %d topics: %w", EventVaultCreated, len(lg.Topics), domain.ErrEventMissing)
	}
	values, err := FactoryABI.Unpack(EventVaultCreated, lg.Data)
	if err != nil || len(values) != 3 {
		return VaultCreatedEvent{}, fmt.Errorf("chain: decode %s: %w: %v", EventVaultCreated, domain.ErrEventMissing, err)
	}
	vault, _ := values[0].(common.Address)
	yes, _ := values[1].(common.Address)
	no, _ := values[2].(common.Address)
	return VaultCreatedEvent{
		ParentToken: common.BytesToAddress(lg.Topics[1].Bytes()),
		QuestionID:  lg.Topics[2],
		Vault:       vault,
		Outcomes:    domain.OutcomeTokenPair{Yes: yes, No: no},
		BlockNumber: lg.BlockNumber,
		Index:       lg.Index,
		TxHash:      lg.TxHash,
	}, nil
}
