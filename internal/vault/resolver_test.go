package vault

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyvault/internal/chain"
	"github.com/alanyoungcy/polyvault/internal/chain/chaintest"
	"github.com/alanyoungcy/polyvault/internal/domain"
)

func newResolver(e *env, locks domain.LockManager) (*Resolver, *Prober) {
	strategies, _ := StrategiesFor("log_then_sim", e.factory, chain.LogQuery{})
	p := NewProber(strategies, discardLogger())
	c := NewCreator(e.client, e.factory, nil, discardLogger())
	return NewResolver(p, c, locks, time.Minute, discardLogger()), p
}

func TestResolver_FoundNeverCreates(t *testing.T) {
	e := newEnv(t)
	e.backend.Handle(factoryAddr, chaintest.Selector("partition"), chaintest.Return(chaintest.PartitionOutput(vaultAddr, pair)))
	r, _ := newResolver(e, nil)

	res, err := r.FetchOrCreate(context.Background(), e.signer, testKey)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, vaultAddr, res.Vault)
	assert.Equal(t, pair, res.Outcomes)
	assert.Empty(t, e.backend.Sent())
}

func TestResolver_CreatesWhenAbsent(t *testing.T) {
	e := newEnv(t)
	e.backend.Handle(factoryAddr, chaintest.Selector("partition"), chaintest.Revert(""))
	e.mineCreation(testKey, vaultAddr, pair)
	r, p := newResolver(e, nil)

	res, err := r.FetchOrCreate(context.Background(), e.signer, testKey)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, vaultAddr, res.Vault)
	assert.Equal(t, pair, res.Outcomes)

	sent := e.backend.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "partition", chaintest.MethodOf(sent[0].Tx.Data()))
	assert.Equal(t, sent[0].Tx.Hash(), res.TxHash)

	// A created vault is found again with the same triple.
	again := p.Probe(context.Background(), e.signer.Address(), testKey)
	require.Equal(t, domain.ProbeFound, again.Status)
	assert.Equal(t, res.Vault, again.Vault)
	assert.Equal(t, res.Outcomes, again.Outcomes)

	// And a second resolve does not create again.
	res2, err := r.FetchOrCreate(context.Background(), e.signer, testKey)
	require.NoError(t, err)
	assert.False(t, res2.Created)
	assert.Len(t, e.backend.Sent(), 1)
}

func TestResolver_CreationReverted(t *testing.T) {
	e := newEnv(t)
	e.backend.Handle(factoryAddr, chaintest.Selector("partition"), chaintest.Revert(""))
	e.backend.OnSend = func(*types.Transaction, common.Address) *types.Receipt {
		return &types.Receipt{Status: types.ReceiptStatusFailed}
	}
	r, _ := newResolver(e, nil)

	_, err := r.FetchOrCreate(context.Background(), e.signer, testKey)
	require.ErrorIs(t, err, domain.ErrCreationFailed)
	assert.Equal(t, "creation_failed", domain.ErrorKind(err))
}

func TestResolver_CreationDropped(t *testing.T) {
	e := newEnv(t)
	e.backend.Handle(factoryAddr, chaintest.Selector("partition"), chaintest.Revert(""))
	e.backend.OnSend = func(*types.Transaction, common.Address) *types.Receipt { return nil }
	r, _ := newResolver(e, nil)

	res, err := r.FetchOrCreate(context.Background(), e.signer, testKey)
	require.ErrorIs(t, err, domain.ErrCreationFailed)
	assert.ErrorIs(t, err, domain.ErrTimedOut)
	assert.NotEqual(t, common.Hash{}, res.TxHash)
}

func TestResolver_EventMissing(t *testing.T) {
	e := newEnv(t)
	e.backend.Handle(factoryAddr, chaintest.Selector("partition"), chaintest.Revert(""))
	r, _ := newResolver(e, nil)

	res, err := r.FetchOrCreate(context.Background(), e.signer, testKey)
	require.ErrorIs(t, err, domain.ErrEventMissing)
	assert.Equal(t, "event_missing", domain.ErrorKind(err))
	assert.False(t, res.Created)
	assert.NotNil(t, res.Receipt)
}

func TestResolver_EventForOtherKey(t *testing.T) {
	e := newEnv(t)
	e.backend.Handle(factoryAddr, chaintest.Selector("partition"), chaintest.Revert(""))
	other := testKey
	other.QuestionID = common.HexToHash("0x01")
	e.mineCreation(other, vaultAddr, pair)
	r, _ := newResolver(e, nil)

	_, err := r.FetchOrCreate(context.Background(), e.signer, testKey)
	require.ErrorIs(t, err, domain.ErrEventMissing)
}

func TestResolver_ProbeErrorDoesNotCreate(t *testing.T) {
	e := newEnv(t)
	e.backend.Handle(factoryAddr, chaintest.Selector("partition"), chaintest.Fail(chaintest.ErrConnection))
	r, _ := newResolver(e, nil)

	_, err := r.FetchOrCreate(context.Background(), e.signer, testKey)
	require.ErrorIs(t, err, domain.ErrNetwork)
	assert.Empty(t, e.backend.Sent())
}

func TestResolver_LockHeld(t *testing.T) {
	e := newEnv(t)
	e.backend.Handle(factoryAddr, chaintest.Selector("partition"), chaintest.Revert(""))
	locks := NewLocalLocks()
	unlock, err := locks.Acquire(context.Background(), "vault:create:"+testKey.String(), time.Minute)
	require.NoError(t, err)
	defer unlock()
	r, _ := newResolver(e, locks)

	_, err = r.FetchOrCreate(context.Background(), e.signer, testKey)
	require.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Empty(t, e.backend.Sent())
}

// racingLocks simulates another process creating the vault while this one
// waits for the lock.
type racingLocks struct {
	*LocalLocks
	onAcquire func()
}

func (l racingLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.onAcquire()
	return l.LocalLocks.Acquire(ctx, key, ttl)
}

func TestResolver_ReprobesUnderLock(t *testing.T) {
	e := newEnv(t)
	e.backend.Handle(factoryAddr, chaintest.Selector("partition"), chaintest.Revert(""))
	locks := racingLocks{LocalLocks: NewLocalLocks(), onAcquire: func() {
		e.backend.AddLog(*chaintest.VaultCreatedLog(factoryAddr, testKey, vaultAddr, pair, 50))
	}}
	r, _ := newResolver(e, locks)

	res, err := r.FetchOrCreate(context.Background(), e.signer, testKey)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, vaultAddr, res.Vault)
	assert.Empty(t, e.backend.Sent())
}

func TestLocalLocks_ReleaseIsIdempotent(t *testing.T) {
	l := NewLocalLocks()
	unlock, err := l.Acquire(context.Background(), "k", 0)
	require.NoError(t, err)
	unlock()
	unlock()

	again, err := l.Acquire(context.Background(), "k", 0)
	require.NoError(t, err)
	_, err = l.Acquire(context.Background(), "k", 0)
	require.ErrorIs(t, err, domain.ErrLockHeld)
	again()
}
