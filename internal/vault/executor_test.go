package vault

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyvault/internal/chain/chaintest"
	"github.com/alanyoungcy/polyvault/internal/domain"
)

func TestExecutor_RequiresBinding(t *testing.T) {
	e := newEnv(t)
	x := NewExecutor(e.session, e.client, discardLogger())
	ctx := context.Background()

	_, err := x.Push(ctx, "1")
	assert.ErrorIs(t, err, domain.ErrNoVaultBound)
	_, err = x.Pull(ctx, "1")
	assert.ErrorIs(t, err, domain.ErrNoVaultBound)
	_, err = x.Settle(ctx, "1")
	assert.ErrorIs(t, err, domain.ErrNoVaultBound)
	_, err = x.CheckResolution(ctx)
	assert.ErrorIs(t, err, domain.ErrNoVaultBound)
	assert.Empty(t, e.backend.Sent())
}

func TestExecutor_PushApprovesThenPushes(t *testing.T) {
	e := newEnv(t)
	e.bindVault(t, 6)
	x := NewExecutor(e.session, e.client, discardLogger())

	sub, err := x.Push(context.Background(), "12.5")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(12_500_000), sub.Amount)
	require.Len(t, sub.Hashes, 2)
	require.Len(t, sub.Receipts, 2)

	sent := e.backend.Sent()
	require.Equal(t, []string{"approve", "pushDown"}, e.sentMethods())
	assert.Equal(t, parentAddr, *sent[0].Tx.To())
	assert.Equal(t, vaultAddr, *sent[1].Tx.To())
	assert.Equal(t, big.NewInt(12_500_000), chaintest.Amount(sent[0].Tx.Data()))
	assert.Equal(t, big.NewInt(12_500_000), chaintest.Amount(sent[1].Tx.Data()))
}

func TestExecutor_PushWaitsForApproval(t *testing.T) {
	e := newEnv(t)
	e.bindVault(t, 6)
	// The approval is never mined.
	e.backend.OnSend = func(*types.Transaction, common.Address) *types.Receipt { return nil }
	x := NewExecutor(e.session, e.client, discardLogger())

	sub, err := x.Push(context.Background(), "1")
	require.ErrorIs(t, err, domain.ErrTimedOut)
	assert.Equal(t, []string{"approve"}, e.sentMethods())
	assert.Len(t, sub.Hashes, 1)
	assert.Empty(t, sub.Receipts)
}

func TestExecutor_PushStopsOnRevertedApproval(t *testing.T) {
	e := newEnv(t)
	e.bindVault(t, 6)
	e.backend.OnSend = func(*types.Transaction, common.Address) *types.Receipt {
		return &types.Receipt{Status: types.ReceiptStatusFailed}
	}
	x := NewExecutor(e.session, e.client, discardLogger())

	_, err := x.Push(context.Background(), "1")
	require.ErrorIs(t, err, domain.ErrTransactionReverted)
	assert.Equal(t, []string{"approve"}, e.sentMethods())
}

func TestExecutor_PullAndSettleAreSingleCalls(t *testing.T) {
	e := newEnv(t)
	e.bindVault(t, 2)
	x := NewExecutor(e.session, e.client, discardLogger())

	sub, err := x.Pull(context.Background(), "3.25")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(325), sub.Amount)

	_, err = x.Settle(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"pullUp", "settle"}, e.sentMethods())
	for _, s := range e.backend.Sent() {
		assert.Equal(t, vaultAddr, *s.Tx.To())
	}
}

func TestExecutor_InvalidAmountSendsNothing(t *testing.T) {
	e := newEnv(t)
	e.bindVault(t, 1)
	x := NewExecutor(e.session, e.client, discardLogger())

	for _, in := range []string{"12.55", "-1", "abc", "", "1e3"} {
		_, err := x.Push(context.Background(), in)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount, in)
	}
	assert.Empty(t, e.backend.Sent())
}

func TestExecutor_CheckResolution(t *testing.T) {
	t.Run("unresolved skips winningIndex", func(t *testing.T) {
		e := newEnv(t)
		e.bindVault(t, 6)
		res, err := NewExecutor(e.session, e.client, discardLogger()).CheckResolution(context.Background())
		require.NoError(t, err)
		assert.False(t, res.Resolved)
		assert.True(t, e.called("resolved"))
		assert.False(t, e.called("winningIndex"))
	})

	t.Run("resolved", func(t *testing.T) {
		e := newEnv(t)
		e.bindVault(t, 6)
		e.backend.ScriptVault(vaultAddr, parentAddr, true, 1)
		res, err := NewExecutor(e.session, e.client, discardLogger()).CheckResolution(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.Resolution{Resolved: true, WinningIndex: 1}, res)
	})

	t.Run("unbound vault by address", func(t *testing.T) {
		e := newEnv(t)
		e.backend.ScriptVault(vaultAddr, parentAddr, true, 0)
		res, err := NewExecutor(e.session, e.client, discardLogger()).ResolutionAt(context.Background(), vaultAddr)
		require.NoError(t, err)
		assert.Equal(t, domain.Resolution{Resolved: true, WinningIndex: 0}, res)
		_, bound := e.session.Binding()
		assert.False(t, bound)
	})
}

func TestSession_BeginActionIsExclusive(t *testing.T) {
	s := NewSession(&fakeWallet{})
	end, err := s.BeginAction()
	require.NoError(t, err)

	_, err = s.BeginAction()
	require.ErrorIs(t, err, domain.ErrActionInFlight)

	end()
	end2, err := s.BeginAction()
	require.NoError(t, err)
	end2()
}
