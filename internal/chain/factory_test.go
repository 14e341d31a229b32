package chain_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyvault/internal/chain"
	"github.com/alanyoungcy/polyvault/internal/chain/chaintest"
	"github.com/alanyoungcy/polyvault/internal/domain"
)

var (
	factoryAddr = common.HexToAddress("0x63a9F0360e073688854099cc2A9Ca931B006a91A")
	oracleAddr  = common.HexToAddress("0x2F5e3684cb1F318ec51b00Edba38d79Ac2c0aA9d")
	parentAddr  = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	vaultAddr   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	pair        = domain.OutcomeTokenPair{
		Yes: common.HexToAddress("0x2222222222222222222222222222222222222222"),
		No:  common.HexToAddress("0x3333333333333333333333333333333333333333"),
	}
	testKey = domain.PartitionKey{
		ParentToken: parentAddr,
		Oracle:      oracleAddr,
		QuestionID:  common.HexToHash("0xabc123"),
	}
)

func TestFactory_SimulatePartition(t *testing.T) {
	b := chaintest.New()
	b.Handle(factoryAddr, chaintest.Selector("partition"), chaintest.Return(chaintest.PartitionOutput(vaultAddr, pair)))
	f := chain.NewFactory(newClient(b), factoryAddr)

	vault, outcomes, err := f.SimulatePartition(context.Background(), common.Address{9}, testKey)
	require.NoError(t, err)
	assert.Equal(t, vaultAddr, vault)
	assert.Equal(t, pair, outcomes)
	assert.Empty(t, b.Sent(), "simulation must not submit")
}

func TestFactory_SimulatePartitionRevert(t *testing.T) {
	b := chaintest.New()
	b.Handle(factoryAddr, chaintest.Selector("partition"), chaintest.Revert("exists"))
	f := chain.NewFactory(newClient(b), factoryAddr)

	_, _, err := f.SimulatePartition(context.Background(), common.Address{9}, testKey)
	require.ErrorIs(t, err, domain.ErrTransactionReverted)
}

func TestFactory_FindVaultCreatedLatest(t *testing.T) {
	b := chaintest.New()
	older := common.HexToAddress("0x4444444444444444444444444444444444444444")
	b.AddLog(*chaintest.VaultCreatedLog(factoryAddr, testKey, older, pair, 10))
	b.AddLog(*chaintest.VaultCreatedLog(factoryAddr, testKey, vaultAddr, pair, 20))

	other := testKey
	other.QuestionID = common.HexToHash("0xdef")
	b.AddLog(*chaintest.VaultCreatedLog(factoryAddr, other, common.Address{7}, pair, 30))
	// Same topics from a different emitter are ignored.
	b.AddLog(*chaintest.VaultCreatedLog(common.Address{8}, testKey, common.Address{8}, pair, 40))

	f := chain.NewFactory(newClient(b), factoryAddr)
	for _, chunk := range []uint64{0, 7} {
		ev, ok, err := f.FindVaultCreated(context.Background(), parentAddr, testKey.QuestionID, chain.LogQuery{ChunkSize: chunk})
		require.NoError(t, err)
		require.True(t, ok, "chunk %d", chunk)
		assert.Equal(t, vaultAddr, ev.Vault)
		assert.Equal(t, pair, ev.Outcomes)
		assert.Equal(t, parentAddr, ev.ParentToken)
		assert.Equal(t, uint64(20), ev.BlockNumber)
	}
}

func TestFactory_FindVaultCreatedNone(t *testing.T) {
	b := chaintest.New()
	f := chain.NewFactory(newClient(b), factoryAddr)

	_, ok, err := f.FindVaultCreated(context.Background(), parentAddr, testKey.QuestionID, chain.LogQuery{ChunkSize: 30})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFactory_ParseVaultCreated(t *testing.T) {
	f := chain.NewFactory(newClient(chaintest.New()), factoryAddr)

	t.Run("present", func(t *testing.T) {
		receipt := &types.Receipt{Logs: []*types.Log{
			{Address: parentAddr, Topics: []common.Hash{{1}}},
			chaintest.VaultCreatedLog(factoryAddr, testKey, vaultAddr, pair, 5),
		}}
		ev, err := f.ParseVaultCreated(receipt)
		require.NoError(t, err)
		assert.Equal(t, vaultAddr, ev.Vault)
		assert.Equal(t, pair, ev.Outcomes)
		assert.Equal(t, testKey.QuestionID, ev.QuestionID)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := f.ParseVaultCreated(&types.Receipt{Status: types.ReceiptStatusSuccessful})
		require.ErrorIs(t, err, domain.ErrEventMissing)
	})
}

func TestVault_ViewsAndWrites(t *testing.T) {
	b := chaintest.New()
	b.ScriptVault(vaultAddr, parentAddr, true, 1)
	b.ScriptToken(parentAddr, 6)
	c := newClient(b)
	v := chain.NewVault(c, vaultAddr)
	tok := chain.NewToken(c, parentAddr)
	ctx := context.Background()

	parent, err := v.Parent(ctx, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, parentAddr, parent)

	resolved, err := v.Resolved(ctx, common.Address{})
	require.NoError(t, err)
	assert.True(t, resolved)

	idx, err := v.WinningIndex(ctx, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, uint8(1), idx)

	dec, err := tok.Decimals(ctx, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, uint8(6), dec)

	signer := chaintest.NewSigner()
	_, err = tok.Approve(ctx, signer, vaultAddr, big.NewInt(123_000_000))
	require.NoError(t, err)
	_, err = v.PushDown(ctx, signer, big.NewInt(123_000_000))
	require.NoError(t, err)

	sent := b.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "approve", chaintest.MethodOf(sent[0].Tx.Data()))
	assert.Equal(t, parentAddr, *sent[0].Tx.To())
	assert.Equal(t, "pushDown", chaintest.MethodOf(sent[1].Tx.Data()))
	assert.Equal(t, big.NewInt(123_000_000), chaintest.Amount(sent[1].Tx.Data()))
	assert.Equal(t, vaultAddr, *sent[1].Tx.To())
}

func TestVault_RejectsOutOfRangeAmount(t *testing.T) {
	b := chaintest.New()
	v := chain.NewVault(newClient(b), vaultAddr)

	_, err := v.Settle(context.Background(), chaintest.NewSigner(), nil)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Empty(t, b.Sent())
}
