package vault

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyvault/internal/chain"
	"github.com/alanyoungcy/polyvault/internal/chain/chaintest"
	"github.com/alanyoungcy/polyvault/internal/domain"
)

func TestSimulationStrategy(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		e := newEnv(t)
		e.backend.Handle(factoryAddr, chaintest.Selector("partition"), chaintest.Return(chaintest.PartitionOutput(vaultAddr, pair)))
		res := NewSimulationStrategy(e.factory).Probe(ctx, e.signer.Address(), testKey)
		assert.Equal(t, domain.ProbeFound, res.Status)
		assert.Equal(t, vaultAddr, res.Vault)
		assert.Equal(t, pair, res.Outcomes)
		assert.Empty(t, e.backend.Sent())
	})

	t.Run("revert is not found", func(t *testing.T) {
		e := newEnv(t)
		e.backend.Handle(factoryAddr, chaintest.Selector("partition"), chaintest.Revert("vault exists"))
		res := NewSimulationStrategy(e.factory).Probe(ctx, e.signer.Address(), testKey)
		assert.Equal(t, domain.ProbeNotFound, res.Status)
	})

	t.Run("transport failure is an error", func(t *testing.T) {
		e := newEnv(t)
		e.backend.Handle(factoryAddr, chaintest.Selector("partition"), chaintest.Fail(chaintest.ErrConnection))
		res := NewSimulationStrategy(e.factory).Probe(ctx, e.signer.Address(), testKey)
		assert.Equal(t, domain.ProbeError, res.Status)
		assert.ErrorIs(t, res.Err, domain.ErrNetwork)
	})
}

func TestLogScanStrategy(t *testing.T) {
	ctx := context.Background()

	t.Run("latest match", func(t *testing.T) {
		e := newEnv(t)
		e.backend.AddLog(*chaintest.VaultCreatedLog(factoryAddr, testKey, common.Address{1}, pair, 5))
		e.backend.AddLog(*chaintest.VaultCreatedLog(factoryAddr, testKey, vaultAddr, pair, 9))
		res := NewLogScanStrategy(e.factory, chain.LogQuery{}).Probe(ctx, common.Address{}, testKey)
		require.Equal(t, domain.ProbeFound, res.Status)
		assert.Equal(t, vaultAddr, res.Vault)
	})

	t.Run("no match", func(t *testing.T) {
		e := newEnv(t)
		res := NewLogScanStrategy(e.factory, chain.LogQuery{}).Probe(ctx, common.Address{}, testKey)
		assert.Equal(t, domain.ProbeNotFound, res.Status)
	})

	t.Run("query failure", func(t *testing.T) {
		e := newEnv(t)
		e.backend.LogsErr = chaintest.ErrConnection
		res := NewLogScanStrategy(e.factory, chain.LogQuery{}).Probe(ctx, common.Address{}, testKey)
		assert.Equal(t, domain.ProbeError, res.Status)
	})
}

func TestProber_FallsBackToSimulation(t *testing.T) {
	e := newEnv(t)
	e.backend.Handle(factoryAddr, chaintest.Selector("partition"), chaintest.Return(chaintest.PartitionOutput(vaultAddr, pair)))
	strategies, err := StrategiesFor("log_then_sim", e.factory, chain.LogQuery{})
	require.NoError(t, err)

	res := NewProber(strategies, discardLogger()).Probe(context.Background(), e.signer.Address(), testKey)
	require.Equal(t, domain.ProbeFound, res.Status)
	assert.Equal(t, StrategySimulation, res.Strategy)
}

func TestProber_RepeatedProbesAgree(t *testing.T) {
	e := newEnv(t)
	e.backend.AddLog(*chaintest.VaultCreatedLog(factoryAddr, testKey, vaultAddr, pair, 9))
	strategies, err := StrategiesFor("", e.factory, chain.LogQuery{})
	require.NoError(t, err)
	p := NewProber(strategies, discardLogger())

	first := p.Probe(context.Background(), e.signer.Address(), testKey)
	for i := 0; i < 3; i++ {
		again := p.Probe(context.Background(), e.signer.Address(), testKey)
		assert.Equal(t, first.Status, again.Status)
		assert.Equal(t, first.Vault, again.Vault)
		assert.Equal(t, first.Outcomes, again.Outcomes)
	}
}

func TestProber_CacheAnswersFoundOnly(t *testing.T) {
	e := newEnv(t)
	cache := NewMemoryProbeCache()
	strategies, err := StrategiesFor("sim", e.factory, chain.LogQuery{})
	require.NoError(t, err)
	p := NewProber(strategies, discardLogger(), WithProbeCache(cache))
	ctx := context.Background()

	e.backend.Handle(factoryAddr, chaintest.Selector("partition"), chaintest.Revert(""))
	assert.Equal(t, domain.ProbeNotFound, p.Probe(ctx, e.signer.Address(), testKey).Status)
	_, cached, _ := cache.Get(ctx, testKey)
	assert.False(t, cached, "NotFound must not be cached")

	e.backend.Handle(factoryAddr, chaintest.Selector("partition"), chaintest.Return(chaintest.PartitionOutput(vaultAddr, pair)))
	require.Equal(t, domain.ProbeFound, p.Probe(ctx, e.signer.Address(), testKey).Status)

	calls := len(e.backend.Calls())
	res := p.Probe(ctx, e.signer.Address(), testKey)
	assert.Equal(t, domain.ProbeFound, res.Status)
	assert.Equal(t, vaultAddr, res.Vault)
	assert.Equal(t, "cache", res.Strategy)
	assert.Len(t, e.backend.Calls(), calls)
}

func TestProber_InvalidKey(t *testing.T) {
	e := newEnv(t)
	strategies, err := StrategiesFor("sim", e.factory, chain.LogQuery{})
	require.NoError(t, err)
	bad := testKey
	bad.Oracle = common.Address{}

	res := NewProber(strategies, discardLogger()).Probe(context.Background(), e.signer.Address(), bad)
	assert.Equal(t, domain.ProbeError, res.Status)
	assert.ErrorIs(t, res.Err, domain.ErrInvalidAddress)
	assert.Empty(t, e.backend.Calls())
}

func TestStrategiesFor(t *testing.T) {
	e := newEnv(t)
	for order, want := range map[string][]string{
		"log_then_sim": {StrategyLogScan, StrategySimulation},
		"sim_then_log": {StrategySimulation, StrategyLogScan},
		"sim":          {StrategySimulation},
		"log":          {StrategyLogScan},
	} {
		got, err := StrategiesFor(order, e.factory, chain.LogQuery{})
		require.NoError(t, err)
		var names []string
		for _, s := range got {
			names = append(names, s.Name())
		}
		assert.Equal(t, want, names, order)
	}
	_, err := StrategiesFor("random", e.factory, chain.LogQuery{})
	assert.Error(t, err)
}

func TestProber_ScanFailureIsNotMaskedBySimulation(t *testing.T) {
	e := newEnv(t)
	e.backend.LogsErr = chaintest.ErrConnection
	e.backend.Handle(factoryAddr, chaintest.Selector("partition"), chaintest.Revert("already exists"))
	strategies, err := StrategiesFor("log_then_sim", e.factory, chain.LogQuery{})
	require.NoError(t, err)

	res := NewProber(strategies, discardLogger()).Probe(context.Background(), e.signer.Address(), testKey)
	assert.Equal(t, domain.ProbeError, res.Status)
	assert.Equal(t, StrategyLogScan, res.Strategy)
	assert.ErrorIs(t, res.Err, domain.ErrNetwork)
}
