package vault

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polyvault/internal/chain"
	"github.com/alanyoungcy/polyvault/internal/domain"
	"github.com/alanyoungcy/polyvault/internal/metrics"
)

const (
	StrategySimulation = "simulation"
	StrategyLogScan    = "log_scan"
	strategyCache      = "cache"
)

// Strategy is one way of answering "does a vault exist for this key".
type Strategy interface {
	Name() string
	Probe(ctx context.Context, from common.Address, key domain.PartitionKey) domain.ProbeResult
}

// SimulationStrategy evaluates partition as a read-only call. A revert means
// NotFound; it cannot tell "no vault" apart from any other revert reason.
type SimulationStrategy struct {
	factory *chain.Factory
}

func NewSimulationStrategy(factory *chain.Factory) *SimulationStrategy {
	return &SimulationStrategy{factory: factory}
}

func (s *SimulationStrategy) Name() string { return StrategySimulation }

func (s *SimulationStrategy) Probe(ctx context.Context, from common.Address, key domain.PartitionKey) domain.ProbeResult {
	vault, outcomes, err := s.factory.SimulatePartition(ctx, from, key)
	switch {
	case chain.IsRevert(err):
		return domain.NotFound(StrategySimulation)
	case err != nil:
		return domain.ProbeFailed(StrategySimulation, err)
	case vault == (common.Address{}):
		return domain.NotFound(StrategySimulation)
	}
	return domain.Found(StrategySimulation, vault, outcomes)
}

// LogScanStrategy searches the factory's VaultCreated history. The oracle is
// not an indexed event field, so matches are by parent token and question ID.
type LogScanStrategy struct {
	factory *chain.Factory
	query   chain.LogQuery
}

func NewLogScanStrategy(factory *chain.Factory, query chain.LogQuery) *LogScanStrategy {
	return &LogScanStrategy{factory: factory, query: query}
}

func (s *LogScanStrategy) Name() string { return StrategyLogScan }

func (s *LogScanStrategy) Probe(ctx context.Context, _ common.Address, key domain.PartitionKey) domain.ProbeResult {
	ev, ok, err := s.factory.FindVaultCreated(ctx, key.ParentToken, key.QuestionID, s.query)
	if err != nil {
		return domain.ProbeFailed(StrategyLogScan, err)
	}
	if !ok {
		return domain.NotFound(StrategyLogScan)
	}
	return domain.Found(StrategyLogScan, ev.Vault, ev.Outcomes)
}

// Prober runs strategies in order and stops at the first Found. When none
// finds a vault the first ProbeError stands, otherwise NotFound.
type Prober struct {
	strategies []Strategy
	cache      domain.ProbeCache
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithProbeCache remembers Found results across probes.
func WithProbeCache(c domain.ProbeCache) ProberOption {
	return func(p *Prober) { p.cache = c }
}

// WithProbeMetrics records every strategy verdict.
func WithProbeMetrics(m *metrics.Metrics) ProberOption {
	return func(p *Prober) { p.metrics = m }
}

// NewProber creates a Prober. At least one strategy is required.
func NewProber(strategies []Strategy, logger *slog.Logger, opts ...ProberOption) *Prober {
	p := &Prober{
		strategies: strategies,
		logger:     logger.With(slog.String("component", "prober")),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Probe reports whether a vault exists for key.
func (p *Prober) Probe(ctx context.Context, from common.Address, key domain.PartitionKey) domain.ProbeResult {
	if err := key.Validate(); err != nil {
		return domain.ProbeFailed("", fmt.Errorf("vault: probe: %w", err))
	}
	if len(p.strategies) == 0 {
		return domain.ProbeFailed("", fmt.Errorf("vault: probe: no strategies configured"))
	}

	if p.cache != nil {
		res, ok, err := p.cache.Get(ctx, key)
		if err != nil {
			p.logger.WarnContext(ctx, "probe cache read failed", slog.String("error", err.Error()))
		} else if ok && res.Status == domain.ProbeFound {
			p.metrics.ObserveCacheHit()
			res.Strategy = strategyCache
			return res
		}
	}

	// A ProbeError from any strategy outlives a later NotFound: the key is
	// only reported absent when every strategy could reach a verdict.
	var res, failure domain.ProbeResult
	for _, s := range p.strategies {
		res = s.Probe(ctx, from, key)
		p.metrics.ObserveProbe(s.Name(), res.Status.String())

		attrs := []any{
			slog.String("strategy", s.Name()),
			slog.String("key", key.String()),
			slog.String("status", res.Status.String()),
		}
		if res.Err != nil {
			attrs = append(attrs, slog.String("error", res.Err.Error()))
		}
		p.logger.DebugContext(ctx, "probe", attrs...)

		switch res.Status {
		case domain.ProbeFound:
			p.remember(ctx, key, res)
			return res
		case domain.ProbeError:
			if failure.Err == nil {
				failure = res
			}
		}
	}
	if failure.Err != nil {
		return failure
	}
	return res
}

// Remember records a vault known to exist for key, e.g. right after creating
// it.
func (p *Prober) Remember(ctx context.Context, key domain.PartitionKey, vault common.Address, outcomes domain.OutcomeTokenPair) {
	p.remember(ctx, key, domain.Found("creation", vault, outcomes))
}

func (p *Prober) remember(ctx context.Context, key domain.PartitionKey, res domain.ProbeResult) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Put(ctx, key, res); err != nil {
		p.logger.WarnContext(ctx, "probe cache write failed", slog.String("error", err.Error()))
	}
}

// StrategiesFor builds the strategy list for a configured order name:
// "log_then_sim", "sim_then_log", "sim" or "log".
func StrategiesFor(order string, factory *chain.Factory, query chain.LogQuery) ([]Strategy, error) {
	sim := NewSimulationStrategy(factory)
	logs := NewLogScanStrategy(factory, query)
	switch order {
	case "", "log_then_sim":
		return []Strategy{logs, sim}, nil
	case "sim_then_log":
		return []Strategy{sim, logs}, nil
	case "sim":
		return []Strategy{sim}, nil
	case "log":
		return []Strategy{logs}, nil
	}
	return nil, fmt.Errorf("vault: unknown probe strategy %q", order)
}
