// Package metrics exposes Prometheus collectors for vault actions, existence
// probes and transaction confirmations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ActionsTotal    *prometheus.CounterVec
	ActionDuration  *prometheus.HistogramVec
	ProbesTotal     *prometheus.CounterVec
	ProbeCacheHits  prometheus.Counter
	VaultsCreated   prometheus.Counter
	ConfirmDuration prometheus.Histogram
	WSClients       prometheus.Gauge
}

// New registers all collectors on a private registry under namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "polyvault"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ActionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "actions_total",
			Help:      "Vault actions by name and outcome kind",
		}, []string{"action", "outcome"}),
		ActionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "action_duration_seconds",
			Help:      "Wall time of vault actions including confirmation waits",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"action"}),
		ProbesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "results_total",
			Help:      "Existence probe results by strategy and status",
		}, []string{"strategy", "status"}),
		ProbeCacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "cache_hits_total",
			Help:      "Probes answered from the positive result cache",
		}),
		VaultsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "created_total",
			Help:      "Vaults created by this process",
		}),
		ConfirmDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "confirm_duration_seconds",
			Help:      "Time from submission to mined receipt",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "ws_clients",
			Help:      "Connected websocket clients",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveAction(action, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(action, outcome).Inc()
	m.ActionDuration.WithLabelValues(action).Observe(d.Seconds())
}

func (m *Metrics) ObserveProbe(strategy, status string) {
	if m == nil {
		return
	}
	m.ProbesTotal.WithLabelValues(strategy, status).Inc()
}

func (m *Metrics) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.ProbeCacheHits.Inc()
}

func (m *Metrics) ObserveCreated() {
	if m == nil {
		return
	}
	m.VaultsCreated.Inc()
}

func (m *Metrics) ObserveConfirm(d time.Duration) {
	if m == nil {
		return
	}
	m.ConfirmDuration.Observe(d.Seconds())
}

func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.WSClients.Set(float64(n))
}
