package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAction("push", "ok", time.Second)
		m.ObserveProbe("simulation", "found")
		m.ObserveCacheHit()
		m.ObserveCreated()
		m.ObserveConfirm(time.Second)
		m.SetWSClients(3)
	})
}

func TestObserveAndServe(t *testing.T) {
	m := New("test")
	m.ObserveAction("push", "ok", 2*time.Second)
	m.ObserveAction("push", "ok", time.Second)
	m.ObserveProbe("log_scan", "not_found")
	m.ObserveCreated()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `test_probe_results_total{status="not_found",strategy="log_scan"} 1`), body)
	assert.True(t, strings.Contains(body, `test_vault_actions_total{action="push",outcome="ok"} 2`), body)
	assert.True(t, strings.Contains(body, `test_vault_created_total 1`), body)
}
