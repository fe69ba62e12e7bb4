package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.ObserveHTTP("/api/performance", http.MethodGet, 200, 12*time.Millisecond)
	m.CacheResult("performance", true)
	m.CacheResult("performance", false)
	m.CacheResult("performance", false)
	m.SetBreakerState("taostats", "open")
	m.ObserveIngest("snapshot", true, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/api/performance", "GET", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("performance", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("taostats")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestRuns.WithLabelValues("snapshot", "true")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveHTTP("/x", "GET", 200, time.Millisecond)
		m.CacheResult("x", true)
		m.SignalEmitted("WARN")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.SignalEmitted("CRITICAL")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `tao_dashboard_signals_emitted_total{severity="CRITICAL"} 1`))
}
