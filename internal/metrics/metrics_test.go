package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudauditor/internal/domain"
)

func TestObserveCollector(t *testing.T) {
	m := New()
	m.ObserveCollector("headers", 120*time.Millisecond, nil)
	m.ObserveCollector("headers", time.Second, errors.New("boom"))
	m.ObserveCollector("headers", time.Second, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.collectorRuns.WithLabelValues("headers", OutcomeOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.collectorRuns.WithLabelValues("headers", OutcomeError)))
}

func TestScanGaugeAndTransitions(t *testing.T) {
	m := New()
	m.ScanStarted()
	m.ScanStarted()
	m.ScanFinished()
	m.ScanTransition(domain.StatusRunning)
	m.ScanTransition(domain.StatusFailed)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeScans))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scanTransitions.WithLabelValues("failed")))
}

func TestFindings(t *testing.T) {
	m := New()
	m.Findings(map[domain.Severity]int{domain.SeverityHigh: 3, domain.SeverityLow: 1})
	assert.Equal(t, 3.0, testutil.ToFloat64(m.findingsTotal.WithLabelValues("high")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCollector("tls", time.Second, nil)
		m.ScanStarted()
		m.ScanFinished()
		m.ScanTransition(domain.StatusCompleted)
		m.Findings(map[domain.Severity]int{domain.SeverityCritical: 1})
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveCollector("resolver", 10*time.Millisecond, nil)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `cloudauditor_collector_runs_total{collector="resolver",outcome="ok"} 1`)
}
