// Package metrics exposes scan and collector metrics for Prometheus.
//
// All methods are safe on a nil *Metrics so callers that do not care about
// metrics (tests, the one-shot CLI) can pass nil.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cloudauditor/internal/domain"
)

const namespace = "cloudauditor"

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	collectorDuration *prometheus.HistogramVec
	collectorRuns     *prometheus.CounterVec
	scanTransitions   *prometheus.CounterVec
	activeScans       prometheus.Gauge
	findingsTotal     *prometheus.CounterVec
}

// New builds the metrics on a private registry rather than the global one.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.collectorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collector_duration_seconds",
			Help:      "Time spent in each evidence collector",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		},
		[]string{"collector", "outcome"},
	)
	m.collectorRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collector_runs_total",
			Help:      "Evidence collector invocations by outcome",
		},
		[]string{"collector", "outcome"},
	)
	m.scanTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_transitions_total",
			Help:      "Scan status transitions",
		},
		[]string{"status"},
	)
	m.activeScans = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scans_active",
		Help:      "Scans currently executing",
	})
	m.findingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Vulnerabilities recorded by severity",
		},
		[]string{"severity"},
	)

	m.registry.MustRegister(
		m.collectorDuration,
		m.collectorRuns,
		m.scanTransitions,
		m.activeScans,
		m.findingsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) ObserveCollector(name string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.collectorDuration.WithLabelValues(name, outcome).Observe(elapsed.Seconds())
	m.collectorRuns.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) ScanTransition(status domain.ScanStatus) {
	if m == nil {
		return
	}
	m.scanTransitions.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) ScanStarted() {
	if m == nil {
		return
	}
	m.activeScans.Inc()
}

func (m *Metrics) ScanFinished() {
	if m == nil {
		return
	}
	m.activeScans.Dec()
}

func (m *Metrics) Findings(counts map[domain.Severity]int) {
	if m == nil {
		return
	}
	for sev, n := range counts {
		m.findingsTotal.WithLabelValues(string(sev)).Add(float64(n))
	}
}
