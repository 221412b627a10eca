// Package metrics exports stage, quality-gate, cost, incident, and buffer
// counters to Prometheus. Grounded on the teacher's
// engine/monitoring/monitoring.go PrometheusExporter: a private registry,
// MustRegister at construction, *Vec collectors keyed by narrow label sets,
// and a plain http.Handler for scraping. Retextured from the teacher's
// rule/strategy/outcome business metrics onto content-pipeline metrics; the
// teacher's separate sync-from-collector step is dropped since these
// counters are incremented directly at the call site rather than staged
// through an intermediate in-memory collector.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter holds every counter/gauge/histogram the orchestrator records,
// registered against a private registry so tests can construct one without
// colliding with prometheus.DefaultRegisterer.
type Exporter struct {
	namespace string
	registry  *prometheus.Registry

	stageAttempts   *prometheus.CounterVec
	stageDurationMs *prometheus.HistogramVec
	gateOutcomes    *prometheus.CounterVec
	costTotalUSD    *prometheus.CounterVec
	incidentsTotal  *prometheus.CounterVec
	bufferDeploys   *prometheus.CounterVec
	bufferAvailable prometheus.Gauge
}

// New constructs an Exporter and registers all collectors. namespace
// prefixes every metric name (e.g. "contentops").
func New(namespace string) *Exporter {
	registry := prometheus.NewRegistry()

	stageAttempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_attempts_total",
			Help:      "Total number of stage execution attempts",
		},
		[]string{"stage", "outcome"},
	)

	stageDurationMs := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_ms",
			Help:      "Stage execution duration in milliseconds",
			Buckets:   []float64{100, 500, 1000, 5000, 15000, 30000, 60000, 180000},
		},
		[]string{"stage"},
	)

	gateOutcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quality_gate_outcomes_total",
			Help:      "Total number of quality gate evaluations by outcome",
		},
		[]string{"stage", "outcome"},
	)

	costTotalUSD := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_usd_total",
			Help:      "Total recorded API cost in USD",
		},
		[]string{"service", "category"},
	)

	incidentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_total",
			Help:      "Total number of incidents logged",
		},
		[]string{"stage", "severity"},
	)

	bufferDeploys := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_deployments_total",
			Help:      "Total number of buffer video deployments",
		},
		[]string{"outcome"},
	)

	bufferAvailable := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_available",
			Help:      "Current count of buffer videos available for deployment",
		},
	)

	registry.MustRegister(
		stageAttempts,
		stageDurationMs,
		gateOutcomes,
		costTotalUSD,
		incidentsTotal,
		bufferDeploys,
		bufferAvailable,
	)

	return &Exporter{
		namespace:       namespace,
		registry:        registry,
		stageAttempts:   stageAttempts,
		stageDurationMs: stageDurationMs,
		gateOutcomes:    gateOutcomes,
		costTotalUSD:    costTotalUSD,
		incidentsTotal:  incidentsTotal,
		bufferDeploys:   bufferDeploys,
		bufferAvailable: bufferAvailable,
	}
}

// Handler returns the HTTP handler to mount at /metrics.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// RecordStageAttempt increments the attempt counter and duration histogram
// for one stage execution. outcome is "success", "retry", or "failure".
func (e *Exporter) RecordStageAttempt(stage, outcome string, durationMs float64) {
	e.stageAttempts.WithLabelValues(stage, outcome).Inc()
	e.stageDurationMs.WithLabelValues(stage).Observe(durationMs)
}

// RecordGateOutcome increments the quality gate outcome counter. outcome is
// one of "pass", "degraded", or "fail".
func (e *Exporter) RecordGateOutcome(stage, outcome string) {
	e.gateOutcomes.WithLabelValues(stage, outcome).Inc()
}

// RecordCost adds amountUSD to the running total for service/category.
func (e *Exporter) RecordCost(service, category string, amountUSD float64) {
	e.costTotalUSD.WithLabelValues(service, category).Add(amountUSD)
}

// RecordIncident increments the incident counter for stage/severity.
func (e *Exporter) RecordIncident(stage, severity string) {
	e.incidentsTotal.WithLabelValues(stage, severity).Inc()
}

// RecordBufferDeploy increments the buffer deployment counter. outcome is
// "success" or "failure".
func (e *Exporter) RecordBufferDeploy(outcome string) {
	e.bufferDeploys.WithLabelValues(outcome).Inc()
}

// SetBufferAvailable sets the current buffer-available gauge.
func (e *Exporter) SetBufferAvailable(count float64) {
	e.bufferAvailable.Set(count)
}
