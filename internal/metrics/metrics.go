// Package metrics exposes Prometheus collectors for note processing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lectura"

// Metrics owns a private registry so tests and multiple apps never collide.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	jobsTotal       *prometheus.CounterVec
	jobsActive      prometheus.Gauge
	stageDuration   *prometheus.HistogramVec
	segmentsTotal   *prometheus.CounterVec
	providerRetries *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Jobs that reached a terminal state",
			},
			[]string{"outcome"}, // completed, failed
		),
		jobsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_active",
				Help:      "Jobs currently being processed",
			},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   []float64{.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"stage"},
		),
		segmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "segments_total",
				Help:      "Segments processed per stage",
			},
			[]string{"stage", "result"}, // result: ok, failed, skipped
		),
		providerRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_retries_total",
				Help:      "Retries scheduled against external providers",
			},
			[]string{"operation"},
		),
	}

	m.registry.MustRegister(
		m.jobsTotal,
		m.jobsActive,
		m.stageDuration,
		m.segmentsTotal,
		m.providerRetries,
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

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.jobsActive.Inc()
}

func (m *Metrics) JobFinished(outcome string) {
	if m == nil {
		return
	}
	m.jobsActive.Dec()
	m.jobsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

func (m *Metrics) Segment(stage, result string) {
	if m == nil {
		return
	}
	m.segmentsTotal.WithLabelValues(stage, result).Inc()
}

// Retry counts one scheduled provider retry.
func (m *Metrics) Retry(operation string) {
	if m == nil {
		return
	}
	m.providerRetries.WithLabelValues(operation).Inc()
}
