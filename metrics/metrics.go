// Package metrics exports Prometheus metrics for the pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors on a dedicated
// registry.
type Metrics struct {
	registry *prometheus.Registry

	recordsProcessed  *prometheus.CounterVec
	handleLatency     *prometheus.HistogramVec
	dlqRouted         *prometheus.CounterVec
	aggregatesEmitted prometheus.Counter
	broadcastDropped  prometheus.Counter
	activeSubscribers prometheus.Gauge
}

// New creates the collectors and registers them.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{registry: registry}

	m.recordsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supportpulse",
			Subsystem: "pipeline",
			Name:      "records_processed_total",
			Help:      "Records handled by each pipeline component",
		},
		[]string{"component", "status"},
	)

	m.handleLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "supportpulse",
			Subsystem: "pipeline",
			Name:      "handle_latency_seconds",
			Help:      "Per-record handling latency",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"component"},
	)

	m.dlqRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supportpulse",
			Subsystem: "pipeline",
			Name:      "dlq_records_total",
			Help:      "Records routed to the dead-letter queue by original topic",
		},
		[]string{"topic"},
	)

	m.aggregatesEmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "supportpulse",
			Subsystem: "pipeline",
			Name:      "aggregates_emitted_total",
			Help:      "Merged intelligence views emitted",
		},
	)

	m.broadcastDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "supportpulse",
			Subsystem: "broadcast",
			Name:      "dropped_events_total",
			Help:      "Events dropped from full subscriber queues",
		},
	)

	m.activeSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "supportpulse",
			Subsystem: "broadcast",
			Name:      "active_subscribers",
			Help:      "Currently connected stream subscribers",
		},
	)

	registry.MustRegister(
		m.recordsProcessed,
		m.handleLatency,
		m.dlqRouted,
		m.aggregatesEmitted,
		m.broadcastDropped,
		m.activeSubscribers,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHandle records one handled record for a component.
func (m *Metrics) ObserveHandle(component string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.recordsProcessed.WithLabelValues(component, status).Inc()
	m.handleLatency.WithLabelValues(component).Observe(d.Seconds())
}

// DLQRouted records one record sent to the DLQ.
func (m *Metrics) DLQRouted(originalTopic string) {
	m.dlqRouted.WithLabelValues(originalTopic).Inc()
}

// AggregateEmitted records one merged view emission.
func (m *Metrics) AggregateEmitted() { m.aggregatesEmitted.Inc() }

// BroadcastDropped records one dropped subscriber event.
func (m *Metrics) BroadcastDropped() { m.broadcastDropped.Inc() }

// SubscriberConnected adjusts the active subscriber gauge.
func (m *Metrics) SubscriberConnected()    { m.activeSubscribers.Inc() }
func (m *Metrics) SubscriberDisconnected() { m.activeSubscribers.Dec() }
