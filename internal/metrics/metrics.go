// Package metrics holds the Prometheus instruments for the pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gasmonitor"

// Ingest outcomes recorded against MessagesTotal.
const (
	ResultAccepted      = "accepted"
	ResultMalformed     = "malformed"
	ResultUnknownDevice = "unknown_device"
	ResultQueueFull     = "queue_full"
)

// Reading rejection reasons.
const (
	ReasonStale      = "stale"
	ReasonOutOfOrder = "out_of_order"
)

type Metrics struct {
	MessagesTotal    *prometheus.CounterVec
	ReadingsStored   prometheus.Counter
	ReadingsRejected *prometheus.CounterVec
	IngestDuration   prometheus.Histogram

	HubSessions        prometheus.Gauge
	HubEventsPublished *prometheus.CounterVec
	HubEventsDropped   prometheus.Counter

	CycleDuration     prometheus.Histogram
	CycleOverruns     prometheus.Counter
	AggregatesEmitted prometheus.Counter
	AlertsEmitted     *prometheus.CounterVec
	ComputationErrors prometheus.Counter
	SamplesEvicted    prometheus.Counter

	SinkWritten  *prometheus.CounterVec
	SinkFailures prometheus.Counter
	SinkDropped  prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates the instruments and registers them with reg.
// A nil reg creates a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Inbound transport messages by outcome",
		}, []string{"result"}),

		ReadingsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "readings_stored_total",
			Help:      "Readings appended to the reading store",
		}),

		ReadingsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "readings_rejected_total",
			Help:      "Readings rejected by the reading store",
		}, []string{"reason"}),

		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "message_duration_seconds",
			Help:      "Time to process one inbound message",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),

		HubSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "sessions",
			Help:      "Currently registered viewer sessions",
		}),

		HubEventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "events_published_total",
			Help:      "Events fanned out by the broadcast hub",
		}, []string{"type"}),

		HubEventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "events_dropped_total",
			Help:      "Events dropped from full session queues",
		}),

		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one aggregation pass",
			Buckets:   prometheus.DefBuckets,
		}),

		CycleOverruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "cycle_overruns_total",
			Help:      "Aggregation passes that took longer than the cycle period",
		}),

		AggregatesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "aggregates_total",
			Help:      "Aggregates emitted",
		}),

		AlertsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "alerts_total",
			Help:      "Alerts emitted by severity",
		}, []string{"severity"}),

		ComputationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "computation_errors_total",
			Help:      "Device/quantity computations skipped due to errors",
		}),

		SamplesEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "samples_evicted_total",
			Help:      "Samples removed by the periodic sweep",
		}),

		SinkWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "records_written_total",
			Help:      "Records persisted by kind",
		}, []string{"kind"}),

		SinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "write_failures_total",
			Help:      "Batch writes that failed after retries",
		}),

		SinkDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "records_dropped_total",
			Help:      "Records dropped because the sink queue was full or writes failed",
		}),

		gatherer: reg,
	}

	reg.MustRegister(
		m.MessagesTotal, m.ReadingsStored, m.ReadingsRejected, m.IngestDuration,
		m.HubSessions, m.HubEventsPublished, m.HubEventsDropped,
		m.CycleDuration, m.CycleOverruns, m.AggregatesEmitted, m.AlertsEmitted,
		m.ComputationErrors, m.SamplesEvicted,
		m.SinkWritten, m.SinkFailures, m.SinkDropped,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordMessage(result string) {
	m.MessagesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordRejected(reason string) {
	m.ReadingsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordIngestDuration(d time.Duration) {
	m.IngestDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordPublished(eventType string) {
	m.HubEventsPublished.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RecordAlert(severity string) {
	m.AlertsEmitted.WithLabelValues(severity).Inc()
}

func (m *Metrics) RecordCycle(d time.Duration) {
	m.CycleDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordSinkWritten(kind string, n int) {
	m.SinkWritten.WithLabelValues(kind).Add(float64(n))
}
