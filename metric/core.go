package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all pipeline-level metrics (not enterprise-specific)
type Metrics struct {
	// Ingest metrics
	ServiceStatus    *prometheus.GaugeVec
	MessagesReceived *prometheus.CounterVec
	MessagesDecoded  *prometheus.CounterVec
	MessagesSkipped  *prometheus.CounterVec
	QueueDropped     prometheus.Counter

	// Pipeline metrics
	EntitiesCreated   *prometheus.CounterVec
	StateEvents       *prometheus.CounterVec
	Completions       *prometheus.CounterVec
	QuantityAnomalies prometheus.Counter
	BucketsSealed     *prometheus.CounterVec
	RuleConflicts     prometheus.Counter

	// Sink metrics
	SinkWrites    *prometheus.CounterVec
	SinkFailures  *prometheus.CounterVec
	SinkRetries   prometheus.Counter
	FlushDuration prometheus.Histogram

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all pipeline metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "lineflow",
				Subsystem: "service",
				Name:      "status",
				Help:      "Service status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"service"},
		),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lineflow",
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total number of raw messages received per enterprise",
			},
			[]string{"enterprise"},
		),

		MessagesDecoded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lineflow",
				Subsystem: "messages",
				Name:      "decoded_total",
				Help:      "Total number of messages decoded into readings",
			},
			[]string{"enterprise", "kind"},
		),

		MessagesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lineflow",
				Subsystem: "messages",
				Name:      "skipped_total",
				Help:      "Total number of messages skipped without a reading",
			},
			[]string{"enterprise", "reason"},
		),

		QueueDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "lineflow",
				Subsystem: "ingest",
				Name:      "queue_dropped_total",
				Help:      "Total number of messages dropped on a full ingest queue",
			},
		),

		EntitiesCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lineflow",
				Subsystem: "registry",
				Name:      "entities_created_total",
				Help:      "Total number of entities assigned a surrogate id",
			},
			[]string{"kind"},
		),

		StateEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lineflow",
				Subsystem: "pipeline",
				Name:      "state_events_total",
				Help:      "Total number of deduplicated state events emitted",
			},
			[]string{"enterprise"},
		),

		Completions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lineflow",
				Subsystem: "pipeline",
				Name:      "completions_total",
				Help:      "Total number of lifecycle completions emitted",
			},
			[]string{"enterprise", "status"},
		),

		QuantityAnomalies: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "lineflow",
				Subsystem: "pipeline",
				Name:      "quantity_anomalies_total",
				Help:      "Total number of regressive quantity samples ignored",
			},
		),

		BucketsSealed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lineflow",
				Subsystem: "window",
				Name:      "buckets_sealed_total",
				Help:      "Total number of aggregate buckets sealed",
			},
			[]string{"rule"},
		),

		RuleConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "lineflow",
				Subsystem: "window",
				Name:      "rule_conflicts_total",
				Help:      "Total number of samples rejected for an aggregation rule conflict",
			},
		),

		SinkWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lineflow",
				Subsystem: "sink",
				Name:      "writes_total",
				Help:      "Total number of facts written to the sink",
			},
			[]string{"fact"},
		),

		SinkFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lineflow",
				Subsystem: "sink",
				Name:      "failures_total",
				Help:      "Total number of sink write failures",
			},
			[]string{"fact"},
		),

		SinkRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "lineflow",
				Subsystem: "sink",
				Name:      "retries_total",
				Help:      "Total number of retried sink writes",
			},
		),

		FlushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "lineflow",
				Subsystem: "sink",
				Name:      "flush_duration_seconds",
				Help:      "Sink batch flush duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "lineflow",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "lineflow",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

// RecordServiceStatus updates service status metric
func (c *Metrics) RecordServiceStatus(service string, status int) {
	c.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordMessageReceived increments the raw message counter
func (c *Metrics) RecordMessageReceived(enterprise string) {
	c.MessagesReceived.WithLabelValues(enterprise).Inc()
}

// RecordMessageDecoded increments the decoded reading counter
func (c *Metrics) RecordMessageDecoded(enterprise, kind string) {
	c.MessagesDecoded.WithLabelValues(enterprise, kind).Inc()
}

// RecordMessageSkipped increments the skipped message counter
func (c *Metrics) RecordMessageSkipped(enterprise, reason string) {
	c.MessagesSkipped.WithLabelValues(enterprise, reason).Inc()
}

// RecordQueueDropped increments the full-queue drop counter
func (c *Metrics) RecordQueueDropped() {
	c.QueueDropped.Inc()
}

// RecordEntityCreated increments the surrogate-id assignment counter
func (c *Metrics) RecordEntityCreated(kind string) {
	c.EntitiesCreated.WithLabelValues(kind).Inc()
}

// RecordStateEvent increments the state event counter
func (c *Metrics) RecordStateEvent(enterprise string) {
	c.StateEvents.WithLabelValues(enterprise).Inc()
}

// RecordCompletion increments the completion counter
func (c *Metrics) RecordCompletion(enterprise, status string) {
	c.Completions.WithLabelValues(enterprise, status).Inc()
}

// RecordQuantityAnomaly increments the regressive quantity counter
func (c *Metrics) RecordQuantityAnomaly() {
	c.QuantityAnomalies.Inc()
}

// RecordBucketSealed increments the sealed bucket counter
func (c *Metrics) RecordBucketSealed(rule string) {
	c.BucketsSealed.WithLabelValues(rule).Inc()
}

// RecordRuleConflict increments the aggregation rule conflict counter
func (c *Metrics) RecordRuleConflict() {
	c.RuleConflicts.Inc()
}

// RecordSinkWrite increments the sink write counter
func (c *Metrics) RecordSinkWrite(fact string) {
	c.SinkWrites.WithLabelValues(fact).Inc()
}

// RecordSinkFailure increments the sink failure counter
func (c *Metrics) RecordSinkFailure(fact string) {
	c.SinkFailures.WithLabelValues(fact).Inc()
}

// RecordSinkRetry increments the sink retry counter
func (c *Metrics) RecordSinkRetry() {
	c.SinkRetries.Inc()
}

// RecordFlushDuration records one sink batch flush
func (c *Metrics) RecordFlushDuration(duration time.Duration) {
	c.FlushDuration.Observe(duration.Seconds())
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}
