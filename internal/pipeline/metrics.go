package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricEventsProcessed    = "pipeline_events_processed_total"
	MetricEventsSkipped      = "pipeline_events_skipped_total"
	MetricEventsRetried      = "pipeline_events_retried_total"
	MetricEventsDeadLettered = "pipeline_events_dead_lettered_total"
	MetricProcessLatency     = "pipeline_process_latency_seconds"
)

// Metrics contains Prometheus metrics for the event pipeline.
// All operations are thread-safe.
type Metrics struct {
	eventsProcessed    prometheus.Counter
	eventsSkipped      prometheus.Counter
	eventsRetried      prometheus.Counter
	eventsDeadLettered prometheus.Counter
	processLatency     prometheus.Histogram
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		eventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEventsProcessed,
			Help: "Total number of events processed successfully",
		}),
		eventsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEventsSkipped,
			Help: "Total number of duplicate events skipped by the dedup guard",
		}),
		eventsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEventsRetried,
			Help: "Total number of events scheduled for redelivery after a transient failure",
		}),
		eventsDeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEventsDeadLettered,
			Help: "Total number of events published to the dead-letter stream",
		}),
		processLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricProcessLatency,
			Help:    "Histogram of per-event processing latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncEventsProcessed increments the processed counter.
func (m *Metrics) IncEventsProcessed() {
	m.eventsProcessed.Inc()
}

// IncEventsSkipped increments the duplicate-skip counter.
func (m *Metrics) IncEventsSkipped() {
	m.eventsSkipped.Inc()
}

// IncEventsRetried increments the retry counter.
func (m *Metrics) IncEventsRetried() {
	m.eventsRetried.Inc()
}

// IncEventsDeadLettered increments the dead-letter counter.
func (m *Metrics) IncEventsDeadLettered() {
	m.eventsDeadLettered.Inc()
}

// ObserveProcessLatency records a processing latency sample.
func (m *Metrics) ObserveProcessLatency(seconds float64) {
	m.processLatency.Observe(seconds)
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.eventsProcessed,
		m.eventsSkipped,
		m.eventsRetried,
		m.eventsDeadLettered,
		m.processLatency,
	}
}
