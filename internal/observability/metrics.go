package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges shared by
// the streaming and reconciliation services.
type Metrics struct {
	ReadingsConsumed prometheus.Counter
	ReadingsSkipped  prometheus.Counter
	ReadingsStored   prometheus.Counter
	StoreErrors      prometheus.Counter
	PipelineRunning  prometheus.Gauge

	EventsOpened  prometheus.Counter
	EventsUpdated prometheus.Counter
	EventsClosed  *prometheus.CounterVec // label: closer={stream,sweeper}
	StationsKnown prometheus.Gauge

	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	SweepRuns     prometheus.Counter
	SweepDuration prometheus.Histogram
	ActiveEvents  prometheus.Gauge

	ReadingsPublished prometheus.Counter
	PollErrors        prometheus.Counter
	PublishErrors     prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus
// registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ReadingsConsumed,
		m.ReadingsSkipped,
		m.ReadingsStored,
		m.StoreErrors,
		m.PipelineRunning,
		m.EventsOpened,
		m.EventsUpdated,
		m.EventsClosed,
		m.StationsKnown,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.SweepRuns,
		m.SweepDuration,
		m.ActiveEvents,
		m.ReadingsPublished,
		m.PollErrors,
		m.PublishErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics without touching the default registry,
// avoiding "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReadingsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainalerts",
			Name:      "readings_consumed_total",
			Help:      "Total readings read from the raw topic.",
		}),
		ReadingsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainalerts",
			Name:      "readings_skipped_total",
			Help:      "Readings dropped for missing or malformed rainfall data.",
		}),
		ReadingsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainalerts",
			Name:      "readings_stored_total",
			Help:      "Raw readings persisted to the store.",
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainalerts",
			Name:      "store_errors_total",
			Help:      "Failed store writes, retried on the next cycle.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rainalerts",
			Name:      "pipeline_running",
			Help:      "1 when the stream processor is active, 0 when shut down.",
		}),
		EventsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainalerts",
			Name:      "events_opened_total",
			Help:      "Rain events opened by the streaming path.",
		}),
		EventsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainalerts",
			Name:      "events_updated_total",
			Help:      "Accumulation updates written to active events.",
		}),
		EventsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rainalerts",
			Name:      "events_closed_total",
			Help:      "Rain events closed, by closing authority.",
		}, []string{"closer"}),
		StationsKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rainalerts",
			Name:      "stations_known",
			Help:      "Stations with in-memory rain state.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rainalerts",
			Name:      "batch_size",
			Help:      "Readings per micro-batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rainalerts",
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete micro-batch cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		SweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainalerts",
			Name:      "sweep_runs_total",
			Help:      "Reconciliation sweeps executed.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rainalerts",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one reconciliation sweep.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ActiveEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rainalerts",
			Name:      "active_events",
			Help:      "Active events seen by the most recent sweep.",
		}),
		ReadingsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainalerts",
			Name:      "readings_published_total",
			Help:      "Readings published to the raw topic by the collector.",
		}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainalerts",
			Name:      "poll_errors_total",
			Help:      "Failed station polls against the vendor API.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainalerts",
			Name:      "publish_errors_total",
			Help:      "Failed publishes of polled readings to the raw topic.",
		}),
	}
}
