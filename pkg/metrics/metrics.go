// Package metrics provides observability for the event pipeline and the
// collector. A nil *Metrics disables everything, so library embeddings pay
// nothing unless they opt in.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline and collector instruments.
type Metrics struct {
	// Pipeline
	EventsLogged     prometheus.Counter
	EventsDeduped    prometheus.Counter
	EventsDropped    *prometheus.CounterVec
	BatchesDelivered prometheus.Counter
	BatchesFailed    *prometheus.CounterVec
	DeliveryDuration prometheus.Histogram
	SpoolBatches     prometheus.Gauge
	SpoolEvents      prometheus.Gauge

	// Collector
	IngestBatches  prometheus.Counter
	IngestEvents   prometheus.Counter
	ArchiveTrimmed prometheus.Counter
	ArchiveEntries prometheus.Gauge

	// Storage substrate
	StorageWriteDuration  prometheus.Histogram
	StorageReadDuration   prometheus.Histogram
	StorageCommitDuration prometheus.Histogram
}

// New registers all instruments against the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all instruments against reg. Tests pass a fresh
// prometheus.NewRegistry to avoid cross-test collisions.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsLogged: f.NewCounter(prometheus.CounterOpts{
			Name: "flare_events_logged_total",
			Help: "Total events accepted into the outbound queue.",
		}),
		EventsDeduped: f.NewCounter(prometheus.CounterOpts{
			Name: "flare_events_deduped_total",
			Help: "Total exposure events suppressed by the dedup filter.",
		}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flare_events_dropped_total",
			Help: "Total events dropped, labelled by cause.",
		}, []string{"cause"}), // cause: spool_full, age, persist_ceiling, replay
		BatchesDelivered: f.NewCounter(prometheus.CounterOpts{
			Name: "flare_batches_delivered_total",
			Help: "Total batches delivered to the collector.",
		}),
		BatchesFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flare_batches_failed_total",
			Help: "Total batches that exhausted delivery, labelled by reason.",
		}, []string{"reason"}), // reason: network_error or status_<code>
		DeliveryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "flare_delivery_duration_seconds",
			Help:    "Duration of batch delivery attempts including retries.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		SpoolBatches: f.NewGauge(prometheus.GaugeOpts{
			Name: "flare_spool_batches",
			Help: "Failed batches currently held in the spool.",
		}),
		SpoolEvents: f.NewGauge(prometheus.GaugeOpts{
			Name: "flare_spool_events",
			Help: "Events currently held in the spool across all batches.",
		}),
		IngestBatches: f.NewCounter(prometheus.CounterOpts{
			Name: "flare_collector_batches_ingested_total",
			Help: "Total batches accepted by the collector.",
		}),
		IngestEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "flare_collector_events_ingested_total",
			Help: "Total events accepted by the collector.",
		}),
		ArchiveTrimmed: f.NewCounter(prometheus.CounterOpts{
			Name: "flare_archive_entries_trimmed_total",
			Help: "Total archive entries removed by retention sweeps.",
		}),
		ArchiveEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "flare_archive_entries",
			Help: "Entries currently held in the collector archive.",
		}),
		StorageWriteDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "flare_storage_write_duration_seconds",
			Help:    "Duration of substrate writes.",
			Buckets: prometheus.DefBuckets,
		}),
		StorageReadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "flare_storage_read_duration_seconds",
			Help:    "Duration of substrate reads.",
			Buckets: prometheus.DefBuckets,
		}),
		StorageCommitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "flare_storage_commit_duration_seconds",
			Help:    "Duration of substrate batch commits.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// AddEventsLogged records events accepted into the queue.
func (m *Metrics) AddEventsLogged(n int) {
	if m != nil {
		m.EventsLogged.Add(float64(n))
	}
}

// IncEventsDeduped records a suppressed exposure.
func (m *Metrics) IncEventsDeduped() {
	if m != nil {
		m.EventsDeduped.Inc()
	}
}

// AddEventsDropped records dropped events by cause.
func (m *Metrics) AddEventsDropped(cause string, n int) {
	if m != nil && n > 0 {
		m.EventsDropped.WithLabelValues(cause).Add(float64(n))
	}
}

// IncBatchDelivered records a successful delivery.
func (m *Metrics) IncBatchDelivered() {
	if m != nil {
		m.BatchesDelivered.Inc()
	}
}

// IncBatchFailed records an exhausted delivery by failure reason.
func (m *Metrics) IncBatchFailed(reason string) {
	if m != nil {
		m.BatchesFailed.WithLabelValues(reason).Inc()
	}
}

// ObserveDelivery records the duration of a delivery attempt chain.
func (m *Metrics) ObserveDelivery(d time.Duration) {
	if m != nil {
		m.DeliveryDuration.Observe(d.Seconds())
	}
}

// SetSpoolSize records the spool's current batch and event counts.
func (m *Metrics) SetSpoolSize(batches, events int) {
	if m != nil {
		m.SpoolBatches.Set(float64(batches))
		m.SpoolEvents.Set(float64(events))
	}
}

// AddIngested records batches/events accepted by the collector.
func (m *Metrics) AddIngested(batches, events int) {
	if m != nil {
		m.IngestBatches.Add(float64(batches))
		m.IngestEvents.Add(float64(events))
	}
}

// AddArchiveTrimmed records entries removed by a retention sweep.
func (m *Metrics) AddArchiveTrimmed(n int) {
	if m != nil && n > 0 {
		m.ArchiveTrimmed.Add(float64(n))
	}
}

// SetArchiveEntries records the archive's current entry count.
func (m *Metrics) SetArchiveEntries(n int) {
	if m != nil {
		m.ArchiveEntries.Set(float64(n))
	}
}

// ObserveWrite implements the substrate metrics hook.
func (m *Metrics) ObserveWrite(elapsed time.Duration, _ int) {
	if m != nil {
		m.StorageWriteDuration.Observe(elapsed.Seconds())
	}
}

// ObserveRead implements the substrate metrics hook.
func (m *Metrics) ObserveRead(elapsed time.Duration, _ int) {
	if m != nil {
		m.StorageReadDuration.Observe(elapsed.Seconds())
	}
}

// ObserveBatchCommit implements the substrate metrics hook.
func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, _ int, _ int) {
	if m != nil {
		m.StorageCommitDuration.Observe(elapsed.Seconds())
	}
}
