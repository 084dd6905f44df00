package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event intake metrics
	EventsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracklight_events_received_total",
			Help: "Total number of events submitted to the pipeline",
		},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracklight_events_dropped_total",
			Help: "Total number of events dropped before enqueueing",
		},
		[]string{"reason"},
	)

	EventsQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracklight_events_queued_total",
			Help: "Total number of events appended to a tenant queue",
		},
	)

	// Queue metrics
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracklight_queue_depth",
			Help: "Current depth of each tenant queue",
		},
		[]string{"tenant"},
	)

	// Flush metrics
	FlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracklight_flushes_total",
			Help: "Total number of flush attempts by result",
		},
		[]string{"result"},
	)

	FlushBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tracklight_flush_batch_size",
			Help:    "Number of events per flushed batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		},
	)

	// Interaction tracker metrics
	InteractionsTracked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracklight_interactions_tracked_total",
			Help: "Total number of interaction records produced",
		},
		[]string{"type"},
	)

	InteractionsThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracklight_interactions_throttled_total",
			Help: "Total number of scroll signals suppressed by the throttle",
		},
	)

	// Spool metrics
	SpoolDrained = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracklight_spool_batches_drained_total",
			Help: "Total number of spooled batches replayed at startup",
		},
	)
)

// Drop reasons for EventsDropped.
const (
	DropDisabled  = "disabled"
	DropSampled   = "sampled"
	DropDebounced = "debounced"
)
