package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery outcomes used as the "outcome" label.
const (
	OutcomeDelivered = "delivered"
	OutcomeGone      = "gone"
	OutcomeFailed    = "failed"
)

var (
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_deliveries_total",
			Help: "Total number of push delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	DispatchBatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "push_dispatch_batches_total",
			Help: "Total number of dispatch batches started",
		},
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "push_dispatch_duration_seconds",
			Help:    "Duration of a dispatch batch in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PrunedSubscriptions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "push_pruned_subscriptions_total",
			Help: "Subscriptions removed because the push service reported them gone",
		},
	)

	EventQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "push_event_queue_depth",
			Help: "Number of domain events waiting in the queue",
		},
	)
)
