// Package metrics defines Prometheus metrics for the dispatch service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Stream routing metrics
	EventsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_dispatch_events_routed_total",
			Help: "Total number of events routed to channels",
		},
		[]string{"priority"},
	)

	EventsFiltered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_dispatch_events_filtered_total",
			Help: "Total number of matched events dropped by the relevance gate",
		},
	)

	AggregationsFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_dispatch_aggregations_flushed_total",
			Help: "Total number of aggregation windows flushed",
		},
	)

	ChannelsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "telhawk_dispatch_channels_active",
			Help: "Number of active consumer channels",
		},
	)

	// Webhook delivery metrics
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_dispatch_deliveries_total",
			Help: "Total number of webhook delivery state transitions",
		},
		[]string{"status"},
	)

	DeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "telhawk_dispatch_delivery_duration_seconds",
			Help:    "Duration of webhook delivery attempts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetriesScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_dispatch_retries_scheduled_total",
			Help: "Total number of delivery retries scheduled",
		},
	)

	// Queue metrics
	WebhookQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "telhawk_dispatch_webhook_queue_depth",
			Help: "Current depth of the webhook event queue",
		},
	)
)
