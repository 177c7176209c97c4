// Package metrics holds the Prometheus collectors shared by the services and
// the HTTP layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "photofeed"

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	FanoutWrites = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fanout_feed_writes_total",
		Help:      "Feed entries written by post fanout and follow backfill",
	})

	FanoutFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fanout_failed_batches_total",
		Help:      "Fanout batches that failed to write",
	})

	FanoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fanout_outbox_latency_seconds",
		Help:      "Time from outbox insert to fanout completion",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	OutboxOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_events_total",
		Help:      "Outbox events processed, by outcome",
	}, []string{"outcome"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notifications created, suppressed or retracted, by type",
	}, []string{"type", "action"})

	CascadeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "post_delete_cascade_failures_total",
		Help:      "Failed post delete cascade steps",
	}, []string{"step"})

	ReplicatorDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fan_replicator_dropped_total",
		Help:      "Fan mirror jobs dropped because the queue was full",
	})

	Repairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciler_repairs_total",
		Help:      "Inconsistencies repaired by the reconciler, by kind",
	}, []string{"kind"})
)
