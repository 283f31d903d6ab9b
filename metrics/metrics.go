// Package metrics exposes Prometheus instrumentation for the telemetry core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_events_ingested_total",
			Help: "Total number of events ingested from the spool",
		},
		[]string{"category"},
	)

	ParseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guardian_parse_failures_total",
			Help: "Total number of malformed records skipped during ingestion",
		},
	)

	EventsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guardian_events_evicted_total",
			Help: "Total number of events evicted from the bounded store",
		},
	)

	SpoolScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "guardian_spool_scan_duration_seconds",
			Help:    "Time taken to scan and ingest one spool batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_deliveries_total",
			Help: "Total number of filtered views delivered to subscribers",
			// trigger is either "debounce" or "reconcile"
		},
		[]string{"trigger"},
	)

	SubscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guardian_subscriptions_active",
			Help: "Number of active hub subscriptions",
		},
	)

	ThrottleActivations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guardian_throttle_activations_total",
			Help: "Total number of times the rate controller entered throttling",
		},
	)

	GraphNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guardian_graph_nodes",
			Help: "Number of distinct nodes in the network topology graph",
		},
	)

	GraphEdges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guardian_graph_edges",
			Help: "Number of distinct edges in the network topology graph",
		},
	)
)
