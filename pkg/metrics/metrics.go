package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Price source metrics
var (
	// CacheLookupsTotal tracks price cache lookups by result (hit/miss/stale_fallback)
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_cache_lookups_total",
			Help: "Price cache lookups by result",
		},
		[]string{"result"},
	)

	// FetchAttemptsTotal tracks upstream price fetch attempts by status
	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_fetch_attempts_total",
			Help: "Upstream price fetch attempts by status (ok/error/rate_limited)",
		},
		[]string{"status"},
	)

	// FetchDuration tracks upstream fetch latency in seconds
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "price_fetch_duration_seconds",
			Help:    "Upstream price fetch duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
		},
	)
)

// Broker metrics
var (
	// EventsPublishedTotal tracks change events published by topic and status
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_events_published_total",
			Help: "Change events published by topic and status",
		},
		[]string{"topic", "status"},
	)

	// EventsConsumedTotal tracks consumed messages by status (ok/decode_error)
	EventsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_events_consumed_total",
			Help: "Consumed broker messages by status",
		},
		[]string{"status"},
	)

	// ConsumerReconnectsTotal tracks consumer resubscribe cycles after transport failure
	ConsumerReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_consumer_reconnects_total",
			Help: "Consumer reconnect cycles after transport failures",
		},
	)
)

// Realtime fan-out metrics
var (
	// ActiveConnections tracks currently registered realtime connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_active_connections",
			Help: "Currently registered realtime connections",
		},
	)

	// DeliveriesTotal tracks messages delivered to connections by event name
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_deliveries_total",
			Help: "Messages delivered to realtime connections by event name",
		},
		[]string{"event"},
	)

	// AnonymousConnectionsTotal tracks connects that could not be tied to a subject
	AnonymousConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_anonymous_connections_total",
			Help: "Connections registered without a verified subject",
		},
	)
)
