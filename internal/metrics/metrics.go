package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Relay metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Currently registered connections on this process",
		},
	)

	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_connections_total",
			Help: "Total accepted connections",
		},
		[]string{"role"},
	)

	ConnectionsRefused = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_connections_refused_total",
			Help: "Total refused connection attempts",
		},
		[]string{"reason"}, // "missing_identity", "bad_role", "rate_limited"
	)

	EnvelopesIn = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_envelopes_in_total",
			Help: "Total envelopes received from clients",
		},
		[]string{"type"},
	)

	EnvelopesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_envelopes_dropped_total",
			Help: "Total envelopes dropped",
		},
		[]string{"reason"}, // "malformed", "duplicate", "stale_presence"
	)

	HeartbeatEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_heartbeat_evictions_total",
			Help: "Connections evicted for missed heartbeats",
		},
	)

	// Offline queue metrics
	OfflineEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_offline_enqueued_total",
			Help: "Messages queued for offline recipients",
		},
	)

	OfflineDrained = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_offline_drained_total",
			Help: "Messages replayed from offline backlogs",
		},
	)

	// Fanout metrics
	FanoutPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_fanout_published_total",
			Help: "Envelopes published to the fanout",
		},
	)

	FanoutPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_fanout_publish_errors_total",
			Help: "Failed fanout publishes (degraded local-only delivery)",
		},
	)

	FanoutDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_fanout_delivered_total",
			Help: "Envelopes delivered by the fanout subscription",
		},
	)

	// Collaborator metrics
	AnalysisRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_analysis_requests_total",
			Help: "Sentiment analysis requests",
		},
		[]string{"outcome"}, // "ok" or "unavailable"
	)
)
