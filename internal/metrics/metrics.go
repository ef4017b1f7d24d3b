package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sketchsync_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sketchsync_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Room metrics
	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sketchsync_rooms_active",
			Help: "Room sessions currently live in memory",
		},
	)

	MembersConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sketchsync_members_connected",
			Help: "Websocket members currently connected across all rooms",
		},
	)

	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sketchsync_events_total",
			Help: "Client events applied by room sessions",
		},
		[]string{"type"},
	)

	EventsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sketchsync_events_rejected_total",
			Help: "Client events dropped by validation (duplicate IDs)",
		},
	)

	BroadcastDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sketchsync_broadcast_drops_total",
			Help: "Members evicted because their outbound queue was full",
		},
	)

	// Auth metrics
	TokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sketchsync_tokens_issued_total",
			Help: "Bearer tokens issued",
		},
		[]string{"kind"}, // "session" or "guest"
	)

	AuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sketchsync_auth_failures_total",
			Help: "Rejected credentials (login and websocket handshake)",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sketchsync_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
