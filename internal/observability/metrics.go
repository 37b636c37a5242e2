package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Current number of active WebSocket connections",
		},
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of events published on the bus",
		},
		[]string{"type"},
	)

	SubscriberErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_subscriber_errors_total",
			Help: "Total number of errors raised by bus subscribers",
		},
		[]string{"type"},
	)

	HandlerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_handler_errors_total",
			Help: "Total number of errors raised by registered handlers",
		},
		[]string{"handler"},
	)

	BroadcastLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "room_broadcast_latency_seconds",
			Help:    "Latency of fanning one frame out to a conversation room",
			Buckets: prometheus.DefBuckets,
		},
	)

	RateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Total number of actions rejected by the rate limiter",
		},
		[]string{"action"},
	)
)
