package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commhub_inbound_messages_total",
		Help: "Inbound messages by platform and result (new, duplicate, error)",
	}, []string{"platform", "result"})

	OutboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commhub_outbound_messages_total",
		Help: "Outbound messages by platform and final status",
	}, []string{"platform", "status"})

	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "commhub_ws_connections",
		Help: "Currently registered operator sockets",
	})

	WebSocketDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commhub_ws_dropped_frames_total",
		Help: "Frames dropped because a socket's send queue was full",
	})

	AutobotReplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commhub_autobot_replies_total",
		Help: "Autobot replies by AI usage and outcome",
	}, []string{"ai_generated", "success"})

	PollerRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commhub_poller_restarts_total",
		Help: "Supervised poller restarts",
	}, []string{"poller"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commhub_http_requests_total",
		Help: "HTTP requests by method, route and status code",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "commhub_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	WebhookRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commhub_webhook_rejections_total",
		Help: "Webhook requests rejected by platform and reason",
	}, []string{"platform", "reason"})
)
