package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders reconciled to paid",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed orders",
	}, []string{"reason"})

	OrdersRefundedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_refunded_total",
		Help: "Total number of refunded orders",
	})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of inbound gateway webhook events",
	}, []string{"outcome"})

	CaptureDuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capture_duplicates_total",
		Help: "Total number of duplicate capture deliveries absorbed",
	})

	ReconciliationConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciliation_conflicts_total",
		Help: "Total number of fatal charge/order reconciliation conflicts",
	})

	UnresolvedCapturesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unresolved_captures_total",
		Help: "Total number of captures parked after exhausting order lookup retries",
	})

	CaptureLookupLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "capture_lookup_latency_seconds",
		Help:    "Latency of matching a capture to its order, retries included",
		Buckets: prometheus.DefBuckets,
	})

	GatewayIntentLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_intent_latency_seconds",
		Help:    "Latency of gateway intent creation calls",
		Buckets: prometheus.DefBuckets,
	})

	ArtifactGenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artifact_generations_total",
		Help: "Total number of ticket artifact generation attempts",
	}, []string{"outcome"})

	TokenRotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "token_rotations_total",
		Help: "Total number of successful refresh token rotations",
	})

	TokenReplaysDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "token_replays_detected_total",
		Help: "Total number of stale refresh token replays that revoked a session",
	})

	SessionsRevokedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessions_revoked_total",
		Help: "Total number of revoked sessions",
	}, []string{"reason"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
