// Package metrics declares the Prometheus collectors exported by the chat
// server on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Poll outcomes used as the "outcome" label of PollsTotal.
const (
	OutcomeDelivered = "delivered"
	OutcomeCancelled = "cancelled"
	OutcomeTimeout   = "timeout"
	OutcomeClosed    = "closed"
	OutcomeError     = "error"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gochat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gochat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15, 30, 60},
		},
		[]string{"method", "path"},
	)

	// Buffer metrics
	MessagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gochat_messages_posted_total",
			Help: "Total messages appended to the buffer",
		},
	)

	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gochat_polls_total",
			Help: "Total long polls by outcome",
		},
		[]string{"outcome"},
	)

	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gochat_poll_duration_seconds",
			Help:    "Time a long poll spent before completing",
			Buckets: []float64{.001, .01, .1, 1, 5, 15, 30, 60, 120},
		},
	)

	ParkedPollers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gochat_parked_pollers",
			Help: "Long polls currently waiting for new messages",
		},
	)

	Wakeups = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gochat_poller_wakeups_total",
			Help: "Parked pollers woken by new messages",
		},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gochat_store_errors_total",
			Help: "Backing store failures",
		},
		[]string{"op"},
	)

	// Transport metrics
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gochat_websocket_clients",
			Help: "Connected WebSocket stream clients",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gochat_rate_limit_hits_total",
			Help: "Messages rejected by the rate limiter",
		},
		[]string{"transport"},
	)
)
