// Package metrics provides Prometheus instrumentation for the ticket service.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brokerdesk",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "brokerdesk",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// TicketOpsTotal counts engine operations by name and outcome.
	TicketOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brokerdesk",
			Name:      "ticket_operations_total",
			Help:      "Total ticket engine operations by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	// TicketOpDuration observes engine operation latency.
	TicketOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "brokerdesk",
			Name:      "ticket_operation_duration_seconds",
			Help:      "Ticket engine operation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// TicketsCreatedTotal counts created tickets by tier.
	TicketsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brokerdesk",
			Name:      "tickets_created_total",
			Help:      "Total tickets created by tier.",
		},
		[]string{"tier"},
	)

	// TicketsOpen tracks tickets currently in the store.
	TicketsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "brokerdesk",
			Name:      "tickets_open",
			Help:      "Number of tickets currently active.",
		},
	)

	// CompletionsTotal counts recorded completion proofs.
	CompletionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "brokerdesk",
			Name:      "completions_total",
			Help:      "Total completion proofs recorded.",
		},
	)

	// SnapshotSavesTotal counts durable snapshot writes by result.
	SnapshotSavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brokerdesk",
			Name:      "snapshot_saves_total",
			Help:      "Total durable snapshot writes by result.",
		},
		[]string{"result"},
	)

	// GatewayCallsTotal counts chat-platform gateway calls by call and result.
	GatewayCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brokerdesk",
			Name:      "gateway_calls_total",
			Help:      "Total channel gateway calls by call and result.",
		},
		[]string{"call", "result"},
	)

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "brokerdesk",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TicketOpsTotal,
		TicketOpDuration,
		TicketsCreatedTotal,
		TicketsOpen,
		CompletionsTotal,
		SnapshotSavesTotal,
		GatewayCallsTotal,
		ActiveWebSocketClients,
	)
}

// ObserveOp starts timing an engine operation. The returned func records the
// duration and counts the outcome ("ok" or "error").
func ObserveOp(op string) func(err error) {
	timer := prometheus.NewTimer(TicketOpDuration.WithLabelValues(op))
	return func(err error) {
		timer.ObserveDuration()
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		TicketOpsTotal.WithLabelValues(op, outcome).Inc()
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for the /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
