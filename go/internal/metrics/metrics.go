package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	rpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakroom_rpc_requests_total",
			Help: "Total number of RPC requests",
		},
		[]string{"procedure", "code"},
	)

	rpcRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "breakroom_rpc_request_duration_seconds",
			Help:    "RPC request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"procedure"},
	)

	rpcRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "breakroom_rpc_requests_in_flight",
			Help: "Number of RPC requests currently being processed",
		},
	)

	arbiterResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakroom_arbiter_resolutions_total",
			Help: "Turn and randomness resolutions by game kind and operation",
		},
		[]string{"kind", "operation", "status"},
	)

	duplicateSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakroom_duplicate_submissions_total",
			Help: "Submissions rejected by the in-flight guard",
		},
		[]string{"action"},
	)

	sessionsSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "breakroom_sessions_swept_total",
			Help: "Stale active sessions ended by the janitor",
		},
	)

	gatewayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "breakroom_gateway_connections",
			Help: "Open change-feed WebSocket connections",
		},
	)

	gatewayBroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakroom_gateway_broadcasts_total",
			Help: "Change events fanned out to WebSocket subscribers",
		},
		[]string{"table"},
	)

	outboxEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakroom_outbox_events_total",
			Help: "Outbox events processed",
		},
		[]string{"event_type", "status"},
	)

	outboxEventDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "breakroom_outbox_event_duration_seconds",
			Help:    "Time to publish a single outbox event",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_type"},
	)

	outboxBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "breakroom_outbox_batch_size",
			Help:    "Number of events per fallback batch",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)

	outboxBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "breakroom_outbox_batch_duration_seconds",
			Help:    "Time to process a fallback batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	outboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "breakroom_outbox_lag",
			Help: "Unsent outbox events seen in the last sweep",
		},
	)

	outboxPublishAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakroom_outbox_publish_attempts_total",
			Help: "Publish attempts by attempt number",
		},
		[]string{"event_type", "attempt", "status"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RPCStarted marks a request as in flight and returns a func that records its outcome.
func RPCStarted(procedure string) func(code string) {
	start := time.Now()
	rpcRequestsInFlight.Inc()
	return func(code string) {
		rpcRequestsInFlight.Dec()
		rpcRequestsTotal.WithLabelValues(procedure, code).Inc()
		rpcRequestDuration.WithLabelValues(procedure).Observe(time.Since(start).Seconds())
	}
}

func RecordResolution(kind, operation string, err error) {
	arbiterResolutionsTotal.WithLabelValues(kind, operation, status(err == nil)).Inc()
}

func RecordDuplicateSubmission(action string) {
	duplicateSubmissionsTotal.WithLabelValues(action).Inc()
}

func RecordSessionsSwept(n int) {
	sessionsSweptTotal.Add(float64(n))
}

func GatewayConnectionOpened() { gatewayConnections.Inc() }
func GatewayConnectionClosed() { gatewayConnections.Dec() }

func RecordBroadcast(table string) {
	gatewayBroadcastsTotal.WithLabelValues(table).Inc()
}

// Outbox implements the outbox relay's MetricsCollector.
type Outbox struct{}

func (Outbox) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
	outboxEventsTotal.WithLabelValues(eventType, status(success)).Inc()
	outboxEventDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

func (Outbox) RecordBatchProcessed(count int, duration time.Duration) {
	outboxBatchSize.Observe(float64(count))
	outboxBatchDuration.Observe(duration.Seconds())
}

func (Outbox) RecordOutboxLag(lag int) {
	outboxLag.Set(float64(lag))
}

func (Outbox) RecordPublishAttempt(eventType string, attempt int, success bool) {
	outboxPublishAttempts.WithLabelValues(eventType, strconv.Itoa(attempt), status(success)).Inc()
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
