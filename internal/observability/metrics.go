// Package observability holds the Prometheus collectors and OpenTelemetry
// tracer shared by the comment engine and its transport.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatapp_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"operation"})

	// CommentMutations counts comment service operations by outcome.
	CommentMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatapp_comment_mutations_total",
		Help: "Comment operations by kind and result code",
	}, []string{"operation", "result"})

	// CommentMutationDuration records wall time of structural comment mutations.
	CommentMutationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatapp_comment_mutation_duration_seconds",
		Help:    "Duration of comment mutations including lock wait",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// TreeShiftedNodes records how many nodes each interval shift touched.
	TreeShiftedNodes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatapp_comment_tree_shifted_nodes",
		Help:    "Number of comment rows renumbered by a single insert or delete",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"operation"})

	// LockWait records how long callers waited for a per-post structural lock.
	LockWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatapp_comment_lock_wait_seconds",
		Help:    "Time spent acquiring a comment tree lock",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 3, 5},
	}, []string{"backend"})

	// LockTimeouts counts lock acquisitions that gave up.
	LockTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatapp_comment_lock_timeouts_total",
		Help: "Comment tree lock acquisitions that timed out",
	}, []string{"backend"})

	// NotificationFailures counts notifications that could not be delivered.
	NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatapp_notification_failures_total",
		Help: "Notifications dropped because the sink failed",
	}, []string{"type"})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatapp_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatapp_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)

// TrackMutation returns a function that records the duration and outcome of
// one comment operation. Call it with the code of the returned error ("ok"
// on success).
func TrackMutation(operation string) func(result string) {
	start := time.Now()
	return func(result string) {
		CommentMutationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		CommentMutations.WithLabelValues(operation, result).Inc()
	}
}
