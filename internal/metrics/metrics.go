package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const prefix = "lostfound"

var (
	// HTTP request metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// Authentication metrics
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_auth_attempts_total",
			Help: "Sign-in attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Messaging metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_messages_sent_total",
			Help: "Total number of messages stored",
		},
	)
	BroadcastErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_broadcast_errors_total",
			Help: "Realtime publications that failed after a successful write",
		},
	)
	ConversationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_conversations_created_total",
			Help: "Conversations created, by kind (item or support)",
		},
		[]string{"kind"},
	)

	// Item and moderation metrics
	ItemOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_item_operations_total",
			Help: "Item operations (create, claim, unclaim)",
		},
		[]string{"operation"},
	)
	ModerationActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_moderation_actions_total",
			Help: "Administrative account actions",
		},
		[]string{"action"},
	)
)

// Middleware records request count and latency per route.
func Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		status := c.Response().Status
		if he, ok := err.(*echo.HTTPError); ok {
			status = he.Code
		}
		labels := []string{c.Request().Method, c.Path(), strconv.Itoa(status)}
		HTTPRequestsTotal.WithLabelValues(labels...).Inc()
		HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		return err
	}
}

// RecordItemOperation increments the counter for item operations.
func RecordItemOperation(op string) { ItemOperations.WithLabelValues(op).Inc() }

// RecordModeration increments the counter for moderation actions.
func RecordModeration(action string) { ModerationActions.WithLabelValues(action).Inc() }
