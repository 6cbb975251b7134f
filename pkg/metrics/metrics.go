// Package metrics exposes Prometheus collectors for the file lifecycle engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileshare_http_requests_total",
			Help: "Total HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fileshare_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Lifecycle metrics
	lifecycleOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileshare_lifecycle_operations_total",
			Help: "Total lifecycle operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	lifecycleOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fileshare_lifecycle_operation_duration_seconds",
			Help:    "Lifecycle operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	inconsistenciesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileshare_inconsistencies_total",
			Help: "Lifecycle failures that left the object store and catalog divergent",
		},
		[]string{"kind"},
	)

	uploadedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fileshare_uploaded_bytes_total",
			Help: "Total bytes written to the object store by uploads",
		},
	)

	// Object store metrics
	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "fileshare_store_operation_duration_seconds",
			Help: "Object store operation duration in seconds",
			Buckets: []float64{
				0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
			},
		},
		[]string{"backend", "operation"},
	)

	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileshare_store_operations_total",
			Help: "Total object store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	// Reconciliation metrics
	reconcileOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileshare_reconcile_outcomes_total",
			Help: "Pending intents processed by reconciliation, by outcome",
		},
		[]string{"operation", "outcome"},
	)

	pendingIntents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fileshare_pending_intents",
			Help: "Number of journaled intents awaiting reconciliation",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordLifecycle records the outcome of one lifecycle operation.
// result is "success" or the error kind.
func RecordLifecycle(operation, result string, duration time.Duration) {
	lifecycleOperationsTotal.WithLabelValues(operation, result).Inc()
	lifecycleOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordInconsistency records a partial failure by error kind.
func RecordInconsistency(kind string) {
	inconsistenciesTotal.WithLabelValues(kind).Inc()
}

// RecordUploadBytes adds to the uploaded byte counter.
func RecordUploadBytes(n int64) {
	if n > 0 {
		uploadedBytesTotal.Add(float64(n))
	}
}

// RecordStoreOperation records an object store call.
func RecordStoreOperation(backend, operation string, duration time.Duration, success bool) {
	storeOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	storeOperationsTotal.WithLabelValues(backend, operation, status).Inc()
}

// RecordReconcile records one reconciled intent.
func RecordReconcile(operation, outcome string) {
	reconcileOutcomesTotal.WithLabelValues(operation, outcome).Inc()
}

// SetPendingIntents sets the number of pending intents.
func SetPendingIntents(count int) {
	pendingIntents.Set(float64(count))
}

// Middleware returns gin middleware that records request metrics.
// Routes are labelled by their pattern so file names do not explode cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
