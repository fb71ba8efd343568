// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector registers and records all switchboard Prometheus metrics.
type Collector struct {
	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// Handoff metrics
	handoffsTotal   *prometheus.CounterVec
	handoffDuration *prometheus.HistogramVec

	// Run metrics
	runStartsTotal *prometheus.CounterVec
	runStopsTotal  *prometheus.CounterVec

	// Stream metrics
	streamEventsTotal *prometheus.CounterVec

	// Message store metrics
	storeOpsTotal   *prometheus.CounterVec
	storeOpDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector creates a collector registered on the default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegisterer(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegisterer creates a collector on a specific registerer,
// useful in tests to avoid duplicate registration.
func NewCollectorWithRegisterer(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.handoffsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Total number of agent handoff attempts",
		},
		[]string{"status"}, // success, start_failed, rejected
	)

	c.handoffDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handoff_duration_seconds",
			Help:      "Agent handoff duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"status"},
	)

	c.runStartsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_starts_total",
			Help:      "Total number of run start attempts",
		},
		[]string{"status"},
	)

	c.runStopsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_stops_total",
			Help:      "Total number of run stop attempts",
		},
		[]string{"status"},
	)

	c.streamEventsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Total number of stream events relayed",
		},
		[]string{"type"},
	)

	c.storeOpsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of message store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	c.storeOpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Message store operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"backend", "operation"},
	)

	return c
}

// RecordHTTPRequest records one HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	statusLabel := strconv.Itoa(status)
	c.httpRequestsTotal.WithLabelValues(method, path, statusLabel).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// RecordHandoff records one handoff attempt.
func (c *Collector) RecordHandoff(status string, duration time.Duration) {
	c.handoffsTotal.WithLabelValues(status).Inc()
	c.handoffDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordRunStart records one run start attempt.
func (c *Collector) RecordRunStart(status string) {
	c.runStartsTotal.WithLabelValues(status).Inc()
}

// RecordRunStop records one run stop attempt.
func (c *Collector) RecordRunStop(status string) {
	c.runStopsTotal.WithLabelValues(status).Inc()
}

// RecordStreamEvent records one relayed stream event.
func (c *Collector) RecordStreamEvent(eventType string) {
	c.streamEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordStoreOp records one message store operation.
func (c *Collector) RecordStoreOp(backend, operation, status string, duration time.Duration) {
	c.storeOpsTotal.WithLabelValues(backend, operation, status).Inc()
	c.storeOpDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}
