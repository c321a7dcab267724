// Package metrics provides run metrics for the reconciler, exported to a Prometheus
// Pushgateway at the end of each run or scraped over HTTP in scheduled mode.
package metrics

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

const namespace = "stddev_alarms"

// Prometheus metric labels
const (
	labelOperation = "operation"
	labelStatus    = "status"
	labelBound     = "bound"
	labelResult    = "result"
)

// Metric processing outcomes
const (
	ResultReconciled = "reconciled"
	ResultEmpty      = "empty"
	ResultDegenerate = "degenerate"
)

// Metrics tracks operational metrics with both internal counters and Prometheus metrics
type Metrics struct {
	// Internal atomic counters for fast access
	totalRequests  atomic.Uint64
	failedRequests atomic.Uint64
	rateLimitWaits atomic.Uint64
	alarmsPut      atomic.Uint64
	alarmsDeleted  atomic.Uint64

	logger   *zap.Logger
	registry *prometheus.Registry

	promBackendRequests *prometheus.CounterVec
	promBackendLatency  *prometheus.HistogramVec
	promRateLimitWaits  prometheus.Counter
	promAlarmsPut       *prometheus.CounterVec
	promAlarmsDeleted   *prometheus.CounterVec
	promMetrics         *prometheus.CounterVec
	promLastRun         prometheus.Gauge
	promLastRunSuccess  prometheus.Gauge
	promRunDuration     prometheus.Histogram
}

// New creates a metrics tracker registered with its own Prometheus registry
func New(logger *zap.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		logger:   logger,
		registry: reg,

		promBackendRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Total number of CloudWatch API requests, labeled by operation and status",
		}, []string{labelOperation, labelStatus}),
		promBackendLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_latency_seconds",
			Help:      "CloudWatch API request latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}, []string{labelOperation}),
		promRateLimitWaits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_waits_total",
			Help:      "Number of requests delayed by the client-side rate limiter",
		}),
		promAlarmsPut: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarms_put_total",
			Help:      "Alarms created or replaced, labeled by bound",
		}, []string{labelBound}),
		promAlarmsDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarms_deleted_total",
			Help:      "Alarms deleted, labeled by bound",
		}, []string{labelBound}),
		promMetrics: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metrics_processed_total",
			Help:      "Matched metrics processed, labeled by result (reconciled, empty, degenerate)",
		}, []string{labelResult}),
		promLastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		promLastRunSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run completed without error, 0 otherwise",
		}),
		promRunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of reconciliation runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7m
		}),
	}
}

// RecordRequest records one backend call
func (m *Metrics) RecordRequest(operation string, success bool, latency time.Duration) {
	m.totalRequests.Add(1)

	status := "success"
	if !success {
		status = "error"
		m.failedRequests.Add(1)
	}
	m.promBackendRequests.WithLabelValues(operation, status).Inc()
	m.promBackendLatency.WithLabelValues(operation).Observe(latency.Seconds())
}

// RecordRateLimitWait records a request that had to wait for the rate limiter
func (m *Metrics) RecordRateLimitWait() {
	m.rateLimitWaits.Add(1)
	m.promRateLimitWaits.Inc()
}

// RecordAlarmPut records a created or replaced alarm
func (m *Metrics) RecordAlarmPut(bound string) {
	m.alarmsPut.Add(1)
	m.promAlarmsPut.WithLabelValues(bound).Inc()
}

// RecordAlarmDeleted records a deleted alarm
func (m *Metrics) RecordAlarmDeleted(bound string) {
	m.alarmsDeleted.Add(1)
	m.promAlarmsDeleted.WithLabelValues(bound).Inc()
}

// RecordMetricProcessed records the outcome for one matched metric
func (m *Metrics) RecordMetricProcessed(result string) {
	m.promMetrics.WithLabelValues(result).Inc()
}

// RecordRun records the end of a run
func (m *Metrics) RecordRun(success bool, finished time.Time, duration time.Duration) {
	m.promLastRun.Set(float64(finished.Unix()))
	if success {
		m.promLastRunSuccess.Set(1)
	} else {
		m.promLastRunSuccess.Set(0)
	}
	m.promRunDuration.Observe(duration.Seconds())
}

// Registry returns the registry all metrics are registered with
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Push sends the current values to a Pushgateway, replacing the group for job
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return push.New(url, job).
		Gatherer(m.registry).
		PushContext(ctx)
}

// GetStats returns current statistics
func (m *Metrics) GetStats() Stats {
	return Stats{
		TotalRequests:  m.totalRequests.Load(),
		FailedRequests: m.failedRequests.Load(),
		RateLimitWaits: m.rateLimitWaits.Load(),
		AlarmsPut:      m.alarmsPut.Load(),
		AlarmsDeleted:  m.alarmsDeleted.Load(),
	}
}

// LogStats logs current statistics
func (m *Metrics) LogStats() {
	stats := m.GetStats()

	var errorRate float64
	if stats.TotalRequests > 0 {
		errorRate = float64(stats.FailedRequests) / float64(stats.TotalRequests) * 100
	}

	m.logger.Info("Operational metrics",
		zap.Uint64("total_requests", stats.TotalRequests),
		zap.Uint64("failed_requests", stats.FailedRequests),
		zap.Float64("error_rate_pct", errorRate),
		zap.Uint64("rate_limit_waits", stats.RateLimitWaits),
		zap.Uint64("alarms_put", stats.AlarmsPut),
		zap.Uint64("alarms_deleted", stats.AlarmsDeleted),
	)
}

// Stats represents current metrics
type Stats struct {
	TotalRequests  uint64
	FailedRequests uint64
	RateLimitWaits uint64
	AlarmsPut      uint64
	AlarmsDeleted  uint64
}
