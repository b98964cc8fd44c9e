package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP, cache and scheduling activity.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	cacheLatency       prometheus.Observer
	cacheWrite         prometheus.Observer
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	availabilityChecks *prometheus.CounterVec
	lessonWrites       *prometheus.CounterVec
	scheduleConflicts  *prometheus.CounterVec
	repositionFailures prometheus.Counter
	statsDuration      prometheus.Observer
	queueDepth         prometheus.Gauge
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	availabilityChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_availability_checks_total",
		Help: "Availability evaluations by outcome",
	}, []string{"outcome"})

	lessonWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_lesson_writes_total",
		Help: "Committed lesson writes by action",
	}, []string{"action"})

	scheduleConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_conflicts_total",
		Help: "Rejected lesson writes by conflict code",
	}, []string{"code"})

	repositionFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_reposition_failures_total",
		Help: "Cancellations whose reposition could not be created",
	})

	statsDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_weekly_stats_seconds",
		Help:    "Time spent computing weekly statistics",
		Buckets: prometheus.DefBuckets,
	})

	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_stats_queue_depth",
		Help: "Weekly statistics warm-up jobs waiting to run",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal,
		cacheLatency, cacheWrite, cacheHits, cacheMisses,
		availabilityChecks, lessonWrites, scheduleConflicts, repositionFailures,
		statsDuration, queueDepth, goroutines,
	)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		availabilityChecks: availabilityChecks,
		lessonWrites:       lessonWrites,
		scheduleConflicts:  scheduleConflicts,
		repositionFailures: repositionFailures,
		statsDuration:      statsDuration,
		queueDepth:         queueDepth,
	}
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordAvailabilityCheck counts one evaluation. An empty code means available.
func (m *MetricsService) RecordAvailabilityCheck(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "AVAILABLE"
	}
	m.availabilityChecks.WithLabelValues(code).Inc()
}

// RecordLessonWrite counts committed lesson writes.
func (m *MetricsService) RecordLessonWrite(action string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.lessonWrites.WithLabelValues(action).Add(float64(n))
}

// RecordConflict counts a rejected write.
func (m *MetricsService) RecordConflict(code string) {
	if m == nil {
		return
	}
	m.scheduleConflicts.WithLabelValues(code).Inc()
}

// RecordRepositionFailure counts a cancellation whose makeup lesson failed.
func (m *MetricsService) RecordRepositionFailure() {
	if m == nil {
		return
	}
	m.repositionFailures.Inc()
}

// ObserveStatsComputation records how long a weekly aggregation took.
func (m *MetricsService) ObserveStatsComputation(duration time.Duration) {
	if m == nil {
		return
	}
	m.statsDuration.Observe(duration.Seconds())
}

// SetQueueDepth publishes the number of pending warm-up jobs.
func (m *MetricsService) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
