package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec
	solveDuration   *prometheus.HistogramVec
	placementFails  prometheus.Counter
	repairMoves     prometheus.Counter
	editOperations  *prometheus.CounterVec
	editorSessions  prometheus.Gauge

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	dbQueryCount         uint64
	dbQueryDurationTotal uint64
	generationCount      uint64
	solveDurationTotal   uint64
	placementFailCount   uint64
	editCount            uint64
	activeSessions       int64
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

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	solveDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timetable_solve_duration_seconds",
		Help:    "Duration of timetable generation and repair runs",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 20, 30},
	}, []string{"mode", "outcome"})

	placementFails := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_placement_failures_total",
		Help: "Course hours the solver could not place",
	})

	repairMoves := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_repair_moves_total",
		Help: "Assignments relocated by repair runs",
	})

	editOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_edit_operations_total",
		Help: "Editor operations applied to sessions",
	}, []string{"operation", "result"})

	editorSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_editor_sessions",
		Help: "Open editor sessions",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, dbQueryDuration, solveDuration, placementFails, repairMoves, editOperations, editorSessions, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		dbQueryDuration: dbQueryDuration,
		solveDuration:   solveDuration,
		placementFails:  placementFails,
		repairMoves:     repairMoves,
		editOperations:  editOperations,
		editorSessions:  editorSessions,
	}
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
	atomic.AddUint64(&m.dbQueryCount, 1)
	atomic.AddUint64(&m.dbQueryDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveGeneration records a cold generation run.
func (m *MetricsService) ObserveGeneration(duration time.Duration, failures int, incomplete bool) {
	if m == nil {
		return
	}
	m.solveDuration.WithLabelValues("generate", outcomeLabel(failures, incomplete)).Observe(duration.Seconds())
	if failures > 0 {
		m.placementFails.Add(float64(failures))
		atomic.AddUint64(&m.placementFailCount, uint64(failures))
	}
	atomic.AddUint64(&m.generationCount, 1)
	atomic.AddUint64(&m.solveDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveRepair records a repair run and the number of relocated assignments.
func (m *MetricsService) ObserveRepair(duration time.Duration, moves, unresolved int, incomplete bool) {
	if m == nil {
		return
	}
	m.solveDuration.WithLabelValues("repair", outcomeLabel(unresolved, incomplete)).Observe(duration.Seconds())
	if moves > 0 {
		m.repairMoves.Add(float64(moves))
	}
}

// RecordEdit counts an editor operation.
func (m *MetricsService) RecordEdit(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.editOperations.WithLabelValues(operation, result).Inc()
	atomic.AddUint64(&m.editCount, 1)
}

// SetActiveSessions publishes the number of open editor sessions.
func (m *MetricsService) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.editorSessions.Set(float64(n))
	atomic.StoreInt64(&m.activeSessions, int64(n))
}

func outcomeLabel(failures int, incomplete bool) string {
	switch {
	case incomplete:
		return "incomplete"
	case failures > 0:
		return "partial"
	default:
		return "complete"
	}
}

// Snapshot returns aggregated metrics for the metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	dbCount := atomic.LoadUint64(&m.dbQueryCount)
	dbDuration := atomic.LoadUint64(&m.dbQueryDurationTotal)
	generations := atomic.LoadUint64(&m.generationCount)
	solveDuration := atomic.LoadUint64(&m.solveDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgDBMs float64
	if dbCount > 0 {
		avgDBMs = float64(dbDuration) / float64(dbCount) / float64(time.Millisecond)
	}

	var avgSolveMs float64
	if generations > 0 {
		avgSolveMs = float64(solveDuration) / float64(generations) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		DBQueryCount:             dbCount,
		AverageDBQueryDurationMs: avgDBMs,
		GenerationsTotal:         generations,
		AverageSolveDurationMs:   avgSolveMs,
		PlacementFailuresTotal:   atomic.LoadUint64(&m.placementFailCount),
		EditOperationsTotal:      atomic.LoadUint64(&m.editCount),
		ActiveEditorSessions:     int(atomic.LoadInt64(&m.activeSessions)),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
