package models

import "time"

// SystemMetrics is a point-in-time view of service instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	GenerationsTotal         uint64    `json:"generations_total"`
	AverageSolveDurationMs   float64   `json:"average_solve_duration_ms"`
	PlacementFailuresTotal   uint64    `json:"placement_failures_total"`
	EditOperationsTotal      uint64    `json:"edit_operations_total"`
	ActiveEditorSessions     int       `json:"active_editor_sessions"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
