package models

import "time"

// EngineStatus tags the engine state recorded on a checkpoint.
type EngineStatus string

const (
	EngineStatusRunning   EngineStatus = "running"
	EngineStatusCompleted EngineStatus = "completed"
	EngineStatusCancelled EngineStatus = "cancelled"
	EngineStatusAborted   EngineStatus = "aborted"
)

// Checkpoint is the durable resumability cursor: the set of job ids
// processed so far in insertion order, plus a metrics snapshot. One
// checkpoint exists per workflow type; each write supersedes the last.
type Checkpoint struct {
	WorkflowType    string          `json:"workflow_type"`
	WorkflowRun     string          `json:"workflow_run"`
	ProcessedJobIDs []string        `json:"processed_job_ids"`
	Status          EngineStatus    `json:"status"`
	Metrics         MetricsSnapshot `json:"metrics"`
	Timestamp       time.Time       `json:"timestamp"`
}

// MetricsSnapshot is a point-in-time copy of the engine's performance
// counters, embedded in checkpoints and workflow summaries.
type MetricsSnapshot struct {
	JobsProcessed  int64 `json:"jobs_processed"`
	Matched        int64 `json:"matched"`
	Unmatched      int64 `json:"unmatched"`
	NoResumesFound int64 `json:"no_resumes_found"`
	Errors         int64 `json:"errors"`

	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`

	VectorSearchCount int64   `json:"vector_search_count"`
	AvgVectorSearchMs float64 `json:"avg_vector_search_ms"`
	ValidationCount   int64   `json:"validation_count"`
	AvgValidationMs   float64 `json:"avg_validation_ms"`
}

// CacheHitRate returns the fraction of recall calls served from cache.
func (m MetricsSnapshot) CacheHitRate() float64 {
	total := m.CacheHits + m.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(m.CacheHits) / float64(total)
}
