package models

import "time"

// MatchStatus tags persisted match and unmatched records.
type MatchStatus string

const (
	// MatchStatusValidated marks a job with at least one LLM-validated candidate
	MatchStatusValidated MatchStatus = "VALIDATED"

	// MatchStatusNoValidMatch marks a job whose shortlist had no valid entries
	MatchStatusNoValidMatch MatchStatus = "NO_VALID_MATCH"
)

// ShortlistEntry is one candidate's evaluation for one job: the recall
// similarity joined with the LLM's score, rank and summary. Shortlists are
// ordered by rank ascending (rank 1 = best).
type ShortlistEntry struct {
	ResumeID        string  `json:"resume_id"`
	FileID          string  `json:"file_id"`
	SimilarityScore float64 `json:"similarity_score"`
	LLMScore        int     `json:"llm_score"`
	Rank            int     `json:"rank"`
	Summary         string  `json:"summary"`
	IsValid         bool    `json:"is_valid"`
}

// MatchRecord is persisted when a job has at least one valid shortlist
// entry. Exactly one record exists per (job, workflow run); re-inserts
// overwrite equivalently.
type MatchRecord struct {
	ID  string      `json:"id"` // <job_id>::<workflow_run>
	Job JobSnapshot `json:"job"`

	// Chosen candidate
	ResumeID   string     `json:"resume_id"`
	FileID     string     `json:"file_id"`
	ResumeData ResumeData `json:"resume_data"`
	KeyMetrics KeyMetrics `json:"key_metrics"`

	Shortlist       []ShortlistEntry `json:"shortlist"`
	SimilarityScore float64          `json:"similarity_score"`
	LLMScore        int              `json:"llm_score"`
	Summary         string           `json:"summary"`

	Status      MatchStatus `json:"status"`
	WorkflowRun string      `json:"workflow_run"`
	CreatedAt   time.Time   `json:"created_at"`
	ValidatedAt time.Time   `json:"validated_at"`
}

// UnmatchedRecord is persisted when a job's shortlist had no valid entries,
// including the degenerate empty-shortlist case. Exactly one record exists
// per (job, workflow run).
type UnmatchedRecord struct {
	ID          string           `json:"id"` // <job_id>::<workflow_run>
	Job         JobSnapshot      `json:"job"`
	Shortlist   []ShortlistEntry `json:"shortlist"`
	Status      MatchStatus      `json:"status"`
	Reason      string           `json:"reason,omitempty"`
	WorkflowRun string           `json:"workflow_run"`
	CreatedAt   time.Time        `json:"created_at"`
}

// RecordKey builds the idempotency key shared by match and unmatched
// records for one job in one workflow run.
func RecordKey(jobID, workflowRun string) string {
	return jobID + "::" + workflowRun
}
