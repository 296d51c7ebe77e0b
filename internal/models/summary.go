package models

import "time"

// JobOutcome is the terminal state of one job's evaluation.
type JobOutcome string

const (
	// OutcomeMatched - at least one valid shortlist entry; a MatchRecord was written
	OutcomeMatched JobOutcome = "matched"

	// OutcomeNoValidMatch - candidates were examined, none qualified; an UnmatchedRecord was written
	OutcomeNoValidMatch JobOutcome = "no_valid_match"

	// OutcomeNoResumesFound - recall produced no candidates; an UnmatchedRecord with an empty shortlist was written
	OutcomeNoResumesFound JobOutcome = "no_resumes_found"

	// OutcomeError - validation or persistence failed; nothing was written so a future run can retry
	OutcomeError JobOutcome = "error"
)

// WorkflowSummary is returned by every engine run, including partial runs
// cut short by cancellation.
type WorkflowSummary struct {
	WorkflowRun  string `json:"workflow_run"`
	WorkflowType string `json:"workflow_type"`

	JobsTotal      int `json:"jobs_total"`
	Matched        int `json:"matched"`
	NoValidMatch   int `json:"no_valid_match"`
	NoResumesFound int `json:"no_resumes_found"`
	Errors         int `json:"errors"`
	Skipped        int `json:"skipped"`

	Cancelled bool `json:"cancelled"`

	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Metrics     MetricsSnapshot `json:"metrics"`

	// Effective configuration the run executed with
	Config map[string]interface{} `json:"config"`
}
