package interfaces

import (
	"context"

	"github.com/adhil-payingalil/resumatch/internal/models"
)

// EligibleJobOptions narrows the eligible-job listing.
type EligibleJobOptions struct {
	// SearchTerms restricts jobs to those whose search_term is in the set.
	// Empty means no restriction.
	SearchTerms []string

	// ExcludeIDs drops jobs already processed in earlier runs.
	ExcludeIDs map[string]struct{}

	// Limit caps the number of jobs returned. 0 means all eligible.
	Limit int
}

// VectorHit is one approximate-nearest-neighbour result: a resume and its
// raw (un-normalized) similarity score as reported by the index.
type VectorHit struct {
	Resume   *models.Resume
	RawScore float64
}

// VectorSearchOptions parametrizes one vector-index query.
type VectorSearchOptions struct {
	NumCandidates int
	Limit         int
	IndexName     string
	EmbeddingPath string
}

// JobStorage provides access to the job-postings collection.
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.JobPosting) error

	GetJob(ctx context.Context, id string) (*models.JobPosting, error)

	// ListEligibleJobs returns jobs that carry a non-empty embedding and a
	// successful extraction flag, filtered per opts. Results are ordered by
	// job id for stable batching.
	ListEligibleJobs(ctx context.Context, opts EligibleJobOptions) ([]*models.JobPosting, error)

	CountJobs(ctx context.Context) (int, error)
}

// ResumeStorage provides access to the resume collection and its vector
// index.
type ResumeStorage interface {
	SaveResume(ctx context.Context, resume *models.Resume) error

	GetResume(ctx context.Context, id string) (*models.Resume, error)

	// ListResumesByIndustry returns resumes whose industry_prefix is in
	// prefixes. Empty prefixes returns all resumes. Resumes without an
	// embedding are excluded.
	ListResumesByIndustry(ctx context.Context, prefixes []string) ([]*models.Resume, error)

	// VectorSearch runs nearest-neighbour search over resume embeddings and
	// returns up to opts.Limit hits ordered by raw score descending. A
	// query-dimension mismatch is a permanent error.
	VectorSearch(ctx context.Context, query []float32, opts VectorSearchOptions) ([]VectorHit, error)

	CountResumes(ctx context.Context) (int, error)
}

// MatchStorage provides idempotent access to the matched and unmatched
// collections. Inserts are keyed by (job_id, workflow_run); re-inserting
// is an equivalent overwrite, never a duplicate.
type MatchStorage interface {
	InsertMatch(ctx context.Context, record *models.MatchRecord) error

	InsertUnmatched(ctx context.Context, record *models.UnmatchedRecord) error

	// ProcessedJobIDs returns the ids of all jobs that already have a match
	// or unmatched record, across all runs.
	ProcessedJobIDs(ctx context.Context) (map[string]struct{}, error)

	GetMatch(ctx context.Context, jobID, workflowRun string) (*models.MatchRecord, error)

	GetUnmatched(ctx context.Context, jobID, workflowRun string) (*models.UnmatchedRecord, error)

	CountMatches(ctx context.Context) (int, error)

	CountUnmatched(ctx context.Context) (int, error)
}

// CheckpointStorage persists the engine's resumability cursor. One
// checkpoint exists per workflow type; writes supersede atomically.
type CheckpointStorage interface {
	WriteCheckpoint(ctx context.Context, checkpoint *models.Checkpoint) error

	// ReadLatestCheckpoint returns nil without error when no checkpoint
	// exists for the workflow type.
	ReadLatestCheckpoint(ctx context.Context, workflowType string) (*models.Checkpoint, error)
}

// StorageManager bundles the document-store collections behind one
// connection lifecycle.
type StorageManager interface {
	JobStorage() JobStorage
	ResumeStorage() ResumeStorage
	MatchStorage() MatchStorage
	CheckpointStorage() CheckpointStorage
	Close() error
}
