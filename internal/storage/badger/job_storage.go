package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/adhil-payingalil/resumatch/internal/common"
	"github.com/adhil-payingalil/resumatch/internal/interfaces"
	"github.com/adhil-payingalil/resumatch/internal/models"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.JobPosting) error {
	if job.ID == "" {
		return common.Permanent("job_storage.save", fmt.Errorf("job ID is required"))
	}

	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return common.Transient("job_storage.save", fmt.Errorf("failed to save job: %w", err))
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.JobPosting, error) {
	var job models.JobPosting
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, common.Permanent("job_storage.get", fmt.Errorf("job not found: %s", id))
		}
		return nil, common.Transient("job_storage.get", fmt.Errorf("failed to get job: %w", err))
	}
	return &job, nil
}

// ListEligibleJobs returns matchable postings: extraction succeeded, a
// recall embedding is present, and the posting passes the search-term and
// exclusion filters. Results are sorted by id so batching is stable across
// runs.
func (s *JobStorage) ListEligibleJobs(ctx context.Context, opts interfaces.EligibleJobOptions) ([]*models.JobPosting, error) {
	var jobs []models.JobPosting
	query := badgerhold.Where("JDExtraction").Eq(true)
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, common.Transient("job_storage.list_eligible", fmt.Errorf("failed to list jobs: %w", err))
	}

	terms := make(map[string]struct{}, len(opts.SearchTerms))
	for _, t := range opts.SearchTerms {
		terms[t] = struct{}{}
	}

	eligible := make([]*models.JobPosting, 0, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		if !job.Eligible() {
			continue
		}
		if len(terms) > 0 {
			if _, ok := terms[job.SearchTerm]; !ok {
				continue
			}
		}
		if opts.ExcludeIDs != nil {
			if _, ok := opts.ExcludeIDs[job.ID]; ok {
				continue
			}
		}
		eligible = append(eligible, job)
	}

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].ID < eligible[j].ID
	})

	if opts.Limit > 0 && len(eligible) > opts.Limit {
		eligible = eligible[:opts.Limit]
	}

	s.logger.Debug().
		Int("total", len(jobs)).
		Int("eligible", len(eligible)).
		Int("limit", opts.Limit).
		Msg("Listed eligible jobs")

	return eligible, nil
}

func (s *JobStorage) CountJobs(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.JobPosting{}, nil)
	if err != nil {
		return 0, common.Transient("job_storage.count", fmt.Errorf("failed to count jobs: %w", err))
	}
	return int(count), nil
}

var _ interfaces.JobStorage = (*JobStorage)(nil)
