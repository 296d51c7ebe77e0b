package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/adhil-payingalil/resumatch/internal/common"
	"github.com/adhil-payingalil/resumatch/internal/interfaces"
	"github.com/adhil-payingalil/resumatch/internal/models"
)

// MatchStorage implements the MatchStorage interface for Badger. Records
// are keyed by (job_id, workflow_run), so inserts are idempotent: a
// re-insert is an equivalent overwrite, never a duplicate.
type MatchStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewMatchStorage creates a new MatchStorage instance
func NewMatchStorage(db *BadgerDB, logger arbor.ILogger) interfaces.MatchStorage {
	return &MatchStorage{
		db:     db,
		logger: logger,
	}
}

func (s *MatchStorage) InsertMatch(ctx context.Context, record *models.MatchRecord) error {
	if record.Job.JobID == "" || record.WorkflowRun == "" {
		return common.Permanent("match_storage.insert_match", fmt.Errorf("job id and workflow run are required"))
	}

	record.ID = models.RecordKey(record.Job.JobID, record.WorkflowRun)
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return common.Transient("match_storage.insert_match", fmt.Errorf("failed to insert match: %w", err))
	}

	s.logger.Debug().
		Str("job_id", record.Job.JobID).
		Str("resume_id", record.ResumeID).
		Str("workflow_run", record.WorkflowRun).
		Msg("Match record persisted")

	return nil
}

func (s *MatchStorage) InsertUnmatched(ctx context.Context, record *models.UnmatchedRecord) error {
	if record.Job.JobID == "" || record.WorkflowRun == "" {
		return common.Permanent("match_storage.insert_unmatched", fmt.Errorf("job id and workflow run are required"))
	}

	record.ID = models.RecordKey(record.Job.JobID, record.WorkflowRun)
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return common.Transient("match_storage.insert_unmatched", fmt.Errorf("failed to insert unmatched: %w", err))
	}

	s.logger.Debug().
		Str("job_id", record.Job.JobID).
		Int("shortlist", len(record.Shortlist)).
		Str("workflow_run", record.WorkflowRun).
		Msg("Unmatched record persisted")

	return nil
}

// ProcessedJobIDs returns the union of job ids present in the matched and
// unmatched collections, feeding the skip_processed_jobs filter.
func (s *MatchStorage) ProcessedJobIDs(ctx context.Context) (map[string]struct{}, error) {
	processed := make(map[string]struct{})

	var matches []models.MatchRecord
	if err := s.db.Store().Find(&matches, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, common.Transient("match_storage.processed_ids", fmt.Errorf("failed to list matches: %w", err))
	}
	for i := range matches {
		processed[matches[i].Job.JobID] = struct{}{}
	}

	var unmatched []models.UnmatchedRecord
	if err := s.db.Store().Find(&unmatched, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, common.Transient("match_storage.processed_ids", fmt.Errorf("failed to list unmatched: %w", err))
	}
	for i := range unmatched {
		processed[unmatched[i].Job.JobID] = struct{}{}
	}

	return processed, nil
}

func (s *MatchStorage) GetMatch(ctx context.Context, jobID, workflowRun string) (*models.MatchRecord, error) {
	var record models.MatchRecord
	if err := s.db.Store().Get(models.RecordKey(jobID, workflowRun), &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, common.Transient("match_storage.get_match", fmt.Errorf("failed to get match: %w", err))
	}
	return &record, nil
}

func (s *MatchStorage) GetUnmatched(ctx context.Context, jobID, workflowRun string) (*models.UnmatchedRecord, error) {
	var record models.UnmatchedRecord
	if err := s.db.Store().Get(models.RecordKey(jobID, workflowRun), &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, common.Transient("match_storage.get_unmatched", fmt.Errorf("failed to get unmatched: %w", err))
	}
	return &record, nil
}

func (s *MatchStorage) CountMatches(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.MatchRecord{}, nil)
	if err != nil {
		return 0, common.Transient("match_storage.count_matches", fmt.Errorf("failed to count matches: %w", err))
	}
	return int(count), nil
}

func (s *MatchStorage) CountUnmatched(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.UnmatchedRecord{}, nil)
	if err != nil {
		return 0, common.Transient("match_storage.count_unmatched", fmt.Errorf("failed to count unmatched: %w", err))
	}
	return int(count), nil
}

var _ interfaces.MatchStorage = (*MatchStorage)(nil)
