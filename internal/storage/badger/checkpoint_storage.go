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

// CheckpointStorage implements the CheckpointStorage interface for Badger.
// Checkpoints are keyed by workflow type, so each write atomically
// supersedes the previous cursor for that workflow.
type CheckpointStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCheckpointStorage creates a new CheckpointStorage instance
func NewCheckpointStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CheckpointStorage {
	return &CheckpointStorage{
		db:     db,
		logger: logger,
	}
}

func (s *CheckpointStorage) WriteCheckpoint(ctx context.Context, checkpoint *models.Checkpoint) error {
	if checkpoint.WorkflowType == "" {
		return common.Permanent("checkpoint_storage.write", fmt.Errorf("workflow type is required"))
	}
	if checkpoint.Timestamp.IsZero() {
		checkpoint.Timestamp = time.Now()
	}

	if err := s.db.Store().Upsert(checkpoint.WorkflowType, checkpoint); err != nil {
		return common.Transient("checkpoint_storage.write", fmt.Errorf("failed to write checkpoint: %w", err))
	}

	s.logger.Debug().
		Str("workflow_type", checkpoint.WorkflowType).
		Int("processed", len(checkpoint.ProcessedJobIDs)).
		Str("status", string(checkpoint.Status)).
		Msg("Checkpoint persisted")

	return nil
}

func (s *CheckpointStorage) ReadLatestCheckpoint(ctx context.Context, workflowType string) (*models.Checkpoint, error) {
	var checkpoint models.Checkpoint
	if err := s.db.Store().Get(workflowType, &checkpoint); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, common.Transient("checkpoint_storage.read", fmt.Errorf("failed to read checkpoint: %w", err))
	}
	return &checkpoint, nil
}

var _ interfaces.CheckpointStorage = (*CheckpointStorage)(nil)
