package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/adhil-payingalil/resumatch/internal/common"
	"github.com/adhil-payingalil/resumatch/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db         *BadgerDB
	job        interfaces.JobStorage
	resume     interfaces.ResumeStorage
	match      interfaces.MatchStorage
	checkpoint interfaces.CheckpointStorage
	logger     arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:         db,
		job:        NewJobStorage(db, logger),
		resume:     NewResumeStorage(db, logger),
		match:      NewMatchStorage(db, logger),
		checkpoint: NewCheckpointStorage(db, logger),
		logger:     logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// JobStorage returns the job-postings storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// ResumeStorage returns the resume storage interface
func (m *Manager) ResumeStorage() interfaces.ResumeStorage {
	return m.resume
}

// MatchStorage returns the match/unmatched storage interface
func (m *Manager) MatchStorage() interfaces.MatchStorage {
	return m.match
}

// CheckpointStorage returns the checkpoint storage interface
func (m *Manager) CheckpointStorage() interfaces.CheckpointStorage {
	return m.checkpoint
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

var _ interfaces.StorageManager = (*Manager)(nil)
