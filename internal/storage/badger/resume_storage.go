package badger

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/adhil-payingalil/resumatch/internal/common"
	"github.com/adhil-payingalil/resumatch/internal/interfaces"
	"github.com/adhil-payingalil/resumatch/internal/models"
)

// ResumeStorage implements the ResumeStorage interface for Badger.
//
// Badger has no native vector index, so VectorSearch is a brute-force
// cosine scan over stored embeddings. That matches the contract of an
// approximate index for corpora of this size; a store with a real ANN
// index slots in behind the same interface.
type ResumeStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewResumeStorage creates a new ResumeStorage instance
func NewResumeStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ResumeStorage {
	return &ResumeStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ResumeStorage) SaveResume(ctx context.Context, resume *models.Resume) error {
	if resume.ID == "" {
		return common.Permanent("resume_storage.save", fmt.Errorf("resume ID is required"))
	}

	now := time.Now()
	if resume.CreatedAt.IsZero() {
		resume.CreatedAt = now
	}
	resume.UpdatedAt = now

	if err := s.db.Store().Upsert(resume.ID, resume); err != nil {
		return common.Transient("resume_storage.save", fmt.Errorf("failed to save resume: %w", err))
	}
	return nil
}

func (s *ResumeStorage) GetResume(ctx context.Context, id string) (*models.Resume, error) {
	var resume models.Resume
	if err := s.db.Store().Get(id, &resume); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, common.Permanent("resume_storage.get", fmt.Errorf("resume not found: %s", id))
		}
		return nil, common.Transient("resume_storage.get", fmt.Errorf("failed to get resume: %w", err))
	}
	return &resume, nil
}

// ListResumesByIndustry returns embeddable resumes whose industry_prefix
// is in prefixes; empty prefixes admits all industries.
func (s *ResumeStorage) ListResumesByIndustry(ctx context.Context, prefixes []string) ([]*models.Resume, error) {
	var resumes []models.Resume
	var err error

	if len(prefixes) == 0 {
		err = s.db.Store().Find(&resumes, badgerhold.Where("ID").Ne(""))
	} else {
		keys := make([]interface{}, len(prefixes))
		for i, p := range prefixes {
			keys[i] = p
		}
		err = s.db.Store().Find(&resumes, badgerhold.Where("IndustryPrefix").In(keys...))
	}
	if err != nil {
		return nil, common.Transient("resume_storage.list_by_industry", fmt.Errorf("failed to list resumes: %w", err))
	}

	result := make([]*models.Resume, 0, len(resumes))
	for i := range resumes {
		if resumes[i].Embeddable() {
			result = append(result, &resumes[i])
		}
	}

	s.logger.Debug().
		Strs("prefixes", prefixes).
		Int("count", len(result)).
		Msg("Listed resumes by industry")

	return result, nil
}

// VectorSearch scans all embedded resumes, scores them by cosine
// similarity against the query, and returns the top opts.Limit hits in
// descending raw-score order. NumCandidates bounds the intermediate pool
// the way an ANN index's candidate count does.
func (s *ResumeStorage) VectorSearch(ctx context.Context, query []float32, opts interfaces.VectorSearchOptions) ([]interfaces.VectorHit, error) {
	if len(query) == 0 {
		return nil, common.Permanent("resume_storage.vector_search", fmt.Errorf("query vector is empty"))
	}

	var resumes []models.Resume
	if err := s.db.Store().Find(&resumes, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, common.Transient("resume_storage.vector_search", fmt.Errorf("failed to scan resumes: %w", err))
	}

	hits := make([]interfaces.VectorHit, 0, len(resumes))
	for i := range resumes {
		resume := &resumes[i]
		if !resume.Embeddable() {
			continue
		}
		if len(resume.TextEmbedding) != len(query) {
			return nil, common.Permanent("resume_storage.vector_search",
				fmt.Errorf("embedding dimension mismatch: query %d, resume %s has %d",
					len(query), resume.ID, len(resume.TextEmbedding)))
		}
		score, err := cosineSimilarity(query, resume.TextEmbedding)
		if err != nil {
			return nil, common.Permanent("resume_storage.vector_search", err)
		}
		hits = append(hits, interfaces.VectorHit{Resume: resume, RawScore: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].RawScore > hits[j].RawScore
	})

	if opts.NumCandidates > 0 && len(hits) > opts.NumCandidates {
		hits = hits[:opts.NumCandidates]
	}
	if opts.Limit > 0 && len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}

	s.logger.Debug().
		Int("corpus", len(resumes)).
		Int("hits", len(hits)).
		Int("limit", opts.Limit).
		Str("index", opts.IndexName).
		Msg("Vector search completed")

	return hits, nil
}

func (s *ResumeStorage) CountResumes(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Resume{}, nil)
	if err != nil {
		return 0, common.Transient("resume_storage.count", fmt.Errorf("failed to count resumes: %w", err))
	}
	return int(count), nil
}

// cosineSimilarity computes the cosine of the angle between two vectors of
// equal dimensionality. Zero-magnitude vectors score 0.
func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

var _ interfaces.ResumeStorage = (*ResumeStorage)(nil)
