// Package recall implements two-stage candidate retrieval: a coarse
// industry filter served from the resume cache, followed by vector
// similarity search intersected with the filtered set.
package recall

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/adhil-payingalil/resumatch/internal/common"
	"github.com/adhil-payingalil/resumatch/internal/interfaces"
	"github.com/adhil-payingalil/resumatch/internal/models"
	"github.com/adhil-payingalil/resumatch/internal/services/cache"
	"github.com/adhil-payingalil/resumatch/internal/services/metrics"
)

// Candidate is one recall survivor: a resume and its normalized
// similarity score. The recall output is ordered by similarity
// descending, as returned by the index.
type Candidate struct {
	Resume          *models.Resume
	SimilarityScore float64
}

// Service retrieves match candidates for one job posting.
type Service struct {
	config     *common.MatchingConfig
	resumes    interfaces.ResumeStorage
	cache      *cache.ResumeCache
	metrics    *metrics.Collector
	normalizer Normalizer
	clock      interfaces.Clock
	logger     arbor.ILogger
}

// NewService creates the recall service. The normalizer is resolved from
// config up front so a bad name fails at startup, not per job.
func NewService(
	config *common.MatchingConfig,
	resumes interfaces.ResumeStorage,
	resumeCache *cache.ResumeCache,
	collector *metrics.Collector,
	clock interfaces.Clock,
	logger arbor.ILogger,
) (*Service, error) {
	normalizer, err := NewNormalizer(config.ScoreNormalization)
	if err != nil {
		return nil, fmt.Errorf("recall: %w", err)
	}

	return &Service{
		config:     config,
		resumes:    resumes,
		cache:      resumeCache,
		metrics:    collector,
		normalizer: normalizer,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Recall runs both retrieval stages for one job. An empty result means no
// candidates survived; that is an outcome, not an error. Transient storage
// failures are returned classified for the caller's retry loop.
func (s *Service) Recall(ctx context.Context, job *models.JobPosting) ([]Candidate, error) {
	started := s.clock.Now()
	defer func() {
		s.metrics.RecordVectorSearchDuration(s.clock.Now().Sub(started))
	}()

	// Eligibility excludes embedding-less jobs upstream; guard anyway so a
	// stale document cannot panic the vector call.
	if len(job.JDEmbedding) == 0 {
		s.logger.Warn().Str("job_id", job.ID).Msg("Job reached recall without an embedding")
		return nil, nil
	}

	pool, err := s.stageOneFilter(ctx)
	if err != nil {
		return nil, err
	}
	if len(pool) < 2 {
		s.logger.Debug().
			Str("job_id", job.ID).
			Int("pool_size", len(pool)).
			Msg("Insufficient candidates after industry filter")
		return nil, nil
	}

	return s.stageTwoVectorSearch(ctx, job, pool)
}

// stageOneFilter loads the industry-filtered resume pool, serving repeat
// calls from the TTL cache.
func (s *Service) stageOneFilter(ctx context.Context) ([]*models.Resume, error) {
	key := cache.Key(s.config.IndustryPrefixes)

	if pool, ok := s.cache.Get(key); ok {
		s.metrics.RecordCacheHit()
		return pool, nil
	}
	s.metrics.RecordCacheMiss()

	pool, err := s.resumes.ListResumesByIndustry(ctx, s.config.IndustryPrefixes)
	if err != nil {
		return nil, fmt.Errorf("industry filter: %w", err)
	}

	s.cache.Set(key, pool)
	return pool, nil
}

// stageTwoVectorSearch queries the vector index, intersects the hits with
// the stage-one pool, normalizes scores and applies the similarity
// threshold. Index order (similarity descending) is preserved.
func (s *Service) stageTwoVectorSearch(ctx context.Context, job *models.JobPosting, pool []*models.Resume) ([]Candidate, error) {
	admitted := make(map[string]struct{}, len(pool))
	for _, r := range pool {
		admitted[r.ID] = struct{}{}
	}

	numCandidates := 2 * len(pool)
	if ceiling := s.config.TopK * 5; numCandidates > ceiling {
		numCandidates = ceiling
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.config.VectorSearchTimeoutDuration())
	defer cancel()

	query := make([]float32, len(job.JDEmbedding))
	copy(query, job.JDEmbedding)

	hits, err := s.resumes.VectorSearch(searchCtx, query, interfaces.VectorSearchOptions{
		NumCandidates: numCandidates,
		Limit:         s.config.TopK * 2,
		IndexName:     s.config.VectorIndexName,
		EmbeddingPath: s.config.EmbeddingPath,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	candidates := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		if _, ok := admitted[hit.Resume.ID]; !ok {
			continue
		}
		score := s.normalizer.Normalize(hit.RawScore)
		if score < s.config.SimilarityThreshold {
			continue
		}
		candidates = append(candidates, Candidate{
			Resume:          hit.Resume,
			SimilarityScore: score,
		})
	}

	s.logger.Debug().
		Str("job_id", job.ID).
		Int("pool_size", len(pool)).
		Int("index_hits", len(hits)).
		Int("survivors", len(candidates)).
		Msg("Recall complete")

	return candidates, nil
}
