package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adhil-payingalil/resumatch/internal/common"
	"github.com/adhil-payingalil/resumatch/internal/interfaces"
	"github.com/adhil-payingalil/resumatch/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()

	manager, err := NewManager(common.GetLogger(), &common.BadgerConfig{
		Path: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, manager.Close())
	})
	return manager
}

func TestJobStorage_SaveAndGet(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	job := &models.JobPosting{
		ID:           "job_1",
		Title:        "Backend Engineer",
		JDExtraction: true,
		JDEmbedding:  []float32{0.1, 0.2},
	}
	require.NoError(t, m.JobStorage().SaveJob(ctx, job))

	got, err := m.JobStorage().GetJob(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, "Backend Engineer", got.Title)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestJobStorage_ListEligibleJobs(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	jobs := []*models.JobPosting{
		{ID: "job_c", JDExtraction: true, JDEmbedding: []float32{0.1}, SearchTerm: "data engineer"},
		{ID: "job_a", JDExtraction: true, JDEmbedding: []float32{0.1}, SearchTerm: "data engineer"},
		{ID: "job_b", JDExtraction: true, JDEmbedding: []float32{0.1}, SearchTerm: "designer"},
		{ID: "job_no_embedding", JDExtraction: true},
		{ID: "job_no_extraction", JDEmbedding: []float32{0.1}},
	}
	for _, j := range jobs {
		require.NoError(t, m.JobStorage().SaveJob(ctx, j))
	}

	t.Run("eligibility and id ordering", func(t *testing.T) {
		got, err := m.JobStorage().ListEligibleJobs(ctx, interfaces.EligibleJobOptions{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "job_a", got[0].ID)
		assert.Equal(t, "job_b", got[1].ID)
		assert.Equal(t, "job_c", got[2].ID)
	})

	t.Run("search term filter", func(t *testing.T) {
		got, err := m.JobStorage().ListEligibleJobs(ctx, interfaces.EligibleJobOptions{
			SearchTerms: []string{"data engineer"},
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
	})

	t.Run("exclusion filter", func(t *testing.T) {
		got, err := m.JobStorage().ListEligibleJobs(ctx, interfaces.EligibleJobOptions{
			ExcludeIDs: map[string]struct{}{"job_a": {}, "job_b": {}},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "job_c", got[0].ID)
	})

	t.Run("limit", func(t *testing.T) {
		got, err := m.JobStorage().ListEligibleJobs(ctx, interfaces.EligibleJobOptions{Limit: 2})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "job_a", got[0].ID)
	})
}

func TestResumeStorage_ListResumesByIndustry(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	resumes := []*models.Resume{
		{ID: "res_1", IndustryPrefix: "tech", TextEmbedding: []float32{0.1}},
		{ID: "res_2", IndustryPrefix: "finance", TextEmbedding: []float32{0.2}},
		{ID: "res_3", IndustryPrefix: "tech"}, // not embeddable
	}
	for _, r := range resumes {
		require.NoError(t, m.ResumeStorage().SaveResume(ctx, r))
	}

	got, err := m.ResumeStorage().ListResumesByIndustry(ctx, []string{"tech"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "res_1", got[0].ID)

	all, err := m.ResumeStorage().ListResumesByIndustry(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2, "empty prefixes admits all embeddable resumes")
}

func TestResumeStorage_VectorSearchOrdering(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// Cosine similarity against the query [1,0]: res_close ~1.0,
	// res_mid ~0.707, res_far 0.
	resumes := []*models.Resume{
		{ID: "res_far", TextEmbedding: []float32{0, 1}},
		{ID: "res_close", TextEmbedding: []float32{1, 0}},
		{ID: "res_mid", TextEmbedding: []float32{1, 1}},
	}
	for _, r := range resumes {
		require.NoError(t, m.ResumeStorage().SaveResume(ctx, r))
	}

	hits, err := m.ResumeStorage().VectorSearch(ctx, []float32{1, 0}, interfaces.VectorSearchOptions{
		NumCandidates: 10,
		Limit:         3,
	})
	require.NoError(t, err)

	require.Len(t, hits, 3)
	assert.Equal(t, "res_close", hits[0].Resume.ID)
	assert.Equal(t, "res_mid", hits[1].Resume.ID)
	assert.Equal(t, "res_far", hits[2].Resume.ID)
	assert.InDelta(t, 1.0, hits[0].RawScore, 1e-6)
	assert.InDelta(t, 0.7071, hits[1].RawScore, 1e-3)
}

func TestResumeStorage_VectorSearchLimit(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for _, r := range []*models.Resume{
		{ID: "res_1", TextEmbedding: []float32{1, 0}},
		{ID: "res_2", TextEmbedding: []float32{0.9, 0.1}},
		{ID: "res_3", TextEmbedding: []float32{0, 1}},
	} {
		require.NoError(t, m.ResumeStorage().SaveResume(ctx, r))
	}

	hits, err := m.ResumeStorage().VectorSearch(ctx, []float32{1, 0}, interfaces.VectorSearchOptions{
		NumCandidates: 10,
		Limit:         1,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "res_1", hits[0].Resume.ID)
}

func TestResumeStorage_VectorSearchDimensionMismatch(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.ResumeStorage().SaveResume(ctx, &models.Resume{
		ID: "res_1", TextEmbedding: []float32{1, 0, 0},
	}))

	_, err := m.ResumeStorage().VectorSearch(ctx, []float32{1, 0}, interfaces.VectorSearchOptions{Limit: 1})
	require.Error(t, err)
	assert.Equal(t, common.KindPermanent, common.KindOf(err))
}

func TestMatchStorage_InsertIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	record := &models.MatchRecord{
		Job:         models.JobSnapshot{JobID: "job_1"},
		ResumeID:    "res_1",
		WorkflowRun: "run_a",
		Status:      models.MatchStatusValidated,
	}

	require.NoError(t, m.MatchStorage().InsertMatch(ctx, record))
	require.NoError(t, m.MatchStorage().InsertMatch(ctx, record))

	count, err := m.MatchStorage().CountMatches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "re-insert must overwrite, not duplicate")

	got, err := m.MatchStorage().GetMatch(ctx, "job_1", "run_a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "res_1", got.ResumeID)
}

func TestMatchStorage_DistinctRunsAreDistinctRecords(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for _, run := range []string{"run_a", "run_b"} {
		require.NoError(t, m.MatchStorage().InsertMatch(ctx, &models.MatchRecord{
			Job:         models.JobSnapshot{JobID: "job_1"},
			ResumeID:    "res_1",
			WorkflowRun: run,
		}))
	}

	count, err := m.MatchStorage().CountMatches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMatchStorage_GetMissingReturnsNil(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	got, err := m.MatchStorage().GetMatch(ctx, "job_none", "run_none")
	require.NoError(t, err)
	assert.Nil(t, got)

	gotU, err := m.MatchStorage().GetUnmatched(ctx, "job_none", "run_none")
	require.NoError(t, err)
	assert.Nil(t, gotU)
}

func TestMatchStorage_ProcessedJobIDsUnion(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.MatchStorage().InsertMatch(ctx, &models.MatchRecord{
		Job: models.JobSnapshot{JobID: "job_1"}, WorkflowRun: "run_a",
	}))
	require.NoError(t, m.MatchStorage().InsertUnmatched(ctx, &models.UnmatchedRecord{
		Job: models.JobSnapshot{JobID: "job_2"}, WorkflowRun: "run_a",
		Status: models.MatchStatusNoValidMatch,
	}))

	processed, err := m.MatchStorage().ProcessedJobIDs(ctx)
	require.NoError(t, err)

	assert.Len(t, processed, 2)
	assert.Contains(t, processed, "job_1")
	assert.Contains(t, processed, "job_2")
}

func TestCheckpointStorage_WriteSupersedes(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first := &models.Checkpoint{
		WorkflowType:    "resume_matching",
		WorkflowRun:     "run_a",
		ProcessedJobIDs: []string{"job_1"},
		Status:          models.EngineStatusRunning,
	}
	require.NoError(t, m.CheckpointStorage().WriteCheckpoint(ctx, first))

	second := &models.Checkpoint{
		WorkflowType:    "resume_matching",
		WorkflowRun:     "run_a",
		ProcessedJobIDs: []string{"job_1", "job_2"},
		Status:          models.EngineStatusCompleted,
	}
	require.NoError(t, m.CheckpointStorage().WriteCheckpoint(ctx, second))

	got, err := m.CheckpointStorage().ReadLatestCheckpoint(ctx, "resume_matching")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.EngineStatusCompleted, got.Status)
	assert.Equal(t, []string{"job_1", "job_2"}, got.ProcessedJobIDs)
}

func TestCheckpointStorage_MissingReturnsNil(t *testing.T) {
	m := newTestManager(t)

	got, err := m.CheckpointStorage().ReadLatestCheckpoint(context.Background(), "other_workflow")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCosineSimilarity(t *testing.T) {
	score, err := cosineSimilarity([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)

	score, err = cosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, score, 1e-9)

	score, err = cosineSimilarity([]float32{0, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	_, err = cosineSimilarity([]float32{1}, []float32{1, 0})
	assert.Error(t, err)
}
