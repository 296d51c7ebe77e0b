package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adhil-payingalil/resumatch/internal/common"
	"github.com/adhil-payingalil/resumatch/internal/interfaces"
	"github.com/adhil-payingalil/resumatch/internal/models"
)

// ---- in-memory storage manager ----

type memStorage struct {
	mu          sync.Mutex
	jobs        map[string]*models.JobPosting
	resumes     map[string]*models.Resume
	matches     map[string]*models.MatchRecord
	unmatched   map[string]*models.UnmatchedRecord
	checkpoints map[string]*models.Checkpoint
}

func newMemStorage() *memStorage {
	return &memStorage{
		jobs:        make(map[string]*models.JobPosting),
		resumes:     make(map[string]*models.Resume),
		matches:     make(map[string]*models.MatchRecord),
		unmatched:   make(map[string]*models.UnmatchedRecord),
		checkpoints: make(map[string]*models.Checkpoint),
	}
}

func (m *memStorage) JobStorage() interfaces.JobStorage               { return (*memJobStorage)(m) }
func (m *memStorage) ResumeStorage() interfaces.ResumeStorage         { return (*memResumeStorage)(m) }
func (m *memStorage) MatchStorage() interfaces.MatchStorage           { return (*memMatchStorage)(m) }
func (m *memStorage) CheckpointStorage() interfaces.CheckpointStorage { return (*memCheckpointStorage)(m) }
func (m *memStorage) Close() error                                    { return nil }

var _ interfaces.StorageManager = (*memStorage)(nil)

type memJobStorage memStorage

func (s *memJobStorage) SaveJob(ctx context.Context, job *models.JobPosting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *memJobStorage) GetJob(ctx context.Context, id string) (*models.JobPosting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id], nil
}

func (s *memJobStorage) ListEligibleJobs(ctx context.Context, opts interfaces.EligibleJobOptions) ([]*models.JobPosting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	terms := make(map[string]struct{}, len(opts.SearchTerms))
	for _, t := range opts.SearchTerms {
		terms[t] = struct{}{}
	}

	var eligible []*models.JobPosting
	for _, job := range s.jobs {
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

	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })
	if opts.Limit > 0 && len(eligible) > opts.Limit {
		eligible = eligible[:opts.Limit]
	}
	return eligible, nil
}

func (s *memJobStorage) CountJobs(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs), nil
}

type memResumeStorage memStorage

func (s *memResumeStorage) SaveResume(ctx context.Context, resume *models.Resume) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumes[resume.ID] = resume
	return nil
}

func (s *memResumeStorage) GetResume(ctx context.Context, id string) (*models.Resume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumes[id], nil
}

func (s *memResumeStorage) ListResumesByIndustry(ctx context.Context, prefixes []string) ([]*models.Resume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	admitted := make(map[string]struct{}, len(prefixes))
	for _, p := range prefixes {
		admitted[p] = struct{}{}
	}

	var out []*models.Resume
	for _, r := range s.resumes {
		if !r.Embeddable() {
			continue
		}
		if len(admitted) > 0 {
			if _, ok := admitted[r.IndustryPrefix]; !ok {
				continue
			}
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memResumeStorage) VectorSearch(ctx context.Context, query []float32, opts interfaces.VectorSearchOptions) ([]interfaces.VectorHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hits []interfaces.VectorHit
	for _, r := range s.resumes {
		if !r.Embeddable() {
			continue
		}
		var dot float64
		for i := range query {
			if i < len(r.TextEmbedding) {
				dot += float64(query[i]) * float64(r.TextEmbedding[i])
			}
		}
		hits = append(hits, interfaces.VectorHit{Resume: r, RawScore: dot})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].RawScore != hits[j].RawScore {
			return hits[i].RawScore > hits[j].RawScore
		}
		return hits[i].Resume.ID < hits[j].Resume.ID
	})
	if opts.Limit > 0 && len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits, nil
}

func (s *memResumeStorage) CountResumes(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resumes), nil
}

type memMatchStorage memStorage

func (s *memMatchStorage) InsertMatch(ctx context.Context, record *models.MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[models.RecordKey(record.Job.JobID, record.WorkflowRun)] = record
	return nil
}

func (s *memMatchStorage) InsertUnmatched(ctx context.Context, record *models.UnmatchedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unmatched[models.RecordKey(record.Job.JobID, record.WorkflowRun)] = record
	return nil
}

func (s *memMatchStorage) ProcessedJobIDs(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]struct{})
	for _, r := range s.matches {
		ids[r.Job.JobID] = struct{}{}
	}
	for _, r := range s.unmatched {
		ids[r.Job.JobID] = struct{}{}
	}
	return ids, nil
}

func (s *memMatchStorage) GetMatch(ctx context.Context, jobID, workflowRun string) (*models.MatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matches[models.RecordKey(jobID, workflowRun)], nil
}

func (s *memMatchStorage) GetUnmatched(ctx context.Context, jobID, workflowRun string) (*models.UnmatchedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unmatched[models.RecordKey(jobID, workflowRun)], nil
}

func (s *memMatchStorage) CountMatches(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.matches), nil
}

func (s *memMatchStorage) CountUnmatched(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unmatched), nil
}

type memCheckpointStorage memStorage

func (s *memCheckpointStorage) WriteCheckpoint(ctx context.Context, checkpoint *models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[checkpoint.WorkflowType] = checkpoint
	return nil
}

func (s *memCheckpointStorage) ReadLatestCheckpoint(ctx context.Context, workflowType string) (*models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints[workflowType], nil
}

// ---- deterministic mock LLM ----

var candidateIDPattern = regexp.MustCompile(`candidate_id: (\S+)`)

// deterministicLLM extracts candidate ids from the prompt and scores them
// with a pure function of the id, so runs are reproducible regardless of
// worker count. A fixed scores map overrides the hash.
type deterministicLLM struct {
	scores   map[string]int
	response string // canned response overriding everything when set
	err      error
}

func (l *deterministicLLM) Generate(ctx context.Context, prompt, model string) (string, error) {
	if l.err != nil {
		return "", l.err
	}
	if l.response != "" {
		return l.response, nil
	}

	ids := candidateIDPattern.FindAllStringSubmatch(prompt, -1)
	if len(ids) == 0 {
		return "", fmt.Errorf("no candidates in prompt")
	}

	type scored struct {
		id    string
		score int
	}
	list := make([]scored, 0, len(ids))
	for _, m := range ids {
		id := m[1]
		score, ok := l.scores[id]
		if !ok {
			h := fnv.New32a()
			h.Write([]byte(id))
			score = int(h.Sum32() % 101)
		}
		list = append(list, scored{id: id, score: score})
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].id < list[j].id
	})

	result := models.ValidationResult{BestMatch: list[0].id}
	for i, c := range list {
		result.Candidates = append(result.Candidates, models.CandidateEvaluation{
			CandidateID: c.id,
			Rank:        i + 1,
			Score:       c.score,
			Summary:     "Deterministic evaluation of " + c.id + ".",
			IsValid:     c.score >= 70,
		})
	}

	data, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (l *deterministicLLM) HealthCheck(ctx context.Context) error { return nil }
func (l *deterministicLLM) Close() error                          { return nil }

var _ interfaces.LLMService = (*deterministicLLM)(nil)

// ---- fixtures ----

func testConfig() *common.Config {
	config := common.NewDefaultConfig()
	config.Matching.RetryAttempts = 0
	config.Matching.RetryDelay = "1ms"
	config.Matching.MaxRetryDelay = "5ms"
	return config
}

func seedResumes(t *testing.T, storage *memStorage, resumes ...*models.Resume) {
	t.Helper()
	for _, r := range resumes {
		require.NoError(t, storage.ResumeStorage().SaveResume(context.Background(), r))
	}
}

func seedJobs(t *testing.T, storage *memStorage, jobs ...*models.JobPosting) {
	t.Helper()
	for _, j := range jobs {
		require.NoError(t, storage.JobStorage().SaveJob(context.Background(), j))
	}
}

func engineResume(id string, embedding []float32) *models.Resume {
	return &models.Resume{
		ID:             id,
		FileID:         "file_" + id,
		IndustryPrefix: "tech",
		TextEmbedding:  embedding,
		KeyMetrics:     models.KeyMetrics{ExperienceLevel: "senior", PrimaryIndustry: "tech", TotalExperienceYears: 6},
		ResumeData:     models.ResumeData{Skills: []string{"go"}},
	}
}

func engineJob(id string, embedding []float32) *models.JobPosting {
	return &models.JobPosting{
		ID:           id,
		Title:        "Engineer " + id,
		Company:      "Acme",
		Description:  "Build things.",
		JDExtraction: true,
		JDEmbedding:  embedding,
	}
}

func runEngine(t *testing.T, config *common.Config, storage *memStorage, llm interfaces.LLMService) *models.WorkflowSummary {
	t.Helper()

	eng, err := New(config, Services{Storage: storage, LLM: llm, Clock: common.SystemClock{}}, common.GetLogger())
	require.NoError(t, err)

	summary, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary)
	return summary
}

// ---- scenarios ----

func TestRun_MatchedJob(t *testing.T) {
	storage := newMemStorage()
	seedResumes(t, storage,
		engineResume("res_1", []float32{1, 0}),
		engineResume("res_2", []float32{0.8, 0.2}),
	)
	seedJobs(t, storage, engineJob("job_1", []float32{1, 0}))

	llm := &deterministicLLM{scores: map[string]int{"res_1": 85, "res_2": 72}}
	summary := runEngine(t, testConfig(), storage, llm)

	assert.Equal(t, 1, summary.JobsTotal)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 0, summary.Errors)

	require.Len(t, storage.matches, 1)
	for _, record := range storage.matches {
		assert.Equal(t, "res_1", record.ResumeID)
		assert.Equal(t, 85, record.LLMScore)
		assert.Equal(t, models.MatchStatusValidated, record.Status)
		require.Len(t, record.Shortlist, 2)
		assert.True(t, record.Shortlist[0].IsValid)
		assert.True(t, record.Shortlist[1].IsValid)
	}
	assert.Empty(t, storage.unmatched)
}

func TestRun_NoValidMatch(t *testing.T) {
	storage := newMemStorage()
	seedResumes(t, storage,
		engineResume("res_1", []float32{1, 0}),
		engineResume("res_2", []float32{0.8, 0.2}),
	)
	seedJobs(t, storage, engineJob("job_1", []float32{1, 0}))

	llm := &deterministicLLM{scores: map[string]int{"res_1": 68, "res_2": 55}}
	summary := runEngine(t, testConfig(), storage, llm)

	assert.Equal(t, 1, summary.NoValidMatch)
	assert.Empty(t, storage.matches)

	require.Len(t, storage.unmatched, 1)
	for _, record := range storage.unmatched {
		assert.Equal(t, models.MatchStatusNoValidMatch, record.Status)
		require.Len(t, record.Shortlist, 2)
		assert.False(t, record.Shortlist[0].IsValid)
		assert.False(t, record.Shortlist[1].IsValid)
	}
}

func TestRun_RecallEmpty(t *testing.T) {
	storage := newMemStorage()
	seedResumes(t, storage,
		engineResume("res_1", []float32{1, 0}),
		engineResume("res_2", []float32{0.8, 0.2}),
	)
	seedJobs(t, storage, engineJob("job_1", []float32{1, 0}))

	config := testConfig()
	config.Matching.IndustryPrefixes = []string{"finance"}

	summary := runEngine(t, config, storage, &deterministicLLM{})

	assert.Equal(t, 1, summary.NoResumesFound)
	assert.Empty(t, storage.matches)

	require.Len(t, storage.unmatched, 1)
	for _, record := range storage.unmatched {
		assert.Empty(t, record.Shortlist)
		assert.Equal(t, models.MatchStatusNoValidMatch, record.Status)
	}
}

func TestRun_MalformedLLMResponse(t *testing.T) {
	storage := newMemStorage()
	seedResumes(t, storage,
		engineResume("res_1", []float32{1, 0}),
		engineResume("res_2", []float32{0.8, 0.2}),
	)
	seedJobs(t, storage, engineJob("job_1", []float32{1, 0}))

	llm := &deterministicLLM{response: "sorry, I can't do that"}
	summary := runEngine(t, testConfig(), storage, llm)

	assert.Equal(t, 1, summary.Errors)
	assert.Empty(t, storage.matches, "errored jobs must not write a match record")
	assert.Empty(t, storage.unmatched, "errored jobs must not write an unmatched record")
}

func TestRun_SecondRunSkipsProcessedJobs(t *testing.T) {
	storage := newMemStorage()
	seedResumes(t, storage,
		engineResume("res_1", []float32{1, 0}),
		engineResume("res_2", []float32{0.8, 0.2}),
	)
	seedJobs(t, storage, engineJob("job_1", []float32{1, 0}))

	llm := &deterministicLLM{scores: map[string]int{"res_1": 85, "res_2": 72}}
	config := testConfig()

	first := runEngine(t, config, storage, llm)
	assert.Equal(t, 1, first.Matched)
	require.Len(t, storage.matches, 1)

	second := runEngine(t, config, storage, llm)
	assert.Equal(t, 0, second.JobsTotal)
	assert.Equal(t, 1, second.Skipped)
	assert.Len(t, storage.matches, 1, "second run must not write anything new")
	assert.Empty(t, storage.unmatched)
}

func TestRun_ForceReprocessOverridesSkip(t *testing.T) {
	storage := newMemStorage()
	seedResumes(t, storage,
		engineResume("res_1", []float32{1, 0}),
		engineResume("res_2", []float32{0.8, 0.2}),
	)
	seedJobs(t, storage, engineJob("job_1", []float32{1, 0}))

	llm := &deterministicLLM{scores: map[string]int{"res_1": 85, "res_2": 72}}
	config := testConfig()

	runEngine(t, config, storage, llm)

	config.Matching.ForceReprocess = true
	second := runEngine(t, config, storage, llm)

	assert.Equal(t, 1, second.JobsTotal)
	assert.Equal(t, 1, second.Matched)
	// Two records now exist, one per workflow run.
	assert.Len(t, storage.matches, 2)
}

func TestRun_ParallelDeterminism(t *testing.T) {
	outcomes := func(workers int) map[string]string {
		storage := newMemStorage()
		seedResumes(t, storage,
			engineResume("res_1", []float32{1, 0}),
			engineResume("res_2", []float32{0.9, 0.1}),
			engineResume("res_3", []float32{0.5, 0.5}),
		)

		for i := 0; i < 100; i++ {
			seedJobs(t, storage, engineJob(fmt.Sprintf("job_%03d", i), []float32{1, float32(i) / 100}))
		}

		config := testConfig()
		config.Matching.MaxWorkers = workers
		config.Matching.BatchSize = 7

		runEngine(t, config, storage, &deterministicLLM{})

		result := make(map[string]string)
		for _, r := range storage.matches {
			result[r.Job.JobID] = "matched:" + r.ResumeID
		}
		for _, r := range storage.unmatched {
			result[r.Job.JobID] = "unmatched"
		}
		return result
	}

	serial := outcomes(1)
	parallel := outcomes(8)

	require.Len(t, serial, 100)
	assert.Equal(t, serial, parallel, "outcome set must not depend on worker count")
}

func TestRun_WritesCheckpoints(t *testing.T) {
	storage := newMemStorage()
	seedResumes(t, storage,
		engineResume("res_1", []float32{1, 0}),
		engineResume("res_2", []float32{0.8, 0.2}),
	)
	for i := 0; i < 25; i++ {
		seedJobs(t, storage, engineJob(fmt.Sprintf("job_%02d", i), []float32{1, 0}))
	}

	config := testConfig()
	config.Matching.BatchSize = 5
	config.Matching.CheckpointInterval = 10

	runEngine(t, config, storage, &deterministicLLM{})

	checkpoint := storage.checkpoints[config.Matching.WorkflowType]
	require.NotNil(t, checkpoint)
	assert.Equal(t, models.EngineStatusCompleted, checkpoint.Status)
	assert.Len(t, checkpoint.ProcessedJobIDs, 25)
	assert.Equal(t, int64(25), checkpoint.Metrics.JobsProcessed)
}

func TestRun_CancellationReturnsPartialSummary(t *testing.T) {
	storage := newMemStorage()
	seedResumes(t, storage,
		engineResume("res_1", []float32{1, 0}),
		engineResume("res_2", []float32{0.8, 0.2}),
	)
	for i := 0; i < 10; i++ {
		seedJobs(t, storage, engineJob(fmt.Sprintf("job_%02d", i), []float32{1, 0}))
	}

	config := testConfig()
	config.Matching.BatchSize = 2

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled before the first batch

	eng, err := New(config, Services{Storage: storage, LLM: &deterministicLLM{}, Clock: common.SystemClock{}}, common.GetLogger())
	require.NoError(t, err)

	summary, err := eng.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.True(t, summary.Cancelled)

	checkpoint := storage.checkpoints[config.Matching.WorkflowType]
	require.NotNil(t, checkpoint)
	assert.Equal(t, models.EngineStatusCancelled, checkpoint.Status)
}

func TestRun_MemoryPressureClearsCache(t *testing.T) {
	storage := newMemStorage()
	seedResumes(t, storage,
		engineResume("res_1", []float32{1, 0}),
		engineResume("res_2", []float32{0.8, 0.2}),
	)
	for i := 0; i < 8; i++ {
		seedJobs(t, storage, engineJob(fmt.Sprintf("job_%02d", i), []float32{1, 0}))
	}

	config := testConfig()
	config.Matching.BatchSize = 2
	config.Matching.CheckpointInterval = 2 // memory poll every 4 jobs

	eng, err := New(config, Services{Storage: storage, LLM: &deterministicLLM{}, Clock: common.SystemClock{}}, common.GetLogger())
	require.NoError(t, err)

	eng.memoryMB = func() int { return config.Matching.MemoryLimitMB + 1 }

	_, err = eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, eng.cache.Len(), "cache must be dropped under memory pressure")
}

func TestRun_SummaryCarriesConfigSnapshot(t *testing.T) {
	storage := newMemStorage()
	seedResumes(t, storage,
		engineResume("res_1", []float32{1, 0}),
		engineResume("res_2", []float32{0.8, 0.2}),
	)
	seedJobs(t, storage, engineJob("job_1", []float32{1, 0}))

	summary := runEngine(t, testConfig(), storage, &deterministicLLM{})

	require.NotNil(t, summary.Config)
	assert.Equal(t, 3, summary.Config["top_k"])
	assert.NotEmpty(t, summary.WorkflowRun)
	assert.Equal(t, "resume_matching", summary.WorkflowType)
	assert.False(t, summary.StartedAt.IsZero())
	assert.False(t, summary.CompletedAt.Before(summary.StartedAt))
}
