// Package engine orchestrates the matching pipeline: it loads eligible
// jobs, partitions them into batches, fans each batch out to a bounded
// worker pool, checkpoints progress and returns a run summary.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/adhil-payingalil/resumatch/internal/common"
	"github.com/adhil-payingalil/resumatch/internal/interfaces"
	"github.com/adhil-payingalil/resumatch/internal/models"
	"github.com/adhil-payingalil/resumatch/internal/services/cache"
	"github.com/adhil-payingalil/resumatch/internal/services/decision"
	"github.com/adhil-payingalil/resumatch/internal/services/metrics"
	"github.com/adhil-payingalil/resumatch/internal/services/persistence"
	"github.com/adhil-payingalil/resumatch/internal/services/recall"
	"github.com/adhil-payingalil/resumatch/internal/services/validation"
)

// Services bundles the external dependencies the engine runs against.
// Everything the pipeline touches flows through here; there are no
// package-level clients.
type Services struct {
	Storage interfaces.StorageManager
	LLM     interfaces.LLMService
	Clock   interfaces.Clock
}

// Engine runs the matching workflow. One Engine value serves one run.
type Engine struct {
	config   *common.Config
	services Services
	logger   arbor.ILogger

	metrics   *metrics.Collector
	cache     *cache.ResumeCache
	recall    *recall.Service
	validator *validation.Validator
	decider   *decision.Decider
	persistor *persistence.Persistor

	retryPolicy common.RetryPolicy

	// memoryMB is swappable for tests.
	memoryMB func() int

	mu              sync.Mutex
	processedJobIDs []string
	workflowRun     string
}

// New wires the pipeline services for one run.
func New(config *common.Config, services Services, logger arbor.ILogger) (*Engine, error) {
	if services.Storage == nil || services.LLM == nil {
		return nil, common.Fatal("engine", fmt.Errorf("storage and llm services are required"))
	}
	if services.Clock == nil {
		services.Clock = common.SystemClock{}
	}

	collector := metrics.NewCollector()
	resumeCache := cache.NewResumeCache(config.Matching.CacheTTLDuration(), services.Clock, logger)

	recallSvc, err := recall.NewService(
		&config.Matching,
		services.Storage.ResumeStorage(),
		resumeCache,
		collector,
		services.Clock,
		logger,
	)
	if err != nil {
		return nil, err
	}

	return &Engine{
		config:      config,
		services:    services,
		logger:      logger,
		metrics:     collector,
		cache:       resumeCache,
		recall:      recallSvc,
		validator:   validation.NewValidator(&config.Matching, services.LLM, collector, services.Clock, logger),
		decider:     decision.NewDecider(&config.Matching, logger),
		persistor:   persistence.NewPersistor(services.Storage.MatchStorage(), services.Clock, logger),
		retryPolicy: common.PolicyFromConfig(&config.Matching),
		memoryMB:    common.ResidentMemoryMB,
	}, nil
}

// jobResult pairs a job id with its terminal outcome.
type jobResult struct {
	jobID   string
	outcome models.JobOutcome
}

// Run executes the full workflow and always returns a summary, including
// partial runs cut short by cancellation or a persistent storage failure.
func (e *Engine) Run(ctx context.Context) (*models.WorkflowSummary, error) {
	matching := &e.config.Matching

	e.mu.Lock()
	e.workflowRun = common.NewRunID()
	e.processedJobIDs = nil
	workflowRun := e.workflowRun
	e.mu.Unlock()

	startedAt := e.services.Clock.Now()

	e.logger.Info().
		Str("workflow_run", workflowRun).
		Str("workflow_type", matching.WorkflowType).
		Msg("Matching run starting")

	jobs, skipped, err := e.loadJobs(ctx)
	if err != nil {
		return e.summary(workflowRun, startedAt, 0, skipped, false), err
	}

	e.logger.Info().
		Int("jobs", len(jobs)).
		Int("skipped", skipped).
		Int("batch_size", matching.BatchSize).
		Int("max_workers", matching.MaxWorkers).
		Msg("Eligible jobs loaded")

	var (
		sinceCheckpoint int
		sinceMemoryPoll int
		cancelled       bool
		runErr          error
	)

	for start := 0; start < len(jobs); start += matching.BatchSize {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		end := start + matching.BatchSize
		if end > len(jobs) {
			end = len(jobs)
		}
		batch := jobs[start:end]

		results := e.runBatch(ctx, batch)

		for _, r := range results {
			e.metrics.RecordOutcome(r.outcome)
			e.mu.Lock()
			e.processedJobIDs = append(e.processedJobIDs, r.jobID)
			e.mu.Unlock()
		}
		sinceCheckpoint += len(results)
		sinceMemoryPoll += len(results)

		if sinceCheckpoint >= matching.CheckpointInterval {
			sinceCheckpoint = 0
			if err := e.writeCheckpoint(ctx, models.EngineStatusRunning); err != nil {
				if common.IsTransient(err) || common.KindOf(err) == common.KindFatal {
					runErr = err
					break
				}
				e.logger.Warn().Err(err).Msg("Checkpoint write failed, continuing")
			}
		}

		if sinceMemoryPoll >= 2*matching.CheckpointInterval {
			sinceMemoryPoll = 0
			e.pollMemory()
		}

		if ctx.Err() != nil {
			cancelled = true
			break
		}
	}

	status := models.EngineStatusCompleted
	switch {
	case cancelled:
		status = models.EngineStatusCancelled
	case runErr != nil:
		status = models.EngineStatusAborted
	}

	// Final checkpoint is best effort; the summary is still returned.
	checkpointCtx := ctx
	if ctx.Err() != nil {
		checkpointCtx = context.WithoutCancel(ctx)
	}
	if err := e.writeCheckpoint(checkpointCtx, status); err != nil {
		e.logger.Warn().Err(err).Msg("Final checkpoint write failed")
	}

	summary := e.summary(workflowRun, startedAt, len(jobs), skipped, cancelled)

	e.logger.Info().
		Str("workflow_run", workflowRun).
		Str("status", string(status)).
		Int("matched", summary.Matched).
		Int("no_valid_match", summary.NoValidMatch).
		Int("no_resumes_found", summary.NoResumesFound).
		Int("errors", summary.Errors).
		Msg("Matching run finished")

	return summary, runErr
}

// loadJobs fetches eligible jobs honouring the duplicate-processing policy
// and max_jobs cap. Returns the jobs plus the count excluded as already
// processed.
func (e *Engine) loadJobs(ctx context.Context) ([]*models.JobPosting, int, error) {
	matching := &e.config.Matching

	var exclude map[string]struct{}
	skipped := 0
	if matching.SkipProcessedJobs && !matching.ForceReprocess {
		err := common.WithRetry(ctx, e.logger, e.retryPolicy, "load.processed_ids", func(ctx context.Context) error {
			ids, idsErr := e.services.Storage.MatchStorage().ProcessedJobIDs(ctx)
			if idsErr != nil {
				return idsErr
			}
			exclude = ids
			return nil
		})
		if err != nil {
			return nil, 0, fmt.Errorf("load processed job ids: %w", err)
		}
		skipped = len(exclude)
	}

	var jobs []*models.JobPosting
	err := common.WithRetry(ctx, e.logger, e.retryPolicy, "load.jobs", func(ctx context.Context) error {
		var listErr error
		jobs, listErr = e.services.Storage.JobStorage().ListEligibleJobs(ctx, interfaces.EligibleJobOptions{
			SearchTerms: matching.SearchTerms,
			ExcludeIDs:  exclude,
			Limit:       matching.MaxJobs,
		})
		return listErr
	})
	if err != nil {
		return nil, skipped, fmt.Errorf("load eligible jobs: %w", err)
	}

	return jobs, skipped, nil
}

// runBatch evaluates one batch with up to max_workers concurrent workers.
// Every job in the batch produces exactly one result; a worker panic is
// recorded as an error outcome, never a crash.
func (e *Engine) runBatch(ctx context.Context, batch []*models.JobPosting) []jobResult {
	sem := make(chan struct{}, e.config.Matching.MaxWorkers)
	results := make(chan jobResult, len(batch))

	var wg sync.WaitGroup
	for _, job := range batch {
		if ctx.Err() != nil {
			// Stop accepting new jobs; in-flight workers drain below.
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(job *models.JobPosting) {
			defer wg.Done()
			defer func() { <-sem }()
			results <- jobResult{jobID: job.ID, outcome: e.processJob(ctx, job)}
		}(job)
	}

	wg.Wait()
	close(results)

	collected := make([]jobResult, 0, len(batch))
	for r := range results {
		collected = append(collected, r)
	}
	return collected
}

// processJob runs the full pipeline for one job and classifies its
// outcome. Panics are contained here.
func (e *Engine) processJob(ctx context.Context, job *models.JobPosting) (outcome models.JobOutcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("job_id", job.ID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Worker panic recovered")
			outcome = models.OutcomeError
		}
	}()

	log := e.logger.WithCorrelationId(job.ID)

	var candidates []recall.Candidate
	err := common.WithRetry(ctx, log, e.retryPolicy, "recall", func(ctx context.Context) error {
		var recallErr error
		candidates, recallErr = e.recall.Recall(ctx, job)
		return recallErr
	})
	if err != nil {
		log.Error().Err(err).Msg("Recall failed")
		return models.OutcomeError
	}

	var dec decision.Decision
	if len(candidates) == 0 {
		dec = e.decider.NoResumesFound()
	} else {
		var result *models.ValidationResult
		var evaluated []recall.Candidate
		err = common.WithRetry(ctx, log, e.retryPolicy, "validate", func(ctx context.Context) error {
			var valErr error
			result, evaluated, valErr = e.validator.Validate(ctx, job, candidates)
			return valErr
		})
		if err != nil {
			dec = e.decider.ValidationFailed(err)
		} else {
			dec = e.decider.Decide(job.ID, evaluated, result)
		}
	}

	e.mu.Lock()
	workflowRun := e.workflowRun
	e.mu.Unlock()

	var persisted models.JobOutcome
	err = common.WithRetry(ctx, log, e.retryPolicy, "persist", func(ctx context.Context) error {
		var persistErr error
		persisted, persistErr = e.persistor.Persist(ctx, job, dec, workflowRun)
		return persistErr
	})
	if err != nil {
		if dec.State != decision.StateValidationError {
			log.Error().Err(err).Msg("Persistence failed")
		} else {
			log.Error().Err(err).Msg("Validation failed")
		}
		return models.OutcomeError
	}

	return persisted
}

// writeCheckpoint persists the current cursor under the workflow type.
func (e *Engine) writeCheckpoint(ctx context.Context, status models.EngineStatus) error {
	e.mu.Lock()
	ids := make([]string, len(e.processedJobIDs))
	copy(ids, e.processedJobIDs)
	workflowRun := e.workflowRun
	e.mu.Unlock()

	checkpoint := &models.Checkpoint{
		WorkflowType:    e.config.Matching.WorkflowType,
		WorkflowRun:     workflowRun,
		ProcessedJobIDs: ids,
		Status:          status,
		Metrics:         e.metrics.Snapshot(),
		Timestamp:       e.services.Clock.Now(),
	}

	return common.WithRetry(ctx, e.logger, e.retryPolicy, "checkpoint", func(ctx context.Context) error {
		return e.services.Storage.CheckpointStorage().WriteCheckpoint(ctx, checkpoint)
	})
}

// pollMemory drops the resume cache when resident memory exceeds the
// configured limit. The cache repopulates on the next recall miss.
func (e *Engine) pollMemory() {
	residentMB := e.memoryMB()
	if residentMB <= e.config.Matching.MemoryLimitMB {
		return
	}

	e.logger.Warn().
		Int("resident_mb", residentMB).
		Int("limit_mb", e.config.Matching.MemoryLimitMB).
		Msg("Memory limit exceeded, clearing resume cache")
	e.cache.Clear()
}

// summary builds the run summary from the metrics snapshot.
func (e *Engine) summary(workflowRun string, startedAt time.Time, jobsTotal, skipped int, cancelled bool) *models.WorkflowSummary {
	snapshot := e.metrics.Snapshot()

	return &models.WorkflowSummary{
		WorkflowRun:  workflowRun,
		WorkflowType: e.config.Matching.WorkflowType,

		JobsTotal:      jobsTotal,
		Matched:        int(snapshot.Matched),
		NoValidMatch:   int(snapshot.Unmatched),
		NoResumesFound: int(snapshot.NoResumesFound),
		Errors:         int(snapshot.Errors),
		Skipped:        skipped,

		Cancelled: cancelled,

		StartedAt:   startedAt,
		CompletedAt: e.services.Clock.Now(),
		Metrics:     snapshot,

		Config: e.config.Matching.Snapshot(),
	}
}
