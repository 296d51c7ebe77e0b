// Package persistence translates a job's terminal decision into exactly
// one idempotent document-store write.
package persistence

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/adhil-payingalil/resumatch/internal/common"
	"github.com/adhil-payingalil/resumatch/internal/interfaces"
	"github.com/adhil-payingalil/resumatch/internal/models"
	"github.com/adhil-payingalil/resumatch/internal/services/decision"
)

// Persistor writes match and unmatched records keyed by
// (job_id, workflow_run).
type Persistor struct {
	matches interfaces.MatchStorage
	clock   interfaces.Clock
	logger  arbor.ILogger
}

// NewPersistor creates a persistor over the match collections.
func NewPersistor(matches interfaces.MatchStorage, clock interfaces.Clock, logger arbor.ILogger) *Persistor {
	return &Persistor{matches: matches, clock: clock, logger: logger}
}

// Persist writes the record implied by the decision and returns the job's
// outcome for counting. A validation error writes nothing: an unmatched
// record must always mean "candidates were examined and none qualified".
func (p *Persistor) Persist(ctx context.Context, job *models.JobPosting, dec decision.Decision, workflowRun string) (models.JobOutcome, error) {
	switch dec.State {
	case decision.StateMatched:
		if err := p.persistMatch(ctx, job, dec, workflowRun); err != nil {
			return models.OutcomeError, err
		}
		return models.OutcomeMatched, nil

	case decision.StateNoValidMatch:
		if err := p.persistUnmatched(ctx, job, dec.Shortlist, "no shortlist entry met the validation threshold", workflowRun); err != nil {
			return models.OutcomeError, err
		}
		return models.OutcomeNoValidMatch, nil

	case decision.StateNoResumesFound:
		if err := p.persistUnmatched(ctx, job, nil, "recall returned no candidates", workflowRun); err != nil {
			return models.OutcomeError, err
		}
		return models.OutcomeNoResumesFound, nil

	case decision.StateValidationError:
		return models.OutcomeError, dec.Err

	default:
		return models.OutcomeError, common.Permanent("persist",
			fmt.Errorf("unknown decision state %q for job %s", dec.State, job.ID))
	}
}

func (p *Persistor) persistMatch(ctx context.Context, job *models.JobPosting, dec decision.Decision, workflowRun string) error {
	chosen := dec.BestMatch
	if chosen == nil {
		return common.Permanent("persist.match",
			fmt.Errorf("matched decision without a chosen resume for job %s", job.ID))
	}

	var chosenEntry *models.ShortlistEntry
	for i := range dec.Shortlist {
		if dec.Shortlist[i].ResumeID == chosen.ID {
			chosenEntry = &dec.Shortlist[i]
			break
		}
	}
	if chosenEntry == nil {
		return common.Permanent("persist.match",
			fmt.Errorf("chosen resume %s missing from shortlist for job %s", chosen.ID, job.ID))
	}

	now := p.clock.Now()
	record := &models.MatchRecord{
		ID:              models.RecordKey(job.ID, workflowRun),
		Job:             job.Snapshot(),
		ResumeID:        chosen.ID,
		FileID:          chosen.FileID,
		ResumeData:      chosen.ResumeData,
		KeyMetrics:      chosen.KeyMetrics,
		Shortlist:       dec.Shortlist,
		SimilarityScore: chosenEntry.SimilarityScore,
		LLMScore:        chosenEntry.LLMScore,
		Summary:         chosenEntry.Summary,
		Status:          models.MatchStatusValidated,
		WorkflowRun:     workflowRun,
		CreatedAt:       now,
		ValidatedAt:     now,
	}

	if err := p.matches.InsertMatch(ctx, record); err != nil {
		return fmt.Errorf("persist match for job %s: %w", job.ID, err)
	}

	p.logger.Info().
		Str("job_id", job.ID).
		Str("resume_id", chosen.ID).
		Int("llm_score", chosenEntry.LLMScore).
		Msg("Match persisted")

	return nil
}

func (p *Persistor) persistUnmatched(ctx context.Context, job *models.JobPosting, shortlist []models.ShortlistEntry, reason, workflowRun string) error {
	record := &models.UnmatchedRecord{
		ID:          models.RecordKey(job.ID, workflowRun),
		Job:         job.Snapshot(),
		Shortlist:   shortlist,
		Status:      models.MatchStatusNoValidMatch,
		Reason:      reason,
		WorkflowRun: workflowRun,
		CreatedAt:   p.clock.Now(),
	}

	if err := p.matches.InsertUnmatched(ctx, record); err != nil {
		return fmt.Errorf("persist unmatched for job %s: %w", job.ID, err)
	}

	p.logger.Info().
		Str("job_id", job.ID).
		Int("shortlist_size", len(shortlist)).
		Msg("Unmatched record persisted")

	return nil
}
