// Package validation scores recall candidates against a job posting with
// an LLM and enforces the structured-response contract.
package validation

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/adhil-payingalil/resumatch/internal/common"
	"github.com/adhil-payingalil/resumatch/internal/interfaces"
	"github.com/adhil-payingalil/resumatch/internal/models"
	"github.com/adhil-payingalil/resumatch/internal/services/metrics"
	"github.com/adhil-payingalil/resumatch/internal/services/recall"
)

// Validator runs LLM validation for one job's candidate list.
type Validator struct {
	config  *common.MatchingConfig
	llm     interfaces.LLMService
	metrics *metrics.Collector
	clock   interfaces.Clock
	logger  arbor.ILogger
}

// NewValidator creates a validator bound to the run's LLM service.
func NewValidator(
	config *common.MatchingConfig,
	llm interfaces.LLMService,
	collector *metrics.Collector,
	clock interfaces.Clock,
	logger arbor.ILogger,
) *Validator {
	return &Validator{
		config:  config,
		llm:     llm,
		metrics: collector,
		clock:   clock,
		logger:  logger,
	}
}

// Validate evaluates at most three candidates (the top of the list by
// similarity) and returns the parsed, schema-checked result. Transport
// errors and malformed responses both fail the validation; the caller
// decides the job's outcome, never a silent empty shortlist.
//
// The returned slice is the truncated candidate list actually evaluated,
// which downstream joins against the result.
func (v *Validator) Validate(ctx context.Context, job *models.JobPosting, candidates []recall.Candidate) (*models.ValidationResult, []recall.Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil, common.Permanent("validation", fmt.Errorf("no candidates to validate"))
	}

	evaluated := candidates
	if len(evaluated) > maxCandidatesPerPrompt {
		evaluated = evaluated[:maxCandidatesPerPrompt]
	}

	prompt := BuildPrompt(job, evaluated, v.config.ValidationThreshold, v.config.PromptVersion)

	started := v.clock.Now()
	defer func() {
		v.metrics.RecordValidationDuration(v.clock.Now().Sub(started))
	}()

	llmCtx, cancel := context.WithTimeout(ctx, v.config.LLMTimeoutDuration())
	defer cancel()

	response, err := v.llm.Generate(llmCtx, prompt, v.config.LLMModel)
	if err != nil {
		return nil, nil, fmt.Errorf("llm validation for job %s: %w", job.ID, err)
	}

	result, err := ParseResponse(response, v.logger)
	if err != nil {
		v.logger.Warn().
			Str("job_id", job.ID).
			Err(err).
			Msg("LLM validation response failed schema check")
		return nil, nil, common.Permanent("validation.parse", err)
	}

	v.logger.Debug().
		Str("job_id", job.ID).
		Int("evaluated", len(evaluated)).
		Str("best_match", result.BestMatch).
		Msg("Validation complete")

	return result, evaluated, nil
}
