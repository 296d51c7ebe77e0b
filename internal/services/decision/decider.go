// Package decision merges recall similarities with LLM evaluations into a
// ranked shortlist and classifies each job's terminal outcome.
package decision

import (
	"sort"

	"github.com/ternarybob/arbor"

	"github.com/adhil-payingalil/resumatch/internal/common"
	"github.com/adhil-payingalil/resumatch/internal/models"
	"github.com/adhil-payingalil/resumatch/internal/services/recall"
)

// State is the terminal classification for one job.
type State string

const (
	// StateMatched - at least one shortlist entry is valid
	StateMatched State = "matched"

	// StateNoValidMatch - candidates were examined, none qualified
	StateNoValidMatch State = "no_valid_match"

	// StateNoResumesFound - recall produced no candidates
	StateNoResumesFound State = "no_resumes_found"

	// StateValidationError - the validator failed; nothing may be persisted
	StateValidationError State = "validation_error"
)

// Decision is the full evaluation outcome for one job, handed to the
// persistor.
type Decision struct {
	State     State
	Shortlist []models.ShortlistEntry

	// Chosen candidate, set only when State is StateMatched.
	BestMatch *models.Resume

	// Err carries the validator failure when State is StateValidationError.
	Err error
}

// Decider turns recall and validation results into a Decision.
type Decider struct {
	config *common.MatchingConfig
	logger arbor.ILogger
}

// NewDecider creates a decider with the run's validation threshold.
func NewDecider(config *common.MatchingConfig, logger arbor.ILogger) *Decider {
	return &Decider{config: config, logger: logger}
}

// NoResumesFound classifies a job whose recall returned nothing.
func (d *Decider) NoResumesFound() Decision {
	return Decision{State: StateNoResumesFound}
}

// ValidationFailed classifies a job whose validator errored. The error is
// preserved so the engine can count and log it.
func (d *Decider) ValidationFailed(err error) Decision {
	return Decision{State: StateValidationError, Err: err}
}

// Decide joins the evaluated candidates with the validator's result,
// builds the rank-ordered shortlist and selects the best match.
func (d *Decider) Decide(jobID string, candidates []recall.Candidate, result *models.ValidationResult) Decision {
	byID := make(map[string]recall.Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.Resume.ID] = c
	}

	shortlist := make([]models.ShortlistEntry, 0, len(result.Candidates))
	resumes := make(map[string]*models.Resume, len(result.Candidates))
	for _, eval := range result.Candidates {
		c, ok := byID[eval.CandidateID]
		if !ok {
			// The model occasionally invents or mangles an id. Drop the
			// entry rather than fail the whole job.
			d.logger.Warn().
				Str("job_id", jobID).
				Str("candidate_id", eval.CandidateID).
				Msg("Validator returned an unknown candidate id")
			continue
		}
		resumes[eval.CandidateID] = c.Resume
		shortlist = append(shortlist, models.ShortlistEntry{
			ResumeID:        c.Resume.ID,
			FileID:          c.Resume.FileID,
			SimilarityScore: c.SimilarityScore,
			LLMScore:        eval.Score,
			Rank:            eval.Rank,
			Summary:         eval.Summary,
			IsValid:         eval.Score >= d.config.ValidationThreshold,
		})
	}

	sort.SliceStable(shortlist, func(i, j int) bool {
		return shortlist[i].Rank < shortlist[j].Rank
	})

	best := d.selectBest(jobID, shortlist, result.BestMatch)
	if best == "" {
		return Decision{State: StateNoValidMatch, Shortlist: shortlist}
	}

	return Decision{
		State:     StateMatched,
		Shortlist: shortlist,
		BestMatch: resumes[best],
	}
}

// selectBest returns the chosen resume id, or "" when no entry is valid.
// The validator's stated best_match wins when that entry is valid; a
// discrepancy falls back to the best valid entry instead of failing.
func (d *Decider) selectBest(jobID string, shortlist []models.ShortlistEntry, stated string) string {
	var statedValid bool
	for _, e := range shortlist {
		if e.ResumeID == stated && e.IsValid {
			statedValid = true
			break
		}
	}
	if statedValid {
		return stated
	}

	var best *models.ShortlistEntry
	for i := range shortlist {
		e := &shortlist[i]
		if !e.IsValid {
			continue
		}
		if best == nil || betterEntry(e, best) {
			best = e
		}
	}
	if best == nil {
		return ""
	}

	d.logger.Warn().
		Str("job_id", jobID).
		Str("stated_best_match", stated).
		Str("selected", best.ResumeID).
		Msg("Best match disagreed with validity flags, recovered from shortlist")

	return best.ResumeID
}

// betterEntry orders valid entries: higher llm_score, then lower rank,
// then higher similarity, then lexicographically smaller resume id.
func betterEntry(a, b *models.ShortlistEntry) bool {
	if a.LLMScore != b.LLMScore {
		return a.LLMScore > b.LLMScore
	}
	if a.Rank != b.Rank {
		return a.Rank < b.Rank
	}
	if a.SimilarityScore != b.SimilarityScore {
		return a.SimilarityScore > b.SimilarityScore
	}
	return a.ResumeID < b.ResumeID
}
