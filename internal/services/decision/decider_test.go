package decision

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adhil-payingalil/resumatch/internal/common"
	"github.com/adhil-payingalil/resumatch/internal/models"
	"github.com/adhil-payingalil/resumatch/internal/services/recall"
)

func newDecider(threshold int) *Decider {
	config := common.NewDefaultConfig()
	config.Matching.ValidationThreshold = threshold
	return NewDecider(&config.Matching, common.GetLogger())
}

func cand(id string, similarity float64) recall.Candidate {
	return recall.Candidate{
		Resume:          &models.Resume{ID: id, FileID: "file_" + id},
		SimilarityScore: similarity,
	}
}

func eval(id string, rank, score int) models.CandidateEvaluation {
	return models.CandidateEvaluation{
		CandidateID: id,
		Rank:        rank,
		Score:       score,
		Summary:     "summary for " + id,
		IsValid:     score >= 70,
	}
}

func TestDecide_MatchedWithStatedBest(t *testing.T) {
	d := newDecider(70)

	result := &models.ValidationResult{
		Candidates: []models.CandidateEvaluation{eval("res_2", 2, 72), eval("res_1", 1, 85)},
		BestMatch:  "res_1",
	}

	dec := d.Decide("job_1", []recall.Candidate{cand("res_1", 0.9), cand("res_2", 0.7)}, result)

	assert.Equal(t, StateMatched, dec.State)
	require.NotNil(t, dec.BestMatch)
	assert.Equal(t, "res_1", dec.BestMatch.ID)

	// Shortlist is rank ordered regardless of response order.
	require.Len(t, dec.Shortlist, 2)
	assert.Equal(t, 1, dec.Shortlist[0].Rank)
	assert.Equal(t, "res_1", dec.Shortlist[0].ResumeID)
	assert.Equal(t, 0.9, dec.Shortlist[0].SimilarityScore)
	assert.True(t, dec.Shortlist[0].IsValid)
}

func TestDecide_ValidityRecomputedFromThreshold(t *testing.T) {
	// The model's is_valid flag is advisory; the threshold decides.
	d := newDecider(90)

	result := &models.ValidationResult{
		Candidates: []models.CandidateEvaluation{
			{CandidateID: "res_1", Rank: 1, Score: 85, Summary: "ok", IsValid: true},
		},
		BestMatch: "res_1",
	}

	dec := d.Decide("job_1", []recall.Candidate{cand("res_1", 0.9)}, result)

	assert.Equal(t, StateNoValidMatch, dec.State)
	require.Len(t, dec.Shortlist, 1)
	assert.False(t, dec.Shortlist[0].IsValid)
}

func TestDecide_NoValidMatchKeepsShortlist(t *testing.T) {
	d := newDecider(70)

	result := &models.ValidationResult{
		Candidates: []models.CandidateEvaluation{eval("res_1", 1, 68), eval("res_2", 2, 55)},
		BestMatch:  "res_1",
	}

	dec := d.Decide("job_1", []recall.Candidate{cand("res_1", 0.9), cand("res_2", 0.7)}, result)

	assert.Equal(t, StateNoValidMatch, dec.State)
	assert.Nil(t, dec.BestMatch)
	assert.Len(t, dec.Shortlist, 2)
}

func TestDecide_BestMatchDiscrepancyRecovers(t *testing.T) {
	// The stated best_match is below threshold but another entry is valid;
	// the decider recovers instead of failing the job.
	d := newDecider(70)

	result := &models.ValidationResult{
		Candidates: []models.CandidateEvaluation{eval("res_1", 1, 65), eval("res_2", 2, 80)},
		BestMatch:  "res_1",
	}

	dec := d.Decide("job_1", []recall.Candidate{cand("res_1", 0.9), cand("res_2", 0.7)}, result)

	assert.Equal(t, StateMatched, dec.State)
	require.NotNil(t, dec.BestMatch)
	assert.Equal(t, "res_2", dec.BestMatch.ID)
}

func TestDecide_FallbackTieBreaks(t *testing.T) {
	d := newDecider(70)

	tests := []struct {
		name  string
		evals []models.CandidateEvaluation
		cands []recall.Candidate
		want  string
	}{
		{
			name:  "higher llm score wins",
			evals: []models.CandidateEvaluation{eval("res_1", 1, 75), eval("res_2", 2, 90)},
			cands: []recall.Candidate{cand("res_1", 0.9), cand("res_2", 0.7)},
			want:  "res_2",
		},
		{
			name:  "equal score, lower rank wins",
			evals: []models.CandidateEvaluation{eval("res_1", 2, 80), eval("res_2", 1, 80)},
			cands: []recall.Candidate{cand("res_1", 0.9), cand("res_2", 0.7)},
			want:  "res_2",
		},
		{
			name: "equal score and rank, higher similarity wins",
			evals: []models.CandidateEvaluation{
				{CandidateID: "res_1", Rank: 1, Score: 80, Summary: "a", IsValid: true},
				{CandidateID: "res_2", Rank: 1, Score: 80, Summary: "b", IsValid: true},
			},
			cands: []recall.Candidate{cand("res_1", 0.6), cand("res_2", 0.8)},
			want:  "res_2",
		},
		{
			name: "full tie, lexicographic id wins",
			evals: []models.CandidateEvaluation{
				{CandidateID: "res_b", Rank: 1, Score: 80, Summary: "b", IsValid: true},
				{CandidateID: "res_a", Rank: 1, Score: 80, Summary: "a", IsValid: true},
			},
			cands: []recall.Candidate{cand("res_b", 0.7), cand("res_a", 0.7)},
			want:  "res_a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := &models.ValidationResult{Candidates: tt.evals, BestMatch: "res_unknown_stated"}
			// Stated best match points at nothing valid; fallback path runs.
			dec := d.Decide("job_1", tt.cands, result)
			require.Equal(t, StateMatched, dec.State)
			assert.Equal(t, tt.want, dec.BestMatch.ID)
		})
	}
}

func TestDecide_UnknownCandidateIDDropped(t *testing.T) {
	d := newDecider(70)

	result := &models.ValidationResult{
		Candidates: []models.CandidateEvaluation{eval("res_1", 1, 85), eval("res_ghost", 2, 80)},
		BestMatch:  "res_1",
	}

	dec := d.Decide("job_1", []recall.Candidate{cand("res_1", 0.9)}, result)

	assert.Equal(t, StateMatched, dec.State)
	assert.Len(t, dec.Shortlist, 1)
}

func TestTerminalConstructors(t *testing.T) {
	d := newDecider(70)

	empty := d.NoResumesFound()
	assert.Equal(t, StateNoResumesFound, empty.State)
	assert.Empty(t, empty.Shortlist)

	cause := errors.New("malformed response")
	failed := d.ValidationFailed(cause)
	assert.Equal(t, StateValidationError, failed.State)
	assert.ErrorIs(t, failed.Err, cause)
}
