package models

// CandidateEvaluation is the LLM's verdict on a single shortlist candidate.
type CandidateEvaluation struct {
	CandidateID string `json:"candidate_id"`
	Rank        int    `json:"rank"`
	Score       int    `json:"score"`
	Summary     string `json:"summary"`
	IsValid     bool   `json:"is_valid"`
}

// ValidationResult is the parsed, schema-checked LLM response for one job:
// a ranked list of candidate evaluations plus the id the model considers
// the best match.
type ValidationResult struct {
	Candidates []CandidateEvaluation `json:"candidates"`
	BestMatch  string                `json:"best_match"`
}

// Evaluation returns the evaluation for a candidate id, or nil.
func (v *ValidationResult) Evaluation(candidateID string) *CandidateEvaluation {
	for i := range v.Candidates {
		if v.Candidates[i].CandidateID == candidateID {
			return &v.Candidates[i]
		}
	}
	return nil
}
