package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/adhil-payingalil/resumatch/internal/models"
)

// ParseError wraps a response that could not be turned into a valid
// ValidationResult, preserving the raw text for diagnosis.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("validation response rejected: %s", e.Reason)
}

// ParseResponse strips optional code fences from an LLM response, parses
// it as JSON and enforces the response schema. Schema violations return a
// ParseError carrying the raw text.
func ParseResponse(raw string, logger arbor.ILogger) (*models.ValidationResult, error) {
	cleaned := StripCodeFences(raw)
	if cleaned == "" {
		return nil, &ParseError{Reason: "empty response", Raw: raw}
	}

	var result models.ValidationResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid JSON: %v", err), Raw: raw}
	}

	if err := checkSchema(&result); err != nil {
		return nil, &ParseError{Reason: err.Error(), Raw: raw}
	}

	if !ranksArePermutation(result.Candidates) {
		// Trust the model's ordering but flag it; downstream sorts by rank
		// and tolerates duplicates.
		logger.Warn().
			Int("candidates", len(result.Candidates)).
			Msg("Validation ranks are not a permutation of 1..N")
	}

	return &result, nil
}

// StripCodeFences removes a single leading/trailing markdown fence pair
// ("```" or "```json") if present, then trims whitespace.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// Drop an optional language tag on the fence line.
		if idx := strings.IndexByte(s, '\n'); idx >= 0 && !strings.ContainsAny(s[:idx], "{}") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")

	return strings.TrimSpace(s)
}

func checkSchema(result *models.ValidationResult) error {
	if len(result.Candidates) == 0 {
		return fmt.Errorf("candidates array is missing or empty")
	}
	if result.BestMatch == "" {
		return fmt.Errorf("best_match is missing")
	}

	for i, c := range result.Candidates {
		if c.CandidateID == "" {
			return fmt.Errorf("candidate %d: candidate_id is missing", i)
		}
		if c.Rank <= 0 {
			return fmt.Errorf("candidate %d: rank must be a positive integer", i)
		}
		if c.Score < 0 || c.Score > 100 {
			return fmt.Errorf("candidate %d: score %d outside [0,100]", i, c.Score)
		}
		if strings.TrimSpace(c.Summary) == "" {
			return fmt.Errorf("candidate %d: summary is missing", i)
		}
	}

	if result.Evaluation(result.BestMatch) == nil {
		return fmt.Errorf("best_match %q does not appear in candidates", result.BestMatch)
	}

	return nil
}

// ranksArePermutation reports whether candidate ranks cover exactly 1..N.
func ranksArePermutation(candidates []models.CandidateEvaluation) bool {
	seen := make(map[int]struct{}, len(candidates))
	for _, c := range candidates {
		if c.Rank < 1 || c.Rank > len(candidates) {
			return false
		}
		if _, dup := seen[c.Rank]; dup {
			return false
		}
		seen[c.Rank] = struct{}{}
	}
	return true
}
