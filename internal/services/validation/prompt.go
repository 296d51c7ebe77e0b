package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/adhil-payingalil/resumatch/internal/models"
	"github.com/adhil-payingalil/resumatch/internal/services/recall"
)

// maxDescriptionChars bounds the job description embedded in the prompt.
const maxDescriptionChars = 1500

// maxCandidatesPerPrompt bounds how many candidates a single validation
// call evaluates. Recall may return more; the prompt keeps the top of the
// list by similarity.
const maxCandidatesPerPrompt = 3

// BuildPrompt renders the validation prompt for one job and its recall
// candidates. Construction is deterministic: the same job, candidates and
// threshold always produce byte-identical output, so the prompt itself is
// part of the engine's contract with the model.
func BuildPrompt(job *models.JobPosting, candidates []recall.Candidate, validationThreshold int, promptVersion string) string {
	var b strings.Builder

	b.WriteString("You are an expert technical recruiter evaluating resumes against a job posting.\n\n")

	b.WriteString("## Job Posting\n")
	fmt.Fprintf(&b, "Title: %s\n", job.Title)
	fmt.Fprintf(&b, "Company: %s\n", job.Company)
	if job.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", job.Location)
	}
	fmt.Fprintf(&b, "Description: %s\n", truncate(job.Description, maxDescriptionChars))
	if len(job.RequiredSkills) > 0 {
		fmt.Fprintf(&b, "Required skills: %s\n", strings.Join(job.RequiredSkills, ", "))
	}
	if job.RequiredExperience != "" {
		fmt.Fprintf(&b, "Required experience: %s\n", job.RequiredExperience)
	}
	if job.RequiredEducation != "" {
		fmt.Fprintf(&b, "Required education: %s\n", job.RequiredEducation)
	}

	b.WriteString("\n## Candidates\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "\n### Candidate %d\n", i+1)
		fmt.Fprintf(&b, "candidate_id: %s\n", c.Resume.ID)
		fmt.Fprintf(&b, "Experience level: %s\n", c.Resume.KeyMetrics.ExperienceLevel)
		fmt.Fprintf(&b, "Primary industry: %s\n", c.Resume.KeyMetrics.PrimaryIndustry)
		fmt.Fprintf(&b, "Total experience: %.1f years\n", c.Resume.KeyMetrics.TotalExperienceYears)
		fmt.Fprintf(&b, "Vector similarity: %.4f\n", c.SimilarityScore)
		if len(c.Resume.ResumeData.Skills) > 0 {
			fmt.Fprintf(&b, "Skills: %s\n", strings.Join(c.Resume.ResumeData.Skills, ", "))
		}
		writeWorkExperience(&b, c.Resume.ResumeData.WorkExperience)
		writeEducation(&b, c.Resume.ResumeData.Education)
	}

	b.WriteString("\n## Instructions\n")
	fmt.Fprintf(&b, "1. Score each candidate on an integer scale of 0-100 for fit against the job posting.\n")
	fmt.Fprintf(&b, "2. Assign unique ranks 1..%d with 1 = best fit.\n", len(candidates))
	b.WriteString("3. Write a one-sentence summary per candidate explaining the score.\n")
	fmt.Fprintf(&b, "4. Set is_valid to true if and only if the candidate's score is %d or higher.\n", validationThreshold)
	b.WriteString("5. Set best_match to the candidate_id of the best candidate.\n")
	b.WriteString("6. Respond with ONLY a JSON object matching this schema. No prose, no code fences.\n\n")

	b.WriteString(`{
  "candidates": [
    {
      "candidate_id": "<string>",
      "rank": <integer>,
      "score": <integer 0-100>,
      "summary": "<one sentence>",
      "is_valid": <boolean>
    }
  ],
  "best_match": "<candidate_id>"
}`)
	b.WriteString("\n")

	fmt.Fprintf(&b, "\n[prompt_version: %s]\n", promptVersion)

	return b.String()
}

func writeWorkExperience(b *strings.Builder, roles []models.WorkExperience) {
	if len(roles) == 0 {
		return
	}
	b.WriteString("Work experience:\n")
	for _, w := range roles {
		fmt.Fprintf(b, "  - %s at %s (%s to %s): %s\n",
			w.Title, w.Company, w.StartDate, w.EndDate, w.Description)
	}
}

func writeEducation(b *strings.Builder, entries []models.Education) {
	if len(entries) == 0 {
		return
	}
	b.WriteString("Education:\n")
	for _, e := range entries {
		fmt.Fprintf(b, "  - %s in %s, %s (%s)\n", e.Degree, e.Field, e.Institution, e.Year)
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
