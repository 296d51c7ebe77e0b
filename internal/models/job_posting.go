package models

import "time"

// JobPosting represents a scraped job posting to be matched against the
// resume corpus. Postings are created by external scrapers/extractors and
// are never mutated by the matching engine.
type JobPosting struct {
	// Identity
	ID       string `json:"id"`
	Title    string `json:"title"`
	Company  string `json:"company"`
	Location string `json:"location"`

	// Content
	Description string `json:"description"`

	// Structured hints extracted from the description (optional)
	RequiredSkills     []string `json:"required_skills,omitempty"`
	RequiredExperience string   `json:"required_experience,omitempty"`
	RequiredEducation  string   `json:"required_education,omitempty"`

	// Recall embedding over the job description
	JDEmbedding []float32 `json:"jd_embedding"`

	// Provenance
	SearchTerm   string `json:"search_term"`
	Source       string `json:"source"`
	JobLink      string `json:"job_link"`
	LinkType     string `json:"link_type"`
	Cycle        int    `json:"cycle"`
	JDExtraction bool   `json:"jd_extraction"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Eligible reports whether the posting can enter the matching pipeline:
// the description extraction must have succeeded and a recall embedding
// must be present.
func (j *JobPosting) Eligible() bool {
	return j.JDExtraction && len(j.JDEmbedding) > 0
}

// Snapshot copies the fields persisted on match and unmatched records.
func (j *JobPosting) Snapshot() JobSnapshot {
	return JobSnapshot{
		JobID:       j.ID,
		Title:       j.Title,
		Company:     j.Company,
		Location:    j.Location,
		Description: j.Description,
		JobLink:     j.JobLink,
	}
}

// JobSnapshot is the job reference embedded in persisted records.
type JobSnapshot struct {
	JobID       string `json:"job_id"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Description string `json:"description"`
	JobLink     string `json:"job_link"`
}
