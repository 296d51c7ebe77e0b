package models

import (
	"encoding/json"
	"time"
)

// Resume represents a standardized candidate document. Resumes are created
// and embedded by external ingestion; the matching engine treats them as
// read-only.
type Resume struct {
	ID             string     `json:"id"`
	FileID         string     `json:"file_id"`
	ResumeData     ResumeData `json:"resume_data"`
	KeyMetrics     KeyMetrics `json:"key_metrics"`
	IndustryPrefix string     `json:"industry_prefix"`
	TextEmbedding  []float32  `json:"text_embedding"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Embeddable reports whether the resume can participate in vector recall.
func (r *Resume) Embeddable() bool {
	return len(r.TextEmbedding) > 0
}

// KeyMetrics is the derived summary used for prompt construction and
// match-record snapshots.
type KeyMetrics struct {
	ExperienceLevel      string  `json:"experience_level"`
	PrimaryIndustry      string  `json:"primary_industry_sector"`
	TotalExperienceYears float64 `json:"total_experience_years"`
}

// ResumeData is the structured resume payload. Upstream writers sometimes
// double-nest the payload as {"resume_data": {...}}; UnmarshalJSON unwraps
// that shape so business logic only ever sees the typed record.
type ResumeData struct {
	Basics         ResumeBasics     `json:"basics"`
	WorkExperience []WorkExperience `json:"work_experience"`
	Education      []Education      `json:"education"`
	Skills         []string         `json:"skills"`
}

// ResumeBasics holds the contact and summary section of a resume.
type ResumeBasics struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Location string `json:"location"`
	Summary  string `json:"summary"`
}

// WorkExperience is a single role on the resume.
type WorkExperience struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Description string `json:"description"`
}

// Education is a single qualification on the resume.
type Education struct {
	Degree      string `json:"degree"`
	Institution string `json:"institution"`
	Field       string `json:"field"`
	Year        string `json:"year"`
}

// resumeDataAlias avoids recursing into UnmarshalJSON.
type resumeDataAlias ResumeData

// UnmarshalJSON tolerates the double-nested payload shape produced by some
// ingestion paths: a document whose only meaningful content lives under a
// second "resume_data" key.
func (d *ResumeData) UnmarshalJSON(data []byte) error {
	var outer struct {
		resumeDataAlias
		Nested *resumeDataAlias `json:"resume_data"`
	}
	if err := json.Unmarshal(data, &outer); err != nil {
		return err
	}

	if outer.Nested != nil && isEmptyResumeData(outer.resumeDataAlias) {
		*d = ResumeData(*outer.Nested)
		return nil
	}

	*d = ResumeData(outer.resumeDataAlias)
	return nil
}

func isEmptyResumeData(d resumeDataAlias) bool {
	return d.Basics == (ResumeBasics{}) &&
		len(d.WorkExperience) == 0 &&
		len(d.Education) == 0 &&
		len(d.Skills) == 0
}
