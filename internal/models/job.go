// -----------------------------------------------------------------------
// Job Record & Extraction - scraper output and LLM-extracted structure
// -----------------------------------------------------------------------

package models

import "encoding/json"

// JobRecord is the uniform output of every scraper adapter. Title, company,
// company website, location, description, and url are required; posted date
// and salary appear when the source provides them. Descriptions are
// sanitised before the record leaves the adapter.
type JobRecord struct {
	Title          string `json:"title"`
	Company        string `json:"company"`
	CompanyWebsite string `json:"company_website"`
	Location       string `json:"location"`
	Description    string `json:"description"`
	URL            string `json:"url"`
	PostedDate     string `json:"posted_date,omitempty"`
	Salary         string `json:"salary,omitempty"`
}

// ToMap converts the record to the map form carried in pipeline state.
func (j JobRecord) ToMap() map[string]interface{} {
	data, err := json.Marshal(j)
	if err != nil {
		return map[string]interface{}{"title": j.Title, "url": j.URL}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]interface{}{"title": j.Title, "url": j.URL}
	}
	return m
}

// JobRecordFromMap rebuilds a record from its pipeline-state map form.
func JobRecordFromMap(m map[string]interface{}) JobRecord {
	var rec JobRecord
	data, err := json.Marshal(m)
	if err != nil {
		return rec
	}
	_ = json.Unmarshal(data, &rec)
	return rec
}

// JobExtraction is the structured record returned by the LLM extraction
// task. Zero values mean "not stated in the posting".
type JobExtraction struct {
	Seniority       string   `json:"seniority"`
	WorkArrangement string   `json:"work_arrangement"`
	Timezone        string   `json:"timezone"`
	City            string   `json:"city"`
	SalaryMin       int      `json:"salary_min"`
	SalaryMax       int      `json:"salary_max"`
	ExperienceMin   int      `json:"experience_min"`
	ExperienceMax   int      `json:"experience_max"`
	Technologies    []string `json:"technologies"`
	EmploymentType  string   `json:"employment_type"`
	IsReposted      bool     `json:"is_reposted"`
	IsEvergreen     bool     `json:"is_evergreen"`
	RoleTypes       []string `json:"role_types"`
	Confidence      float64  `json:"confidence"`
	MissingFields   []string `json:"missing_fields,omitempty"`
}

// Work arrangement tokens used by extraction and filtering.
const (
	ArrangementRemote  = "remote"
	ArrangementHybrid  = "hybrid"
	ArrangementOnsite  = "onsite"
	ArrangementUnknown = "unknown"
)

// Employment type tokens.
const (
	EmploymentFullTime = "full_time"
	EmploymentPartTime = "part_time"
	EmploymentContract = "contract"
)

// Merge folds a repair-pass result into the extraction. Empty fields are
// filled from the repair; populated fields are kept. Confidence never
// decreases.
func (e *JobExtraction) Merge(repair JobExtraction) {
	if e.Seniority == "" {
		e.Seniority = repair.Seniority
	}
	if e.WorkArrangement == "" || e.WorkArrangement == ArrangementUnknown {
		if repair.WorkArrangement != "" {
			e.WorkArrangement = repair.WorkArrangement
		}
	}
	if e.Timezone == "" {
		e.Timezone = repair.Timezone
	}
	if e.City == "" {
		e.City = repair.City
	}
	if e.SalaryMin == 0 {
		e.SalaryMin = repair.SalaryMin
	}
	if e.SalaryMax == 0 {
		e.SalaryMax = repair.SalaryMax
	}
	if e.ExperienceMin == 0 {
		e.ExperienceMin = repair.ExperienceMin
	}
	if e.ExperienceMax == 0 {
		e.ExperienceMax = repair.ExperienceMax
	}
	if len(e.Technologies) == 0 {
		e.Technologies = repair.Technologies
	}
	if e.EmploymentType == "" {
		e.EmploymentType = repair.EmploymentType
	}
	if len(e.RoleTypes) == 0 {
		e.RoleTypes = repair.RoleTypes
	}
	if repair.Confidence > e.Confidence {
		e.Confidence = repair.Confidence
	}
	e.MissingFields = nil
}
