// -----------------------------------------------------------------------
// Job Listing & Match - published records keyed by normalised URL
// -----------------------------------------------------------------------

package models

import "time"

// JobListing is the published posting record. URL is stored normalised and
// is unique in the published store.
type JobListing struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	CompanyName string    `json:"company_name"`
	CompanyID   string    `json:"company_id,omitempty"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	Source      string    `json:"source,omitempty"`
	PostedDate  string    `json:"posted_date,omitempty"`
	Salary      string    `json:"salary,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Match workflow states maintained by the published store.
const (
	MatchStatusNew      = "new"
	MatchStatusApplied  = "applied"
	MatchStatusArchived = "archived"
)

// JobMatch is a scored match written by the save stage. The score comes from
// the deterministic calculator; the analysis fields come from the LLM
// analyser.
type JobMatch struct {
	ID        string `json:"id"`
	ListingID string `json:"listing_id"`
	URL       string `json:"url"`
	Score     int    `json:"score"`

	MatchedSkills                []string `json:"matched_skills,omitempty"`
	MissingSkills                []string `json:"missing_skills,omitempty"`
	ExperienceMatch              string   `json:"experience_match,omitempty"`
	KeyStrengths                 []string `json:"key_strengths,omitempty"`
	PotentialConcerns            []string `json:"potential_concerns,omitempty"`
	CustomizationRecommendations []string `json:"customization_recommendations,omitempty"`

	// IntakeData carries the extraction snapshot the UI renders.
	IntakeData map[string]interface{} `json:"intake_data,omitempty"`

	// Lineage back to the queue.
	TrackingID  string `json:"tracking_id,omitempty"`
	QueueItemID string `json:"queue_item_id,omitempty"`

	Status      string `json:"status"`
	Notes       string `json:"notes,omitempty"`
	DocumentURL string `json:"document_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MatchAnalysis is the analyser adapter's output. It never carries a score;
// scoring is deterministic and happens before analysis.
type MatchAnalysis struct {
	MatchedSkills                []string `json:"matched_skills"`
	MissingSkills                []string `json:"missing_skills"`
	ExperienceMatch              string   `json:"experience_match"`
	KeyStrengths                 []string `json:"key_strengths"`
	PotentialConcerns            []string `json:"potential_concerns"`
	CustomizationRecommendations []string `json:"customization_recommendations"`
}

// MatchFilters narrows GetMatches queries. Zero values are ignored.
type MatchFilters struct {
	MinScore   int    `json:"min_score,omitempty"`
	Status     string `json:"status,omitempty"`
	Company    string `json:"company,omitempty"`
	TrackingID string `json:"tracking_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}
