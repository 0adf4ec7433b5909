package models

import (
	"strings"
	"time"
)

// Company is the normalised record written by the COMPANY pipeline and
// consulted by job analysis.
type Company struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Website   string   `json:"website,omitempty"`
	About     string   `json:"about,omitempty"`
	Culture   string   `json:"culture,omitempty"`
	Mission   string   `json:"mission,omitempty"`
	TechStack []string `json:"tech_stack,omitempty"`

	// Classification written by the analyse stage.
	Tier              int    `json:"tier,omitempty"`
	PriorityScore     int    `json:"priority_score,omitempty"`
	Size              string `json:"size,omitempty"`
	HasPortlandOffice bool   `json:"has_portland_office"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasGoodData reports whether the record is complete enough that job
// analysis should not trigger another enrichment run: about and culture both
// present and at least minLength characters each.
func (c *Company) HasGoodData(minLength int) bool {
	if c == nil {
		return false
	}
	about := strings.TrimSpace(c.About)
	culture := strings.TrimSpace(c.Culture)
	return len(about) >= minLength && len(culture) >= minLength
}

// WebsiteContent is a company website condensed to markdown, the input to
// the company extraction adapter.
type WebsiteContent struct {
	URL       string    `json:"url"`
	Markdown  string    `json:"markdown"`
	PageCount int       `json:"page_count"`
	Truncated bool      `json:"truncated"`
	FetchedAt time.Time `json:"fetched_at"`
}
