// -----------------------------------------------------------------------
// Source - a scraping target with its adapter configuration and health
// -----------------------------------------------------------------------

package models

import "time"

// Source type tokens. The ATS shorthands map a provider slug to a known
// endpoint layout; api/rss/html carry a full adapter configuration.
const (
	SourceTypeAPI  = "api"
	SourceTypeRSS  = "rss"
	SourceTypeHTML = "html"

	SourceTypeGreenhouse      = "greenhouse"
	SourceTypeLever           = "lever"
	SourceTypeAshby           = "ashby"
	SourceTypeSmartRecruiters = "smartrecruiters"
	SourceTypeRecruitee       = "recruitee"
	SourceTypeBreezy          = "breezy"
	SourceTypeWorkable        = "workable"
	SourceTypeWorkday         = "workday"
)

// Source lifecycle states.
const (
	SourceStatusActive   = "active"
	SourceStatusDisabled = "disabled"
	SourceStatusFailed   = "failed"
)

// Tags recorded on immediate disables so operators can triage.
const (
	DisableTagAuthRequired = "auth_required"
	DisableTagProtectedAPI = "protected_api"
	DisableTagAntiBot      = "anti_bot"
)

// Source is one scraping target. Config is the type-specific adapter
// configuration (selectors, endpoints, field mappings, pagination).
type Source struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	SourceType string                 `json:"source_type"`
	Config     map[string]interface{} `json:"config"`
	Status     string                 `json:"status"`

	// CompanyID links a single-company source to its company record.
	// AggregatorDomain marks sources that host postings for many companies.
	CompanyID        string `json:"company_id,omitempty"`
	AggregatorDomain string `json:"aggregator_domain,omitempty"`

	LastScrapedAt       *time.Time `json:"last_scraped_at,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	ConsecutiveZeroJobs int        `json:"consecutive_zero_jobs"`

	DisabledNotes string   `json:"disabled_notes,omitempty"`
	DisabledTags  []string `json:"disabled_tags,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsSingleCompany reports whether the source serves exactly one company.
// Company enrichment is only meaningful for these.
func (s *Source) IsSingleCompany() bool {
	return s.CompanyID != "" && s.AggregatorDomain == ""
}

// HasDisableTag reports whether the source carries the given triage tag.
func (s *Source) HasDisableTag(tag string) bool {
	for _, t := range s.DisabledTags {
		if t == tag {
			return true
		}
	}
	return false
}

// ConfigString reads a string value from the adapter config.
func (s *Source) ConfigString(key string) (string, bool) {
	if s.Config == nil {
		return "", false
	}
	v, ok := s.Config[key].(string)
	return v, ok
}

// ConfigInt reads an int from the adapter config, accepting JSON float64.
func (s *Source) ConfigInt(key string) (int, bool) {
	if s.Config == nil {
		return 0, false
	}
	switch v := s.Config[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// ConfigBool reads a bool value from the adapter config.
func (s *Source) ConfigBool(key string) (bool, bool) {
	if s.Config == nil {
		return false, false
	}
	v, ok := s.Config[key].(bool)
	return v, ok
}

// ConfigMap reads a nested map from the adapter config.
func (s *Source) ConfigMap(key string) (map[string]interface{}, bool) {
	if s.Config == nil {
		return nil, false
	}
	v, ok := s.Config[key].(map[string]interface{})
	return v, ok
}

// RequiresJS reports whether an html source needs browser rendering.
func (s *Source) RequiresJS() bool {
	v, ok := s.ConfigBool("requires_js")
	return ok && v
}
