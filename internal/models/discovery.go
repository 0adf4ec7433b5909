package models

// Source URL classification categories assigned during discovery
const (
	URLCategoryCompany    = "company-specific"
	URLCategoryAggregator = "aggregator"
	URLCategorySingleJob  = "single-job"
	URLCategoryATSVendor  = "ats-vendor"
	URLCategoryInvalid    = "invalid"
)

// SourceClassification is the AI verdict on a candidate careers URL
type SourceClassification struct {
	Category    string  `json:"category"`
	CompanyName string  `json:"company_name,omitempty"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason,omitempty"`
}

// IsUsable reports whether the classification can back a source row
func (c *SourceClassification) IsUsable() bool {
	return c.Category == URLCategoryCompany || c.Category == URLCategoryAggregator
}

// SourceProposal is an AI-suggested scraper configuration for a source
// whose current configuration stopped producing jobs. The proposal may
// change the source type (an HTML source may move to a discovered API).
type SourceProposal struct {
	SourceType string                 `json:"source_type"`
	Config     map[string]interface{} `json:"config"`
	Confidence float64                `json:"confidence"`
	Notes      string                 `json:"notes,omitempty"`
}
