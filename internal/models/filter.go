package models

// Rejection severities. Hard rejections short-circuit evaluation; strikes
// accumulate points against the threshold.
const (
	SeverityHardReject = "hard_reject"
	SeverityStrike     = "strike"
)

// Rejection is one rule outcome inside a FilterResult.
type Rejection struct {
	FilterName     string `json:"filter_name"`
	FilterCategory string `json:"filter_category"`
	Severity       string `json:"severity"`
	Reason         string `json:"reason"`
	Points         int    `json:"points"`
}

// FilterResult is the outcome of a pre-filter or strike evaluation.
type FilterResult struct {
	Passed       bool        `json:"passed"`
	TotalStrikes int         `json:"total_strikes"`
	Rejections   []Rejection `json:"rejections,omitempty"`
}

// Reason returns the first rejection reason, or "" when the result passed.
func (f FilterResult) Reason() string {
	if len(f.Rejections) == 0 {
		return ""
	}
	return f.Rejections[0].Reason
}

// AddHardReject records a short-circuiting rejection.
func (f *FilterResult) AddHardReject(name, category, reason string) {
	f.Passed = false
	f.Rejections = append(f.Rejections, Rejection{
		FilterName:     name,
		FilterCategory: category,
		Severity:       SeverityHardReject,
		Reason:         reason,
	})
}

// AddStrike records a weighted strike and accumulates its points.
func (f *FilterResult) AddStrike(name, category, reason string, points int) {
	f.TotalStrikes += points
	f.Rejections = append(f.Rejections, Rejection{
		FilterName:     name,
		FilterCategory: category,
		Severity:       SeverityStrike,
		Reason:         reason,
		Points:         points,
	})
}
