// -----------------------------------------------------------------------
// Pre-Filter - fast schema-based rejection before any LLM call
// -----------------------------------------------------------------------

package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/venari/internal/models"
)

// Filter categories reported in rejection records.
const (
	CategoryTitle       = "title"
	CategoryFreshness   = "freshness"
	CategoryArrangement = "arrangement"
	CategoryEmployment  = "employment"
	CategorySalary      = "salary"
	CategoryTechnology  = "technology"
	CategoryCompany     = "company"
	CategorySeniority   = "seniority"
	CategoryKeywords    = "keywords"
	CategoryDescription = "description"
)

// PreFilter runs the Stage A checks against a raw scraped record. Each check
// is skipped when the data it needs is absent, so a sparse record passes and
// is judged later from the extracted structure instead.
func PreFilter(job models.JobRecord, settings models.FilterSettings) models.FilterResult {
	result := models.FilterResult{Passed: true}

	title := strings.ToLower(job.Title)
	if title != "" {
		if len(settings.RequiredTitleKeywords) > 0 && !containsAnyFold(title, settings.RequiredTitleKeywords) {
			result.AddHardReject("required_title_keywords", CategoryTitle,
				fmt.Sprintf("title %q matches none of the required keywords", job.Title))
			return result
		}
		if kw, ok := matchAnyFold(title, settings.ExcludedTitleKeywords); ok {
			result.AddHardReject("excluded_title_keywords", CategoryTitle,
				fmt.Sprintf("title contains excluded keyword %q", kw))
			return result
		}
	}

	if settings.MaxAgeDays > 0 && job.PostedDate != "" {
		if age, ok := AgeDays(job.PostedDate, time.Now()); ok && age > settings.MaxAgeDays {
			result.AddHardReject("max_age", CategoryFreshness,
				fmt.Sprintf("posted %d days ago, limit is %d", age, settings.MaxAgeDays))
			return result
		}
	}

	if reason := checkArrangement(job, settings); reason != "" {
		result.AddHardReject("work_arrangement", CategoryArrangement, reason)
		return result
	}

	if reason := checkEmployment(job.Title+" "+job.Description, settings); reason != "" {
		result.AddHardReject("employment_type", CategoryEmployment, reason)
		return result
	}

	if settings.MinSalary > 0 && job.Salary != "" {
		if _, max, ok := ParseSalary(job.Salary); ok && max > 0 && max < settings.MinSalary {
			result.AddHardReject("salary_floor", CategorySalary,
				fmt.Sprintf("salary max %d is below floor %d", max, settings.MinSalary))
			return result
		}
	}

	text := job.Title + " " + job.Description
	for _, tech := range settings.RejectedTech {
		if ContainsWord(text, tech) {
			result.AddHardReject("rejected_tech", CategoryTechnology,
				fmt.Sprintf("posting mentions rejected technology %q", tech))
			return result
		}
	}

	return result
}

// checkArrangement infers remote/hybrid/onsite from the location string and
// applies the allow flags. An unclassifiable location passes.
func checkArrangement(job models.JobRecord, settings models.FilterSettings) string {
	arrangement := InferArrangement(job.Location, job.Title, job.Description)
	switch arrangement {
	case models.ArrangementRemote:
		if !settings.AllowRemote {
			return "remote roles are not allowed"
		}
	case models.ArrangementHybrid:
		if !settings.AllowHybrid {
			return "hybrid roles are not allowed"
		}
		if !cityAllowed(job.Location, settings.AllowedCities) {
			return fmt.Sprintf("hybrid role in %q is outside the allowed cities", job.Location)
		}
	case models.ArrangementOnsite:
		if !settings.AllowOnsite {
			return "onsite roles are not allowed"
		}
		if !cityAllowed(job.Location, settings.AllowedCities) {
			return fmt.Sprintf("onsite role in %q is outside the allowed cities", job.Location)
		}
	}
	return ""
}

// checkEmployment looks for explicit employment-type markers in the text.
// Absent markers pass; full-time is only rejected when stated outright.
func checkEmployment(text string, settings models.FilterSettings) string {
	lower := strings.ToLower(text)
	switch {
	case !settings.AllowContract && containsAnyFold(lower, []string{"contract ", "contractor", "contract-to-hire", "c2h", "1099"}):
		return "contract roles are not allowed"
	case !settings.AllowPartTime && containsAnyFold(lower, []string{"part-time", "part time"}):
		return "part-time roles are not allowed"
	case !settings.AllowFullTime && containsAnyFold(lower, []string{"full-time", "full time"}):
		return "full-time roles are not allowed"
	}
	return ""
}

// InferArrangement classifies a posting as remote, hybrid, or onsite from its
// location and text. Returns ArrangementUnknown when nothing matches.
func InferArrangement(location, title, description string) string {
	loc := strings.ToLower(location)
	text := strings.ToLower(title + " " + description)

	switch {
	case strings.Contains(loc, "hybrid") || strings.Contains(text, "hybrid"):
		return models.ArrangementHybrid
	case strings.Contains(loc, "remote") || strings.Contains(text, "fully remote") || strings.Contains(text, "100% remote"):
		return models.ArrangementRemote
	case strings.Contains(loc, "on-site") || strings.Contains(loc, "onsite") ||
		strings.Contains(text, "on-site") || strings.Contains(text, "in office") || strings.Contains(text, "in-office"):
		return models.ArrangementOnsite
	case loc != "":
		// A bare city with no remote marker reads as onsite.
		return models.ArrangementOnsite
	}
	return models.ArrangementUnknown
}

func cityAllowed(location string, cities []string) bool {
	if len(cities) == 0 {
		return true
	}
	loc := strings.ToLower(location)
	for _, city := range cities {
		if city != "" && strings.Contains(loc, strings.ToLower(city)) {
			return true
		}
	}
	return false
}

func containsAnyFold(lower string, needles []string) bool {
	_, ok := matchAnyFold(lower, needles)
	return ok
}

func matchAnyFold(lower string, needles []string) (string, bool) {
	for _, n := range needles {
		if n == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(n)) {
			return n, true
		}
	}
	return "", false
}
