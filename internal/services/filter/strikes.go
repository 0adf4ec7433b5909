// -----------------------------------------------------------------------
// Strike Engine - weighted soft rejections after the pre-filter passes
// -----------------------------------------------------------------------

package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/venari/internal/models"
)

var commissionPhrases = []string{
	"commission only",
	"commission-only",
	"100% commission",
	"straight commission",
}

// Strikes runs the Stage B evaluation against the raw record plus the
// extracted structure. Hard rejections short-circuit; strike rules accumulate
// points and the total is compared against the threshold.
func Strikes(job models.JobRecord, extraction models.JobExtraction, settings models.StrikeSettings) models.FilterResult {
	result := models.FilterResult{Passed: true}

	// Hard rejections first.
	company := strings.ToLower(job.Company)
	for _, excluded := range settings.ExcludedCompanies {
		if excluded != "" && strings.Contains(company, strings.ToLower(excluded)) {
			result.AddHardReject("excluded_company", CategoryCompany,
				fmt.Sprintf("company %q is excluded", job.Company))
			return result
		}
	}

	if len(settings.AllowedSeniorities) > 0 && extraction.Seniority != "" {
		if !containsAnyFold(strings.ToLower(extraction.Seniority), settings.AllowedSeniorities) {
			result.AddHardReject("seniority_tier", CategorySeniority,
				fmt.Sprintf("seniority %q is not an allowed tier", extraction.Seniority))
			return result
		}
	}

	if len(settings.RequiredKeywords) > 0 {
		text := strings.ToLower(job.Title + " " + job.Description)
		if !containsAnyFold(text, settings.RequiredKeywords) {
			result.AddHardReject("required_keywords", CategoryKeywords,
				"posting contains none of the required keywords")
			return result
		}
	}

	if settings.RejectCommissionOnly {
		text := strings.ToLower(job.Title + " " + job.Description + " " + job.Salary)
		if kw, ok := matchAnyFold(text, commissionPhrases); ok {
			result.AddHardReject("commission_only", CategorySalary,
				fmt.Sprintf("compensation is %q", kw))
			return result
		}
	}

	// Strike accumulation.
	if settings.SalaryBelow > 0 {
		if max := salaryMax(job, extraction); max > 0 && max < settings.SalaryBelow {
			result.AddStrike("salary_below", CategorySalary,
				fmt.Sprintf("salary max %d below %d", max, settings.SalaryBelow), settings.SalaryPoints)
		}
	}

	title := strings.ToLower(job.Title)
	if term, ok := matchAnyFold(title, settings.SeniorityTitleTerms); ok {
		result.AddStrike("seniority_title", CategorySeniority,
			fmt.Sprintf("title contains %q", term), settings.SeniorityPoints)
	}

	if settings.ShortDescriptionChars > 0 && job.Description != "" &&
		len(job.Description) < settings.ShortDescriptionChars {
		result.AddStrike("short_description", CategoryDescription,
			fmt.Sprintf("description is %d chars, below %d", len(job.Description), settings.ShortDescriptionChars),
			settings.ShortDescriptionPoints)
	}

	text := strings.ToLower(job.Title + " " + job.Description)
	for _, word := range settings.Buzzwords {
		if word != "" && strings.Contains(text, strings.ToLower(word)) {
			result.AddStrike("buzzword", CategoryDescription,
				fmt.Sprintf("posting contains buzzword %q", word), settings.BuzzwordPoints)
		}
	}

	if settings.AgeStrikeDays > 0 && job.PostedDate != "" {
		if age, ok := AgeDays(job.PostedDate, time.Now()); ok && age > settings.AgeStrikeDays {
			result.AddStrike("stale_posting", CategoryFreshness,
				fmt.Sprintf("posted %d days ago", age), settings.AgePoints)
		}
	}

	for _, tech := range settings.UndesiredTech {
		if techListed(extraction.Technologies, tech) || ContainsWord(text, tech) {
			result.AddStrike("undesired_tech", CategoryTechnology,
				fmt.Sprintf("posting requires %q", tech), settings.UndesiredTechPoints)
		}
	}

	if settings.Threshold > 0 && result.TotalStrikes >= settings.Threshold {
		result.Passed = false
	}
	return result
}

// salaryMax takes the extracted maximum when present, otherwise parses the
// raw salary string.
func salaryMax(job models.JobRecord, extraction models.JobExtraction) int {
	if extraction.SalaryMax > 0 {
		return extraction.SalaryMax
	}
	if _, max, ok := ParseSalary(job.Salary); ok {
		return max
	}
	return 0
}

func techListed(technologies []string, tech string) bool {
	for _, t := range technologies {
		if strings.EqualFold(strings.TrimSpace(t), strings.TrimSpace(tech)) {
			return true
		}
	}
	return false
}
