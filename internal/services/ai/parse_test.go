package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/venari/internal/models"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected string
	}{
		{
			name:     "plain object",
			response: `{"a": 1}`,
			expected: `{"a": 1}`,
		},
		{
			name:     "json fence",
			response: "```json\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "uppercase fence",
			response: "```JSON\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "bare fence",
			response: "```\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "prose around object",
			response: "Here is the extraction you asked for:\n{\"a\": 1}\nLet me know if you need anything else.",
			expected: `{"a": 1}`,
		},
		{
			name:     "nested braces",
			response: `{"config": {"url": "x"}}`,
			expected: `{"config": {"url": "x"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractJSON(tt.response))
		})
	}
}

func TestParseObject_RejectsGarbage(t *testing.T) {
	_, err := parseObject("I could not find any job details on that page.")
	require.Error(t, err)

	_, err = parseObject(`["a", "b"]`)
	require.Error(t, err)
}

func TestParseExtraction(t *testing.T) {
	response := "```json\n" + `{
		"seniority": "Senior",
		"work_arrangement": "REMOTE",
		"timezone": "PST",
		"city": "",
		"salary_min": 150000,
		"salary_max": 190000,
		"experience_min": 5,
		"experience_max": 0,
		"technologies": ["Go", "PostgreSQL", ""],
		"employment_type": "full_time",
		"is_reposted": false,
		"is_evergreen": true,
		"role_types": ["backend"],
		"confidence": 0.9,
		"missing_fields": ["city"]
	}` + "\n```"

	extraction, err := parseExtraction(response)
	require.NoError(t, err)

	assert.Equal(t, "senior", extraction.Seniority)
	assert.Equal(t, models.ArrangementRemote, extraction.WorkArrangement)
	assert.Equal(t, "PST", extraction.Timezone)
	assert.Equal(t, 150000, extraction.SalaryMin)
	assert.Equal(t, 190000, extraction.SalaryMax)
	assert.Equal(t, 5, extraction.ExperienceMin)
	assert.Equal(t, []string{"Go", "PostgreSQL"}, extraction.Technologies)
	assert.True(t, extraction.IsEvergreen)
	assert.InDelta(t, 0.9, extraction.Confidence, 0.0001)
	assert.Equal(t, []string{"city"}, extraction.MissingFields)
}

func TestParseExtraction_StringTypedNumbers(t *testing.T) {
	response := `{"seniority": "mid", "salary_min": "120000", "salary_max": "160000", "confidence": "0.8"}`

	extraction, err := parseExtraction(response)
	require.NoError(t, err)
	assert.Equal(t, 120000, extraction.SalaryMin)
	assert.Equal(t, 160000, extraction.SalaryMax)
	assert.InDelta(t, 0.8, extraction.Confidence, 0.0001)
}

func TestParseExtraction_NormalisesBadValues(t *testing.T) {
	response := `{"work_arrangement": "distributed", "salary_min": 190000, "salary_max": 150000, "confidence": 3.5}`

	extraction, err := parseExtraction(response)
	require.NoError(t, err)

	assert.Equal(t, models.ArrangementUnknown, extraction.WorkArrangement)
	assert.Equal(t, 150000, extraction.SalaryMin, "inverted range is swapped")
	assert.Equal(t, 190000, extraction.SalaryMax)
	assert.Equal(t, 1.0, extraction.Confidence, "confidence clamps to [0,1]")
}

func TestParseAnalysis(t *testing.T) {
	response := `{
		"matched_skills": ["go", "postgresql"],
		"missing_skills": ["kafka"],
		"experience_match": "Posting asks 5+; candidate has 8.",
		"key_strengths": ["deep backend experience"],
		"potential_concerns": ["no streaming background"],
		"customization_recommendations": ["lead with the queue work"]
	}`

	analysis, err := parseAnalysis(response)
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "postgresql"}, analysis.MatchedSkills)
	assert.Equal(t, []string{"kafka"}, analysis.MissingSkills)
	assert.Equal(t, "Posting asks 5+; candidate has 8.", analysis.ExperienceMatch)
	assert.Len(t, analysis.KeyStrengths, 1)
}

func TestParseCompanyProfile(t *testing.T) {
	response := "Here you go:\n```json\n" + `{
		"about": "Acme builds widgets.",
		"culture": "Remote-first, async.",
		"mission": "Widgets for everyone.",
		"tech_stack": ["go", "react"]
	}` + "\n```"

	company, err := parseCompanyProfile(response)
	require.NoError(t, err)
	assert.Equal(t, "Acme builds widgets.", company.About)
	assert.Equal(t, "Remote-first, async.", company.Culture)
	assert.Equal(t, []string{"go", "react"}, company.TechStack)
}

func TestParseCompanyClass_ClampsOutOfRange(t *testing.T) {
	response := `{"tier": 7, "priority_score": 140, "size": "enormous", "has_portland_office": true}`

	class, err := parseCompanyClass(response)
	require.NoError(t, err)
	assert.Equal(t, 3, class.Tier)
	assert.Equal(t, 100, class.PriorityScore)
	assert.Equal(t, "", class.Size)
	assert.True(t, class.HasPortlandOffice)
}

func TestParseProposal(t *testing.T) {
	response := `{
		"source_type": "api",
		"config": {"url": "https://acme.com/api/jobs", "response_path": "jobs", "fields": {"title": "title", "url": "absolute_url"}},
		"confidence": 0.85,
		"notes": "Page loads jobs from a JSON endpoint."
	}`

	proposal, err := parseProposal(response)
	require.NoError(t, err)
	assert.Equal(t, models.SourceTypeAPI, proposal.SourceType)
	assert.Equal(t, "https://acme.com/api/jobs", proposal.Config["url"])
	assert.InDelta(t, 0.85, proposal.Confidence, 0.0001)
}

func TestParseProposal_RejectsEmptyConfig(t *testing.T) {
	_, err := parseProposal(`{"source_type": "api", "config": {}, "confidence": 0.5}`)
	require.Error(t, err)

	_, err = parseProposal(`{"config": {"url": "x"}}`)
	require.Error(t, err)
}

func TestParseClassification(t *testing.T) {
	response := `{"category": "company-specific", "company_name": "Acme", "confidence": 0.92, "reason": "Own careers page."}`

	classification, err := parseClassification(response)
	require.NoError(t, err)
	assert.Equal(t, models.URLCategoryCompany, classification.Category)
	assert.Equal(t, "Acme", classification.CompanyName)
	assert.True(t, classification.IsUsable())
}

func TestParseClassification_UnknownCategoryIsInvalid(t *testing.T) {
	response := `{"category": "blog", "confidence": 0.4}`

	classification, err := parseClassification(response)
	require.NoError(t, err)
	assert.Equal(t, models.URLCategoryInvalid, classification.Category)
	assert.False(t, classification.IsUsable())
}
