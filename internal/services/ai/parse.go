// -----------------------------------------------------------------------
// Response Parsing - JSON extraction from fenced or prose-wrapped LLM replies
// -----------------------------------------------------------------------

package ai

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ternarybob/venari/internal/models"
)

var fenceRe = regexp.MustCompile(`(?s)^\s*` + "```" + `(?:json|JSON)?\s*\n?(.*?)\n?\s*` + "```" + `\s*$`)

// stripFences removes markdown code fences wrapping a reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)

	if matches := fenceRe.FindStringSubmatch(s); len(matches) > 1 {
		s = matches[1]
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	return strings.TrimSpace(s)
}

// extractJSON returns the first JSON object in a reply. Models wrap JSON in
// fences or prose despite instructions, so this slices from the first "{" to
// the last "}" after stripping fences.
func extractJSON(response string) string {
	s := stripFences(response)

	startIdx := strings.Index(s, "{")
	endIdx := strings.LastIndex(s, "}")
	if startIdx >= 0 && endIdx > startIdx {
		return s[startIdx : endIdx+1]
	}
	return s
}

// parseObject extracts and validates the JSON object in a reply, returning a
// gjson document for tolerant field reads. gjson coerces string-typed
// numbers, so `"salary_min": "120000"` still reads as 120000.
func parseObject(response string) (gjson.Result, error) {
	jsonStr := extractJSON(response)
	if !gjson.Valid(jsonStr) {
		return gjson.Result{}, fmt.Errorf("response is not valid JSON: %.120s", jsonStr)
	}
	doc := gjson.Parse(jsonStr)
	if !doc.IsObject() {
		return gjson.Result{}, fmt.Errorf("response is not a JSON object: %.120s", jsonStr)
	}
	return doc, nil
}

// stringList reads a JSON array of strings, skipping non-string and empty
// entries.
func stringList(result gjson.Result) []string {
	if !result.IsArray() {
		return nil
	}
	var out []string
	for _, item := range result.Array() {
		s := strings.TrimSpace(item.String())
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// objectMap reads a JSON object into a generic map, the form adapter configs
// are stored in.
func objectMap(result gjson.Result) map[string]interface{} {
	if !result.IsObject() {
		return nil
	}
	raw, ok := result.Value().(map[string]interface{})
	if !ok {
		return nil
	}
	return raw
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// parseExtraction builds a JobExtraction from an extraction reply.
func parseExtraction(response string) (*models.JobExtraction, error) {
	doc, err := parseObject(response)
	if err != nil {
		return nil, err
	}

	extraction := &models.JobExtraction{
		Seniority:       strings.ToLower(strings.TrimSpace(doc.Get("seniority").String())),
		WorkArrangement: strings.ToLower(strings.TrimSpace(doc.Get("work_arrangement").String())),
		Timezone:        strings.TrimSpace(doc.Get("timezone").String()),
		City:            strings.TrimSpace(doc.Get("city").String()),
		SalaryMin:       int(doc.Get("salary_min").Int()),
		SalaryMax:       int(doc.Get("salary_max").Int()),
		ExperienceMin:   int(doc.Get("experience_min").Int()),
		ExperienceMax:   int(doc.Get("experience_max").Int()),
		Technologies:    stringList(doc.Get("technologies")),
		EmploymentType:  strings.ToLower(strings.TrimSpace(doc.Get("employment_type").String())),
		IsReposted:      doc.Get("is_reposted").Bool(),
		IsEvergreen:     doc.Get("is_evergreen").Bool(),
		RoleTypes:       stringList(doc.Get("role_types")),
		Confidence:      clampConfidence(doc.Get("confidence").Float()),
		MissingFields:   stringList(doc.Get("missing_fields")),
	}

	switch extraction.WorkArrangement {
	case models.ArrangementRemote, models.ArrangementHybrid, models.ArrangementOnsite, models.ArrangementUnknown, "":
	default:
		extraction.WorkArrangement = models.ArrangementUnknown
	}
	if extraction.SalaryMax > 0 && extraction.SalaryMin > extraction.SalaryMax {
		extraction.SalaryMin, extraction.SalaryMax = extraction.SalaryMax, extraction.SalaryMin
	}
	return extraction, nil
}

// parseAnalysis builds a MatchAnalysis from an analysis reply.
func parseAnalysis(response string) (*models.MatchAnalysis, error) {
	doc, err := parseObject(response)
	if err != nil {
		return nil, err
	}
	return &models.MatchAnalysis{
		MatchedSkills:                stringList(doc.Get("matched_skills")),
		MissingSkills:                stringList(doc.Get("missing_skills")),
		ExperienceMatch:              strings.TrimSpace(doc.Get("experience_match").String()),
		KeyStrengths:                 stringList(doc.Get("key_strengths")),
		PotentialConcerns:            stringList(doc.Get("potential_concerns")),
		CustomizationRecommendations: stringList(doc.Get("customization_recommendations")),
	}, nil
}

// parseCompanyProfile builds a Company from an extraction reply. The caller
// fills in Name.
func parseCompanyProfile(response string) (*models.Company, error) {
	doc, err := parseObject(response)
	if err != nil {
		return nil, err
	}
	return &models.Company{
		About:     strings.TrimSpace(doc.Get("about").String()),
		Culture:   strings.TrimSpace(doc.Get("culture").String()),
		Mission:   strings.TrimSpace(doc.Get("mission").String()),
		TechStack: stringList(doc.Get("tech_stack")),
	}, nil
}

// companyClass is the classification verdict before it is folded into the
// company record.
type companyClass struct {
	Tier              int
	PriorityScore     int
	Size              string
	HasPortlandOffice bool
}

func parseCompanyClass(response string) (*companyClass, error) {
	doc, err := parseObject(response)
	if err != nil {
		return nil, err
	}

	class := &companyClass{
		Tier:              int(doc.Get("tier").Int()),
		PriorityScore:     int(doc.Get("priority_score").Int()),
		Size:              strings.ToLower(strings.TrimSpace(doc.Get("size").String())),
		HasPortlandOffice: doc.Get("has_portland_office").Bool(),
	}
	if class.Tier < 1 || class.Tier > 3 {
		class.Tier = 3
	}
	if class.PriorityScore < 0 {
		class.PriorityScore = 0
	}
	if class.PriorityScore > 100 {
		class.PriorityScore = 100
	}
	switch class.Size {
	case "small", "medium", "large", "":
	default:
		class.Size = ""
	}
	return class, nil
}

// parseProposal builds a SourceProposal from a recovery reply. A proposal
// without a source type or config is unusable and rejected here rather than
// at probe time.
func parseProposal(response string) (*models.SourceProposal, error) {
	doc, err := parseObject(response)
	if err != nil {
		return nil, err
	}

	proposal := &models.SourceProposal{
		SourceType: strings.ToLower(strings.TrimSpace(doc.Get("source_type").String())),
		Config:     objectMap(doc.Get("config")),
		Confidence: clampConfidence(doc.Get("confidence").Float()),
		Notes:      strings.TrimSpace(doc.Get("notes").String()),
	}
	if proposal.SourceType == "" {
		return nil, fmt.Errorf("proposal has no source_type")
	}
	if len(proposal.Config) == 0 {
		return nil, fmt.Errorf("proposal has no config")
	}
	return proposal, nil
}

// parseClassification builds a SourceClassification from a classify reply.
// Unrecognised categories degrade to invalid rather than failing the parse.
func parseClassification(response string) (*models.SourceClassification, error) {
	doc, err := parseObject(response)
	if err != nil {
		return nil, err
	}

	classification := &models.SourceClassification{
		Category:    strings.ToLower(strings.TrimSpace(doc.Get("category").String())),
		CompanyName: strings.TrimSpace(doc.Get("company_name").String()),
		Confidence:  clampConfidence(doc.Get("confidence").Float()),
		Reason:      strings.TrimSpace(doc.Get("reason").String()),
	}
	switch classification.Category {
	case models.URLCategoryCompany, models.URLCategoryAggregator, models.URLCategorySingleJob,
		models.URLCategoryATSVendor, models.URLCategoryInvalid:
	default:
		classification.Category = models.URLCategoryInvalid
	}
	return classification, nil
}
