// -----------------------------------------------------------------------
// Score Calculator - deterministic 0-100 match score, the analyser gate
// -----------------------------------------------------------------------

package filter

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/venari/internal/models"
)

// Component weights. The weighted components sum to 100 before the company
// bonus; the final score is clamped to [0, 100].
const (
	weightSeniority  = 15
	weightLocation   = 15
	weightSkills     = 25
	weightSalary     = 15
	weightExperience = 10
	weightFreshness  = 5
	weightRoleFit    = 15

	companyBonusMax = 8
	timezonePenalty = 3 // per hour of offset difference, against the location component
)

// ScoreInputs bundles the settings documents the calculator reads.
type ScoreInputs struct {
	Profile models.ProfileSettings
	Ranks   models.TechRanks
}

// ScoreBreakdown records the per-component contributions behind a score.
type ScoreBreakdown struct {
	Seniority  int `json:"seniority"`
	Location   int `json:"location"`
	Skills     int `json:"skills"`
	Salary     int `json:"salary"`
	Experience int `json:"experience"`
	Freshness  int `json:"freshness"`
	RoleFit    int `json:"role_fit"`
	Company    int `json:"company"`
	Total      int `json:"total"`
}

// Score computes the deterministic match score for a posting. It is the sole
// gate before the AI analyser runs.
func Score(job models.JobRecord, extraction models.JobExtraction, company *models.Company, in ScoreInputs) int {
	return ScoreDetailed(job, extraction, company, in).Total
}

// ScoreDetailed computes the score with its per-component breakdown.
func ScoreDetailed(job models.JobRecord, extraction models.JobExtraction, company *models.Company, in ScoreInputs) ScoreBreakdown {
	b := ScoreBreakdown{
		Seniority:  scoreSeniority(extraction, in.Profile),
		Location:   scoreLocation(job, extraction, in.Profile),
		Skills:     scoreSkills(extraction, in),
		Salary:     scoreSalary(job, extraction, in.Profile),
		Experience: scoreExperience(extraction, in.Profile),
		Freshness:  scoreFreshness(job),
		RoleFit:    scoreRoleFit(extraction, in.Profile),
		Company:    scoreCompany(company, in.Profile),
	}

	total := b.Seniority + b.Location + b.Skills + b.Salary + b.Experience + b.Freshness + b.RoleFit + b.Company
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}
	b.Total = total
	return b
}

// scoreSeniority gives full credit for a tier the profile targets, half
// credit when the posting does not state one.
func scoreSeniority(extraction models.JobExtraction, profile models.ProfileSettings) int {
	if extraction.Seniority == "" {
		return weightSeniority / 2
	}
	if len(profile.Seniorities) == 0 {
		return weightSeniority / 2
	}
	seniority := strings.ToLower(extraction.Seniority)
	for _, want := range profile.Seniorities {
		if strings.Contains(seniority, strings.ToLower(want)) {
			return weightSeniority
		}
	}
	return 0
}

// scoreLocation scores remote and preferred-city roles top marks, applies
// the timezone penalty per hour of offset difference, and a fixed floor for
// everything else.
func scoreLocation(job models.JobRecord, extraction models.JobExtraction, profile models.ProfileSettings) int {
	arrangement := extraction.WorkArrangement
	if arrangement == "" || arrangement == models.ArrangementUnknown {
		arrangement = InferArrangement(job.Location, job.Title, job.Description)
	}

	city := extraction.City
	if city == "" {
		city = job.Location
	}
	inPreferredCity := profile.PreferredCity != "" &&
		strings.Contains(strings.ToLower(city), strings.ToLower(profile.PreferredCity))

	score := 0
	switch arrangement {
	case models.ArrangementRemote:
		score = weightLocation
		if offset, ok := parseTimezoneOffset(extraction.Timezone); ok {
			diff := offset - profile.TimezoneOffset
			if diff < 0 {
				diff = -diff
			}
			score -= diff * timezonePenalty
		}
	case models.ArrangementHybrid, models.ArrangementOnsite:
		if inPreferredCity {
			score = weightLocation
		} else {
			score = weightLocation / 3
		}
	default:
		score = weightLocation / 2
	}

	if score < 0 {
		score = 0
	}
	return score
}

// scoreSkills weights each technology the posting lists by its rank in the
// technology-ranks document and scales against the best case.
func scoreSkills(extraction models.JobExtraction, in ScoreInputs) int {
	technologies := extraction.Technologies
	if len(technologies) == 0 {
		return weightSkills / 2
	}

	ranks := in.Ranks.Ranks
	matched, possible := 0, 0
	for _, tech := range technologies {
		rank := rankOf(ranks, tech)
		possible += 10
		if rank > 0 {
			matched += rank
		} else if skillListed(in.Profile.Skills, tech) {
			matched += 5
		}
	}
	if possible == 0 {
		return weightSkills / 2
	}
	return weightSkills * matched / possible
}

func rankOf(ranks map[string]int, tech string) int {
	tech = strings.ToLower(strings.TrimSpace(tech))
	for name, rank := range ranks {
		if strings.ToLower(name) == tech {
			return rank
		}
	}
	return 0
}

func skillListed(skills []string, tech string) bool {
	for _, s := range skills {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(tech)) {
			return true
		}
	}
	return false
}

// scoreSalary compares the posting's maximum against the target. At or above
// target is full credit; below scales linearly down to zero at half target.
func scoreSalary(job models.JobRecord, extraction models.JobExtraction, profile models.ProfileSettings) int {
	if profile.TargetSalary <= 0 {
		return weightSalary / 2
	}
	max := extraction.SalaryMax
	if max == 0 {
		if _, parsed, ok := ParseSalary(job.Salary); ok {
			max = parsed
		}
	}
	if max == 0 {
		return weightSalary / 2
	}
	if max >= profile.TargetSalary {
		return weightSalary
	}
	floor := profile.TargetSalary / 2
	if max <= floor {
		return 0
	}
	return weightSalary * (max - floor) / (profile.TargetSalary - floor)
}

// scoreExperience gives full credit when the required minimum is at or below
// the profile's years, zero when it is more than two years above.
func scoreExperience(extraction models.JobExtraction, profile models.ProfileSettings) int {
	if extraction.ExperienceMin == 0 || profile.ExperienceYears == 0 {
		return weightExperience / 2
	}
	gap := extraction.ExperienceMin - profile.ExperienceYears
	switch {
	case gap <= 0:
		return weightExperience
	case gap <= 2:
		return weightExperience / 2
	default:
		return 0
	}
}

// scoreFreshness rewards recent postings: full credit inside a week,
// declining to zero past a month. Undated postings take half credit.
func scoreFreshness(job models.JobRecord) int {
	age, ok := AgeDays(job.PostedDate, time.Now())
	if !ok {
		return weightFreshness / 2
	}
	switch {
	case age <= 7:
		return weightFreshness
	case age <= 30:
		return weightFreshness / 2
	default:
		return 0
	}
}

// scoreRoleFit matches extracted role classes against the profile's targets.
func scoreRoleFit(extraction models.JobExtraction, profile models.ProfileSettings) int {
	if len(profile.RoleTypes) == 0 || len(extraction.RoleTypes) == 0 {
		return weightRoleFit / 2
	}
	for _, role := range extraction.RoleTypes {
		for _, want := range profile.RoleTypes {
			if strings.EqualFold(strings.TrimSpace(role), strings.TrimSpace(want)) {
				return weightRoleFit
			}
		}
	}
	return 0
}

// scoreCompany adds a bonus for company attributes: an office in the
// preferred city, a remote-first culture, ML focus, and a mid-size team.
func scoreCompany(company *models.Company, profile models.ProfileSettings) int {
	if company == nil {
		return 0
	}
	bonus := 0
	if company.HasPortlandOffice {
		bonus += 3
	}

	text := strings.ToLower(company.About + " " + company.Culture + " " + company.Mission)
	if strings.Contains(text, "remote-first") || strings.Contains(text, "remote first") ||
		strings.Contains(text, "fully remote") {
		bonus += 2
	}
	if strings.Contains(text, "machine learning") || strings.Contains(text, " ml ") ||
		techListed(company.TechStack, "machine learning") {
		bonus += 2
	}
	switch strings.ToLower(company.Size) {
	case "small", "startup", "medium", "mid-size", "midsize":
		bonus++
	}

	if bonus > companyBonusMax {
		bonus = companyBonusMax
	}
	return bonus
}

var tzOffsetRe = regexp.MustCompile(`(?i)(?:utc|gmt)\s*([+-]\d{1,2})`)

// Common zone abbreviations mapped to their standard UTC offsets.
var tzAbbreviations = map[string]int{
	"pst": -8, "pdt": -7, "mst": -7, "mdt": -6,
	"cst": -6, "cdt": -5, "est": -5, "edt": -4,
	"utc": 0, "gmt": 0, "bst": 1, "cet": 1, "cest": 2,
	"ist": 5, "aest": 10, "aedt": 11,
}

func parseTimezoneOffset(tz string) (int, bool) {
	tz = strings.TrimSpace(strings.ToLower(tz))
	if tz == "" {
		return 0, false
	}
	if m := tzOffsetRe.FindStringSubmatch(tz); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	if offset, ok := tzAbbreviations[tz]; ok {
		return offset, true
	}
	return 0, false
}
