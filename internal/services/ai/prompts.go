// -----------------------------------------------------------------------
// Task Prompts - per-task prompt builders for the LLM adapters
// -----------------------------------------------------------------------

package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/venari/internal/models"
)

// descriptionLimit caps how much of a job description goes into a prompt.
// Long postings past this point are boilerplate (benefits, EEO statements).
const descriptionLimit = 12000

// websiteContentLimit caps how much condensed website markdown goes into a
// company extraction prompt.
const websiteContentLimit = 24000

// sampleLimit caps the page/API sample fed to source recovery.
const sampleLimit = 16000

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n[truncated]"
}

const extractionSystem = `You are a job posting analyst. You extract structured facts from job postings exactly as stated. You never invent values; anything the posting does not state stays at its zero value. You reply with JSON only, no markdown fences, no commentary.`

func buildExtractionPrompt(job models.JobRecord) string {
	var b strings.Builder
	b.WriteString(`Task: Extract structured fields from this job posting.

Rules:
- seniority: one of "junior", "mid", "senior", "staff", "principal", "lead", "manager", or "" if not stated
- work_arrangement: one of "remote", "hybrid", "onsite", "unknown"
- timezone: timezone requirement as stated (e.g. "PST", "UTC-8", "US Eastern"), or ""
- city: the office city if one is named, or ""
- salary_min / salary_max: annual USD as integers, 0 if not stated; convert hourly rates to annual (x2080)
- experience_min / experience_max: years of experience required, 0 if not stated
- technologies: languages, frameworks, and tools the posting names
- employment_type: one of "full_time", "part_time", "contract", or ""
- is_reposted: true if the posting says it was reposted or refreshed
- is_evergreen: true if this is an always-open pipeline posting rather than a specific opening
- role_types: broad categories such as "backend", "frontend", "fullstack", "devops", "data", "ml", "mobile", "security"
- confidence: 0.0 to 1.0, how completely the posting supports these fields
- missing_fields: names of fields above the posting gave no information for

Output Format (JSON only, no markdown fences):
{
  "seniority": "senior",
  "work_arrangement": "remote",
  "timezone": "",
  "city": "",
  "salary_min": 150000,
  "salary_max": 190000,
  "experience_min": 5,
  "experience_max": 0,
  "technologies": ["go", "postgresql", "kubernetes"],
  "employment_type": "full_time",
  "is_reposted": false,
  "is_evergreen": false,
  "role_types": ["backend"],
  "confidence": 0.9,
  "missing_fields": ["timezone", "city"]
}

Job Posting:
Title: `)
	b.WriteString(job.Title)
	b.WriteString("\nCompany: ")
	b.WriteString(job.Company)
	if job.Location != "" {
		b.WriteString("\nLocation: ")
		b.WriteString(job.Location)
	}
	if job.Salary != "" {
		b.WriteString("\nSalary: ")
		b.WriteString(job.Salary)
	}
	if job.PostedDate != "" {
		b.WriteString("\nPosted: ")
		b.WriteString(job.PostedDate)
	}
	b.WriteString("\n\nDescription:\n")
	b.WriteString(truncate(job.Description, descriptionLimit))
	return b.String()
}

func buildRepairPrompt(job models.JobRecord, current *models.JobExtraction) string {
	missing := current.MissingFields
	if len(missing) == 0 {
		missing = []string{"salary_min", "salary_max", "seniority", "work_arrangement"}
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Task: A first extraction pass over this job posting left these fields empty: %s.
Re-read the posting looking specifically for those fields. Postings often state salary in a benefits section, seniority in the title, and arrangement in the location line.

Rules:
- Fill only the fields you can support from the posting text; leave the rest at zero values
- Use the same field names and value conventions as a full extraction
- confidence: 0.0 to 1.0 for the fields you filled

Output Format (JSON only, no markdown fences): a JSON object with the same
shape as a full extraction.

Job Posting:
Title: %s
Company: %s
`, strings.Join(missing, ", "), job.Title, job.Company)
	if job.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", job.Location)
	}
	if job.Salary != "" {
		fmt.Fprintf(&b, "Salary: %s\n", job.Salary)
	}
	b.WriteString("\nDescription:\n")
	b.WriteString(truncate(job.Description, descriptionLimit))
	return b.String()
}

const analysisSystem = `You are a career advisor comparing a job posting against a candidate profile. You are specific and honest: strengths must be grounded in the posting, concerns must name the actual gap. You reply with JSON only, no markdown fences, no commentary.`

func buildAnalysisPrompt(job models.JobRecord, extraction *models.JobExtraction, company *models.Company, score int, profile *models.ProfileSettings) string {
	var b strings.Builder
	b.WriteString(`Task: Analyze how well this job matches the candidate. The numeric match score is already computed; do not produce one.

Rules:
- matched_skills: candidate skills the posting asks for
- missing_skills: posting requirements the candidate lacks
- experience_match: one sentence comparing required vs candidate experience
- key_strengths: 2-4 specific reasons this candidate fits
- potential_concerns: 1-3 specific gaps or risks
- customization_recommendations: 2-3 concrete resume/cover-letter angles for this posting

Output Format (JSON only, no markdown fences):
{
  "matched_skills": ["go", "postgresql"],
  "missing_skills": ["kafka"],
  "experience_match": "Posting asks 5+ years; candidate has 8.",
  "key_strengths": ["..."],
  "potential_concerns": ["..."],
  "customization_recommendations": ["..."]
}

`)
	fmt.Fprintf(&b, "Match score (deterministic, 0-100): %d\n\n", score)

	b.WriteString("Candidate Profile:\n")
	if profile != nil {
		if len(profile.Skills) > 0 {
			fmt.Fprintf(&b, "Skills: %s\n", strings.Join(profile.Skills, ", "))
		}
		if profile.ExperienceYears > 0 {
			fmt.Fprintf(&b, "Experience: %d years\n", profile.ExperienceYears)
		}
		if len(profile.RoleTypes) > 0 {
			fmt.Fprintf(&b, "Target roles: %s\n", strings.Join(profile.RoleTypes, ", "))
		}
		if profile.TargetSalary > 0 {
			fmt.Fprintf(&b, "Target salary: %d\n", profile.TargetSalary)
		}
	}

	b.WriteString("\nJob Posting:\n")
	fmt.Fprintf(&b, "Title: %s\nCompany: %s\n", job.Title, job.Company)
	if extraction != nil {
		if extraction.Seniority != "" {
			fmt.Fprintf(&b, "Seniority: %s\n", extraction.Seniority)
		}
		if extraction.WorkArrangement != "" {
			fmt.Fprintf(&b, "Arrangement: %s\n", extraction.WorkArrangement)
		}
		if extraction.SalaryMax > 0 {
			fmt.Fprintf(&b, "Salary: %d-%d\n", extraction.SalaryMin, extraction.SalaryMax)
		}
		if len(extraction.Technologies) > 0 {
			fmt.Fprintf(&b, "Technologies: %s\n", strings.Join(extraction.Technologies, ", "))
		}
	}
	b.WriteString("\nDescription:\n")
	b.WriteString(truncate(job.Description, descriptionLimit))

	if company != nil && (company.About != "" || company.Culture != "") {
		b.WriteString("\n\nCompany Background:\n")
		if company.About != "" {
			fmt.Fprintf(&b, "About: %s\n", truncate(company.About, 2000))
		}
		if company.Culture != "" {
			fmt.Fprintf(&b, "Culture: %s\n", truncate(company.Culture, 2000))
		}
	}
	return b.String()
}

const companySystem = `You are a company researcher. You summarise what a company does from its own website content, staying factual and avoiding marketing language. You reply with JSON only, no markdown fences, no commentary.`

func buildCompanyExtractionPrompt(companyName, websiteContent string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Task: Extract a structured company profile for "%s" from its website content.

Rules:
- about: 2-4 sentences on what the company builds and for whom
- culture: 2-4 sentences on how the company describes working there
- mission: the stated mission in one sentence, or ""
- tech_stack: technologies the site mentions the company uses

Output Format (JSON only, no markdown fences):
{
  "about": "...",
  "culture": "...",
  "mission": "...",
  "tech_stack": ["go", "react"]
}

Website Content:
%s`, companyName, truncate(websiteContent, websiteContentLimit))
	return b.String()
}

func buildCompanyClassifyPrompt(company *models.Company) string {
	var b strings.Builder
	b.WriteString(`Task: Classify this company for a job-search pipeline based in Portland, Oregon.

Rules:
- tier: 1 (strong target), 2 (worth applying), 3 (fallback)
- priority_score: 0-100, overall attractiveness as an employer for a senior software engineer
- size: one of "small" (under 50), "medium" (50-500), "large" (over 500), "" if unknown
- has_portland_office: true only if the content indicates an office in Portland, Oregon

Output Format (JSON only, no markdown fences):
{
  "tier": 2,
  "priority_score": 70,
  "size": "medium",
  "has_portland_office": false
}

Company:
`)
	fmt.Fprintf(&b, "Name: %s\n", company.Name)
	if company.Website != "" {
		fmt.Fprintf(&b, "Website: %s\n", company.Website)
	}
	if company.About != "" {
		fmt.Fprintf(&b, "About: %s\n", truncate(company.About, 3000))
	}
	if company.Culture != "" {
		fmt.Fprintf(&b, "Culture: %s\n", truncate(company.Culture, 3000))
	}
	if company.Mission != "" {
		fmt.Fprintf(&b, "Mission: %s\n", company.Mission)
	}
	if len(company.TechStack) > 0 {
		fmt.Fprintf(&b, "Tech stack: %s\n", strings.Join(company.TechStack, ", "))
	}
	return b.String()
}

const recoverySystem = `You are a web scraping engineer repairing broken scraper configurations. You propose configurations only for structures actually present in the sample. You reply with JSON only, no markdown fences, no commentary.`

func buildSourceProposalPrompt(source *models.Source, sample string) string {
	currentConfig := "{}"
	if data, err := json.MarshalIndent(source.Config, "", "  "); err == nil {
		currentConfig = string(data)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Task: This job source stopped returning jobs. Propose a repaired scraper configuration from the page sample below. The proposal may change the source type, for example from "html" to "api" when the page loads jobs from a JSON endpoint visible in the sample.

Current source:
Name: %s
Type: %s
Config:
%s
`, source.Name, source.SourceType, currentConfig)
	if source.DisabledNotes != "" {
		fmt.Fprintf(&b, "Disable notes: %s\n", source.DisabledNotes)
	}

	b.WriteString(`
Rules:
- source_type: "html", "api", or "rss"
- html config requires: url, job_selector, fields with at least title and url; selectors use CSS, "selector@attr" reads an attribute
- api config requires: url, response_path (dot path to the jobs array), fields (dot paths within one job object); optional method, post_body, headers, pagination {type: "offset"|"page_num", param, page_size, max_pages}
- rss config requires: url
- Only propose selectors and paths that match the sample
- confidence: 0.0 to 1.0 that the proposal will return jobs
- notes: one sentence on what was broken and what changed

Output Format (JSON only, no markdown fences):
{
  "source_type": "api",
  "config": {"url": "...", "response_path": "jobs", "fields": {"title": "title", "url": "absolute_url"}},
  "confidence": 0.8,
  "notes": "..."
}

Page Sample:
`)
	b.WriteString(truncate(sample, sampleLimit))
	return b.String()
}

const classifySystem = `You are a URL triage specialist for a job scraping pipeline. You classify candidate careers URLs by what a scraper would find there. You reply with JSON only, no markdown fences, no commentary.`

func buildSourceClassifyPrompt(url, pageText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Task: Classify this candidate careers URL.

URL: %s

Rules:
- category: one of
  - "company-specific": a single company's own careers page or job board
  - "aggregator": a multi-company job board (Indeed, LinkedIn, Built In)
  - "single-job": a single job posting, not a listing page
  - "ats-vendor": an ATS vendor's marketing site rather than a hosted board
  - "invalid": not job-related, broken, or unusable
- company_name: the company the page belongs to when category is "company-specific", else ""
- confidence: 0.0 to 1.0
- reason: one sentence

Output Format (JSON only, no markdown fences):
{
  "category": "company-specific",
  "company_name": "Acme",
  "confidence": 0.9,
  "reason": "..."
}
`, url)
	if strings.TrimSpace(pageText) != "" {
		b.WriteString("\nPage Text:\n")
		b.WriteString(truncate(pageText, sampleLimit))
	}
	return b.String()
}
