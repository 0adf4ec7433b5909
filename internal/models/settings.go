// -----------------------------------------------------------------------
// Settings documents - runtime-reloadable configuration stored in SQLite
// -----------------------------------------------------------------------

package models

// Settings document keys in the settings table.
const (
	SettingsKeyFilter    = "filter_settings"
	SettingsKeyStrikes   = "strike_settings"
	SettingsKeyProfile   = "profile"
	SettingsKeyTechRanks = "tech_ranks"
	SettingsKeyStopList  = "stop_list"
	SettingsKeyWorker    = "worker_settings"
	SettingsKeyScheduler = "scheduler_settings"
	SettingsKeyAI        = "ai_settings"
)

// FilterSettings drives the pre-filter (Stage A). A check whose data is
// missing passes; MaxAgeDays == 0 disables freshness checking.
type FilterSettings struct {
	RequiredTitleKeywords []string `json:"required_title_keywords"`
	ExcludedTitleKeywords []string `json:"excluded_title_keywords"`

	MaxAgeDays int `json:"max_age_days"`

	AllowRemote   bool     `json:"allow_remote"`
	AllowHybrid   bool     `json:"allow_hybrid"`
	AllowOnsite   bool     `json:"allow_onsite"`
	AllowedCities []string `json:"allowed_cities"`

	AllowFullTime bool `json:"allow_full_time"`
	AllowPartTime bool `json:"allow_part_time"`
	AllowContract bool `json:"allow_contract"`

	MinSalary int `json:"min_salary"`

	RejectedTech []string `json:"rejected_tech"`
}

// StrikeSettings drives the strike engine (Stage B). Hard-reject rules
// short-circuit; strike rules accumulate points against Threshold.
type StrikeSettings struct {
	Threshold int `json:"threshold"`

	SalaryBelow  int `json:"salary_below"`
	SalaryPoints int `json:"salary_points"`

	SeniorityTitleTerms []string `json:"seniority_title_terms"`
	SeniorityPoints     int      `json:"seniority_points"`

	ShortDescriptionChars  int `json:"short_description_chars"`
	ShortDescriptionPoints int `json:"short_description_points"`

	Buzzwords      []string `json:"buzzwords"`
	BuzzwordPoints int      `json:"buzzword_points"`

	AgeStrikeDays int `json:"age_strike_days"`
	AgePoints     int `json:"age_points"`

	UndesiredTech       []string `json:"undesired_tech"`
	UndesiredTechPoints int      `json:"undesired_tech_points"`

	// Hard rejections.
	ExcludedCompanies    []string `json:"excluded_companies"`
	AllowedSeniorities   []string `json:"allowed_seniorities"`
	RequiredKeywords     []string `json:"required_keywords"`
	RejectCommissionOnly bool     `json:"reject_commission_only"`
}

// ProfileSettings describes the user the score calculator matches against.
type ProfileSettings struct {
	Skills          []string `json:"skills"`
	ExperienceYears int      `json:"experience_years"`
	TargetSalary    int      `json:"target_salary"`
	PreferredCity   string   `json:"preferred_city"`
	TimezoneOffset  int      `json:"timezone_offset"`
	RoleTypes       []string `json:"role_types"`
	Seniorities     []string `json:"seniorities"`
}

// TechRanks weights technologies for the skill-match bonus, 1 (marginal) to
// 10 (core).
type TechRanks struct {
	Ranks map[string]int `json:"ranks"`
}

// StopList short-circuits non-scrape items before any stage runs. Matching
// is case-insensitive substring: companies against company_name, keywords
// against the URL, domains against the URL host.
type StopList struct {
	ExcludedCompanies []string `json:"excludedCompanies"`
	ExcludedKeywords  []string `json:"excludedKeywords"`
	ExcludedDomains   []string `json:"excludedDomains"`
}

// WorkerSettings are the dynamic knobs reloadable without restart.
type WorkerSettings struct {
	PollIntervalSeconds      int     `json:"poll_interval_seconds"`
	BatchSize                int     `json:"batch_size"`
	MinMatchScore            int     `json:"min_match_score"`
	Provider                 string  `json:"provider"`
	CompanyWaitLimit         int     `json:"company_wait_limit"`
	ZeroJobsRecoverThreshold int     `json:"zero_jobs_recover_threshold"`
	FailureDisableThreshold  int     `json:"failure_disable_threshold"`
	ExtractionConfidence     float64 `json:"extraction_confidence"`
	GoodDataMinLength        int     `json:"good_data_min_length"`
}

// SchedulerSettings configures periodic scrape submission.
type SchedulerSettings struct {
	Enabled       bool   `json:"enabled"`
	Schedule      string `json:"schedule"`
	TargetMatches int    `json:"target_matches"`
	MaxSources    int    `json:"max_sources"`
}

// AI task types keyed into the provider chains document.
const (
	AITaskExtraction = "extraction"
	AITaskAnalysis   = "analysis"
	AITaskCompany    = "company"
	AITaskRecovery   = "recovery"
	AITaskClassify   = "classify"
)

// AISettings selects the provider chain per task type.
type AISettings struct {
	Chains         map[string][]string `json:"chains"`
	MaxTokens      int                 `json:"max_tokens"`
	TimeoutSeconds int                 `json:"timeout_seconds"`
}
