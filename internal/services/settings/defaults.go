// -----------------------------------------------------------------------
// Settings Defaults - documents seeded into the store on first run
// -----------------------------------------------------------------------

package settings

import "github.com/ternarybob/venari/internal/models"

func defaultFilterSettings() *models.FilterSettings {
	return &models.FilterSettings{
		RequiredTitleKeywords: []string{},
		ExcludedTitleKeywords: []string{"intern", "internship", "unpaid", "volunteer"},
		MaxAgeDays:            30,
		AllowRemote:           true,
		AllowHybrid:           true,
		AllowOnsite:           false,
		AllowedCities:         []string{},
		AllowFullTime:         true,
		AllowPartTime:         false,
		AllowContract:         false,
		MinSalary:             0,
		RejectedTech:          []string{},
	}
}

func defaultStrikeSettings() *models.StrikeSettings {
	return &models.StrikeSettings{
		Threshold:              5,
		SalaryBelow:            0,
		SalaryPoints:           2,
		SeniorityTitleTerms:    []string{"junior", "entry level", "entry-level"},
		SeniorityPoints:        2,
		ShortDescriptionChars:  200,
		ShortDescriptionPoints: 1,
		Buzzwords:              []string{"rockstar", "ninja", "guru", "wizard"},
		BuzzwordPoints:         1,
		AgeStrikeDays:          21,
		AgePoints:              1,
		UndesiredTech:          []string{},
		UndesiredTechPoints:    2,
		ExcludedCompanies:      []string{},
		AllowedSeniorities:     []string{},
		RequiredKeywords:       []string{},
		RejectCommissionOnly:   true,
	}
}

func defaultProfile() *models.ProfileSettings {
	return &models.ProfileSettings{
		Skills:          []string{},
		ExperienceYears: 0,
		TargetSalary:    0,
		PreferredCity:   "",
		TimezoneOffset:  0,
		RoleTypes:       []string{},
		Seniorities:     []string{},
	}
}

func defaultTechRanks() *models.TechRanks {
	return &models.TechRanks{Ranks: map[string]int{}}
}

func defaultStopList() *models.StopList {
	return &models.StopList{
		ExcludedCompanies: []string{},
		ExcludedKeywords:  []string{},
		ExcludedDomains:   []string{},
	}
}

func defaultWorkerSettings() *models.WorkerSettings {
	return &models.WorkerSettings{
		PollIntervalSeconds:      5,
		BatchSize:                10,
		MinMatchScore:            60,
		Provider:                 "claude",
		CompanyWaitLimit:         3,
		ZeroJobsRecoverThreshold: 3,
		FailureDisableThreshold:  3,
		ExtractionConfidence:     0.7,
		GoodDataMinLength:        100,
	}
}

func defaultSchedulerSettings() *models.SchedulerSettings {
	return &models.SchedulerSettings{
		Enabled:       false,
		Schedule:      "0 */6 * * *",
		TargetMatches: 10,
		MaxSources:    0,
	}
}

func defaultAISettings() *models.AISettings {
	return &models.AISettings{
		Chains: map[string][]string{
			models.AITaskExtraction: {"claude", "gemini"},
			models.AITaskAnalysis:   {"claude", "gemini"},
			models.AITaskCompany:    {"gemini", "claude"},
			models.AITaskRecovery:   {"claude"},
			models.AITaskClassify:   {"gemini", "claude"},
		},
		MaxTokens:      4096,
		TimeoutSeconds: 120,
	}
}
