package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/venari/internal/models"
)

func scoreProfile() ScoreInputs {
	return ScoreInputs{
		Profile: models.ProfileSettings{
			Skills:          []string{"Go", "PostgreSQL"},
			ExperienceYears: 8,
			TargetSalary:    180000,
			PreferredCity:   "Portland",
			TimezoneOffset:  -8,
			RoleTypes:       []string{"backend", "platform"},
			Seniorities:     []string{"senior", "staff"},
		},
		Ranks: models.TechRanks{Ranks: map[string]int{
			"go":         10,
			"postgresql": 8,
			"kubernetes": 6,
		}},
	}
}

func TestScore_StrongMatchScoresHigh(t *testing.T) {
	job := models.JobRecord{
		Title:      "Senior Backend Engineer",
		Location:   "Remote (US)",
		PostedDate: time.Now().AddDate(0, 0, -2).Format("2006-01-02"),
	}
	extraction := models.JobExtraction{
		Seniority:       "senior",
		WorkArrangement: models.ArrangementRemote,
		Timezone:        "UTC-8",
		SalaryMin:       170000,
		SalaryMax:       200000,
		ExperienceMin:   5,
		Technologies:    []string{"Go", "PostgreSQL"},
		RoleTypes:       []string{"backend"},
	}

	score := Score(job, extraction, nil, scoreProfile())
	assert.GreaterOrEqual(t, score, 85, "an on-profile remote posting should score near the top")
	assert.LessOrEqual(t, score, 100)
}

func TestScore_WeakMatchScoresLow(t *testing.T) {
	job := models.JobRecord{
		Title:      "Junior Frontend Developer",
		Location:   "Miami, FL",
		PostedDate: time.Now().AddDate(0, 0, -60).Format("2006-01-02"),
	}
	extraction := models.JobExtraction{
		Seniority:       "junior",
		WorkArrangement: models.ArrangementOnsite,
		City:            "Miami",
		SalaryMax:       80000,
		ExperienceMin:   12,
		Technologies:    []string{"jQuery"},
		RoleTypes:       []string{"frontend"},
	}

	score := Score(job, extraction, nil, scoreProfile())
	assert.Less(t, score, 30)
}

func TestScore_Deterministic(t *testing.T) {
	job := models.JobRecord{Title: "Engineer", Location: "Remote"}
	extraction := models.JobExtraction{Seniority: "senior", Technologies: []string{"Go"}}
	in := scoreProfile()

	first := Score(job, extraction, nil, in)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Score(job, extraction, nil, in))
	}
}

func TestScore_TimezonePenalty(t *testing.T) {
	in := scoreProfile()
	job := models.JobRecord{Title: "Engineer"}

	near := ScoreDetailed(job, models.JobExtraction{
		WorkArrangement: models.ArrangementRemote, Timezone: "PST",
	}, nil, in)
	far := ScoreDetailed(job, models.JobExtraction{
		WorkArrangement: models.ArrangementRemote, Timezone: "CET",
	}, nil, in)

	assert.Greater(t, near.Location, far.Location)
	assert.Equal(t, weightLocation, near.Location)
}

func TestScore_PreferredCityBonus(t *testing.T) {
	in := scoreProfile()
	job := models.JobRecord{Title: "Engineer"}

	portland := ScoreDetailed(job, models.JobExtraction{
		WorkArrangement: models.ArrangementOnsite, City: "Portland, OR",
	}, nil, in)
	elsewhere := ScoreDetailed(job, models.JobExtraction{
		WorkArrangement: models.ArrangementOnsite, City: "Dallas, TX",
	}, nil, in)

	assert.Equal(t, weightLocation, portland.Location)
	assert.Less(t, elsewhere.Location, portland.Location)
}

func TestScore_CompanyAttributes(t *testing.T) {
	in := scoreProfile()
	job := models.JobRecord{Title: "Engineer"}
	extraction := models.JobExtraction{WorkArrangement: models.ArrangementRemote}

	company := &models.Company{
		Name:              "Acme",
		About:             "We are a remote-first machine learning company.",
		Size:              "medium",
		HasPortlandOffice: true,
	}

	with := ScoreDetailed(job, extraction, company, in)
	without := ScoreDetailed(job, extraction, nil, in)

	assert.Greater(t, with.Company, 0)
	assert.Zero(t, without.Company)
	assert.LessOrEqual(t, with.Company, companyBonusMax)
	assert.Equal(t, with.Total-with.Company, without.Total)
}

func TestScore_MissingDataTakesMiddleGround(t *testing.T) {
	b := ScoreDetailed(models.JobRecord{}, models.JobExtraction{}, nil, scoreProfile())

	assert.Equal(t, weightSeniority/2, b.Seniority)
	assert.Equal(t, weightSkills/2, b.Skills)
	assert.Equal(t, weightSalary/2, b.Salary)
	assert.Equal(t, weightExperience/2, b.Experience)
	assert.Equal(t, weightFreshness/2, b.Freshness)
	assert.Equal(t, weightRoleFit/2, b.RoleFit)
}
