// -----------------------------------------------------------------------
// Ashby Adapter - api.ashbyhq.com posting API
// -----------------------------------------------------------------------

package scraper

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
)

var ashbyAPIBase = "https://api.ashbyhq.com/posting-api/job-board"

type ashbyScraper struct {
	source *models.Source
	deps   Deps
	token  string
}

func newAshbyScraper(source *models.Source, deps Deps) (Scraper, error) {
	token := boardToken(source)
	if token == "" {
		return nil, &ConfigError{Reason: "ashby source missing board_token"}
	}
	return &ashbyScraper{source: source, deps: deps, token: token}, nil
}

func (s *ashbyScraper) Name() string {
	return "ashby:" + s.token
}

func (s *ashbyScraper) Scrape(ctx context.Context) ([]models.JobRecord, error) {
	endpoint := fmt.Sprintf("%s/%s?includeCompensation=true", ashbyAPIBase, s.token)
	body, err := s.deps.Client.Get(ctx, endpoint, acceptJSON)
	if err != nil {
		return nil, err
	}

	jobs := gjson.GetBytes(body, "jobs")
	if !jobs.Exists() {
		return nil, &ConfigError{Reason: fmt.Sprintf("ashby board %s returned no jobs array", s.token)}
	}

	company, website := sourceCompany(s.source)
	records := make([]models.JobRecord, 0, len(jobs.Array()))
	for _, job := range jobs.Array() {
		title := common.SanitizeText(job.Get("title").String())
		jobURL := job.Get("jobUrl").String()
		if title == "" || jobURL == "" {
			continue
		}

		location := common.SanitizeText(job.Get("location").String())
		if job.Get("isRemote").Bool() {
			if location == "" {
				location = "Remote"
			} else {
				location += " (Remote)"
			}
		}

		description := common.SanitizeHTML(job.Get("descriptionHtml").String())
		if description == "" {
			description = common.SanitizeText(job.Get("descriptionPlain").String())
		}

		records = append(records, models.JobRecord{
			Title:          title,
			Company:        company,
			CompanyWebsite: website,
			Location:       location,
			Description:    description,
			URL:            jobURL,
			PostedDate:     job.Get("publishedAt").String(),
			Salary:         common.SanitizeText(job.Get("compensation.compensationTierSummary").String()),
		})
	}
	return records, nil
}
