// -----------------------------------------------------------------------
// Workable Adapter - apply.workable.com widget accounts API
// -----------------------------------------------------------------------

package scraper

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
)

var workableAPIBase = "https://apply.workable.com/api/v1/widget/accounts"

type workableScraper struct {
	source *models.Source
	deps   Deps
	token  string
}

func newWorkableScraper(source *models.Source, deps Deps) (Scraper, error) {
	token := boardToken(source)
	if token == "" {
		return nil, &ConfigError{Reason: "workable source missing board_token"}
	}
	return &workableScraper{source: source, deps: deps, token: token}, nil
}

func (s *workableScraper) Name() string {
	return "workable:" + s.token
}

func (s *workableScraper) Scrape(ctx context.Context) ([]models.JobRecord, error) {
	endpoint := fmt.Sprintf("%s/%s?details=true", workableAPIBase, s.token)
	body, err := s.deps.Client.Get(ctx, endpoint, acceptJSON)
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	jobs := parsed.Get("jobs")
	if !jobs.Exists() {
		return nil, &ConfigError{Reason: fmt.Sprintf("workable account %s returned no jobs array", s.token)}
	}

	company, website := sourceCompany(s.source)
	if v := parsed.Get("name").String(); v != "" && company == s.source.Name {
		company = v
	}

	records := make([]models.JobRecord, 0, len(jobs.Array()))
	for _, job := range jobs.Array() {
		title := common.SanitizeText(job.Get("title").String())
		jobURL := job.Get("url").String()
		if title == "" || jobURL == "" {
			continue
		}

		location := joinLocation(
			job.Get("city").String(),
			job.Get("state").String(),
			job.Get("country").String(),
		)
		if job.Get("telecommuting").Bool() {
			if location == "" {
				location = "Remote"
			} else {
				location += " (Remote)"
			}
		}

		records = append(records, models.JobRecord{
			Title:          title,
			Company:        company,
			CompanyWebsite: website,
			Location:       location,
			Description:    common.SanitizeHTML(job.Get("description").String()),
			URL:            jobURL,
			PostedDate:     job.Get("published_on").String(),
		})
	}
	return records, nil
}
