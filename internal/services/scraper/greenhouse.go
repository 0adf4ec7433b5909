// -----------------------------------------------------------------------
// Greenhouse Adapter - boards-api.greenhouse.io job board API
// -----------------------------------------------------------------------

package scraper

import (
	"context"
	"fmt"
	"html"

	"github.com/tidwall/gjson"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
)

var greenhouseAPIBase = "https://boards-api.greenhouse.io/v1/boards"

type greenhouseScraper struct {
	source *models.Source
	deps   Deps
	token  string
}

func newGreenhouseScraper(source *models.Source, deps Deps) (Scraper, error) {
	token := boardToken(source)
	if token == "" {
		return nil, &ConfigError{Reason: "greenhouse source missing board_token"}
	}
	return &greenhouseScraper{source: source, deps: deps, token: token}, nil
}

func (s *greenhouseScraper) Name() string {
	return "greenhouse:" + s.token
}

func (s *greenhouseScraper) Scrape(ctx context.Context) ([]models.JobRecord, error) {
	endpoint := fmt.Sprintf("%s/%s/jobs?content=true", greenhouseAPIBase, s.token)
	body, err := s.deps.Client.Get(ctx, endpoint, acceptJSON)
	if err != nil {
		return nil, err
	}

	jobs := gjson.GetBytes(body, "jobs")
	if !jobs.Exists() {
		return nil, &ConfigError{Reason: fmt.Sprintf("greenhouse board %s returned no jobs array", s.token)}
	}

	company, website := sourceCompany(s.source)
	records := make([]models.JobRecord, 0, len(jobs.Array()))
	for _, job := range jobs.Array() {
		title := common.SanitizeText(job.Get("title").String())
		jobURL := job.Get("absolute_url").String()
		if title == "" || jobURL == "" {
			continue
		}
		name := company
		if v := job.Get("company_name").String(); v != "" {
			name = v
		}
		records = append(records, models.JobRecord{
			Title:          title,
			Company:        name,
			CompanyWebsite: website,
			Location:       common.SanitizeText(job.Get("location.name").String()),
			// The board API double-encodes content: an escaped HTML
			// string inside the JSON string.
			Description: common.SanitizeHTML(html.UnescapeString(job.Get("content").String())),
			URL:         jobURL,
			PostedDate:  job.Get("updated_at").String(),
		})
	}
	return records, nil
}
