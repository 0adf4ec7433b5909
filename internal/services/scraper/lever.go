// -----------------------------------------------------------------------
// Lever Adapter - api.lever.co public postings API
// -----------------------------------------------------------------------

package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
)

var leverAPIBase = "https://api.lever.co/v0/postings"

type leverScraper struct {
	source *models.Source
	deps   Deps
	token  string
}

func newLeverScraper(source *models.Source, deps Deps) (Scraper, error) {
	token := boardToken(source)
	if token == "" {
		return nil, &ConfigError{Reason: "lever source missing board_token"}
	}
	return &leverScraper{source: source, deps: deps, token: token}, nil
}

func (s *leverScraper) Name() string {
	return "lever:" + s.token
}

func (s *leverScraper) Scrape(ctx context.Context) ([]models.JobRecord, error) {
	endpoint := fmt.Sprintf("%s/%s?mode=json", leverAPIBase, s.token)
	body, err := s.deps.Client.Get(ctx, endpoint, acceptJSON)
	if err != nil {
		return nil, err
	}

	postings := gjson.ParseBytes(body)
	if !postings.IsArray() {
		return nil, &ConfigError{Reason: fmt.Sprintf("lever board %s returned unexpected shape", s.token)}
	}

	company, website := sourceCompany(s.source)
	records := make([]models.JobRecord, 0, len(postings.Array()))
	for _, posting := range postings.Array() {
		title := common.SanitizeText(posting.Get("text").String())
		jobURL := posting.Get("hostedUrl").String()
		if title == "" || jobURL == "" {
			continue
		}

		description := common.SanitizeHTML(posting.Get("description").String())
		if description == "" {
			description = common.SanitizeText(posting.Get("descriptionPlain").String())
		}
		if extra := common.SanitizeText(posting.Get("additionalPlain").String()); extra != "" {
			if description != "" {
				description += "\n\n"
			}
			description += extra
		}

		records = append(records, models.JobRecord{
			Title:          title,
			Company:        company,
			CompanyWebsite: website,
			Location:       common.SanitizeText(posting.Get("categories.location").String()),
			Description:    description,
			URL:            jobURL,
			PostedDate:     leverTimestamp(posting.Get("createdAt")),
			Salary:         leverSalary(posting.Get("salaryRange")),
		})
	}
	return records, nil
}

// leverTimestamp formats the epoch-millisecond createdAt field.
func leverTimestamp(v gjson.Result) string {
	ms := v.Int()
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func leverSalary(v gjson.Result) string {
	if !v.Exists() {
		return ""
	}
	min := v.Get("min").Int()
	max := v.Get("max").Int()
	if min == 0 && max == 0 {
		return ""
	}
	out := fmt.Sprintf("%d-%d", min, max)
	if currency := v.Get("currency").String(); currency != "" {
		out = currency + " " + out
	}
	if interval := v.Get("interval").String(); interval != "" {
		out += " per " + interval
	}
	return out
}
