// -----------------------------------------------------------------------
// Breezy Adapter - company.breezy.hr positions JSON
// -----------------------------------------------------------------------

package scraper

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
)

var breezyAPIPattern = "https://%s.breezy.hr/json"

type breezyScraper struct {
	source *models.Source
	deps   Deps
	token  string
}

func newBreezyScraper(source *models.Source, deps Deps) (Scraper, error) {
	token := boardToken(source)
	if token == "" {
		return nil, &ConfigError{Reason: "breezy source missing board_token"}
	}
	return &breezyScraper{source: source, deps: deps, token: token}, nil
}

func (s *breezyScraper) Name() string {
	return "breezy:" + s.token
}

// Scrape reads the positions JSON, then follows each position's public
// page for the description; the listing feed carries none.
func (s *breezyScraper) Scrape(ctx context.Context) ([]models.JobRecord, error) {
	endpoint := fmt.Sprintf(breezyAPIPattern, s.token)
	body, err := s.deps.Client.Get(ctx, endpoint, acceptJSON)
	if err != nil {
		return nil, err
	}

	positions := gjson.ParseBytes(body)
	if !positions.IsArray() {
		return nil, &ConfigError{Reason: fmt.Sprintf("breezy board %s returned unexpected shape", s.token)}
	}

	company, website := sourceCompany(s.source)
	var records []models.JobRecord
	for _, position := range positions.Array() {
		title := common.SanitizeText(position.Get("name").String())
		jobURL := position.Get("url").String()
		if title == "" || jobURL == "" {
			continue
		}

		record := models.JobRecord{
			Title:          title,
			Company:        company,
			CompanyWebsite: website,
			Location:       common.SanitizeText(position.Get("location.name").String()),
			URL:            jobURL,
			PostedDate:     position.Get("published_date").String(),
		}

		detail, err := fetchJobDetail(ctx, s.deps.Client, jobURL)
		if err != nil {
			if IsTransient(err) {
				return records, err
			}
			// Permanent detail failures leave the row thin rather
			// than sinking the whole board.
			s.deps.logger().Warn().
				Str(common.FieldCategory, common.CategoryScrape).
				Str(common.FieldAction, common.ActionFetch).
				Str("url", jobURL).
				Err(err).
				Msg("Detail fetch failed")
		} else if detail != nil {
			record.Description = detail.Description
			if record.Location == "" {
				record.Location = detail.Location
			}
			if record.PostedDate == "" {
				record.PostedDate = detail.PostedDate
			}
			record.Salary = detail.Salary
		}

		records = append(records, record)
	}
	return records, nil
}
