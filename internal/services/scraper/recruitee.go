// -----------------------------------------------------------------------
// Recruitee Adapter - company.recruitee.com offers API
// -----------------------------------------------------------------------

package scraper

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
)

// recruiteeAPIPattern expands with the board token; the API lives on a
// per-company subdomain.
var recruiteeAPIPattern = "https://%s.recruitee.com/api/offers/"

type recruiteeScraper struct {
	source *models.Source
	deps   Deps
	token  string
}

func newRecruiteeScraper(source *models.Source, deps Deps) (Scraper, error) {
	token := boardToken(source)
	if token == "" {
		return nil, &ConfigError{Reason: "recruitee source missing board_token"}
	}
	return &recruiteeScraper{source: source, deps: deps, token: token}, nil
}

func (s *recruiteeScraper) Name() string {
	return "recruitee:" + s.token
}

func (s *recruiteeScraper) Scrape(ctx context.Context) ([]models.JobRecord, error) {
	endpoint := fmt.Sprintf(recruiteeAPIPattern, s.token)
	body, err := s.deps.Client.Get(ctx, endpoint, acceptJSON)
	if err != nil {
		return nil, err
	}

	offers := gjson.GetBytes(body, "offers")
	if !offers.Exists() {
		return nil, &ConfigError{Reason: fmt.Sprintf("recruitee board %s returned no offers array", s.token)}
	}

	company, website := sourceCompany(s.source)
	records := make([]models.JobRecord, 0, len(offers.Array()))
	for _, offer := range offers.Array() {
		title := common.SanitizeText(offer.Get("title").String())
		jobURL := offer.Get("careers_url").String()
		if title == "" || jobURL == "" {
			continue
		}

		location := common.SanitizeText(offer.Get("location").String())
		if location == "" {
			location = joinLocation(offer.Get("city").String(), offer.Get("country").String())
		}
		if offer.Get("remote").Bool() && location == "" {
			location = "Remote"
		}

		description := common.SanitizeHTML(offer.Get("description").String())
		if requirements := common.SanitizeHTML(offer.Get("requirements").String()); requirements != "" {
			if description != "" {
				description += "\n\n"
			}
			description += requirements
		}

		posted := offer.Get("published_at").String()
		if posted == "" {
			posted = offer.Get("created_at").String()
		}

		records = append(records, models.JobRecord{
			Title:          title,
			Company:        company,
			CompanyWebsite: website,
			Location:       location,
			Description:    description,
			URL:            jobURL,
			PostedDate:     posted,
		})
	}
	return records, nil
}
