// -----------------------------------------------------------------------
// SmartRecruiters Adapter - api.smartrecruiters.com postings API
// -----------------------------------------------------------------------

package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
)

var (
	smartRecruitersAPIBase   = "https://api.smartrecruiters.com/v1/companies"
	smartRecruitersBoardBase = "https://jobs.smartrecruiters.com"
)

const smartRecruitersPageSize = 100

type smartRecruitersScraper struct {
	source *models.Source
	deps   Deps
	token  string
}

func newSmartRecruitersScraper(source *models.Source, deps Deps) (Scraper, error) {
	token := boardToken(source)
	if token == "" {
		return nil, &ConfigError{Reason: "smartrecruiters source missing board_token"}
	}
	return &smartRecruitersScraper{source: source, deps: deps, token: token}, nil
}

func (s *smartRecruitersScraper) Name() string {
	return "smartrecruiters:" + s.token
}

// Scrape pages through the postings list and follows each row to the
// detail endpoint; the list rows carry no description.
func (s *smartRecruitersScraper) Scrape(ctx context.Context) ([]models.JobRecord, error) {
	company, website := sourceCompany(s.source)

	var records []models.JobRecord
	offset := 0
	for page := 0; page < defaultMaxPages; page++ {
		endpoint := fmt.Sprintf("%s/%s/postings?limit=%d&offset=%d",
			smartRecruitersAPIBase, s.token, smartRecruitersPageSize, offset)
		body, err := s.deps.Client.Get(ctx, endpoint, acceptJSON)
		if err != nil {
			return records, err
		}

		parsed := gjson.ParseBytes(body)
		rows := parsed.Get("content")
		if !rows.Exists() {
			return records, &ConfigError{Reason: fmt.Sprintf("smartrecruiters board %s returned unexpected shape", s.token)}
		}
		if len(rows.Array()) == 0 {
			break
		}

		for _, row := range rows.Array() {
			record, err := s.buildRecord(ctx, row, company, website)
			if err != nil {
				return records, err
			}
			if record != nil {
				records = append(records, *record)
			}
		}

		offset += smartRecruitersPageSize
		if total := parsed.Get("totalFound").Int(); total > 0 && int64(offset) >= total {
			break
		}
	}
	return records, nil
}

func (s *smartRecruitersScraper) buildRecord(ctx context.Context, row gjson.Result, company, website string) (*models.JobRecord, error) {
	title := common.SanitizeText(row.Get("name").String())
	id := row.Get("id").String()
	if title == "" || id == "" {
		return nil, nil
	}

	location := joinLocation(
		row.Get("location.city").String(),
		row.Get("location.region").String(),
		row.Get("location.country").String(),
	)
	if row.Get("location.remote").Bool() {
		if location == "" {
			location = "Remote"
		} else {
			location += " (Remote)"
		}
	}

	name := company
	if v := row.Get("company.name").String(); v != "" {
		name = v
	}

	description, err := s.fetchDescription(ctx, id)
	if err != nil {
		return nil, err
	}

	return &models.JobRecord{
		Title:          title,
		Company:        name,
		CompanyWebsite: website,
		Location:       location,
		Description:    description,
		URL:            fmt.Sprintf("%s/%s/%s", smartRecruitersBoardBase, s.token, id),
		PostedDate:     row.Get("releasedDate").String(),
	}, nil
}

// fetchDescription reads the posting detail endpoint and concatenates the
// job-ad sections. A missing detail is not fatal to the row.
func (s *smartRecruitersScraper) fetchDescription(ctx context.Context, id string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/postings/%s", smartRecruitersAPIBase, s.token, id)
	body, err := s.deps.Client.Get(ctx, endpoint, acceptJSON)
	if err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", err
	}

	sections := gjson.GetBytes(body, "jobAd.sections")
	var out string
	for _, key := range []string{"companyDescription", "jobDescription", "qualifications", "additionalInformation"} {
		text := common.SanitizeHTML(sections.Get(key + ".text").String())
		if text == "" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += text
	}
	return out, nil
}
