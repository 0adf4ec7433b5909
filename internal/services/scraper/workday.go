// -----------------------------------------------------------------------
// Workday Adapter - CXS endpoint with POST pagination
// -----------------------------------------------------------------------

package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
)

const workdayPageSize = 20

// localeSegmentRe matches path segments like en-US that Workday inserts
// before the site name.
var localeSegmentRe = regexp.MustCompile(`^[a-z]{2}-[A-Z]{2}$`)

// workdayScraper pages the CXS API that backs a Workday board. The human
// board URL is what gets persisted on each record; the CXS path is only
// used for fetching.
type workdayScraper struct {
	source   *models.Source
	deps     Deps
	boardURL string
	cxsBase  string
	tenant   string
	site     string
}

func newWorkdayScraper(source *models.Source, deps Deps) (Scraper, error) {
	raw, ok := source.ConfigString("url")
	if !ok || raw == "" {
		return nil, &ConfigError{Reason: "workday source missing url"}
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return nil, &ConfigError{Reason: fmt.Sprintf("workday source url %q is invalid", raw)}
	}

	// The tenant slug is the board's subdomain. Boards served from a
	// vanity domain need the tenant configured explicitly.
	tenant, _ := source.ConfigString("tenant")
	if tenant == "" {
		labels := strings.Split(parsed.Hostname(), ".")
		if len(labels) >= 3 && strings.Contains(parsed.Hostname(), "myworkdayjobs.com") {
			tenant = labels[0]
		}
	}
	if tenant == "" {
		return nil, &ConfigError{Reason: fmt.Sprintf("cannot derive workday tenant from %q; set tenant in config", raw)}
	}

	site := ""
	for _, segment := range strings.Split(strings.Trim(parsed.Path, "/"), "/") {
		if segment == "" || localeSegmentRe.MatchString(segment) {
			continue
		}
		site = segment
		break
	}
	if site == "" {
		return nil, &ConfigError{Reason: fmt.Sprintf("cannot derive workday site from %q", raw)}
	}

	return &workdayScraper{
		source:   source,
		deps:     deps,
		boardURL: strings.TrimRight(raw, "/"),
		cxsBase:  fmt.Sprintf("%s://%s/wday/cxs/%s/%s", parsed.Scheme, parsed.Host, tenant, site),
		tenant:   tenant,
		site:     site,
	}, nil
}

func (s *workdayScraper) Name() string {
	return "workday:" + s.tenant
}

func (s *workdayScraper) Scrape(ctx context.Context) ([]models.JobRecord, error) {
	company, website := sourceCompany(s.source)

	maxPages := defaultMaxPages
	if v, ok := s.source.ConfigInt("max_pages"); ok && v > 0 {
		maxPages = v
	}

	var records []models.JobRecord
	offset := 0
	for page := 0; page < maxPages; page++ {
		payload, err := json.Marshal(map[string]interface{}{
			"appliedFacets": map[string]interface{}{},
			"limit":         workdayPageSize,
			"offset":        offset,
			"searchText":    "",
		})
		if err != nil {
			return records, fmt.Errorf("marshal workday request: %w", err)
		}

		body, err := s.deps.Client.Do(ctx, "POST", s.cxsBase+"/jobs", payload, acceptJSON)
		if err != nil {
			return records, err
		}

		parsed := gjson.ParseBytes(body)
		postings := parsed.Get("jobPostings")
		if !postings.Exists() {
			return records, &ConfigError{Reason: fmt.Sprintf("workday board %s returned unexpected shape", s.tenant)}
		}
		rows := postings.Array()
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			record, err := s.buildRecord(ctx, row, company, website)
			if err != nil {
				return records, err
			}
			if record != nil {
				records = append(records, *record)
			}
		}

		offset += workdayPageSize
		if total := parsed.Get("total").Int(); total > 0 && int64(offset) >= total {
			break
		}
	}
	return records, nil
}

func (s *workdayScraper) buildRecord(ctx context.Context, row gjson.Result, company, website string) (*models.JobRecord, error) {
	title := common.SanitizeText(row.Get("title").String())
	externalPath := row.Get("externalPath").String()
	if title == "" || externalPath == "" {
		return nil, nil
	}
	if !strings.HasPrefix(externalPath, "/") {
		externalPath = "/" + externalPath
	}

	record := &models.JobRecord{
		Title:          title,
		Company:        company,
		CompanyWebsite: website,
		Location:       common.SanitizeText(row.Get("locationsText").String()),
		URL:            s.boardURL + externalPath,
		PostedDate:     common.SanitizeText(row.Get("postedOn").String()),
	}

	detail, err := s.fetchDetail(ctx, externalPath)
	if err != nil {
		return nil, err
	}
	if detail != nil {
		record.Description = detail.Description
		if detail.Location != "" {
			record.Location = detail.Location
		}
		if detail.PostedDate != "" {
			record.PostedDate = detail.PostedDate
		}
	}
	return record, nil
}

// fetchDetail rewrites the posting path onto the CXS API and reads the
// full description. The persisted record URL keeps the human form.
func (s *workdayScraper) fetchDetail(ctx context.Context, externalPath string) (*jobDetail, error) {
	body, err := s.deps.Client.Get(ctx, s.cxsBase+externalPath, acceptJSON)
	if err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}

	info := gjson.GetBytes(body, "jobPostingInfo")
	if !info.Exists() {
		return nil, nil
	}
	return &jobDetail{
		Description: common.SanitizeHTML(info.Get("jobDescription").String()),
		Location:    common.SanitizeText(info.Get("location").String()),
		PostedDate:  common.SanitizeText(info.Get("postedOn").String()),
	}, nil
}
