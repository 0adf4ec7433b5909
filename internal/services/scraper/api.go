// -----------------------------------------------------------------------
// Generic JSON API Adapter - gjson path extraction with pagination
// -----------------------------------------------------------------------

package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
)

type apiPagination struct {
	kind      string
	param     string
	pageSize  int
	maxPages  int
	pageStart int
}

type apiScraper struct {
	source       *models.Source
	deps         Deps
	endpoint     string
	method       string
	postBody     string
	responsePath string
	fields       map[string]string
	headers      map[string]string
	baseURL      string
	pagination   *apiPagination
}

func newAPIScraper(source *models.Source, deps Deps) (Scraper, error) {
	endpoint, _ := source.ConfigString("url")
	if endpoint == "" {
		return nil, &ConfigError{Reason: "api source missing url"}
	}

	fields := configFields(source)
	if fields["title"] == "" || fields["url"] == "" {
		return nil, &ConfigError{Reason: "api source fields must map title and url"}
	}

	method, _ := source.ConfigString("method")
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	postBody, _ := source.ConfigString("post_body")
	responsePath, _ := source.ConfigString("response_path")
	baseURL, _ := source.ConfigString("base_url")

	headers := map[string]string{}
	if raw, ok := source.ConfigMap("headers"); ok {
		for key, value := range raw {
			if s, ok := value.(string); ok {
				headers[key] = s
			}
		}
	}

	pagination, err := parseAPIPagination(source)
	if err != nil {
		return nil, err
	}

	return &apiScraper{
		source:       source,
		deps:         deps,
		endpoint:     endpoint,
		method:       method,
		postBody:     postBody,
		responsePath: responsePath,
		fields:       fields,
		headers:      headers,
		baseURL:      baseURL,
		pagination:   pagination,
	}, nil
}

func parseAPIPagination(source *models.Source) (*apiPagination, error) {
	raw, ok := source.ConfigMap("pagination")
	if !ok {
		return nil, nil
	}

	kind, _ := raw["type"].(string)
	param, _ := raw["param"].(string)
	if param == "" {
		return nil, &ConfigError{Reason: "api pagination missing param"}
	}

	p := &apiPagination{
		kind:     kind,
		param:    param,
		pageSize: intFromConfig(raw["page_size"], 0),
		maxPages: intFromConfig(raw["max_pages"], defaultMaxPages),
	}
	switch kind {
	case "offset":
		if p.pageSize <= 0 {
			return nil, &ConfigError{Reason: "offset pagination requires page_size"}
		}
		p.pageStart = intFromConfig(raw["page_start"], 0)
	case "page_num":
		p.pageStart = intFromConfig(raw["page_start"], 1)
	default:
		return nil, &ConfigError{Reason: fmt.Sprintf("unknown pagination type %q", kind)}
	}
	if p.maxPages <= 0 {
		p.maxPages = defaultMaxPages
	}
	return p, nil
}

func (s *apiScraper) Name() string {
	return "api:" + common.DomainOf(s.endpoint)
}

func (s *apiScraper) Scrape(ctx context.Context) ([]models.JobRecord, error) {
	maxPages := 1
	if s.pagination != nil {
		maxPages = s.pagination.maxPages
	}

	var records []models.JobRecord
	for page := 0; page < maxPages; page++ {
		rows, err := s.fetchRows(ctx, page)
		if err != nil {
			return records, err
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			if record := s.buildRecord(row); record != nil {
				records = append(records, *record)
			}
		}

		if s.pagination == nil {
			break
		}
		if s.pagination.pageSize > 0 && len(rows) < s.pagination.pageSize {
			break
		}
	}
	return records, nil
}

func (s *apiScraper) fetchRows(ctx context.Context, page int) ([]gjson.Result, error) {
	reqURL := s.endpoint
	if p := s.pagination; p != nil {
		value := p.pageStart + page
		if p.kind == "offset" {
			value = p.pageStart + page*p.pageSize
		}
		reqURL = withQueryParam(reqURL, p.param, value)
	}

	headers := make(map[string]string, len(s.headers)+1)
	headers["Accept"] = "application/json"
	for k, v := range s.headers {
		headers[k] = v
	}

	var payload []byte
	if s.postBody != "" {
		payload = []byte(s.postBody)
	}

	body, err := s.deps.Client.Do(ctx, s.method, reqURL, payload, headers)
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	rows := parsed
	if s.responsePath != "" {
		rows = parsed.Get(s.responsePath)
	}
	if !rows.Exists() && s.responsePath != "" {
		return nil, &ConfigError{Reason: fmt.Sprintf("response_path %q matched nothing", s.responsePath)}
	}
	if !rows.IsArray() {
		return nil, &ConfigError{Reason: "api response rows are not an array"}
	}
	return rows.Array(), nil
}

func (s *apiScraper) buildRecord(row gjson.Result) *models.JobRecord {
	title := common.SanitizeText(row.Get(s.fields["title"]).String())
	jobURL := resolveURL(s.resolveBase(), row.Get(s.fields["url"]).String())
	if title == "" || jobURL == "" {
		return nil
	}

	company, website := sourceCompany(s.source)
	record := &models.JobRecord{
		Title:          title,
		Company:        company,
		CompanyWebsite: website,
		URL:            jobURL,
	}
	if path := s.fields["company"]; path != "" {
		if v := common.SanitizeText(row.Get(path).String()); v != "" {
			record.Company = v
		}
	}
	if path := s.fields["description"]; path != "" {
		record.Description = common.SanitizeHTML(row.Get(path).String())
	}
	if path := s.fields["location"]; path != "" {
		record.Location = common.SanitizeText(row.Get(path).String())
	}
	if path := s.fields["posted_date"]; path != "" {
		record.PostedDate = common.SanitizeText(row.Get(path).String())
	}
	if path := s.fields["salary"]; path != "" {
		record.Salary = common.SanitizeText(row.Get(path).String())
	}
	return record
}

func (s *apiScraper) resolveBase() string {
	if s.baseURL != "" {
		return s.baseURL
	}
	return s.endpoint
}
