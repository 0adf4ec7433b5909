// -----------------------------------------------------------------------
// Generic HTML Adapter - selector-driven extraction, optional rendering
// -----------------------------------------------------------------------

package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// attrNameRe validates the attribute half of a selector@attr field spec.
var attrNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

type htmlScraper struct {
	source      *models.Source
	deps        Deps
	pageURL     string
	jobSelector string
	fields      map[string]string
	baseURL     string
	waitFor     string
}

func newHTMLScraper(source *models.Source, deps Deps) (Scraper, error) {
	pageURL, _ := source.ConfigString("url")
	if pageURL == "" {
		return nil, &ConfigError{Reason: "html source missing url"}
	}
	jobSelector, _ := source.ConfigString("job_selector")
	if jobSelector == "" {
		return nil, &ConfigError{Reason: "html source missing job_selector"}
	}

	fields := configFields(source)
	if fields["title"] == "" || fields["url"] == "" {
		return nil, &ConfigError{Reason: "html source fields must map title and url"}
	}

	if source.RequiresJS() && deps.Renderer == nil {
		return nil, &ConfigError{Reason: "html source requires_js but rendering is disabled"}
	}

	baseURL, _ := source.ConfigString("base_url")
	waitFor, _ := source.ConfigString("render_wait_for")

	return &htmlScraper{
		source:      source,
		deps:        deps,
		pageURL:     pageURL,
		jobSelector: jobSelector,
		fields:      fields,
		baseURL:     baseURL,
		waitFor:     waitFor,
	}, nil
}

func (s *htmlScraper) Name() string {
	return "html:" + common.DomainOf(s.pageURL)
}

func (s *htmlScraper) Scrape(ctx context.Context) ([]models.JobRecord, error) {
	pages := s.pageURLs()

	var records []models.JobRecord
	for i, pageURL := range pages {
		html, finalURL, err := s.fetchPage(ctx, pageURL)
		if err != nil {
			return records, err
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return records, &ConfigError{Reason: fmt.Sprintf("parse page %s: %v", pageURL, err)}
		}

		rows := doc.Find(s.jobSelector)
		if rows.Length() == 0 {
			if i == 0 {
				reportZeroMatches(s.deps.logger(), doc, s.jobSelector, pageURL)
			}
			break
		}

		base := s.baseURL
		if base == "" {
			base = finalURL
		}

		rows.Each(func(_ int, row *goquery.Selection) {
			if record := s.buildRecord(row, base); record != nil {
				records = append(records, *record)
			}
		})
	}
	return records, nil
}

// fetchPage returns the page HTML, delegating to the renderer when the
// source needs JavaScript. The returned final URL accounts for redirects.
func (s *htmlScraper) fetchPage(ctx context.Context, pageURL string) (string, string, error) {
	if !s.source.RequiresJS() {
		body, err := s.deps.Client.Get(ctx, pageURL, map[string]string{"Accept": "text/html"})
		if err != nil {
			return "", "", err
		}
		html := string(body)
		if err := checkProtection(html, pageURL); err != nil {
			return "", "", err
		}
		return html, pageURL, nil
	}

	result, err := s.deps.Renderer.Render(ctx, interfaces.RenderRequest{
		URL:             pageURL,
		WaitForSelector: s.waitFor,
	})
	if err != nil {
		return "", "", &TransientError{Err: err}
	}

	// A partial render still carries HTML; protection detection and
	// extraction both run on whatever the browser captured.
	if result.HTML == "" {
		return "", "", &TransientError{Err: errors.New(renderFailureReason(result))}
	}
	if err := checkProtection(result.HTML, pageURL); err != nil {
		return "", "", err
	}

	finalURL := result.FinalURL
	if finalURL == "" {
		finalURL = pageURL
	}
	return result.HTML, finalURL, nil
}

func renderFailureReason(result *interfaces.RenderResult) string {
	if len(result.Errors) > 0 {
		return fmt.Sprintf("render %s: %s", result.Status, strings.Join(result.Errors, "; "))
	}
	return fmt.Sprintf("render %s with empty page", result.Status)
}

func (s *htmlScraper) buildRecord(row *goquery.Selection, base string) *models.JobRecord {
	title := common.SanitizeText(extractField(row, s.fields["title"]))
	jobURL := resolveURL(base, extractField(row, s.fields["url"]))
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

	if spec := s.fields["description"]; spec != "" {
		record.Description = common.SanitizeHTML(extractFieldHTML(row, spec))
	}
	if spec := s.fields["location"]; spec != "" {
		record.Location = common.SanitizeText(extractField(row, spec))
	}
	if spec := s.fields["posted_date"]; spec != "" {
		record.PostedDate = common.SanitizeText(extractField(row, spec))
	}
	if spec := s.fields["salary"]; spec != "" {
		record.Salary = common.SanitizeText(extractField(row, spec))
	}
	return record
}

// pageURLs expands the optional pagination config into the sequence of
// page URLs to fetch. Without pagination the source is a single page.
func (s *htmlScraper) pageURLs() []string {
	pagination, ok := s.source.ConfigMap("pagination")
	if !ok {
		return []string{s.pageURL}
	}

	param, _ := pagination["param"].(string)
	if param == "" {
		return []string{s.pageURL}
	}
	maxPages := intFromConfig(pagination["max_pages"], defaultMaxPages)
	start := intFromConfig(pagination["page_start"], 1)

	urls := make([]string, 0, maxPages)
	for page := 0; page < maxPages; page++ {
		urls = append(urls, withQueryParam(s.pageURL, param, start+page))
	}
	return urls
}

// extractField reads one field from a row using a selector@attr spec. An
// empty selector half addresses the row element itself.
func extractField(row *goquery.Selection, spec string) string {
	sel, attr := splitFieldSelector(spec)
	target := row
	if sel != "" {
		target = row.Find(sel).First()
	}
	if target.Length() == 0 {
		return ""
	}
	if attr != "" {
		return target.AttrOr(attr, "")
	}
	return target.Text()
}

// extractFieldHTML reads a field keeping its markup, for descriptions that
// go through the HTML sanitiser.
func extractFieldHTML(row *goquery.Selection, spec string) string {
	sel, attr := splitFieldSelector(spec)
	target := row
	if sel != "" {
		target = row.Find(sel).First()
	}
	if target.Length() == 0 {
		return ""
	}
	if attr != "" {
		return target.AttrOr(attr, "")
	}
	fragment, err := target.Html()
	if err != nil {
		return target.Text()
	}
	return fragment
}

// splitFieldSelector splits "a.title@href" into selector and attribute.
// The @ must introduce a bare attribute name; anything else is treated as
// part of the selector.
func splitFieldSelector(spec string) (string, string) {
	idx := strings.LastIndex(spec, "@")
	if idx < 0 {
		return spec, ""
	}
	attr := spec[idx+1:]
	if !attrNameRe.MatchString(attr) {
		return spec, ""
	}
	return spec[:idx], attr
}

func configFields(source *models.Source) map[string]string {
	raw, _ := source.ConfigMap("fields")
	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		if s, ok := value.(string); ok {
			fields[key] = s
		}
	}
	return fields
}

func intFromConfig(v interface{}, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return fallback
}

func withQueryParam(rawURL, param string, value int) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := parsed.Query()
	q.Set(param, fmt.Sprintf("%d", value))
	parsed.RawQuery = q.Encode()
	return parsed.String()
}
