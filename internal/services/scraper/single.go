// -----------------------------------------------------------------------
// Single Job Fetch - targeted scrape of one posting URL
// -----------------------------------------------------------------------

package scraper

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
)

// FetchJob scrapes a single posting URL without a source configuration. A
// schema.org JobPosting block is preferred; otherwise the record is built
// from the page title and main content region. Used by the JOB pipeline when
// an item arrives with a URL but no scraped payload.
func FetchJob(ctx context.Context, client *Client, pageURL string) (models.JobRecord, error) {
	rec := models.JobRecord{URL: pageURL}
	if client == nil {
		return rec, fmt.Errorf("http client is required")
	}

	body, err := client.Get(ctx, pageURL, map[string]string{"Accept": "text/html"})
	if err != nil {
		return rec, err
	}
	if err := checkProtection(string(body), pageURL); err != nil {
		return rec, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return rec, &ConfigError{Reason: fmt.Sprintf("parse posting page %s: %v", pageURL, err)}
	}

	if posting := jsonLDFullPosting(doc); posting != nil {
		posting.URL = pageURL
		return *posting, nil
	}

	rec.Title = pageTitle(doc)
	if detail := jsonLDJobPosting(doc); detail != nil {
		rec.Description = detail.Description
		rec.Location = detail.Location
		rec.PostedDate = detail.PostedDate
		rec.Salary = detail.Salary
	} else {
		rec.Description = mainContent(doc)
	}

	if rec.Title == "" && rec.Description == "" {
		return rec, &ConfigError{Reason: fmt.Sprintf("no posting content found at %s", pageURL)}
	}
	return rec, nil
}

// jsonLDFullPosting reads a complete record from a schema.org JobPosting
// block, including title and hiring organisation. Returns nil when the page
// has no block with both a title and a description.
func jsonLDFullPosting(doc *goquery.Document) *models.JobRecord {
	var rec *models.JobRecord
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		parsed := gjson.Parse(s.Text())
		candidates := []gjson.Result{parsed}
		if parsed.IsArray() {
			candidates = parsed.Array()
		} else if graph := parsed.Get("@graph"); graph.IsArray() {
			candidates = graph.Array()
		}

		for _, block := range candidates {
			if !strings.EqualFold(block.Get("@type").String(), "JobPosting") {
				continue
			}
			title := strings.TrimSpace(block.Get("title").String())
			description := common.SanitizeHTML(block.Get("description").String())
			if title == "" || description == "" {
				continue
			}
			rec = &models.JobRecord{
				Title:       title,
				Company:     strings.TrimSpace(block.Get("hiringOrganization.name").String()),
				Location:    jsonLDLocation(block),
				Description: description,
				PostedDate:  block.Get("datePosted").String(),
				Salary:      jsonLDSalary(block),
			}
			if site := block.Get("hiringOrganization.sameAs").String(); site != "" {
				rec.CompanyWebsite = site
			}
			return false
		}
		return true
	})
	return rec
}

// pageTitle prefers the first h1 over the document title, stripping common
// " - Company" suffixes from the latter.
func pageTitle(doc *goquery.Document) string {
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return common.SanitizeText(h1)
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	for _, sep := range []string{" | ", " - ", " — "} {
		if idx := strings.Index(title, sep); idx > 0 {
			title = title[:idx]
			break
		}
	}
	return common.SanitizeText(title)
}

// mainContent extracts sanitised text from the page's main content region.
func mainContent(doc *goquery.Document) string {
	for _, sel := range []string{"main", "article", "#content", ".content", "body"} {
		region := doc.Find(sel).First()
		if region.Length() == 0 {
			continue
		}
		fragment, err := region.Html()
		if err != nil {
			continue
		}
		if text := common.SanitizeHTML(fragment); text != "" {
			return text
		}
	}
	return ""
}
