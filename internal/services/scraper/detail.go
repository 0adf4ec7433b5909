// -----------------------------------------------------------------------
// Detail Enrichment - follow thin rows to a detail page or API
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
)

// jobDetail is what a detail fetch can add to a thin listing row. Empty
// fields mean the page did not state them.
type jobDetail struct {
	Description string
	Location    string
	PostedDate  string
	Salary      string
}

// fetchJobDetail follows a job link and extracts the full posting from the
// HTML detail page. A schema.org JobPosting block wins when present;
// otherwise the main content region is used.
func fetchJobDetail(ctx context.Context, client *Client, pageURL string) (*jobDetail, error) {
	body, err := client.Get(ctx, pageURL, map[string]string{"Accept": "text/html"})
	if err != nil {
		return nil, err
	}
	if err := checkProtection(string(body), pageURL); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("parse detail page %s: %v", pageURL, err)}
	}

	if detail := jsonLDJobPosting(doc); detail != nil {
		return detail, nil
	}

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
			return &jobDetail{Description: text}, nil
		}
	}
	return &jobDetail{}, nil
}

// jsonLDJobPosting reads the first schema.org JobPosting block on the
// page. Returns nil when no usable block exists.
func jsonLDJobPosting(doc *goquery.Document) *jobDetail {
	var detail *jobDetail
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
			description := common.SanitizeHTML(block.Get("description").String())
			if description == "" {
				continue
			}
			detail = &jobDetail{
				Description: description,
				Location:    jsonLDLocation(block),
				PostedDate:  block.Get("datePosted").String(),
				Salary:      jsonLDSalary(block),
			}
			return false
		}
		return true
	})
	return detail
}

func jsonLDLocation(block gjson.Result) string {
	address := block.Get("jobLocation.address")
	if !address.Exists() {
		address = block.Get("jobLocation.0.address")
	}
	parts := []string{}
	for _, key := range []string{"addressLocality", "addressRegion", "addressCountry"} {
		if v := strings.TrimSpace(address.Get(key).String()); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 && block.Get("jobLocationType").String() == "TELECOMMUTE" {
		return "Remote"
	}
	return strings.Join(parts, ", ")
}

func jsonLDSalary(block gjson.Result) string {
	salary := block.Get("baseSalary")
	if !salary.Exists() {
		return ""
	}
	currency := salary.Get("currency").String()
	value := salary.Get("value")
	min := value.Get("minValue").String()
	max := value.Get("maxValue").String()
	unit := value.Get("unitText").String()

	var out string
	switch {
	case min != "" && max != "":
		out = fmt.Sprintf("%s-%s", min, max)
	case value.Get("value").String() != "":
		out = value.Get("value").String()
	default:
		return ""
	}
	if currency != "" {
		out = currency + " " + out
	}
	if unit != "" {
		out = out + " per " + strings.ToLower(unit)
	}
	return out
}

// joinLocation builds a display location from optional parts.
func joinLocation(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
