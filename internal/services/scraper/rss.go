// -----------------------------------------------------------------------
// RSS/Atom Adapter - feed parsing with thin-row detail enrichment
// -----------------------------------------------------------------------

package scraper

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
)

// minFeedDescriptionLen marks a feed row as thin. Thin rows follow their
// link to the posting page for the full description.
const minFeedDescriptionLen = 120

type rssScraper struct {
	source  *models.Source
	deps    Deps
	feedURL string
	fields  map[string]string
}

func newRSSScraper(source *models.Source, deps Deps) (Scraper, error) {
	feedURL, _ := source.ConfigString("url")
	if feedURL == "" {
		return nil, &ConfigError{Reason: "rss source missing url"}
	}
	return &rssScraper{
		source:  source,
		deps:    deps,
		feedURL: feedURL,
		fields:  configFields(source),
	}, nil
}

func (s *rssScraper) Name() string {
	return "rss:" + common.DomainOf(s.feedURL)
}

func (s *rssScraper) Scrape(ctx context.Context) ([]models.JobRecord, error) {
	body, err := s.deps.Client.Get(ctx, s.feedURL, map[string]string{"Accept": "application/rss+xml, application/atom+xml, application/xml, text/xml"})
	if err != nil {
		return nil, err
	}

	items, err := parseFeed(body)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("parse feed %s: %v", s.feedURL, err)}
	}

	company, website := sourceCompany(s.source)
	var records []models.JobRecord
	for _, item := range items {
		title := common.SanitizeText(s.fieldValue(item, "title", "title"))
		jobURL := resolveURL(s.feedURL, s.fieldValue(item, "url", "link"))
		if title == "" || jobURL == "" {
			continue
		}

		record := models.JobRecord{
			Title:          title,
			Company:        company,
			CompanyWebsite: website,
			Location:       common.SanitizeText(s.fieldValue(item, "location", "location")),
			Description:    common.SanitizeHTML(s.fieldValue(item, "description", "description")),
			URL:            jobURL,
			PostedDate:     common.SanitizeText(s.fieldValue(item, "posted_date", "pubDate")),
		}

		if len(record.Description) < minFeedDescriptionLen {
			if err := s.enrich(ctx, &record); err != nil {
				return records, err
			}
		}

		records = append(records, record)
	}
	return records, nil
}

// enrich follows a thin row's link for the full posting. Transient
// failures abort the scrape; permanent ones leave the row thin.
func (s *rssScraper) enrich(ctx context.Context, record *models.JobRecord) error {
	detail, err := fetchJobDetail(ctx, s.deps.Client, record.URL)
	if err != nil {
		if IsTransient(err) {
			return err
		}
		s.deps.logger().Warn().
			Str(common.FieldCategory, common.CategoryScrape).
			Str(common.FieldAction, common.ActionFetch).
			Str("url", record.URL).
			Err(err).
			Msg("Detail fetch failed")
		return nil
	}
	if detail == nil {
		return nil
	}

	if len(detail.Description) > len(record.Description) {
		record.Description = detail.Description
	}
	if record.Location == "" {
		record.Location = detail.Location
	}
	if record.PostedDate == "" {
		record.PostedDate = detail.PostedDate
	}
	if record.Salary == "" {
		record.Salary = detail.Salary
	}
	return nil
}

// fieldValue resolves a record field through the optional field mapping.
// The mapping names feed elements (title, link, description, pubDate,
// category, author, location).
func (s *rssScraper) fieldValue(item map[string]string, field, fallback string) string {
	element := s.fields[field]
	if element == "" {
		element = fallback
	}
	return item[element]
}

// --- feed parsing ---

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	Encoded     string   `xml:"encoded"`
	PubDate     string   `xml:"pubDate"`
	Categories  []string `xml:"category"`
	Author      string   `xml:"author"`
	Location    string   `xml:"location"`
}

type atomDocument struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title      string         `xml:"title"`
	Links      []atomLink     `xml:"link"`
	Summary    string         `xml:"summary"`
	Content    string         `xml:"content"`
	Published  string         `xml:"published"`
	Updated    string         `xml:"updated"`
	Categories []atomCategory `xml:"category"`
	Author     atomAuthor     `xml:"author"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

// parseFeed reads RSS 2.0 or Atom into a uniform element map per item.
func parseFeed(data []byte) ([]map[string]string, error) {
	root, err := rootElement(data)
	if err != nil {
		return nil, err
	}

	switch root {
	case "rss":
		var doc rssDocument
		if err := unmarshalXML(data, &doc); err != nil {
			return nil, err
		}
		items := make([]map[string]string, 0, len(doc.Channel.Items))
		for _, item := range doc.Channel.Items {
			description := item.Encoded
			if description == "" {
				description = item.Description
			}
			items = append(items, map[string]string{
				"title":       item.Title,
				"link":        strings.TrimSpace(item.Link),
				"description": description,
				"pubDate":     item.PubDate,
				"category":    strings.Join(item.Categories, ", "),
				"author":      item.Author,
				"location":    item.Location,
			})
		}
		return items, nil

	case "feed":
		var doc atomDocument
		if err := unmarshalXML(data, &doc); err != nil {
			return nil, err
		}
		items := make([]map[string]string, 0, len(doc.Entries))
		for _, entry := range doc.Entries {
			description := entry.Content
			if description == "" {
				description = entry.Summary
			}
			posted := entry.Published
			if posted == "" {
				posted = entry.Updated
			}
			var categories []string
			for _, c := range entry.Categories {
				if c.Term != "" {
					categories = append(categories, c.Term)
				}
			}
			items = append(items, map[string]string{
				"title":       entry.Title,
				"link":        atomEntryLink(entry.Links),
				"description": description,
				"pubDate":     posted,
				"category":    strings.Join(categories, ", "),
				"author":      entry.Author.Name,
			})
		}
		return items, nil

	default:
		return nil, fmt.Errorf("unrecognised feed root element %q", root)
	}
}

func atomEntryLink(links []atomLink) string {
	for _, link := range links {
		if link.Rel == "" || link.Rel == "alternate" {
			return link.Href
		}
	}
	if len(links) > 0 {
		return links[0].Href
	}
	return ""
}

// rootElement peeks at the first start element without a full parse.
func rootElement(data []byte) (string, error) {
	decoder := newFeedDecoder(data)
	for {
		token, err := decoder.Token()
		if err != nil {
			return "", err
		}
		if start, ok := token.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

func unmarshalXML(data []byte, v interface{}) error {
	return newFeedDecoder(data).Decode(v)
}

// newFeedDecoder builds a decoder that handles the non-UTF-8 charsets
// legacy feeds still declare.
func newFeedDecoder(data []byte) *xml.Decoder {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, fmt.Errorf("unsupported feed charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return decoder
}
