// -----------------------------------------------------------------------
// Company Info Fetcher - colly crawl of a company site condensed to markdown
// -----------------------------------------------------------------------

package companyinfo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/gocolly/colly/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

const (
	maxPages        = 5
	maxMarkdownSize = 60 * 1024
	fetchTimeout    = 30 * time.Second
)

// Secondary paths worth following from the landing page, in priority order.
// The extraction adapter wants about/culture text, not product pages.
var interestingPaths = []string{
	"about", "about-us", "aboutus", "company",
	"culture", "values", "mission",
	"careers", "jobs", "team",
}

// Fetcher crawls a company website with colly and converts the pages it
// keeps to markdown.
type Fetcher struct {
	client    *http.Client
	userAgent string
	delay     time.Duration
	logger    arbor.ILogger
}

// NewFetcher creates a company website fetcher.
func NewFetcher(client *http.Client, userAgent string, delay time.Duration, logger arbor.ILogger) interfaces.CompanyInfoService {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	if delay <= 0 {
		delay = time.Second
	}
	return &Fetcher{
		client:    client,
		userAgent: userAgent,
		delay:     delay,
		logger:    logger,
	}
}

// contextAwareTransport propagates the caller's context into colly's
// requests so an abandoned fetch cancels in flight.
type contextAwareTransport struct {
	base http.RoundTripper
	ctx  context.Context
}

func (t *contextAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	select {
	case <-t.ctx.Done():
		return nil, t.ctx.Err()
	default:
	}
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

// FetchWebsite crawls the landing page plus a handful of about/culture pages
// on the same host and returns the combined markdown.
func (f *Fetcher) FetchWebsite(ctx context.Context, websiteURL string) (*models.WebsiteContent, error) {
	websiteURL = common.NormalizeURL(websiteURL)
	root, err := url.Parse(websiteURL)
	if err != nil || root.Host == "" {
		return nil, fmt.Errorf("invalid website url %q", websiteURL)
	}

	c := colly.NewCollector(
		colly.Async(true),
		colly.MaxDepth(2),
		colly.UserAgent(f.userAgent),
		colly.AllowedDomains(allowedHosts(root)...),
	)
	c.SetRequestTimeout(fetchTimeout)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 2,
		Delay:       f.delay,
	}); err != nil {
		f.logger.Warn().
			Str(common.FieldCategory, common.CategoryScrape).
			Err(err).
			Msg("Failed to set company fetch rate limit")
	}

	baseTransport := http.DefaultTransport
	if f.client.Transport != nil {
		baseTransport = f.client.Transport
	}
	c.WithTransport(&contextAwareTransport{base: baseTransport, ctx: ctx})

	converter := md.NewConverter(websiteURL, true, nil)

	var (
		mu       sync.Mutex
		pages    = map[string]string{} // path -> markdown
		firstErr error
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})

	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		f.logger.Debug().
			Str(common.FieldCategory, common.CategoryScrape).
			Err(err).
			Str("url", r.Request.URL.String()).
			Msg("Company page fetch failed")
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		mu.Lock()
		defer mu.Unlock()
		if len(pages) >= maxPages {
			return
		}

		// Strip chrome elements before conversion.
		e.DOM.Find("script, style, nav, header, footer, noscript, iframe, svg").Remove()
		body, err := e.DOM.Find("body").Html()
		if err != nil || strings.TrimSpace(body) == "" {
			return
		}
		markdown, err := converter.ConvertString(body)
		if err != nil {
			f.logger.Debug().
				Str(common.FieldCategory, common.CategoryScrape).
				Err(err).
				Str("url", e.Request.URL.String()).
				Msg("Markdown conversion failed")
			return
		}
		pages[e.Request.URL.Path] = strings.TrimSpace(markdown)
	})

	// Follow only links that look like company background pages.
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" || !isInterestingLink(link) {
			return
		}
		mu.Lock()
		room := len(pages) < maxPages
		mu.Unlock()
		if room {
			_ = e.Request.Visit(link)
		}
	})

	if err := c.Visit(websiteURL); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", websiteURL, err)
	}
	c.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()
	if len(pages) == 0 {
		if firstErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", websiteURL, firstErr)
		}
		return nil, fmt.Errorf("no readable pages at %s", websiteURL)
	}

	content := &models.WebsiteContent{
		URL:       websiteURL,
		Markdown:  combinePages(pages),
		PageCount: len(pages),
		FetchedAt: time.Now().UTC(),
	}
	if len(content.Markdown) > maxMarkdownSize {
		content.Markdown = content.Markdown[:maxMarkdownSize]
		content.Truncated = true
	}

	f.logger.Info().
		Str(common.FieldCategory, common.CategoryScrape).
		Str(common.FieldAction, common.ActionFetch).
		Str("url", websiteURL).
		Int("pages", content.PageCount).
		Int("bytes", len(content.Markdown)).
		Msg("Company website fetched")
	return content, nil
}

// allowedHosts keeps the crawl on the company's own site, with and without
// the www prefix.
func allowedHosts(root *url.URL) []string {
	hosts := map[string]bool{
		root.Host:       true,
		root.Hostname(): true,
	}
	for _, h := range []string{root.Host, root.Hostname()} {
		if strings.HasPrefix(h, "www.") {
			hosts[strings.TrimPrefix(h, "www.")] = true
		} else {
			hosts["www."+h] = true
		}
	}
	out := make([]string, 0, len(hosts))
	for h := range hosts {
		out = append(out, h)
	}
	return out
}

// isInterestingLink keeps crawl scope to company background pages.
func isInterestingLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	path := strings.Trim(strings.ToLower(u.Path), "/")
	for _, p := range interestingPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// combinePages joins page markdown with path headers, landing page first.
func combinePages(pages map[string]string) string {
	paths := make([]string, 0, len(pages))
	for p := range pages {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		// Shortest path first puts the landing page on top.
		if len(paths[i]) != len(paths[j]) {
			return len(paths[i]) < len(paths[j])
		}
		return paths[i] < paths[j]
	})

	var b strings.Builder
	for _, p := range paths {
		if b.Len() > 0 {
			b.WriteString("\n\n---\n\n")
		}
		label := p
		if label == "" || label == "/" {
			label = "/ (home)"
		}
		fmt.Fprintf(&b, "## %s\n\n%s", label, pages[p])
	}
	return b.String()
}
