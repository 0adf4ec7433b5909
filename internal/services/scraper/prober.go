// -----------------------------------------------------------------------
// ATS Prober - discover which provider hosts a company's job board
// -----------------------------------------------------------------------

package scraper

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
)

// ProbeResult is one confirmed board. Config is the adapter configuration
// a materialised source would carry.
type ProbeResult struct {
	Provider  string                 `json:"provider"`
	Slug      string                 `json:"slug"`
	JobCount  int                    `json:"job_count"`
	SampleURL string                 `json:"sample_url,omitempty"`
	Config    map[string]interface{} `json:"config"`
}

// providerProbe describes the cheap existence check for one provider.
type providerProbe struct {
	provider string
	endpoint func(slug string) string
	parse    func(slug string, body []byte) (count int, sampleURL string, ok bool)
}

// providerProbes covers the slug-addressable providers. Workday boards are
// addressed by tenant, instance, and site, which a slug probe cannot
// guess, so workday is excluded here.
var providerProbes = []providerProbe{
	{
		provider: models.SourceTypeGreenhouse,
		endpoint: func(slug string) string {
			return fmt.Sprintf("%s/%s/jobs", greenhouseAPIBase, slug)
		},
		parse: func(slug string, body []byte) (int, string, bool) {
			jobs := gjson.GetBytes(body, "jobs")
			if !jobs.Exists() {
				return 0, "", false
			}
			return len(jobs.Array()), jobs.Get("0.absolute_url").String(), true
		},
	},
	{
		provider: models.SourceTypeLever,
		endpoint: func(slug string) string {
			return fmt.Sprintf("%s/%s?mode=json", leverAPIBase, slug)
		},
		parse: func(slug string, body []byte) (int, string, bool) {
			postings := gjson.ParseBytes(body)
			if !postings.IsArray() {
				return 0, "", false
			}
			return len(postings.Array()), postings.Get("0.hostedUrl").String(), true
		},
	},
	{
		provider: models.SourceTypeAshby,
		endpoint: func(slug string) string {
			return fmt.Sprintf("%s/%s", ashbyAPIBase, slug)
		},
		parse: func(slug string, body []byte) (int, string, bool) {
			jobs := gjson.GetBytes(body, "jobs")
			if !jobs.Exists() {
				return 0, "", false
			}
			return len(jobs.Array()), jobs.Get("0.jobUrl").String(), true
		},
	},
	{
		provider: models.SourceTypeSmartRecruiters,
		endpoint: func(slug string) string {
			return fmt.Sprintf("%s/%s/postings?limit=10", smartRecruitersAPIBase, slug)
		},
		parse: func(slug string, body []byte) (int, string, bool) {
			parsed := gjson.ParseBytes(body)
			rows := parsed.Get("content")
			if !rows.Exists() {
				return 0, "", false
			}
			count := int(parsed.Get("totalFound").Int())
			if count == 0 {
				count = len(rows.Array())
			}
			sample := ""
			if id := rows.Get("0.id").String(); id != "" {
				sample = fmt.Sprintf("%s/%s/%s", smartRecruitersBoardBase, slug, id)
			}
			return count, sample, true
		},
	},
	{
		provider: models.SourceTypeRecruitee,
		endpoint: func(slug string) string {
			return fmt.Sprintf(recruiteeAPIPattern, slug)
		},
		parse: func(slug string, body []byte) (int, string, bool) {
			offers := gjson.GetBytes(body, "offers")
			if !offers.Exists() {
				return 0, "", false
			}
			return len(offers.Array()), offers.Get("0.careers_url").String(), true
		},
	},
	{
		provider: models.SourceTypeBreezy,
		endpoint: func(slug string) string {
			return fmt.Sprintf(breezyAPIPattern, slug)
		},
		parse: func(slug string, body []byte) (int, string, bool) {
			positions := gjson.ParseBytes(body)
			if !positions.IsArray() {
				return 0, "", false
			}
			return len(positions.Array()), positions.Get("0.url").String(), true
		},
	},
	{
		provider: models.SourceTypeWorkable,
		endpoint: func(slug string) string {
			return fmt.Sprintf("%s/%s", workableAPIBase, slug)
		},
		parse: func(slug string, body []byte) (int, string, bool) {
			jobs := gjson.GetBytes(body, "jobs")
			if !jobs.Exists() {
				return 0, "", false
			}
			return len(jobs.Array()), jobs.Get("0.url").String(), true
		},
	},
}

// Prober checks every known ATS provider for a board matching a company.
type Prober struct {
	client *Client
	logger arbor.ILogger
}

func NewProber(client *Client, logger arbor.ILogger) *Prober {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Prober{client: client, logger: logger}
}

// Probe returns the best board for the company, or nil when no provider
// answered. A hit whose sample job URL shares the input URL's domain wins
// over earlier hits; shared slugs on unrelated providers otherwise shadow
// the real board.
func (p *Prober) Probe(ctx context.Context, companyName, websiteURL string) (*ProbeResult, error) {
	hits, _, err := p.ProbeDetailed(ctx, companyName, websiteURL)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	if websiteURL != "" {
		for i := range hits {
			if hits[i].SampleURL != "" && domainsRelated(hits[i].SampleURL, websiteURL) {
				return &hits[i], nil
			}
		}
	}
	return &hits[0], nil
}

// ProbeDetailed probes every provider with every candidate slug and
// returns all hits plus a collision flag for operator review. Candidate
// order encodes priority, so hits[0] is the default pick.
func (p *Prober) ProbeDetailed(ctx context.Context, companyName, websiteURL string) ([]ProbeResult, bool, error) {
	candidates := slugCandidates(companyName, websiteURL)
	if len(candidates) == 0 {
		return nil, false, fmt.Errorf("no slug candidates for company %q", companyName)
	}

	var hits []ProbeResult
	hitProviders := make(map[string]bool)
	for _, slug := range candidates {
		for _, probe := range providerProbes {
			if hitProviders[probe.provider] {
				continue
			}
			result, err := p.tryProvider(ctx, probe, slug)
			if err != nil {
				return hits, len(hits) > 1, err
			}
			if result == nil {
				continue
			}
			hitProviders[probe.provider] = true
			hits = append(hits, *result)

			p.logger.Info().
				Str(common.FieldCategory, common.CategoryScrape).
				Str(common.FieldAction, common.ActionProbe).
				Str("provider", result.Provider).
				Str("slug", result.Slug).
				Int("job_count", result.JobCount).
				Msg("Provider hit")
		}
	}
	return hits, len(hits) > 1, nil
}

// tryProvider performs one existence check. Any scrape error counts as a
// miss; only context cancellation aborts the probe run.
func (p *Prober) tryProvider(ctx context.Context, probe providerProbe, slug string) (*ProbeResult, error) {
	body, err := p.client.Get(ctx, probe.endpoint(slug), acceptJSON)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, nil
	}

	count, sampleURL, ok := probe.parse(slug, body)
	if !ok {
		return nil, nil
	}
	return &ProbeResult{
		Provider:  probe.provider,
		Slug:      slug,
		JobCount:  count,
		SampleURL: sampleURL,
		Config:    map[string]interface{}{"board_token": slug},
	}, nil
}

// --- slug generation ---

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// legalSuffixes are trailing name words dropped before slug generation.
var legalSuffixes = map[string]bool{
	"inc": true, "llc": true, "ltd": true, "limited": true,
	"gmbh": true, "plc": true, "pty": true, "corp": true,
	"corporation": true, "co": true,
}

// slugCandidates generates the board slugs worth probing, most specific
// first: alphanumeric join, hyphenated, first word, then the website's
// domain label. Camel-cased names split into words first, so "DataRobot"
// yields datarobot, data-robot, and data.
func slugCandidates(companyName, websiteURL string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(slug string) {
		slug = strings.Trim(slug, "-")
		if len(slug) < 2 || seen[slug] {
			return
		}
		seen[slug] = true
		out = append(out, slug)
	}

	words := splitNameWords(companyName)
	if len(words) > 0 {
		add(strings.Join(words, ""))
		add(strings.Join(words, "-"))
		add(words[0])
	}

	if label := domainSlug(common.DomainOf(websiteURL)); label != "" {
		add(label)
	}
	return out
}

// splitNameWords lowercases a company name and splits it on spacing,
// punctuation, and camel-case boundaries, dropping legal suffixes.
func splitNameWords(name string) []string {
	var spaced strings.Builder
	runes := []rune(strings.TrimSpace(name))
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(runes[i-1]) {
			spaced.WriteRune(' ')
		}
		spaced.WriteRune(r)
	}

	parts := nonAlnumRe.Split(strings.ToLower(spaced.String()), -1)
	words := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			words = append(words, part)
		}
	}
	for len(words) > 1 && legalSuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return words
}

// domainSlug extracts the organisation label from a domain: acme from
// acme.com or careers.acme.com.
func domainSlug(domain string) string {
	if domain == "" {
		return ""
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return domain
	}
	label := labels[len(labels)-2]
	// Two-level public suffixes like co.uk push the label one left.
	if len(labels) >= 3 && len(labels[len(labels)-1]) == 2 && legalSuffixes[label] {
		label = labels[len(labels)-3]
	}
	return label
}

// domainsRelated reports whether two URLs share a registrable domain,
// tolerating subdomain differences.
func domainsRelated(a, b string) bool {
	da, db := common.DomainOf(a), common.DomainOf(b)
	if da == "" || db == "" {
		return false
	}
	return da == db || strings.HasSuffix(da, "."+db) || strings.HasSuffix(db, "."+da)
}
