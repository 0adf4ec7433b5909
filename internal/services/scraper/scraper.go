// -----------------------------------------------------------------------
// Scraper Factory - adapter selection and shared helpers
// -----------------------------------------------------------------------

package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// Scraper produces the uniform job records for one source. Adapters return
// every job the board currently lists; loop prevention downstream decides
// which of them become pipeline work.
type Scraper interface {
	Scrape(ctx context.Context) ([]models.JobRecord, error)
	Name() string
}

// Deps carries the collaborators shared by every adapter. Renderer may be
// nil when browser rendering is disabled; html sources that require it
// fail with a config error.
type Deps struct {
	Client   *Client
	Renderer interfaces.RenderService
	Logger   arbor.ILogger
}

func (d Deps) logger() arbor.ILogger {
	if d.Logger != nil {
		return d.Logger
	}
	return common.GetLogger()
}

// New selects the adapter for the source's type. An unknown type or a
// config that fails adapter validation returns a ConfigError.
func New(source *models.Source, deps Deps) (Scraper, error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if deps.Client == nil {
		return nil, fmt.Errorf("http client is required")
	}

	switch source.SourceType {
	case models.SourceTypeGreenhouse:
		return newGreenhouseScraper(source, deps)
	case models.SourceTypeLever:
		return newLeverScraper(source, deps)
	case models.SourceTypeAshby:
		return newAshbyScraper(source, deps)
	case models.SourceTypeSmartRecruiters:
		return newSmartRecruitersScraper(source, deps)
	case models.SourceTypeRecruitee:
		return newRecruiteeScraper(source, deps)
	case models.SourceTypeBreezy:
		return newBreezyScraper(source, deps)
	case models.SourceTypeWorkable:
		return newWorkableScraper(source, deps)
	case models.SourceTypeWorkday:
		return newWorkdayScraper(source, deps)
	case models.SourceTypeHTML:
		return newHTMLScraper(source, deps)
	case models.SourceTypeAPI:
		return newAPIScraper(source, deps)
	case models.SourceTypeRSS:
		return newRSSScraper(source, deps)
	default:
		return nil, &ConfigError{Reason: fmt.Sprintf("unknown source type %q", source.SourceType)}
	}
}

// genericHostLabels are the service subdomains path-addressed providers
// use (boards.greenhouse.io, jobs.lever.co); they never carry a board slug.
var genericHostLabels = map[string]bool{
	"www": true, "boards": true, "job-boards": true, "jobs": true,
	"careers": true, "apply": true, "api": true,
}

// boardToken resolves the provider slug for an ATS source. The config key
// board_token wins; otherwise the slug is taken from the source URL
// subdomain (acme.recruitee.com) or, for providers that address boards by
// path, the first path segment (jobs.lever.co/acme).
func boardToken(source *models.Source) string {
	if token, ok := source.ConfigString("board_token"); ok && token != "" {
		return strings.TrimSpace(token)
	}
	raw, ok := source.ConfigString("url")
	if !ok || raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	labels := strings.Split(parsed.Hostname(), ".")
	if len(labels) > 2 && !genericHostLabels[labels[0]] {
		return labels[0]
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) > 0 && segments[0] != "" {
		return segments[0]
	}
	return ""
}

// sourceCompany resolves the company name and website stamped on every
// record from this source.
func sourceCompany(source *models.Source) (name, website string) {
	name, _ = source.ConfigString("company_name")
	if name == "" {
		name = source.Name
	}
	website, _ = source.ConfigString("company_website")
	return name, website
}

// resolveURL makes ref absolute against base. Already-absolute refs pass
// through untouched.
func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	parsedRef, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if parsedRef.IsAbs() {
		return ref
	}
	parsedBase, err := url.Parse(base)
	if err != nil || !parsedBase.IsAbs() {
		return ref
	}
	return parsedBase.ResolveReference(parsedRef).String()
}

var acceptJSON = map[string]string{"Accept": "application/json"}

// defaultMaxPages bounds pagination for adapters whose config does not
// set its own cap.
const defaultMaxPages = 10
