// -----------------------------------------------------------------------
// Source Worker - discovery, targeted scrapes, and config recovery
// -----------------------------------------------------------------------

package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/services/scraper"
	"github.com/ternarybob/venari/internal/services/sources"
)

const (
	// discoverySampleLimit caps the sanitised page text sent to the url
	// classifier.
	discoverySampleLimit = 8 << 10
	// recoverSampleLimit caps the raw page or payload sent to the config
	// proposer, which needs markup structure intact.
	recoverSampleLimit = 16 << 10

	renderSampleTimeout = 45 * time.Second
)

var (
	htmlAccept = map[string]string{"Accept": "text/html,application/xhtml+xml"}
	jsonAccept = map[string]string{"Accept": "application/json"}
)

// SourceWorker handles the three source-lifecycle item types: discovery of
// new sources from a company name or URL, operator-requested single-source
// scrapes, and automatic config recovery for drifting sources.
type SourceWorker struct {
	pc     *ProcessorContext
	runner *ScrapeRunner
}

// NewSourceWorker creates the source item handlers. The runner executes
// targeted scrapes with the same health bookkeeping as full runs.
func NewSourceWorker(pc *ProcessorContext, runner *ScrapeRunner) *SourceWorker {
	return &SourceWorker{pc: pc, runner: runner}
}

// HandleDiscovery turns a company name or careers URL into a source row.
// ATS board probes run first since a hit yields a ready config without an
// LLM call; misses fall back to classification and a proposed config.
func (w *SourceWorker) HandleDiscovery(ctx context.Context, item *models.QueueItem) error {
	companyName := strings.TrimSpace(item.CompanyName)
	pageURL := strings.TrimSpace(item.URL)

	if pageURL != "" {
		if existing, err := w.pc.Sources.GetByURL(ctx, pageURL); err == nil && existing != nil {
			return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusSuccess,
				fmt.Sprintf("source %s already covers %s", existing.ID, pageURL), "")
		}
	}

	if w.pc.Prober != nil {
		result, err := w.pc.Prober.Probe(ctx, companyName, pageURL)
		if err != nil {
			w.pc.itemLogger(item).Warn().
				Err(err).
				Str(common.FieldCategory, common.CategoryScrape).
				Str(common.FieldAction, common.ActionProbe).
				Str("item_id", item.ID).
				Str("company", companyName).
				Msg("ATS probe failed, classifying url instead")
		} else if result != nil {
			return w.createProbedSource(ctx, item, companyName, result)
		}
	}

	if pageURL == "" {
		return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusFailed,
			fmt.Sprintf("no ats board found for %q and no url to inspect", companyName), "")
	}

	body, err := w.pc.Client.Get(ctx, pageURL, htmlAccept)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	raw := truncateSample(string(body), recoverSampleLimit)
	text := truncateSample(common.SanitizeHTML(string(body)), discoverySampleLimit)

	classification, err := w.pc.AI.ClassifySourceURL(ctx, pageURL, text)
	if err != nil {
		return fmt.Errorf("classify %s: %w", pageURL, err)
	}

	w.pc.itemLogger(item).Info().
		Str(common.FieldCategory, common.CategoryScrape).
		Str("item_id", item.ID).
		Str("url", pageURL).
		Str("verdict", classification.Category).
		Float64("confidence", classification.Confidence).
		Msg("Discovery url classified")

	switch classification.Category {
	case models.URLCategorySingleJob:
		return w.queueSingleJob(ctx, item, classification, pageURL)
	case models.URLCategoryCompany, models.URLCategoryAggregator:
		return w.materializeSource(ctx, item, classification, pageURL, raw)
	case models.URLCategoryATSVendor:
		return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusFailed,
			fmt.Sprintf("%s is an ats vendor page, not a careers board", pageURL), "")
	default:
		reason := classification.Reason
		if reason == "" {
			reason = "not a careers page"
		}
		return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusFailed,
			fmt.Sprintf("%s rejected: %s", pageURL, reason), "")
	}
}

// HandleScrapeSource runs one source on demand.
func (w *SourceWorker) HandleScrapeSource(ctx context.Context, item *models.QueueItem) error {
	source, err := w.pc.Sources.Get(ctx, item.SourceID)
	if err != nil {
		if errors.Is(err, models.ErrSourceNotFound) {
			return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusFailed,
				fmt.Sprintf("source %s not found", item.SourceID), "")
		}
		return err
	}

	limits := sourceRunLimits{zeroThreshold: w.pc.workerSettings(ctx).ZeroJobsRecoverThreshold}
	if item.ScrapeConfig != nil {
		limits.minScore = item.ScrapeConfig.MinMatchScore
	}

	queued, err := w.runner.runSource(ctx, item, source, limits)
	if err != nil {
		return err
	}

	return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusSuccess,
		fmt.Sprintf("queued %d jobs from %s", queued, source.Name), "")
}

// HandleRecover samples the source's page or payload, asks the LLM for a
// replacement config, and applies it only after a probe scrape finds jobs.
// A failed recovery leaves the source disabled for operator triage.
func (w *SourceWorker) HandleRecover(ctx context.Context, item *models.QueueItem) error {
	source, err := w.pc.Sources.Get(ctx, item.SourceID)
	if err != nil {
		if errors.Is(err, models.ErrSourceNotFound) {
			return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusFailed,
				fmt.Sprintf("source %s not found", item.SourceID), "")
		}
		return err
	}

	sampleURL, _ := source.ConfigString("url")
	if sampleURL == "" {
		return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusFailed,
			fmt.Sprintf("source %s has no url to sample", source.ID), "")
	}

	sample, err := w.fetchSample(ctx, source, sampleURL)
	if err != nil {
		if _, walled := protectionTag(err); walled {
			w.disableForProtection(ctx, source, err)
			return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusFailed,
				fmt.Sprintf("recovery aborted: %v", err), "")
		}
		return fmt.Errorf("sample %s: %w", sampleURL, err)
	}

	if protErr := scraper.CheckProtection(sample, sampleURL); protErr != nil {
		w.disableForProtection(ctx, source, protErr)
		return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusFailed,
			fmt.Sprintf("recovery aborted: %v", protErr), "")
	}

	proposal, records, failReason, err := w.proposeAndProbe(ctx, source, truncateSample(sample, recoverSampleLimit))
	if err != nil {
		return err
	}
	if failReason != "" {
		notes := "automatic recovery failed: " + failReason
		if derr := w.pc.Sources.Disable(ctx, source.ID, notes); derr != nil {
			w.pc.itemLogger(item).Warn().
				Err(derr).
				Str(common.FieldCategory, common.CategoryDatabase).
				Str("source_id", source.ID).
				Msg("Failed to disable source after recovery failure")
		}
		return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusFailed, notes, "")
	}

	source.SourceType = proposal.SourceType
	source.Config = proposal.Config
	if err := w.pc.Sources.Update(ctx, source); err != nil {
		return fmt.Errorf("apply recovered config to %s: %w", source.ID, err)
	}
	if err := w.pc.Sources.Enable(ctx, source.ID); err != nil {
		return fmt.Errorf("re-enable %s: %w", source.ID, err)
	}

	w.pc.itemLogger(item).Info().
		Str(common.FieldCategory, common.CategoryScrape).
		Str(common.FieldAction, common.ActionRecover).
		Str("item_id", item.ID).
		Str("source_id", source.ID).
		Str("source", source.Name).
		Str("type", proposal.SourceType).
		Int("probe_jobs", len(records)).
		Msg("Source recovered with new config")

	return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusSuccess,
		fmt.Sprintf("recovered %s with %s config, probe found %d jobs",
			source.Name, proposal.SourceType, len(records)), "")
}

// createProbedSource persists a source from an ATS probe hit, whose config
// is ready to scrape as-is.
func (w *SourceWorker) createProbedSource(ctx context.Context, item *models.QueueItem, companyName string, result *scraper.ProbeResult) error {
	name := companyName
	if name == "" {
		name = result.Slug
	}
	source := &models.Source{
		Name:       name,
		SourceType: result.Provider,
		Config:     result.Config,
		Status:     models.SourceStatusActive,
	}
	if company := w.lookupCompany(ctx, companyName); company != nil {
		source.CompanyID = company.ID
	}

	id, err := w.pc.Sources.Create(ctx, source)
	if err != nil {
		return fmt.Errorf("create %s source: %w", result.Provider, err)
	}

	w.pc.itemLogger(item).Info().
		Str(common.FieldCategory, common.CategoryScrape).
		Str(common.FieldAction, common.ActionProbe).
		Str("item_id", item.ID).
		Str("source_id", id).
		Str("provider", result.Provider).
		Str("slug", result.Slug).
		Int("jobs", result.JobCount).
		Msg("ATS board discovered")

	return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusSuccess,
		fmt.Sprintf("created %s source %s (%d jobs)", result.Provider, id, result.JobCount), "")
}

// queueSingleJob routes a single-posting URL into the JOB pipeline.
func (w *SourceWorker) queueSingleJob(ctx context.Context, item *models.QueueItem, classification *models.SourceClassification, pageURL string) error {
	child := models.NewQueueItem(models.ItemTypeJob)
	child.URL = pageURL
	child.CompanyName = classification.CompanyName
	if child.CompanyName == "" {
		child.CompanyName = item.CompanyName
	}
	child.SubTask = models.JobStageScrape
	child.SubmittedBy = "source_discovery"

	childID, denied, err := w.pc.Queue.SpawnItemSafely(ctx, item, child)
	if err != nil {
		if models.IsDuplicateItem(err) {
			return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusSuccess,
				fmt.Sprintf("job for %s already queued", pageURL), "")
		}
		return fmt.Errorf("queue job for %s: %w", pageURL, err)
	}
	if childID == "" {
		return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusSkipped,
			fmt.Sprintf("job for %s not queued: %s", pageURL, denied), "")
	}

	w.pc.itemLogger(item).Info().
		Str(common.FieldCategory, common.CategoryQueue).
		Str(common.FieldAction, common.ActionSpawn).
		Str("item_id", item.ID).
		Str("child_id", childID).
		Str("url", pageURL).
		Msg("Single posting queued as job")

	return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusSuccess,
		fmt.Sprintf("queued job %s for single posting", childID), "")
}

// materializeSource creates a source for a classified careers page. The
// page has no known adapter, so a config is proposed and probed before any
// row is written; an unusable proposal fails the item without a row.
func (w *SourceWorker) materializeSource(ctx context.Context, item *models.QueueItem, classification *models.SourceClassification, pageURL, sample string) error {
	name := classification.CompanyName
	if name == "" {
		name = item.CompanyName
	}
	if name == "" {
		name = common.DomainOf(pageURL)
	}

	draft := &models.Source{
		Name:       name,
		SourceType: models.SourceTypeHTML,
		Config:     map[string]interface{}{"url": pageURL},
		Status:     models.SourceStatusActive,
	}
	if classification.Category == models.URLCategoryAggregator {
		draft.AggregatorDomain = common.DomainOf(pageURL)
	} else if company := w.lookupCompany(ctx, name); company != nil {
		draft.CompanyID = company.ID
	}

	proposal, records, failReason, err := w.proposeAndProbe(ctx, draft, sample)
	if err != nil {
		return err
	}
	if failReason != "" {
		return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusFailed,
			fmt.Sprintf("could not derive a working config for %s: %s", pageURL, failReason), "")
	}

	draft.SourceType = proposal.SourceType
	draft.Config = proposal.Config
	id, err := w.pc.Sources.Create(ctx, draft)
	if err != nil {
		return fmt.Errorf("create source for %s: %w", pageURL, err)
	}

	w.pc.itemLogger(item).Info().
		Str(common.FieldCategory, common.CategoryScrape).
		Str(common.FieldAction, common.ActionSpawn).
		Str("item_id", item.ID).
		Str("source_id", id).
		Str("type", proposal.SourceType).
		Str("category", classification.Category).
		Int("probe_jobs", len(records)).
		Msg("Discovered source created")

	return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusSuccess,
		fmt.Sprintf("created %s source %s (probe found %d jobs)",
			proposal.SourceType, id, len(records)), "")
}

// proposeAndProbe asks the LLM for a scraper config and verifies it with a
// real scrape before anything is persisted. A non-empty reason means the
// proposal was unusable; err is reserved for failures worth a retry.
func (w *SourceWorker) proposeAndProbe(ctx context.Context, draft *models.Source, sample string) (*models.SourceProposal, []models.JobRecord, string, error) {
	proposal, err := w.pc.AI.ProposeSourceConfig(ctx, draft, sample)
	if err != nil {
		return nil, nil, "", fmt.Errorf("propose config for %s: %w", draft.Name, err)
	}
	if proposal.SourceType == "" {
		proposal.SourceType = draft.SourceType
	}
	if proposal.Config == nil {
		proposal.Config = map[string]interface{}{}
	}
	if _, ok := proposal.Config["url"]; !ok {
		if u, found := draft.ConfigString("url"); found && u != "" {
			proposal.Config["url"] = u
		}
	}

	if err := sources.ValidateConfig(proposal.SourceType, proposal.Config); err != nil {
		return proposal, nil, fmt.Sprintf("proposed config invalid: %v", err), nil
	}

	trial := &models.Source{
		ID:         draft.ID,
		Name:       draft.Name,
		SourceType: proposal.SourceType,
		Config:     proposal.Config,
		Status:     models.SourceStatusActive,
	}
	adapter, err := scraper.New(trial, scraper.Deps{
		Client:   w.pc.Client,
		Renderer: w.pc.Renderer,
		Logger:   w.pc.Logger,
	})
	if err != nil {
		return proposal, nil, fmt.Sprintf("proposed config rejected: %v", err), nil
	}

	records, err := adapter.Scrape(ctx)
	if err != nil {
		return proposal, nil, fmt.Sprintf("probe scrape failed: %v", err), nil
	}
	if len(records) == 0 {
		return proposal, nil, "probe scrape found no jobs", nil
	}
	return proposal, records, "", nil
}

// fetchSample pulls a representative page or payload for the source. JS
// sources render when a renderer is available, falling back to the static
// fetch whose emptiness likely triggered the recovery.
func (w *SourceWorker) fetchSample(ctx context.Context, source *models.Source, sampleURL string) (string, error) {
	if source.RequiresJS() && w.pc.Renderer != nil {
		res, err := w.pc.Renderer.Render(ctx, interfaces.RenderRequest{
			URL:     sampleURL,
			Timeout: renderSampleTimeout,
		})
		if err == nil && res != nil && res.HTML != "" {
			return res.HTML, nil
		}
		if err != nil {
			w.pc.Logger.Warn().
				Err(err).
				Str(common.FieldCategory, common.CategoryScrape).
				Str("source_id", source.ID).
				Msg("Render failed, sampling static page")
		}
	}

	headers := htmlAccept
	if source.SourceType == models.SourceTypeAPI {
		headers = jsonAccept
	}
	body, err := w.pc.Client.Get(ctx, sampleURL, headers)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (w *SourceWorker) disableForProtection(ctx context.Context, source *models.Source, protErr error) {
	tag, _ := protectionTag(protErr)
	if err := w.pc.Sources.Disable(ctx, source.ID, protErr.Error(), tag); err != nil {
		w.pc.Logger.Warn().
			Err(err).
			Str(common.FieldCategory, common.CategoryDatabase).
			Str("source_id", source.ID).
			Msg("Failed to disable source")
		return
	}
	w.pc.Logger.Warn().
		Str(common.FieldCategory, common.CategoryScrape).
		Str(common.FieldAction, common.ActionDisable).
		Str("source_id", source.ID).
		Str("source", source.Name).
		Str("tag", tag).
		Msg("Source disabled: " + protErr.Error())
}

// lookupCompany returns the stored company record or nil.
func (w *SourceWorker) lookupCompany(ctx context.Context, name string) *models.Company {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	company, err := w.pc.Companies.GetByName(ctx, name)
	if err != nil {
		return nil
	}
	return company
}

func truncateSample(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
