// -----------------------------------------------------------------------
// Scrape Runner - fans a SCRAPE run out across sources and ingests jobs
// -----------------------------------------------------------------------

package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/services/scraper"
)

// ScrapeRunner executes SCRAPE items: it selects sources, scrapes each in
// turn, screens and deduplicates the results, and spawns one JOB item per
// surviving record. Source health bookkeeping happens here so a bad source
// never aborts the run.
type ScrapeRunner struct {
	pc *ProcessorContext
}

// NewScrapeRunner creates the SCRAPE item handler.
func NewScrapeRunner(pc *ProcessorContext) *ScrapeRunner {
	return &ScrapeRunner{pc: pc}
}

// sourceRunLimits carries the per-run knobs runSource needs.
type sourceRunLimits struct {
	// minScore overrides the score gate for jobs spawned by this run.
	minScore *int
	// zeroThreshold is the zero-jobs streak that queues a recovery item.
	zeroThreshold int
}

// Run handles a SCRAPE item end to end and marks it SUCCESS with a summary
// of how many jobs were queued.
func (r *ScrapeRunner) Run(ctx context.Context, item *models.QueueItem) error {
	cfg := item.ScrapeConfig
	logger := r.pc.itemLogger(item)
	limits := sourceRunLimits{zeroThreshold: r.pc.workerSettings(ctx).ZeroJobsRecoverThreshold}
	if cfg != nil {
		limits.minScore = cfg.MinMatchScore
	}

	sources, err := r.selectSources(ctx, cfg)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return r.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusSuccess,
			"no active sources to scrape", "")
	}

	var target *int
	if cfg != nil {
		target = cfg.TargetMatches
	}

	totalQueued := 0
	scraped := 0
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}

		queued, err := r.runSource(ctx, item, source, limits)
		if err != nil {
			logger.Warn().
				Err(err).
				Str(common.FieldCategory, common.CategoryScrape).
				Str("source_id", source.ID).
				Str("source", source.Name).
				Msg("Source run failed")
		}
		scraped++
		totalQueued += queued
		r.publishProgress(ctx, item, source, scraped, len(sources), queued, totalQueued)

		if target != nil && *target > 0 && totalQueued >= *target {
			logger.Info().
				Str(common.FieldCategory, common.CategoryScrape).
				Str("item_id", item.ID).
				Int("target", *target).
				Int("queued", totalQueued).
				Msg("Scrape target reached, stopping run early")
			break
		}
	}

	message := fmt.Sprintf("queued %d jobs from %d sources", totalQueued, scraped)
	return r.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusSuccess, message, "")
}

// selectSources resolves the run's source list. Explicit IDs win over the
// active list, which the storage layer orders stalest first.
func (r *ScrapeRunner) selectSources(ctx context.Context, cfg *models.ScrapeRunConfig) ([]*models.Source, error) {
	var sources []*models.Source

	if cfg != nil && len(cfg.SourceIDs) > 0 {
		sources = make([]*models.Source, 0, len(cfg.SourceIDs))
		for _, id := range cfg.SourceIDs {
			source, err := r.pc.Sources.Get(ctx, id)
			if err != nil {
				r.pc.Logger.Warn().
					Err(err).
					Str(common.FieldCategory, common.CategoryScrape).
					Str("source_id", id).
					Msg("Requested source not found, skipping")
				continue
			}
			sources = append(sources, source)
		}
	} else {
		listed, err := r.pc.Sources.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active sources: %w", err)
		}
		sources = listed
	}

	if cfg != nil && cfg.MaxSources != nil && *cfg.MaxSources > 0 && len(sources) > *cfg.MaxSources {
		sources = sources[:*cfg.MaxSources]
	}
	return sources, nil
}

// runSource scrapes one source and returns how many JOB items it queued.
// Scrape failures are absorbed into source health bookkeeping; the returned
// error covers only settings and storage problems.
func (r *ScrapeRunner) runSource(ctx context.Context, parent *models.QueueItem, source *models.Source, limits sourceRunLimits) (int, error) {
	logger := r.pc.itemLogger(parent)
	adapter, err := scraper.New(source, scraper.Deps{
		Client:   r.pc.Client,
		Renderer: r.pc.Renderer,
		Logger:   logger,
	})
	if err != nil {
		r.recordFailure(ctx, source, err)
		return 0, nil
	}

	records, err := adapter.Scrape(ctx)
	if err != nil {
		r.handleScrapeError(ctx, source, err)
		return 0, nil
	}

	if len(records) == 0 {
		return 0, r.handleZeroJobs(ctx, parent, source, limits)
	}

	queued, err := r.ingest(ctx, parent, source, records, limits)
	if err != nil {
		return queued, err
	}

	if err := r.pc.Sources.RecordSuccess(ctx, source.ID, len(records)); err != nil {
		logger.Warn().
			Err(err).
			Str(common.FieldCategory, common.CategoryDatabase).
			Str("source_id", source.ID).
			Msg("Failed to record scrape success")
	}

	logger.Info().
		Str(common.FieldCategory, common.CategoryScrape).
		Str(common.FieldAction, common.ActionProcess).
		Str("source_id", source.ID).
		Str("source", source.Name).
		Int("jobs_found", len(records)).
		Int("jobs_queued", queued).
		Msg("Source scraped")
	return queued, nil
}

// handleScrapeError maps a scrape failure onto source health. Protection
// walls disable the source with a tag; rate limits are logged without a
// strike; everything else counts toward the failure threshold.
func (r *ScrapeRunner) handleScrapeError(ctx context.Context, source *models.Source, err error) {
	if tag, walled := protectionTag(err); walled {
		r.disable(ctx, source, err.Error(), tag)
		return
	}
	if retryAfter, ok := scraper.RetryAfterOf(err); ok {
		r.pc.Logger.Warn().
			Str(common.FieldCategory, common.CategoryScrape).
			Str("source_id", source.ID).
			Str("source", source.Name).
			Dur("retry_after", retryAfter).
			Msg("Source rate limited, will retry on a later run")
		return
	}
	r.recordFailure(ctx, source, err)
}

// protectionTag maps a typed protection error to its triage tag.
func protectionTag(err error) (string, bool) {
	var botErr *scraper.BotProtectionError
	var authErr *scraper.AuthError
	var apiErr *scraper.ProtectedAPIError

	switch {
	case errors.As(err, &botErr):
		return models.DisableTagAntiBot, true
	case errors.As(err, &authErr):
		return models.DisableTagAuthRequired, true
	case errors.As(err, &apiErr):
		return models.DisableTagProtectedAPI, true
	}
	return "", false
}

func (r *ScrapeRunner) disable(ctx context.Context, source *models.Source, notes string, tag string) {
	if err := r.pc.Sources.Disable(ctx, source.ID, notes, tag); err != nil {
		r.pc.Logger.Warn().
			Err(err).
			Str(common.FieldCategory, common.CategoryDatabase).
			Str("source_id", source.ID).
			Msg("Failed to disable source")
		return
	}
	r.pc.Logger.Warn().
		Str(common.FieldCategory, common.CategoryScrape).
		Str(common.FieldAction, common.ActionDisable).
		Str("source_id", source.ID).
		Str("source", source.Name).
		Str("tag", tag).
		Msg("Source disabled: " + notes)
}

func (r *ScrapeRunner) recordFailure(ctx context.Context, source *models.Source, cause error) {
	updated, err := r.pc.Sources.RecordFailure(ctx, source.ID, cause.Error())
	if err != nil {
		r.pc.Logger.Warn().
			Err(err).
			Str(common.FieldCategory, common.CategoryDatabase).
			Str("source_id", source.ID).
			Msg("Failed to record scrape failure")
		return
	}

	entry := r.pc.Logger.Warn().
		Str(common.FieldCategory, common.CategoryScrape).
		Str("source_id", source.ID).
		Str("source", source.Name).
		Str("error", cause.Error())
	if updated != nil && updated.Status == models.SourceStatusDisabled {
		entry.Str(common.FieldAction, common.ActionDisable).
			Msg("Source disabled after repeated failures")
		return
	}
	entry.Msg("Source scrape failed")
}

// handleZeroJobs treats an empty result from a JS-dependent source as a
// possible drift signal. Hitting the streak threshold queues one recovery
// item; static sources just record a clean empty run.
func (r *ScrapeRunner) handleZeroJobs(ctx context.Context, parent *models.QueueItem, source *models.Source, limits sourceRunLimits) error {
	logger := r.pc.itemLogger(parent)
	if !source.RequiresJS() {
		if err := r.pc.Sources.RecordSuccess(ctx, source.ID, 0); err != nil {
			logger.Warn().
				Err(err).
				Str(common.FieldCategory, common.CategoryDatabase).
				Str("source_id", source.ID).
				Msg("Failed to record empty scrape")
		}
		logger.Debug().
			Str(common.FieldCategory, common.CategoryScrape).
			Str("source_id", source.ID).
			Str("source", source.Name).
			Msg("Source returned no jobs")
		return nil
	}

	count, err := r.pc.Sources.RecordZeroJobs(ctx, source.ID)
	if err != nil {
		logger.Warn().
			Err(err).
			Str(common.FieldCategory, common.CategoryDatabase).
			Str("source_id", source.ID).
			Msg("Failed to record zero-jobs run")
		return nil
	}

	logger.Info().
		Str(common.FieldCategory, common.CategoryScrape).
		Str("source_id", source.ID).
		Str("source", source.Name).
		Int("streak", count).
		Msg("JS-dependent source returned no jobs")

	if count != limits.zeroThreshold {
		return nil
	}

	child := models.NewQueueItem(models.ItemTypeSourceRecover)
	child.SourceID = source.ID
	child.Source = source.Name
	child.SubmittedBy = "scrape_runner"

	childID, denied, err := r.pc.Queue.SpawnItemSafely(ctx, parent, child)
	if err != nil {
		logger.Warn().
			Err(err).
			Str(common.FieldCategory, common.CategoryQueue).
			Str("source_id", source.ID).
			Msg("Failed to queue source recovery")
		return nil
	}
	if childID != "" {
		logger.Info().
			Str(common.FieldCategory, common.CategoryQueue).
			Str(common.FieldAction, common.ActionRecover).
			Str("source_id", source.ID).
			Str("item_id", childID).
			Int("streak", count).
			Msg("Source recovery queued")
	} else if denied != "" {
		logger.Debug().
			Str(common.FieldCategory, common.CategoryQueue).
			Str("source_id", source.ID).
			Str("reason", denied).
			Msg("Source recovery spawn denied")
	}
	return nil
}

// ingest screens scraped records and spawns a JOB item per survivor. The
// cheap title screen runs here so obvious misses never enter the queue;
// everything subtler waits for the prefilter stage.
func (r *ScrapeRunner) ingest(ctx context.Context, parent *models.QueueItem, source *models.Source, records []models.JobRecord, limits sourceRunLimits) (int, error) {
	settings, err := r.pc.Settings.FilterSettings(ctx)
	if err != nil {
		return 0, fmt.Errorf("load filter settings: %w", err)
	}
	logger := r.pc.itemLogger(parent)

	seen := make(map[string]bool, len(records))
	candidates := make([]models.JobRecord, 0, len(records))
	urls := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.URL == "" {
			logger.Debug().
				Str(common.FieldCategory, common.CategoryScrape).
				Str("source", source.Name).
				Str("title", rec.Title).
				Msg("Skipping record without a url")
			continue
		}
		if !titlePasses(rec.Title, settings) {
			continue
		}
		key := common.NormalizeURL(rec.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		candidates = append(candidates, rec)
		urls = append(urls, rec.URL)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	existing, err := r.pc.Published.BatchCheckExists(ctx, urls)
	if err != nil {
		logger.Warn().
			Err(err).
			Str(common.FieldCategory, common.CategoryDatabase).
			Str("source", source.Name).
			Msg("Published check failed, queueing all candidates")
		existing = map[string]bool{}
	}

	queued := 0
	for _, rec := range candidates {
		if existing[rec.URL] {
			continue
		}

		child := r.buildJobItem(source, rec, limits)
		childID, denied, err := r.pc.Queue.SpawnItemSafely(ctx, parent, child)
		if err != nil {
			if models.IsDuplicateItem(err) {
				continue
			}
			logger.Warn().
				Err(err).
				Str(common.FieldCategory, common.CategoryQueue).
				Str("url", rec.URL).
				Msg("Failed to queue job")
			continue
		}
		if childID == "" {
			if denied != "" {
				logger.Debug().
					Str(common.FieldCategory, common.CategoryQueue).
					Str("url", rec.URL).
					Str("reason", denied).
					Msg("Job spawn denied")
			}
			continue
		}
		queued++
	}
	return queued, nil
}

// buildJobItem seeds a JOB at the scrape stage with the record already in
// state, so the pipeline skips the redundant fetch.
func (r *ScrapeRunner) buildJobItem(source *models.Source, rec models.JobRecord, limits sourceRunLimits) *models.QueueItem {
	child := models.NewQueueItem(models.ItemTypeJob)
	child.URL = rec.URL
	child.CompanyName = rec.Company
	child.Source = source.Name
	child.SourceID = source.ID
	child.SubTask = models.JobStageScrape
	child.SubmittedBy = "scrape_runner"
	child.PipelineState = map[string]interface{}{stateJobData: rec.ToMap()}

	meta := make(map[string]interface{})
	if limits.minScore != nil && *limits.minScore > 0 {
		meta[metaMinMatchScore] = *limits.minScore
	}
	if rec.CompanyWebsite != "" {
		meta[metaCompanyWebsite] = rec.CompanyWebsite
	}
	if len(meta) > 0 {
		child.Metadata = meta
	}
	return child
}

func (r *ScrapeRunner) publishProgress(ctx context.Context, item *models.QueueItem, source *models.Source, done, total, queued, totalQueued int) {
	if r.pc.Events == nil {
		return
	}
	err := r.pc.Events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventScrapeProgress,
		Payload: map[string]interface{}{
			"item_id":       item.ID,
			"source_id":     source.ID,
			"source_name":   source.Name,
			"sources_done":  done,
			"sources_total": total,
			"jobs_queued":   queued,
			"total_queued":  totalQueued,
		},
	})
	if err != nil {
		r.pc.itemLogger(item).Debug().
			Err(err).
			Str(common.FieldCategory, common.CategorySystem).
			Msg("Failed to publish scrape progress")
	}
}

// titlePasses applies the required and excluded title keyword lists as
// case-insensitive substring checks.
func titlePasses(title string, settings *models.FilterSettings) bool {
	t := strings.ToLower(title)
	for _, kw := range settings.ExcludedTitleKeywords {
		if kw != "" && strings.Contains(t, strings.ToLower(kw)) {
			return false
		}
	}
	if len(settings.RequiredTitleKeywords) == 0 {
		return true
	}
	for _, kw := range settings.RequiredTitleKeywords {
		if kw != "" && strings.Contains(t, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
