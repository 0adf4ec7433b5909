// -----------------------------------------------------------------------
// Job Worker - the six-stage JOB pipeline state machine
// -----------------------------------------------------------------------

package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/services/filter"
	"github.com/ternarybob/venari/internal/services/scraper"
)

// maxUnwrapDepth bounds the nested scraped_data.job_data unwrapping. Legacy
// submitters double-wrapped payloads; the engine never writes them nested.
const maxUnwrapDepth = 5

// JobWorker advances JOB items through scrape, prefilter, extract, score,
// analyse, and save. Each stage either requeues the item at the next stage
// or ends it; no stage blocks on another item.
type JobWorker struct {
	pc      *ProcessorContext
	company *CompanyWorker
}

// NewJobWorker creates the JOB stage handlers. The company worker supplies
// the enrichment-in-flight check used by the analyse stage.
func NewJobWorker(pc *ProcessorContext, company *CompanyWorker) *JobWorker {
	return &JobWorker{pc: pc, company: company}
}

// StageScrape materialises the job record. Items submitted with a scraped
// payload reuse it; bare URLs get a targeted single-posting fetch.
func (w *JobWorker) StageScrape(ctx context.Context, item *models.QueueItem) error {
	record, ok := w.recordFromItem(item)
	if !ok {
		if item.URL == "" {
			return fmt.Errorf("job item has neither scraped data nor a url")
		}
		fetched, err := scraper.FetchJob(ctx, w.pc.Client, item.URL)
		if err != nil {
			return fmt.Errorf("targeted scrape of %s: %w", item.URL, err)
		}
		record = fetched
	}

	if record.URL == "" {
		record.URL = item.URL
	}
	if record.Company == "" {
		record.Company = item.CompanyName
	}
	if record.CompanyWebsite == "" {
		if website, ok := item.MetaString(metaCompanyWebsite); ok {
			record.CompanyWebsite = website
		}
	}
	if record.Title == "" {
		return fmt.Errorf("scraped record for %s has no title", item.URL)
	}

	state := item.CloneState()
	if state == nil {
		state = make(map[string]interface{})
	}
	state[stateJobData] = record.ToMap()

	w.pc.itemLogger(item).Debug().
		Str(common.FieldCategory, common.CategoryPipeline).
		Str(common.FieldAction, common.ActionStage).
		Str("item_id", item.ID).
		Str("title", record.Title).
		Msg("Job record captured")

	_, err := w.pc.Queue.SpawnNextPipelineStep(ctx, item, models.JobStagePrefilter, state)
	return err
}

// StagePrefilter runs the fast schema checks. A failing record is FILTERED
// unless the item carries the bypass flag.
func (w *JobWorker) StagePrefilter(ctx context.Context, item *models.QueueItem) error {
	record, err := w.recordFromState(item)
	if err != nil {
		return err
	}

	settings, err := w.pc.Settings.FilterSettings(ctx)
	if err != nil {
		return fmt.Errorf("load filter settings: %w", err)
	}

	result := filter.PreFilter(record, *settings)
	bypass, _ := item.StateBool(stateBypassPrefilter)
	if !result.Passed && !bypass {
		w.pc.itemLogger(item).Info().
			Str(common.FieldCategory, common.CategoryPipeline).
			Str(common.FieldAction, common.ActionFilter).
			Str("item_id", item.ID).
			Str("title", record.Title).
			Str("reason", result.Reason()).
			Msg("Job rejected by pre-filter")
		return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusFiltered, result.Reason(), "")
	}

	_, err = w.pc.Queue.SpawnNextPipelineStep(ctx, item, models.JobStageExtract, item.CloneState())
	return err
}

// StageExtract calls the extraction adapter and issues one repair pass when
// confidence lands below the configured threshold.
func (w *JobWorker) StageExtract(ctx context.Context, item *models.QueueItem) error {
	record, err := w.recordFromState(item)
	if err != nil {
		return err
	}

	extraction, err := w.pc.AI.ExtractJob(ctx, record)
	if err != nil {
		return fmt.Errorf("extraction for %s: %w", record.URL, err)
	}

	threshold := w.pc.workerSettings(ctx).ExtractionConfidence
	if extraction.Confidence < threshold {
		repaired, repairErr := w.pc.AI.RepairExtraction(ctx, record, extraction)
		if repairErr != nil {
			w.pc.itemLogger(item).Warn().
				Err(repairErr).
				Str(common.FieldCategory, common.CategoryAI).
				Str("item_id", item.ID).
				Msg("Extraction repair pass failed, keeping first pass")
		} else {
			extraction = repaired
		}
	}

	state := item.CloneState()
	state[stateExtraction] = structToMap(extraction)

	_, err = w.pc.Queue.SpawnNextPipelineStep(ctx, item, models.JobStageScore, state)
	return err
}

// StageScore applies the strike rules and the deterministic score gate.
func (w *JobWorker) StageScore(ctx context.Context, item *models.QueueItem) error {
	record, err := w.recordFromState(item)
	if err != nil {
		return err
	}
	extraction, err := w.extractionFromState(item)
	if err != nil {
		return err
	}

	strikeSettings, err := w.pc.Settings.StrikeSettings(ctx)
	if err != nil {
		return fmt.Errorf("load strike settings: %w", err)
	}
	if result := filter.Strikes(record, extraction, *strikeSettings); !result.Passed {
		w.pc.itemLogger(item).Info().
			Str(common.FieldCategory, common.CategoryPipeline).
			Str(common.FieldAction, common.ActionFilter).
			Str("item_id", item.ID).
			Str("reason", result.Reason()).
			Int("strikes", result.TotalStrikes).
			Msg("Job rejected by strike rules")
		return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusFiltered, result.Reason(), "")
	}

	profile, err := w.pc.Settings.Profile(ctx)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	ranks, err := w.pc.Settings.TechRanks(ctx)
	if err != nil {
		return fmt.Errorf("load tech ranks: %w", err)
	}

	company := w.lookupCompany(ctx, record.Company)
	score := filter.Score(record, extraction, company, filter.ScoreInputs{
		Profile: *profile,
		Ranks:   *ranks,
	})

	minScore := w.pc.workerSettings(ctx).MinMatchScore
	if override, ok := metaInt(item, metaMinMatchScore); ok && override > 0 {
		minScore = override
	}
	if score < minScore {
		reason := fmt.Sprintf("score %d below threshold %d", score, minScore)
		w.pc.itemLogger(item).Info().
			Str(common.FieldCategory, common.CategoryPipeline).
			Str(common.FieldAction, common.ActionFilter).
			Str("item_id", item.ID).
			Str("title", record.Title).
			Msg("Job rejected by score gate: " + reason)
		return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusFiltered, reason, "")
	}

	state := item.CloneState()
	state[stateScore] = score

	_, err = w.pc.Queue.SpawnNextPipelineStep(ctx, item, models.JobStageAnalyse, state)
	return err
}

// StageAnalyse runs the qualitative analysis. When the company lacks good
// data it requests enrichment and waits a bounded number of cycles, then
// proceeds with whatever record exists.
func (w *JobWorker) StageAnalyse(ctx context.Context, item *models.QueueItem) error {
	record, err := w.recordFromState(item)
	if err != nil {
		return err
	}
	extraction, err := w.extractionFromState(item)
	if err != nil {
		return err
	}
	score, ok := item.StateInt(stateScore)
	if !ok {
		return fmt.Errorf("no score in pipeline state")
	}

	companyName := strings.TrimSpace(record.Company)
	if companyName != "" && w.enrichmentApplicable(ctx, item) {
		good, err := w.pc.Companies.HasGoodData(ctx, companyName)
		if err != nil {
			w.pc.itemLogger(item).Warn().
				Err(err).
				Str(common.FieldCategory, common.CategoryPipeline).
				Str("item_id", item.ID).
				Msg("Company good-data check failed, proceeding")
		} else if !good {
			waits, _ := item.StateInt(stateCompanyWaitCount)
			limit := w.pc.workerSettings(ctx).CompanyWaitLimit
			if waits < limit {
				return w.waitForCompany(ctx, item, record, waits)
			}
			w.pc.itemLogger(item).Info().
				Str(common.FieldCategory, common.CategoryPipeline).
				Str("item_id", item.ID).
				Str("company", companyName).
				Int("waits", waits).
				Msg("Company wait limit reached, analysing with partial data")
		}
	}

	company := w.lookupCompany(ctx, companyName)
	analysis, err := w.pc.AI.AnalyzeMatch(ctx, record, &extraction, company, score)
	if err != nil {
		return fmt.Errorf("analysis for %s: %w", record.URL, err)
	}

	state := item.CloneState()
	state[stateAnalysis] = structToMap(analysis)
	state[stateAwaitingCompany] = false

	_, err = w.pc.Queue.SpawnNextPipelineStep(ctx, item, models.JobStageSave, state)
	return err
}

// StageSave publishes the match and closes the item.
func (w *JobWorker) StageSave(ctx context.Context, item *models.QueueItem) error {
	record, err := w.recordFromState(item)
	if err != nil {
		return err
	}
	score, _ := item.StateInt(stateScore)

	var analysis models.MatchAnalysis
	if analysisMap, ok := item.StateMap(stateAnalysis); ok {
		if err := mapToStruct(analysisMap, &analysis); err != nil {
			return fmt.Errorf("decode analysis from state: %w", err)
		}
	}

	listing := &models.JobListing{
		URL:         record.URL,
		Title:       record.Title,
		CompanyName: record.Company,
		Location:    record.Location,
		Description: record.Description,
		Source:      item.Source,
		PostedDate:  record.PostedDate,
		Salary:      record.Salary,
	}
	if company := w.lookupCompany(ctx, record.Company); company != nil {
		listing.CompanyID = company.ID
	}

	match := &models.JobMatch{
		URL:                          record.URL,
		Score:                        score,
		MatchedSkills:                analysis.MatchedSkills,
		MissingSkills:                analysis.MissingSkills,
		ExperienceMatch:              analysis.ExperienceMatch,
		KeyStrengths:                 analysis.KeyStrengths,
		PotentialConcerns:            analysis.PotentialConcerns,
		CustomizationRecommendations: analysis.CustomizationRecommendations,
		TrackingID:                   item.TrackingID,
		QueueItemID:                  item.ID,
		Status:                       models.MatchStatusNew,
	}
	if extractionMap, ok := item.StateMap(stateExtraction); ok {
		match.IntakeData = extractionMap
	}

	matchID, err := w.pc.Published.SaveMatch(ctx, listing, match)
	if err != nil {
		return fmt.Errorf("save match for %s: %w", record.URL, err)
	}

	w.pc.itemLogger(item).Info().
		Str(common.FieldCategory, common.CategoryPipeline).
		Str(common.FieldAction, common.ActionPublish).
		Str("item_id", item.ID).
		Str("match_id", matchID).
		Str("title", record.Title).
		Int("score", score).
		Msg("Job match published")

	message := fmt.Sprintf("match %s saved with score %d", matchID, score)
	return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusSuccess, message, "")
}

// waitForCompany spawns the enrichment item when none is in flight and
// requeues the JOB at the same stage with the wait counter advanced.
func (w *JobWorker) waitForCompany(ctx context.Context, item *models.QueueItem, record models.JobRecord, waits int) error {
	companyName := strings.TrimSpace(record.Company)
	logger := w.pc.itemLogger(item)

	if !w.company.HasCompanyTask(companyName) {
		child := models.NewQueueItem(models.ItemTypeCompany)
		child.CompanyName = companyName
		child.CompanySubTask = models.CompanyStageFetch
		child.SubmittedBy = "job_pipeline"
		if record.CompanyWebsite != "" {
			child.Metadata = map[string]interface{}{metaCompanyWebsite: record.CompanyWebsite}
		}

		childID, denied, err := w.pc.Queue.SpawnItemSafely(ctx, item, child)
		if err != nil {
			logger.Warn().
				Err(err).
				Str(common.FieldCategory, common.CategoryPipeline).
				Str("item_id", item.ID).
				Str("company", companyName).
				Msg("Failed to spawn company enrichment")
		} else if childID != "" {
			w.company.trackRequested(companyName)
			logger.Info().
				Str(common.FieldCategory, common.CategoryQueue).
				Str(common.FieldAction, common.ActionSpawn).
				Str("item_id", item.ID).
				Str("child_id", childID).
				Str("company", companyName).
				Msg("Company enrichment requested")
		} else if denied != "" {
			logger.Debug().
				Str(common.FieldCategory, common.CategoryPipeline).
				Str("item_id", item.ID).
				Str("reason", denied).
				Msg("Company enrichment spawn denied")
		}
	}

	state := item.CloneState()
	if state == nil {
		state = make(map[string]interface{})
	}
	state[stateAwaitingCompany] = true
	state[stateCompanyWaitCount] = waits + 1

	logger.Debug().
		Str(common.FieldCategory, common.CategoryPipeline).
		Str(common.FieldAction, common.ActionRequeue).
		Str("item_id", item.ID).
		Str("company", companyName).
		Int("wait", waits+1).
		Msg("Job waiting for company data")
	return w.pc.Queue.RequeueWithState(ctx, item.ID, state)
}

// enrichmentApplicable reports whether company enrichment makes sense for
// the item's source. Aggregator boards host many companies, so enrichment
// is skipped for them.
func (w *JobWorker) enrichmentApplicable(ctx context.Context, item *models.QueueItem) bool {
	if item.SourceID == "" {
		return true
	}
	source, err := w.pc.Sources.Get(ctx, item.SourceID)
	if err != nil {
		return true
	}
	return source.AggregatorDomain == ""
}

// lookupCompany returns the stored company record or nil.
func (w *JobWorker) lookupCompany(ctx context.Context, name string) *models.Company {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	company, err := w.pc.Companies.GetByName(ctx, name)
	if err != nil {
		if !errors.Is(err, models.ErrCompanyNotFound) {
			w.pc.Logger.Warn().
				Err(err).
				Str(common.FieldCategory, common.CategoryDatabase).
				Str("company", name).
				Msg("Company lookup failed")
		}
		return nil
	}
	return company
}

// recordFromItem pulls a job record off the item itself: the pipeline state
// first, then the scraped_data payload with nested wrappers unwrapped.
func (w *JobWorker) recordFromItem(item *models.QueueItem) (models.JobRecord, bool) {
	if data, ok := item.StateMap(stateJobData); ok {
		if unwrapped, found := unwrapJobData(data); found {
			return models.JobRecordFromMap(unwrapped), true
		}
	}
	if item.ScrapedData != nil {
		if unwrapped, found := unwrapJobData(item.ScrapedData); found {
			return models.JobRecordFromMap(unwrapped), true
		}
	}
	return models.JobRecord{}, false
}

// recordFromState reads the job record written by the scrape stage.
func (w *JobWorker) recordFromState(item *models.QueueItem) (models.JobRecord, error) {
	data, ok := item.StateMap(stateJobData)
	if !ok {
		return models.JobRecord{}, fmt.Errorf("no scraped job data in pipeline state")
	}
	record := models.JobRecordFromMap(data)
	if record.Title == "" {
		return models.JobRecord{}, fmt.Errorf("pipeline state job data has no title")
	}
	return record, nil
}

// extractionFromState reads the extraction written by the extract stage.
func (w *JobWorker) extractionFromState(item *models.QueueItem) (models.JobExtraction, error) {
	data, ok := item.StateMap(stateExtraction)
	if !ok {
		return models.JobExtraction{}, fmt.Errorf("no extraction in pipeline state")
	}
	var extraction models.JobExtraction
	if err := mapToStruct(data, &extraction); err != nil {
		return models.JobExtraction{}, fmt.Errorf("decode extraction from state: %w", err)
	}
	return extraction, nil
}

// unwrapJobData descends through nested job_data wrappers until it finds a
// map carrying a title.
func unwrapJobData(data map[string]interface{}) (map[string]interface{}, bool) {
	current := data
	for depth := 0; current != nil && depth < maxUnwrapDepth; depth++ {
		if title, ok := current["title"].(string); ok && title != "" {
			return current, true
		}
		nested, ok := current["job_data"].(map[string]interface{})
		if !ok {
			return nil, false
		}
		current = nested
	}
	return nil, false
}

// metaInt reads a numeric metadata value, accepting JSON float64.
func metaInt(item *models.QueueItem, key string) (int, bool) {
	if item.Metadata == nil {
		return 0, false
	}
	switch v := item.Metadata[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
