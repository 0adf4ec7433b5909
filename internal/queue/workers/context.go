// -----------------------------------------------------------------------
// Processor Context - collaborators shared by every stage handler
// -----------------------------------------------------------------------

package workers

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/services/scraper"
)

// Pipeline state keys shared across stage handlers. State belongs to exactly
// one item and is only ever mutated between stages.
const (
	stateJobData          = "job_data"
	stateExtraction       = "extraction"
	stateScore            = "score"
	stateAnalysis         = "analysis"
	stateAwaitingCompany  = "awaiting_company"
	stateCompanyWaitCount = "company_wait_count"
	stateBypassPrefilter  = "bypass_prefilter"
	stateWebsiteContent   = "website_content"
	stateCompanyRecord    = "company"
)

// Metadata keys stamped on items at creation time.
const (
	metaMinMatchScore  = "min_match_score"
	metaCompanyWebsite = "company_website"
)

// ProcessorContext bundles the collaborators the stage handlers share. All
// fields are required unless noted; Renderer and Events may be nil.
type ProcessorContext struct {
	Queue       interfaces.QueueService
	Sources     interfaces.SourceService
	Companies   interfaces.CompanyService
	Published   interfaces.PublishedStore
	Settings    interfaces.SettingsService
	AI          interfaces.AIService
	CompanyInfo interfaces.CompanyInfoService
	Renderer    interfaces.RenderService
	Events      interfaces.EventService
	Client      *scraper.Client
	Prober      *scraper.Prober
	Logger      arbor.ILogger
}

// Fallbacks applied when the worker settings document cannot be read. They
// mirror the seeded defaults so a storage hiccup never changes behaviour.
const (
	fallbackBatchSize            = 10
	fallbackPollSeconds          = 5
	fallbackMinMatchScore        = 60
	fallbackCompanyWaitLimit     = 3
	fallbackZeroJobsThreshold    = 3
	fallbackExtractionConfidence = 0.7
)

// itemLogger derives a logger correlated to the item's lineage id, so every
// log line an item's chain produces can be pulled up together.
func (pc *ProcessorContext) itemLogger(item *models.QueueItem) arbor.ILogger {
	if item == nil || item.TrackingID == "" {
		return pc.Logger
	}
	return pc.Logger.WithCorrelationId(item.TrackingID)
}

// workerSettings reads the worker settings document, normalising zero or
// missing knobs to their defaults.
func (pc *ProcessorContext) workerSettings(ctx context.Context) models.WorkerSettings {
	cfg := models.WorkerSettings{}
	if pc.Settings != nil {
		if loaded, err := pc.Settings.WorkerSettings(ctx); err == nil && loaded != nil {
			cfg = *loaded
		} else if err != nil {
			pc.Logger.Warn().
				Err(err).
				Str(common.FieldCategory, common.CategoryWorker).
				Msg("Failed to load worker settings, using defaults")
		}
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = fallbackBatchSize
	}
	if cfg.PollIntervalSeconds <= 0 {
		cfg.PollIntervalSeconds = fallbackPollSeconds
	}
	if cfg.MinMatchScore <= 0 {
		cfg.MinMatchScore = fallbackMinMatchScore
	}
	if cfg.CompanyWaitLimit <= 0 {
		cfg.CompanyWaitLimit = fallbackCompanyWaitLimit
	}
	if cfg.ZeroJobsRecoverThreshold <= 0 {
		cfg.ZeroJobsRecoverThreshold = fallbackZeroJobsThreshold
	}
	if cfg.ExtractionConfidence <= 0 {
		cfg.ExtractionConfidence = fallbackExtractionConfidence
	}
	return cfg
}

// structToMap converts a typed record into the JSON-shaped map form carried
// in pipeline state.
func structToMap(v interface{}) map[string]interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]interface{}{}
	}
	return m
}

// mapToStruct rebuilds a typed record from its pipeline-state map form.
func mapToStruct(m map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
