// -----------------------------------------------------------------------
// Dispatcher - routes queue items to stage handlers
// -----------------------------------------------------------------------

package workers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"strings"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
)

// HandlerFunc processes one queue item at its current stage. A nil return
// with the item still PROCESSING marks it SUCCESS; handlers that requeue,
// filter, or skip own that transition themselves.
type HandlerFunc func(ctx context.Context, item *models.QueueItem) error

// dispatchKey routes on item type plus sub-stage. Single-stage kinds use an
// empty stage.
type dispatchKey struct {
	Type  models.ItemType
	Stage string
}

// Dispatcher owns the routing table and the shared pre-dispatch sequence:
// stale check, PENDING to PROCESSING, stop-list short-circuit, published
// duplicate short-circuit, then the stage handler with panic recovery.
type Dispatcher struct {
	pc       *ProcessorContext
	handlers map[dispatchKey]HandlerFunc
}

// NewDispatcher builds the routing table over the stage workers.
func NewDispatcher(pc *ProcessorContext, job *JobWorker, company *CompanyWorker, source *SourceWorker, runner *ScrapeRunner) *Dispatcher {
	d := &Dispatcher{
		pc:       pc,
		handlers: make(map[dispatchKey]HandlerFunc),
	}

	d.handlers[dispatchKey{models.ItemTypeJob, string(models.JobStageScrape)}] = job.StageScrape
	d.handlers[dispatchKey{models.ItemTypeJob, string(models.JobStagePrefilter)}] = job.StagePrefilter
	d.handlers[dispatchKey{models.ItemTypeJob, string(models.JobStageExtract)}] = job.StageExtract
	d.handlers[dispatchKey{models.ItemTypeJob, string(models.JobStageScore)}] = job.StageScore
	d.handlers[dispatchKey{models.ItemTypeJob, string(models.JobStageAnalyse)}] = job.StageAnalyse
	d.handlers[dispatchKey{models.ItemTypeJob, string(models.JobStageSave)}] = job.StageSave

	d.handlers[dispatchKey{models.ItemTypeCompany, string(models.CompanyStageFetch)}] = company.StageFetch
	d.handlers[dispatchKey{models.ItemTypeCompany, string(models.CompanyStageExtract)}] = company.StageExtract
	d.handlers[dispatchKey{models.ItemTypeCompany, string(models.CompanyStageAnalyse)}] = company.StageAnalyse
	d.handlers[dispatchKey{models.ItemTypeCompany, string(models.CompanyStageSave)}] = company.StageSave

	d.handlers[dispatchKey{models.ItemTypeScrape, ""}] = runner.Run
	d.handlers[dispatchKey{models.ItemTypeSourceDiscovery, ""}] = source.HandleDiscovery
	d.handlers[dispatchKey{models.ItemTypeScrapeSource, ""}] = source.HandleScrapeSource
	d.handlers[dispatchKey{models.ItemTypeSourceRecover, ""}] = source.HandleRecover

	return d
}

// keyFor resolves the routing key for an item. Items created before the
// first stage ran default to the opening stage of their kind.
func keyFor(item *models.QueueItem) dispatchKey {
	switch item.Type {
	case models.ItemTypeJob:
		stage := item.SubTask
		if stage == "" {
			stage = models.JobStageScrape
		}
		return dispatchKey{models.ItemTypeJob, string(stage)}
	case models.ItemTypeCompany:
		stage := item.CompanySubTask
		if stage == "" {
			stage = models.CompanyStageFetch
		}
		return dispatchKey{models.ItemTypeCompany, string(stage)}
	default:
		return dispatchKey{item.Type, ""}
	}
}

// Dispatch runs one item through the pre-dispatch sequence and its stage
// handler. The returned error reports a failed attempt; requeues and
// terminal filter/skip outcomes return nil.
func (d *Dispatcher) Dispatch(ctx context.Context, item *models.QueueItem) error {
	if item == nil || item.ID == "" {
		d.pc.Logger.Error().
			Str(common.FieldCategory, common.CategoryWorker).
			Str(common.FieldAction, common.ActionDispatch).
			Msg("Dropping queue item without an id")
		return fmt.Errorf("queue item has no id")
	}

	// Re-read so a cancel or competing update between poll and dispatch is
	// observed here, at the stage boundary.
	current, err := d.pc.Queue.Get(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("failed to load item %s: %w", item.ID, err)
	}
	if current.Status != models.StatusPending {
		d.pc.itemLogger(current).Debug().
			Str(common.FieldCategory, common.CategoryWorker).
			Str(common.FieldAction, common.ActionDispatch).
			Str("item_id", current.ID).
			Str("status", string(current.Status)).
			Msg("Skipping item no longer pending")
		return nil
	}
	item = current
	logger := d.pc.itemLogger(item)

	if err := d.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusProcessing, "", ""); err != nil {
		return fmt.Errorf("failed to mark item %s processing: %w", item.ID, err)
	}

	if item.Type != models.ItemTypeScrape {
		if reason := d.stopListReason(ctx, item); reason != "" {
			logger.Info().
				Str(common.FieldCategory, common.CategoryWorker).
				Str(common.FieldAction, common.ActionFilter).
				Str("item_id", item.ID).
				Str("reason", reason).
				Msg("Item skipped by stop list")
			return d.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusSkipped, reason, "")
		}
	}

	if item.Type == models.ItemTypeJob && item.URL != "" {
		exists, err := d.pc.Published.JobExists(ctx, item.URL)
		if err != nil {
			logger.Warn().
				Err(err).
				Str(common.FieldCategory, common.CategoryWorker).
				Str("item_id", item.ID).
				Msg("Published duplicate check failed, continuing")
		} else if exists {
			return d.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusSkipped,
				"job already exists in the published matches", "")
		}
	}

	key := keyFor(item)
	handler, ok := d.handlers[key]
	if !ok {
		msg := fmt.Sprintf("no handler for %s item at stage %q", item.Type, key.Stage)
		_ = d.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusFailed, msg, "")
		return fmt.Errorf("%s", msg)
	}

	if err := d.invoke(ctx, handler, item); err != nil {
		if errors.Is(err, models.ErrItemTerminal) {
			logger.Debug().
				Str(common.FieldCategory, common.CategoryWorker).
				Str("item_id", item.ID).
				Msg("Item reached terminal status mid-stage, not requeued")
			return nil
		}
		return d.handleStageError(ctx, item, key, err)
	}

	// Handlers that advanced or finished the item already moved it off
	// PROCESSING; anything still processing completed its final stage.
	after, err := d.pc.Queue.Get(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("failed to reload item %s: %w", item.ID, err)
	}
	if after.Status == models.StatusProcessing {
		return d.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusSuccess, "completed", "")
	}
	return nil
}

// invoke runs the handler, converting a panic into an error that carries
// the stack trace.
func (d *Dispatcher) invoke(ctx context.Context, handler HandlerFunc, item *models.QueueItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, stackTrace())
		}
	}()
	return handler(ctx, item)
}

// handleStageError applies the retry policy: below max_retries the item goes
// back to PENDING with the failure recorded; at the limit it fails for good
// with a troubleshooting hint.
func (d *Dispatcher) handleStageError(ctx context.Context, item *models.QueueItem, key dispatchKey, stageErr error) error {
	logger := d.pc.itemLogger(item)
	if err := d.pc.Queue.IncrementRetry(ctx, item.ID); err != nil {
		logger.Warn().
			Err(err).
			Str(common.FieldCategory, common.CategoryWorker).
			Str("item_id", item.ID).
			Msg("Failed to increment retry count")
	}
	attempt := item.RetryCount + 1

	stageLabel := string(item.Type)
	if key.Stage != "" {
		stageLabel = fmt.Sprintf("%s/%s", item.Type, key.Stage)
	}

	if attempt < item.MaxRetries {
		logger.Warn().
			Err(stageErr).
			Str(common.FieldCategory, common.CategoryWorker).
			Str(common.FieldAction, common.ActionRetry).
			Str("item_id", item.ID).
			Str("stage", stageLabel).
			Int("attempt", attempt).
			Int("max_retries", item.MaxRetries).
			Msg("Stage failed, item requeued")
		message := fmt.Sprintf("%s failed, retry %d of %d", stageLabel, attempt, item.MaxRetries)
		if err := d.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusPending, message, stageErr.Error()); err != nil {
			return err
		}
		return stageErr
	}

	logger.Error().
		Err(stageErr).
		Str(common.FieldCategory, common.CategoryWorker).
		Str(common.FieldAction, common.ActionDispatch).
		Str("item_id", item.ID).
		Str("stage", stageLabel).
		Int("attempts", attempt).
		Msg("Stage failed permanently")
	message := fmt.Sprintf("%s failed after %d attempts: %v. %s", stageLabel, attempt, stageErr, troubleshootingHint(item))
	if err := d.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusFailed, message, stageErr.Error()); err != nil {
		return err
	}
	return stageErr
}

// stopListReason checks the item against the stop-list document. Matching is
// case-insensitive substring: companies against the company name, keywords
// against the URL, domains against the URL host.
func (d *Dispatcher) stopListReason(ctx context.Context, item *models.QueueItem) string {
	if d.pc.Settings == nil {
		return ""
	}
	stopList, err := d.pc.Settings.StopList(ctx)
	if err != nil || stopList == nil {
		return ""
	}

	if item.CompanyName != "" {
		company := strings.ToLower(item.CompanyName)
		for _, excluded := range stopList.ExcludedCompanies {
			if excluded != "" && strings.Contains(company, strings.ToLower(excluded)) {
				return fmt.Sprintf("company %q is on the stop list (%s)", item.CompanyName, excluded)
			}
		}
	}

	if item.URL == "" {
		return ""
	}
	lowered := strings.ToLower(item.URL)
	for _, keyword := range stopList.ExcludedKeywords {
		if keyword != "" && strings.Contains(lowered, strings.ToLower(keyword)) {
			return fmt.Sprintf("url contains stop-list keyword %q", keyword)
		}
	}
	if parsed, err := url.Parse(item.URL); err == nil {
		host := strings.ToLower(parsed.Hostname())
		for _, domain := range stopList.ExcludedDomains {
			if domain != "" && strings.Contains(host, strings.ToLower(domain)) {
				return fmt.Sprintf("host %q is on the stop list (%s)", host, domain)
			}
		}
	}
	return ""
}

// troubleshootingHint gives operators a starting point when an item fails
// for good.
func troubleshootingHint(item *models.QueueItem) string {
	switch item.Type {
	case models.ItemTypeJob:
		switch item.SubTask {
		case models.JobStageScrape:
			return "Check that the posting URL is reachable and not behind bot protection."
		case models.JobStageExtract, models.JobStageAnalyse:
			return "Check AI provider API keys and rate limits, then retry the item."
		case models.JobStageSave:
			return "Check the published store database file is writable."
		}
		return "Inspect error_details and retry the item."
	case models.ItemTypeCompany:
		return "Check the company website is reachable and AI provider API keys are set."
	case models.ItemTypeScrape, models.ItemTypeScrapeSource:
		return "Inspect the source configuration and its recent failure counters."
	case models.ItemTypeSourceDiscovery:
		return "Confirm the careers URL is valid and publicly reachable."
	case models.ItemTypeSourceRecover:
		return "The sample may be bot-protected or the proposed configuration unusable; reconfigure the source manually."
	}
	return "Inspect error_details and retry the item."
}

// stackTrace captures the current goroutine's stack for panic reports.
func stackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
