// -----------------------------------------------------------------------
// Company Worker - the four-stage COMPANY enrichment state machine
// -----------------------------------------------------------------------

package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
)

// companyTaskTTL bounds how long a registry entry suppresses duplicate
// enrichment spawns. COMPANY items have no URL, so the queue's URL-based
// loop prevention cannot deduplicate them; this registry does.
const companyTaskTTL = 30 * time.Minute

// CompanyWorker advances COMPANY items through fetch, extract, analyse, and
// save, and tracks which companies have enrichment in flight so concurrent
// JOB items do not spawn duplicates.
type CompanyWorker struct {
	pc *ProcessorContext

	mu        sync.Mutex
	requested map[string]time.Time
	completed map[string]time.Time
}

// NewCompanyWorker creates the COMPANY stage handlers.
func NewCompanyWorker(pc *ProcessorContext) *CompanyWorker {
	return &CompanyWorker{
		pc:        pc,
		requested: make(map[string]time.Time),
		completed: make(map[string]time.Time),
	}
}

// HasCompanyTask reports whether enrichment for the company was requested or
// finished within the registry window.
func (w *CompanyWorker) HasCompanyTask(name string) bool {
	key := companyKey(name)
	if key == "" {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if at, ok := w.requested[key]; ok {
		if now.Sub(at) < companyTaskTTL {
			return true
		}
		delete(w.requested, key)
	}
	if at, ok := w.completed[key]; ok {
		if now.Sub(at) < companyTaskTTL {
			return true
		}
		delete(w.completed, key)
	}
	return false
}

func (w *CompanyWorker) trackRequested(name string) {
	key := companyKey(name)
	if key == "" {
		return
	}
	w.mu.Lock()
	w.requested[key] = time.Now()
	w.mu.Unlock()
}

func (w *CompanyWorker) trackDone(name string) {
	key := companyKey(name)
	if key == "" {
		return
	}
	w.mu.Lock()
	delete(w.requested, key)
	w.completed[key] = time.Now()
	w.mu.Unlock()
}

func companyKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// StageFetch resolves the company website and fetches its content. A company
// with no known website cannot be enriched and fails immediately.
func (w *CompanyWorker) StageFetch(ctx context.Context, item *models.QueueItem) error {
	name := strings.TrimSpace(item.CompanyName)
	if name == "" {
		w.trackDone(item.CompanyName)
		return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusFailed,
			"company item has no company name", "")
	}

	website, _ := item.MetaString(metaCompanyWebsite)
	if website == "" {
		if existing := w.existingCompany(ctx, name); existing != nil {
			website = existing.Website
		}
	}
	if website == "" {
		w.trackDone(name)
		w.pc.itemLogger(item).Warn().
			Str(common.FieldCategory, common.CategoryPipeline).
			Str(common.FieldAction, common.ActionFetch).
			Str("item_id", item.ID).
			Str("company", name).
			Msg("No website known for company, enrichment abandoned")
		return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusFailed,
			fmt.Sprintf("no website known for company %q", name), "")
	}

	content, err := w.pc.CompanyInfo.FetchWebsite(ctx, website)
	if err != nil {
		return fmt.Errorf("fetch website %s: %w", website, err)
	}

	w.pc.itemLogger(item).Debug().
		Str(common.FieldCategory, common.CategoryPipeline).
		Str(common.FieldAction, common.ActionFetch).
		Str("item_id", item.ID).
		Str("company", name).
		Int("pages", content.PageCount).
		Bool("truncated", content.Truncated).
		Msg("Company website fetched")

	state := item.CloneState()
	if state == nil {
		state = make(map[string]interface{})
	}
	state[stateWebsiteContent] = structToMap(content)

	return w.pc.Queue.RequeueCompanyStep(ctx, item.ID, models.CompanyStageExtract, state)
}

// StageExtract runs company extraction over the fetched content and merges
// the result onto any record already stored.
func (w *CompanyWorker) StageExtract(ctx context.Context, item *models.QueueItem) error {
	name := strings.TrimSpace(item.CompanyName)

	content, err := w.contentFromState(item)
	if err != nil {
		return err
	}

	extracted, err := w.pc.AI.ExtractCompany(ctx, name, content.Markdown)
	if err != nil {
		return fmt.Errorf("extract company %q: %w", name, err)
	}
	if extracted.Name == "" {
		extracted.Name = name
	}
	if extracted.Website == "" {
		extracted.Website = content.URL
	}

	if existing := w.existingCompany(ctx, name); existing != nil {
		mergeCompany(extracted, existing)
	}

	state := item.CloneState()
	state[stateCompanyRecord] = structToMap(extracted)

	return w.pc.Queue.RequeueCompanyStep(ctx, item.ID, models.CompanyStageAnalyse, state)
}

// StageAnalyse classifies the extracted record: tier, priority, size, and
// the local-office flag.
func (w *CompanyWorker) StageAnalyse(ctx context.Context, item *models.QueueItem) error {
	company, err := w.companyFromState(item)
	if err != nil {
		return err
	}

	classified, err := w.pc.AI.ClassifyCompany(ctx, company)
	if err != nil {
		return fmt.Errorf("classify company %q: %w", company.Name, err)
	}

	state := item.CloneState()
	state[stateCompanyRecord] = structToMap(classified)

	return w.pc.Queue.RequeueCompanyStep(ctx, item.ID, models.CompanyStageSave, state)
}

// StageSave persists the enriched record and releases waiting JOB items on
// their next cycle.
func (w *CompanyWorker) StageSave(ctx context.Context, item *models.QueueItem) error {
	company, err := w.companyFromState(item)
	if err != nil {
		return err
	}

	id, err := w.pc.Companies.Save(ctx, company)
	if err != nil {
		return fmt.Errorf("save company %q: %w", company.Name, err)
	}

	w.trackDone(company.Name)

	w.pc.itemLogger(item).Info().
		Str(common.FieldCategory, common.CategoryPipeline).
		Str(common.FieldAction, common.ActionProcess).
		Str("item_id", item.ID).
		Str("company_id", id).
		Str("company", company.Name).
		Msg("Company profile saved")

	return w.pc.Queue.UpdateStatus(ctx, item.ID, models.StatusSuccess,
		fmt.Sprintf("company %q enriched", company.Name), "")
}

// existingCompany returns the stored record or nil.
func (w *CompanyWorker) existingCompany(ctx context.Context, name string) *models.Company {
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

// contentFromState reads the website content written by the fetch stage.
func (w *CompanyWorker) contentFromState(item *models.QueueItem) (*models.WebsiteContent, error) {
	data, ok := item.StateMap(stateWebsiteContent)
	if !ok {
		return nil, fmt.Errorf("no website content in pipeline state")
	}
	var content models.WebsiteContent
	if err := mapToStruct(data, &content); err != nil {
		return nil, fmt.Errorf("decode website content from state: %w", err)
	}
	if strings.TrimSpace(content.Markdown) == "" {
		return nil, fmt.Errorf("website content in state is empty")
	}
	return &content, nil
}

// companyFromState reads the record written by the extract stage.
func (w *CompanyWorker) companyFromState(item *models.QueueItem) (*models.Company, error) {
	data, ok := item.StateMap(stateCompanyRecord)
	if !ok {
		return nil, fmt.Errorf("no company record in pipeline state")
	}
	var company models.Company
	if err := mapToStruct(data, &company); err != nil {
		return nil, fmt.Errorf("decode company record from state: %w", err)
	}
	if company.Name == "" {
		company.Name = strings.TrimSpace(item.CompanyName)
	}
	return &company, nil
}

// mergeCompany fills gaps in the fresh extraction from the stored record so
// a thin re-crawl never erases fields a previous run captured.
func mergeCompany(fresh, stored *models.Company) {
	fresh.ID = stored.ID
	if fresh.Website == "" {
		fresh.Website = stored.Website
	}
	if fresh.About == "" {
		fresh.About = stored.About
	}
	if fresh.Culture == "" {
		fresh.Culture = stored.Culture
	}
	if fresh.Mission == "" {
		fresh.Mission = stored.Mission
	}
	if len(fresh.TechStack) == 0 {
		fresh.TechStack = stored.TechStack
	}
	if fresh.Tier == 0 {
		fresh.Tier = stored.Tier
	}
	if fresh.PriorityScore == 0 {
		fresh.PriorityScore = stored.PriorityScore
	}
	if fresh.Size == "" {
		fresh.Size = stored.Size
	}
	fresh.CreatedAt = stored.CreatedAt
}
