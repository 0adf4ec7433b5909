package workers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/queue"
	"github.com/ternarybob/venari/internal/services/companies"
	"github.com/ternarybob/venari/internal/services/events"
	"github.com/ternarybob/venari/internal/services/publish"
	"github.com/ternarybob/venari/internal/services/scraper"
	"github.com/ternarybob/venari/internal/services/settings"
	"github.com/ternarybob/venari/internal/services/sources"
	"github.com/ternarybob/venari/internal/storage/sqlite"
)

// testEnv wires the full service stack over a real SQLite file in a temp
// directory, with the LLM and website-fetch edges faked. The prober stays
// nil because it talks to live ATS endpoints.
type testEnv struct {
	queue     interfaces.QueueService
	sources   interfaces.SourceService
	companies interfaces.CompanyService
	published interfaces.PublishedStore
	settings  interfaces.SettingsService
	events    interfaces.EventService
	ai        *fakeAI
	info      *fakeCompanyInfo
	pc        *ProcessorContext
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := arbor.NewLogger()

	db, err := sqlite.NewSQLiteDB(logger, t.TempDir()+"/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	eventService := events.NewService(logger)
	t.Cleanup(func() { eventService.Close() })

	settingsService, err := settings.NewService(context.Background(), sqlite.NewSettingsStorage(db, logger), logger)
	require.NoError(t, err)

	queueService := queue.NewService(sqlite.NewQueueStorage(db, logger), eventService, logger)
	sourceService := sources.NewService(sqlite.NewSourceStorage(db, logger), settingsService, logger)
	companyService := companies.NewService(sqlite.NewCompanyStorage(db, logger), settingsService, logger)
	publishedStore := publish.NewService(sqlite.NewMatchStorage(db, logger), logger)

	ai := &fakeAI{}
	info := &fakeCompanyInfo{}

	client := scraper.NewClient(common.ScraperConfig{
		UserAgent:      "venari-test",
		RequestTimeout: 5 * time.Second,
		RequestDelay:   time.Millisecond,
		MaxBodySize:    1 << 20,
	}, logger)

	pc := &ProcessorContext{
		Queue:       queueService,
		Sources:     sourceService,
		Companies:   companyService,
		Published:   publishedStore,
		Settings:    settingsService,
		AI:          ai,
		CompanyInfo: info,
		Events:      eventService,
		Client:      client,
		Logger:      logger,
	}

	return &testEnv{
		queue:     queueService,
		sources:   sourceService,
		companies: companyService,
		published: publishedStore,
		settings:  settingsService,
		events:    eventService,
		ai:        ai,
		info:      info,
		pc:        pc,
	}
}

func newWorkerSet(env *testEnv) (*JobWorker, *CompanyWorker, *SourceWorker, *ScrapeRunner, *Dispatcher) {
	company := NewCompanyWorker(env.pc)
	job := NewJobWorker(env.pc, company)
	runner := NewScrapeRunner(env.pc)
	source := NewSourceWorker(env.pc, runner)
	dispatcher := NewDispatcher(env.pc, job, company, source, runner)
	return job, company, source, runner, dispatcher
}

// remoteGoJob passes the default pre-filter and strike rules as seeded.
func remoteGoJob(url string) models.JobRecord {
	return models.JobRecord{
		Title:    "Senior Go Engineer",
		Company:  "Acme Robotics",
		Location: "Remote",
		URL:      url,
		Description: "We build distributed ingestion pipelines in Go. The platform spans " +
			"storage engines, scheduling infrastructure, and the APIs product teams build " +
			"on top. You will own services end to end, from design through production " +
			"operation, working with a small senior team.",
	}
}

// strongExtraction clears the default score gate once the tech ranks
// document ranks go at 10.
func strongExtraction() *models.JobExtraction {
	return &models.JobExtraction{
		Seniority:       "senior",
		WorkArrangement: models.ArrangementRemote,
		Technologies:    []string{"go"},
		Confidence:      0.9,
	}
}

func rankGoHighly(t *testing.T, env *testEnv) {
	t.Helper()
	err := env.settings.SetDocument(context.Background(), models.SettingsKeyTechRanks, `{"ranks":{"go":10}}`)
	require.NoError(t, err)
}

// seedJobAt adds a JOB item parked at the given stage with the given state.
func seedJobAt(t *testing.T, env *testEnv, stage models.JobStage, url string, state map[string]interface{}) *models.QueueItem {
	t.Helper()
	item := models.NewQueueItem(models.ItemTypeJob)
	item.URL = url
	item.SubTask = stage
	item.PipelineState = state

	_, err := env.queue.Add(context.Background(), item)
	require.NoError(t, err)
	return item
}

func getItem(t *testing.T, env *testEnv, id string) *models.QueueItem {
	t.Helper()
	got, err := env.queue.Get(context.Background(), id)
	require.NoError(t, err)
	return got
}

// childOf returns the single queued child spawned from the given parent.
func childOf(t *testing.T, env *testEnv, parentID string) *models.QueueItem {
	t.Helper()
	pending, err := env.queue.GetPending(context.Background(), 50)
	require.NoError(t, err)

	var child *models.QueueItem
	for _, candidate := range pending {
		if candidate.ParentItemID != nil && *candidate.ParentItemID == parentID {
			require.Nil(t, child, "expected a single child of %s", parentID)
			child = candidate
		}
	}
	require.NotNil(t, child, "no child of %s found", parentID)
	return child
}

func seedAPISource(t *testing.T, env *testEnv, name, endpoint string) *models.Source {
	t.Helper()
	source := &models.Source{
		Name:       name,
		SourceType: models.SourceTypeAPI,
		Config: map[string]interface{}{
			"url":           endpoint,
			"response_path": "jobs",
			"fields": map[string]interface{}{
				"title":       "title",
				"url":         "url",
				"company":     "company",
				"location":    "location",
				"description": "description",
			},
		},
	}
	_, err := env.sources.Create(context.Background(), source)
	require.NoError(t, err)
	return source
}

// jobsServer serves a fixed JSON payload shaped for seedAPISource configs.
func jobsServer(t *testing.T, payload string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(server.Close)
	return server
}

func apiJobsPayload(records ...models.JobRecord) string {
	jobs := make([]map[string]string, 0, len(records))
	for _, rec := range records {
		jobs = append(jobs, map[string]string{
			"title":       rec.Title,
			"url":         rec.URL,
			"company":     rec.Company,
			"location":    rec.Location,
			"description": rec.Description,
		})
	}
	payload, _ := json.Marshal(map[string]interface{}{"jobs": jobs})
	return string(payload)
}

// fakeAI fails loudly on any task a test did not configure.
type fakeAI struct {
	extractJob       func(models.JobRecord) (*models.JobExtraction, error)
	repairExtraction func(models.JobRecord, *models.JobExtraction) (*models.JobExtraction, error)
	analyzeMatch     func(models.JobRecord, *models.JobExtraction, *models.Company, int) (*models.MatchAnalysis, error)
	extractCompany   func(string, string) (*models.Company, error)
	classifyCompany  func(*models.Company) (*models.Company, error)
	proposeConfig    func(*models.Source, string) (*models.SourceProposal, error)
	classifyURL      func(string, string) (*models.SourceClassification, error)
}

var _ interfaces.AIService = (*fakeAI)(nil)

var errUnexpectedAICall = errors.New("unexpected ai call")

func (f *fakeAI) ExtractJob(_ context.Context, job models.JobRecord) (*models.JobExtraction, error) {
	if f.extractJob == nil {
		return nil, errUnexpectedAICall
	}
	return f.extractJob(job)
}

func (f *fakeAI) RepairExtraction(_ context.Context, job models.JobRecord, current *models.JobExtraction) (*models.JobExtraction, error) {
	if f.repairExtraction == nil {
		return nil, errUnexpectedAICall
	}
	return f.repairExtraction(job, current)
}

func (f *fakeAI) AnalyzeMatch(_ context.Context, job models.JobRecord, extraction *models.JobExtraction, company *models.Company, score int) (*models.MatchAnalysis, error) {
	if f.analyzeMatch == nil {
		return nil, errUnexpectedAICall
	}
	return f.analyzeMatch(job, extraction, company, score)
}

func (f *fakeAI) ExtractCompany(_ context.Context, companyName, websiteContent string) (*models.Company, error) {
	if f.extractCompany == nil {
		return nil, errUnexpectedAICall
	}
	return f.extractCompany(companyName, websiteContent)
}

func (f *fakeAI) ClassifyCompany(_ context.Context, company *models.Company) (*models.Company, error) {
	if f.classifyCompany == nil {
		return nil, errUnexpectedAICall
	}
	return f.classifyCompany(company)
}

func (f *fakeAI) ProposeSourceConfig(_ context.Context, source *models.Source, sample string) (*models.SourceProposal, error) {
	if f.proposeConfig == nil {
		return nil, errUnexpectedAICall
	}
	return f.proposeConfig(source, sample)
}

func (f *fakeAI) ClassifySourceURL(_ context.Context, url, pageText string) (*models.SourceClassification, error) {
	if f.classifyURL == nil {
		return nil, errUnexpectedAICall
	}
	return f.classifyURL(url, pageText)
}

type fakeCompanyInfo struct {
	fetch   func(string) (*models.WebsiteContent, error)
	fetched []string
}

var _ interfaces.CompanyInfoService = (*fakeCompanyInfo)(nil)

func (f *fakeCompanyInfo) FetchWebsite(_ context.Context, websiteURL string) (*models.WebsiteContent, error) {
	f.fetched = append(f.fetched, websiteURL)
	if f.fetch == nil {
		return nil, errors.New("unexpected website fetch")
	}
	return f.fetch(websiteURL)
}

type fakeRenderer struct {
	render func(interfaces.RenderRequest) (*interfaces.RenderResult, error)
}

var _ interfaces.RenderService = (*fakeRenderer)(nil)

func (f *fakeRenderer) Render(_ context.Context, req interfaces.RenderRequest) (*interfaces.RenderResult, error) {
	if f.render == nil {
		return nil, errors.New("unexpected render")
	}
	return f.render(req)
}

func (f *fakeRenderer) Shutdown(context.Context) error { return nil }
