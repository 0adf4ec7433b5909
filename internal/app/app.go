// -----------------------------------------------------------------------
// App - dependency wiring and lifecycle for the worker process
// -----------------------------------------------------------------------

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/handlers"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/queue"
	"github.com/ternarybob/venari/internal/queue/workers"
	"github.com/ternarybob/venari/internal/services/ai"
	"github.com/ternarybob/venari/internal/services/companies"
	"github.com/ternarybob/venari/internal/services/companyinfo"
	"github.com/ternarybob/venari/internal/services/events"
	"github.com/ternarybob/venari/internal/services/publish"
	"github.com/ternarybob/venari/internal/services/render"
	"github.com/ternarybob/venari/internal/services/scheduler"
	"github.com/ternarybob/venari/internal/services/scraper"
	"github.com/ternarybob/venari/internal/services/settings"
	"github.com/ternarybob/venari/internal/services/sources"
	"github.com/ternarybob/venari/internal/storage/sqlite"
)

// App holds every component of the worker process. Construction order is
// storage, events, settings, domain services, workers, handlers; shutdown
// runs the reverse.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager

	// Core services
	EventService     interfaces.EventService
	SettingsService  interfaces.SettingsService
	QueueService     interfaces.QueueService
	SourceService    interfaces.SourceService
	CompanyService   interfaces.CompanyService
	PublishedStore   interfaces.PublishedStore
	AIService        interfaces.AIService
	CompanyInfo      interfaces.CompanyInfoService
	Renderer         interfaces.RenderService
	SchedulerService interfaces.SchedulerService

	// Scraper plumbing shared by the workers
	ScraperClient *scraper.Client
	Prober        *scraper.Prober

	// Worker runtime
	Processor interfaces.WorkerController

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	StatusHandler  *handlers.StatusHandler
	WorkerHandler  *handlers.WorkerHandler
	ConfigHandler  *handlers.ConfigHandler
	ItemsHandler   *handlers.ItemsHandler
	SourcesHandler *handlers.SourcesHandler
	MatchesHandler *handlers.MatchesHandler
	WSHandler      *handlers.WebSocketHandler

	StartedAt time.Time

	watcher *settings.Watcher
}

// New wires the application. A returned error is fatal; the caller should
// exit. Missing AI keys and a failed renderer start degrade the relevant
// stages rather than failing startup.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config:    cfg,
		Logger:    logger,
		StartedAt: time.Now().UTC(),
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initWorkers()
	app.initHandlers()

	logger.Info().
		Str(common.FieldCategory, common.CategorySystem).
		Str("database", cfg.Database.Path).
		Bool("render_enabled", cfg.Render.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage opens the SQLite store and runs migrations.
func (a *App) initStorage() error {
	manager, err := sqlite.NewManager(a.Logger, a.Config.Database.Path)
	if err != nil {
		return err
	}
	a.StorageManager = manager
	return nil
}

// initServices builds the service layer in dependency order.
func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)

	settingsService, err := settings.NewService(context.Background(), a.StorageManager.SettingsStorage(), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize settings: %w", err)
	}
	a.SettingsService = settingsService
	a.applySchedulerConfig()

	a.QueueService = queue.NewService(a.StorageManager.QueueStorage(), a.EventService, a.Logger)
	a.SourceService = sources.NewService(a.StorageManager.SourceStorage(), a.SettingsService, a.Logger)
	a.CompanyService = companies.NewService(a.StorageManager.CompanyStorage(), a.SettingsService, a.Logger)
	a.PublishedStore = publish.NewService(a.StorageManager.MatchStorage(), a.Logger)

	a.ScraperClient = scraper.NewClient(a.Config.Scraper, a.Logger)
	a.Prober = scraper.NewProber(a.ScraperClient, a.Logger)
	a.Renderer = a.buildRenderer()

	a.AIService = ai.NewService(a.SettingsService, a.Logger, a.buildAIProviders()...)

	a.CompanyInfo = companyinfo.NewFetcher(
		&http.Client{Timeout: a.Config.Scraper.RequestTimeout},
		a.Config.Scraper.UserAgent,
		a.Config.Scraper.RequestDelay,
		a.Logger,
	)

	a.SchedulerService = scheduler.NewService(a.QueueService, a.SettingsService, a.Logger)

	if a.Config.ConfigPath != "" {
		watcher, err := settings.NewWatcher(a.Config.ConfigPath, a.reloadSettings, a.Logger)
		if err != nil {
			a.Logger.Warn().
				Err(err).
				Str(common.FieldCategory, common.CategorySystem).
				Msg("Config watcher unavailable, hot reload disabled")
		} else {
			a.watcher = watcher
		}
	}

	return nil
}

// buildRenderer starts the browser pool when rendering is enabled. A pool
// that fails to start degrades to the disabled renderer so sources that do
// not need JavaScript keep working.
func (a *App) buildRenderer() interfaces.RenderService {
	if !a.Config.Render.Enabled {
		return render.Disabled{}
	}

	pool := render.NewPool(a.Config.Render, a.Logger)
	if err := pool.Init(a.Config.Scraper.UserAgent); err != nil {
		a.Logger.Warn().
			Err(err).
			Str(common.FieldCategory, common.CategoryScrape).
			Msg("Render pool failed to start, JavaScript sources disabled")
		return render.Disabled{}
	}
	return pool
}

// buildAIProviders constructs one provider per configured API key. An empty
// slice leaves AI-dependent stages failing with a clear error while scrape
// and prefilter keep running.
func (a *App) buildAIProviders() []ai.Provider {
	var providers []ai.Provider

	if a.Config.Claude.APIKey != "" {
		provider, err := ai.NewClaudeProvider(a.Config.Claude, a.Logger)
		if err != nil {
			a.Logger.Warn().
				Err(err).
				Str(common.FieldCategory, common.CategoryAI).
				Msg("Claude provider unavailable")
		} else {
			providers = append(providers, provider)
		}
	}

	if a.Config.Gemini.APIKey != "" {
		provider, err := ai.NewGeminiProvider(context.Background(), a.Config.Gemini, a.Logger)
		if err != nil {
			a.Logger.Warn().
				Err(err).
				Str(common.FieldCategory, common.CategoryAI).
				Msg("Gemini provider unavailable")
		} else {
			providers = append(providers, provider)
		}
	}

	if len(providers) == 0 {
		a.Logger.Warn().
			Str(common.FieldCategory, common.CategoryAI).
			Msg("No AI providers configured, extraction and analysis stages will fail")
	}
	return providers
}

// applySchedulerConfig pushes the TOML scheduler section into the scheduler
// settings document so an operator can arm the schedule from the config
// file. The document stays runtime-tunable through the config API.
func (a *App) applySchedulerConfig() {
	if !a.Config.Scheduler.Enabled {
		return
	}

	ctx := context.Background()
	cfg, err := a.SettingsService.SchedulerSettings(ctx)
	if err != nil || cfg == nil {
		cfg = &models.SchedulerSettings{}
	}
	cfg.Enabled = true
	if a.Config.Scheduler.Schedule != "" {
		cfg.Schedule = a.Config.Scheduler.Schedule
	}

	doc, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	if err := a.SettingsService.SetDocument(ctx, models.SettingsKeyScheduler, string(doc)); err != nil {
		a.Logger.Warn().
			Err(err).
			Str(common.FieldCategory, common.CategoryDatabase).
			Msg("Failed to apply scheduler config override")
		return
	}
	a.SettingsService.Reload()
}

// initWorkers builds the stage handlers, dispatcher, and poll-loop
// processor around a shared ProcessorContext.
func (a *App) initWorkers() {
	pc := &workers.ProcessorContext{
		Queue:       a.QueueService,
		Sources:     a.SourceService,
		Companies:   a.CompanyService,
		Published:   a.PublishedStore,
		Settings:    a.SettingsService,
		AI:          a.AIService,
		CompanyInfo: a.CompanyInfo,
		Renderer:    a.Renderer,
		Events:      a.EventService,
		Client:      a.ScraperClient,
		Prober:      a.Prober,
		Logger:      a.Logger,
	}

	companyWorker := workers.NewCompanyWorker(pc)
	jobWorker := workers.NewJobWorker(pc, companyWorker)
	runner := workers.NewScrapeRunner(pc)
	sourceWorker := workers.NewSourceWorker(pc, runner)
	dispatcher := workers.NewDispatcher(pc, jobWorker, companyWorker, sourceWorker, runner)
	a.Processor = workers.NewProcessor(pc, dispatcher)
}

// initHandlers builds the admin HTTP handlers.
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.Processor, a.QueueService, a.SourceService, a.StartedAt, a.Logger)
	a.WorkerHandler = handlers.NewWorkerHandler(a.Processor, a.Logger)
	a.ConfigHandler = handlers.NewConfigHandler(a.SettingsService, a.SchedulerService, a.Logger)
	a.ItemsHandler = handlers.NewItemsHandler(a.QueueService, a.EventService, a.Logger)
	a.SourcesHandler = handlers.NewSourcesHandler(a.SourceService, a.QueueService, a.Logger)
	a.MatchesHandler = handlers.NewMatchesHandler(a.PublishedStore, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger)
}

// reloadSettings is the config-watcher callback. It runs the same path as
// POST /config/reload: drop the settings cache, reschedule the scheduler.
func (a *App) reloadSettings() {
	a.SettingsService.Reload()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.SchedulerService.Reload(ctx); err != nil {
		a.Logger.Warn().
			Err(err).
			Str(common.FieldCategory, common.CategorySystem).
			Str(common.FieldAction, common.ActionReload).
			Msg("Scheduler reload failed")
	}
}

// Start brings up the poll loop, the scheduler, and the config watcher.
func (a *App) Start() error {
	if err := a.Processor.Start(); err != nil {
		return fmt.Errorf("failed to start queue processor: %w", err)
	}

	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if a.watcher != nil {
		if err := a.watcher.Start(); err != nil {
			a.Logger.Warn().
				Err(err).
				Str(common.FieldCategory, common.CategorySystem).
				Msg("Config watcher failed to start, hot reload disabled")
			a.watcher = nil
		}
	}

	return nil
}

// Close stops everything in reverse construction order. Failures are logged
// and shutdown continues; an in-flight stage completes before the processor
// stops.
func (a *App) Close() error {
	if a.watcher != nil {
		a.watcher.Stop()
	}

	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler")
		}
	}

	if a.Processor != nil {
		if err := a.Processor.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop queue processor")
		}
	}

	if a.Renderer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := a.Renderer.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to shut down render pool")
		}
		cancel()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}

	a.Logger.Info().
		Str(common.FieldCategory, common.CategorySystem).
		Str(common.FieldAction, common.ActionStop).
		Msg("Application shutdown complete")
	return nil
}
