// -----------------------------------------------------------------------
// Scheduler Service - cron-driven submission of scrape runs
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

const defaultSchedule = "0 */6 * * *"

// Service submits SCRAPE items on the configured cron schedule. The worker
// drains them; the scheduler never scrapes anything itself.
type Service struct {
	queue    interfaces.QueueService
	settings interfaces.SettingsService
	logger   arbor.ILogger

	cron *cron.Cron

	mu         sync.Mutex
	entryID    cron.EntryID
	scheduled  bool
	running    bool
	lastItemID string
}

var _ interfaces.SchedulerService = (*Service)(nil)

// NewService creates a scheduler over the queue and settings services.
func NewService(queue interfaces.QueueService, settings interfaces.SettingsService, logger arbor.ILogger) *Service {
	return &Service{
		queue:    queue,
		settings: settings,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start reads the scheduler settings document and begins the cron loop.
// A disabled document still starts the loop so a later Reload can arm it.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	cfg := s.loadSettings(context.Background())
	if cfg.Enabled {
		if err := s.scheduleLocked(cfg.Schedule); err != nil {
			return err
		}
	} else {
		s.logger.Info().
			Str(common.FieldCategory, common.CategorySystem).
			Msg("Scheduler disabled in settings, standing by")
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str(common.FieldCategory, common.CategorySystem).
		Str(common.FieldAction, common.ActionStart).
		Str("schedule", cfg.Schedule).
		Bool("enabled", cfg.Enabled).
		Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop. A submission already in flight completes.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.logger.Warn().
			Str(common.FieldCategory, common.CategorySystem).
			Msg("Scheduler jobs did not drain within timeout")
	}
	s.running = false

	s.logger.Info().
		Str(common.FieldCategory, common.CategorySystem).
		Str(common.FieldAction, common.ActionStop).
		Msg("Scheduler stopped")
	return nil
}

// TriggerScrape submits a scrape run immediately, outside the cron
// schedule. Returns the queue item id.
func (s *Service) TriggerScrape(ctx context.Context) (string, error) {
	cfg := s.loadSettings(ctx)

	item := models.NewQueueItem(models.ItemTypeScrape)
	item.SubmittedBy = "scheduler"
	item.ScrapeConfig = scrapeConfigFrom(cfg)

	id, err := s.queue.Add(ctx, item)
	if err != nil {
		return "", fmt.Errorf("failed to submit scrape run: %w", err)
	}

	s.mu.Lock()
	s.lastItemID = id
	s.mu.Unlock()

	s.logger.Info().
		Str(common.FieldCategory, common.CategoryQueue).
		Str(common.FieldAction, common.ActionSchedule).
		Str("item_id", id).
		Msg("Scrape run submitted")
	return id, nil
}

// Reload re-reads the scheduler settings document and reschedules. Called
// on config reload and after the settings document changes.
func (s *Service) Reload(ctx context.Context) error {
	cfg := s.loadSettings(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduled {
		s.cron.Remove(s.entryID)
		s.scheduled = false
	}
	if !cfg.Enabled {
		s.logger.Info().
			Str(common.FieldCategory, common.CategorySystem).
			Str(common.FieldAction, common.ActionReload).
			Msg("Scheduler disabled by settings reload")
		return nil
	}
	if err := s.scheduleLocked(cfg.Schedule); err != nil {
		return err
	}

	s.logger.Info().
		Str(common.FieldCategory, common.CategorySystem).
		Str(common.FieldAction, common.ActionReload).
		Str("schedule", cfg.Schedule).
		Msg("Scheduler rescheduled")
	return nil
}

// scheduleLocked registers the cron entry. Caller holds mu.
func (s *Service) scheduleLocked(schedule string) error {
	if schedule == "" {
		schedule = defaultSchedule
	}
	entryID, err := s.cron.AddFunc(schedule, s.runScheduled)
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	s.entryID = entryID
	s.scheduled = true
	return nil
}

// runScheduled is the cron tick. A previous run still in the queue skips
// this tick so scheduled scrapes never pile up behind a slow one.
func (s *Service) runScheduled() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str(common.FieldCategory, common.CategorySystem).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Panic recovered in scheduled scrape submission")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if id, active := s.previousRunActive(ctx); active {
		s.logger.Info().
			Str(common.FieldCategory, common.CategoryQueue).
			Str(common.FieldAction, common.ActionSchedule).
			Str("item_id", id).
			Msg("Previous scrape run still active, skipping this tick")
		return
	}

	if _, err := s.TriggerScrape(ctx); err != nil {
		s.logger.Error().
			Str(common.FieldCategory, common.CategoryQueue).
			Err(err).
			Msg("Scheduled scrape submission failed")
	}
}

// previousRunActive reports whether the last submitted scrape item is still
// pending or processing.
func (s *Service) previousRunActive(ctx context.Context) (string, bool) {
	s.mu.Lock()
	lastID := s.lastItemID
	s.mu.Unlock()

	if lastID == "" {
		return "", false
	}
	item, err := s.queue.Get(ctx, lastID)
	if err != nil {
		return "", false
	}
	return lastID, !item.Status.IsTerminal()
}

// loadSettings reads the scheduler document, falling back to defaults when
// the settings service is unavailable.
func (s *Service) loadSettings(ctx context.Context) *models.SchedulerSettings {
	if s.settings != nil {
		if cfg, err := s.settings.SchedulerSettings(ctx); err == nil && cfg != nil {
			return cfg
		}
	}
	return &models.SchedulerSettings{Enabled: false, Schedule: defaultSchedule}
}

// scrapeConfigFrom converts the settings document limits into a run config.
// Zero values stay nil, meaning unlimited.
func scrapeConfigFrom(cfg *models.SchedulerSettings) *models.ScrapeRunConfig {
	run := &models.ScrapeRunConfig{}
	if cfg.TargetMatches > 0 {
		v := cfg.TargetMatches
		run.TargetMatches = &v
	}
	if cfg.MaxSources > 0 {
		v := cfg.MaxSources
		run.MaxSources = &v
	}
	if run.TargetMatches == nil && run.MaxSources == nil {
		return nil
	}
	return run
}
