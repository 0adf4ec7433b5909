// -----------------------------------------------------------------------
// Source Service - source CRUD, validation, and failure bookkeeping
// -----------------------------------------------------------------------

package sources

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

const defaultFailureThreshold = 3

// Service implements interfaces.SourceService over the source storage. The
// strike bookkeeping here tracks source health; it is unrelated to the
// per-job strike filter.
type Service struct {
	storage  interfaces.SourceStorage
	settings interfaces.SettingsService
	logger   arbor.ILogger
}

var _ interfaces.SourceService = (*Service)(nil)

// NewService creates a source service. The settings service supplies the
// failure-disable threshold and may be nil in tests.
func NewService(storage interfaces.SourceStorage, settings interfaces.SettingsService, logger arbor.ILogger) *Service {
	return &Service{
		storage:  storage,
		settings: settings,
		logger:   logger,
	}
}

// Create validates and persists a new source. Status defaults to active.
func (s *Service) Create(ctx context.Context, source *models.Source) (string, error) {
	if source == nil {
		return "", fmt.Errorf("source is required")
	}
	source.Name = common.SanitizeText(strings.TrimSpace(source.Name))
	if source.Name == "" {
		return "", fmt.Errorf("source name is required")
	}
	if err := ValidateConfig(source.SourceType, source.Config); err != nil {
		return "", fmt.Errorf("source validation failed: %w", err)
	}

	if source.ID == "" {
		source.ID = common.NewSourceID()
	}
	if source.Status == "" {
		source.Status = models.SourceStatusActive
	}
	now := time.Now()
	if source.CreatedAt.IsZero() {
		source.CreatedAt = now
	}
	source.UpdatedAt = now

	if err := s.storage.SaveSource(ctx, source); err != nil {
		return "", fmt.Errorf("failed to save source: %w", err)
	}

	s.logger.Info().
		Str(common.FieldCategory, common.CategoryScrape).
		Str("source_id", source.ID).
		Str("name", source.Name).
		Str("type", source.SourceType).
		Msg("Source created")
	return source.ID, nil
}

// Get retrieves a source by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Source, error) {
	return s.storage.GetSource(ctx, id)
}

// GetByURL retrieves the source whose config url matches.
func (s *Service) GetByURL(ctx context.Context, url string) (*models.Source, error) {
	return s.storage.GetSourceByURL(ctx, url)
}

// List retrieves all sources.
func (s *Service) List(ctx context.Context) ([]*models.Source, error) {
	return s.storage.ListSources(ctx)
}

// ListActive retrieves active sources in scrape rotation order, least
// recently scraped first with never-scraped sources ahead of all.
func (s *Service) ListActive(ctx context.Context) ([]*models.Source, error) {
	return s.storage.ListActiveSources(ctx)
}

// Update validates and persists changes to an existing source.
func (s *Service) Update(ctx context.Context, source *models.Source) error {
	if source == nil || source.ID == "" {
		return fmt.Errorf("source id is required")
	}
	if err := ValidateConfig(source.SourceType, source.Config); err != nil {
		return fmt.Errorf("source validation failed: %w", err)
	}

	existing, err := s.storage.GetSource(ctx, source.ID)
	if err != nil {
		return err
	}
	source.CreatedAt = existing.CreatedAt
	source.UpdatedAt = time.Now()

	if err := s.storage.UpdateSource(ctx, source); err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}

	s.logger.Info().
		Str(common.FieldCategory, common.CategoryScrape).
		Str("source_id", source.ID).
		Str("name", source.Name).
		Msg("Source updated")
	return nil
}

// Delete removes a source by id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.storage.DeleteSource(ctx, id); err != nil {
		return err
	}
	s.logger.Info().
		Str(common.FieldCategory, common.CategoryScrape).
		Str("source_id", id).
		Msg("Source deleted")
	return nil
}

// failureThreshold reads the disable threshold from worker settings.
func (s *Service) failureThreshold(ctx context.Context) int {
	if s.settings != nil {
		if ws, err := s.settings.WorkerSettings(ctx); err == nil && ws != nil && ws.FailureDisableThreshold > 0 {
			return ws.FailureDisableThreshold
		}
	}
	return defaultFailureThreshold
}

// RecordFailure increments consecutive_failures and disables the source
// when the threshold is reached. Returns the updated source.
func (s *Service) RecordFailure(ctx context.Context, id, reason string) (*models.Source, error) {
	source, err := s.storage.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}

	source.ConsecutiveFailures++
	source.UpdatedAt = time.Now()

	threshold := s.failureThreshold(ctx)
	if source.ConsecutiveFailures >= threshold && source.Status == models.SourceStatusActive {
		source.Status = models.SourceStatusDisabled
		source.DisabledNotes = fmt.Sprintf("disabled after %d consecutive failures: %s", source.ConsecutiveFailures, reason)
		s.logger.Warn().
			Str(common.FieldCategory, common.CategoryScrape).
			Str(common.FieldAction, common.ActionDisable).
			Str("source_id", id).
			Int("consecutive_failures", source.ConsecutiveFailures).
			Str("reason", reason).
			Msg("Source disabled at failure threshold")
	} else {
		s.logger.Warn().
			Str(common.FieldCategory, common.CategoryScrape).
			Str("source_id", id).
			Int("consecutive_failures", source.ConsecutiveFailures).
			Int("threshold", threshold).
			Str("reason", reason).
			Msg("Source failure recorded")
	}

	if err := s.storage.UpdateSource(ctx, source); err != nil {
		return nil, fmt.Errorf("failed to record failure: %w", err)
	}
	return source, nil
}

// RecordSuccess resets both failure counters and stamps last_scraped_at.
func (s *Service) RecordSuccess(ctx context.Context, id string, jobCount int) error {
	source, err := s.storage.GetSource(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now()
	source.ConsecutiveFailures = 0
	source.ConsecutiveZeroJobs = 0
	source.LastScrapedAt = &now
	source.UpdatedAt = now

	if err := s.storage.UpdateSource(ctx, source); err != nil {
		return fmt.Errorf("failed to record success: %w", err)
	}

	s.logger.Debug().
		Str(common.FieldCategory, common.CategoryScrape).
		Str("source_id", id).
		Int("job_count", jobCount).
		Msg("Source scrape succeeded")
	return nil
}

// RecordZeroJobs increments consecutive_zero_jobs, stamps last_scraped_at,
// and returns the new count. The caller decides whether the count crosses
// the recovery threshold.
func (s *Service) RecordZeroJobs(ctx context.Context, id string) (int, error) {
	source, err := s.storage.GetSource(ctx, id)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	source.ConsecutiveZeroJobs++
	source.LastScrapedAt = &now
	source.UpdatedAt = now

	if err := s.storage.UpdateSource(ctx, source); err != nil {
		return 0, fmt.Errorf("failed to record zero jobs: %w", err)
	}

	s.logger.Debug().
		Str(common.FieldCategory, common.CategoryScrape).
		Str("source_id", id).
		Int("consecutive_zero_jobs", source.ConsecutiveZeroJobs).
		Msg("Source returned zero jobs")
	return source.ConsecutiveZeroJobs, nil
}

// Disable marks the source disabled with notes and triage tags.
func (s *Service) Disable(ctx context.Context, id, notes string, tags ...string) error {
	source, err := s.storage.GetSource(ctx, id)
	if err != nil {
		return err
	}

	source.Status = models.SourceStatusDisabled
	source.DisabledNotes = notes
	for _, tag := range tags {
		if tag != "" && !source.HasDisableTag(tag) {
			source.DisabledTags = append(source.DisabledTags, tag)
		}
	}
	source.UpdatedAt = time.Now()

	if err := s.storage.UpdateSource(ctx, source); err != nil {
		return fmt.Errorf("failed to disable source: %w", err)
	}

	s.logger.Warn().
		Str(common.FieldCategory, common.CategoryScrape).
		Str(common.FieldAction, common.ActionDisable).
		Str("source_id", id).
		Str("tags", strings.Join(tags, ",")).
		Str("notes", notes).
		Msg("Source disabled")
	return nil
}

// Enable reactivates a disabled source, clearing counters, notes, and tags.
func (s *Service) Enable(ctx context.Context, id string) error {
	source, err := s.storage.GetSource(ctx, id)
	if err != nil {
		return err
	}

	source.Status = models.SourceStatusActive
	source.ConsecutiveFailures = 0
	source.ConsecutiveZeroJobs = 0
	source.DisabledNotes = ""
	source.DisabledTags = nil
	source.UpdatedAt = time.Now()

	if err := s.storage.UpdateSource(ctx, source); err != nil {
		return fmt.Errorf("failed to enable source: %w", err)
	}

	s.logger.Info().
		Str(common.FieldCategory, common.CategoryScrape).
		Str("source_id", id).
		Msg("Source enabled")
	return nil
}

// CountByStatus returns source counts keyed by lifecycle status.
func (s *Service) CountByStatus(ctx context.Context) (map[string]int, error) {
	return s.storage.CountByStatus(ctx)
}
