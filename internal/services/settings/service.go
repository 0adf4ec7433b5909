// -----------------------------------------------------------------------
// Settings Service - typed cached documents over the settings store
// -----------------------------------------------------------------------

package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// knownKeys are the documents this service manages. SetDocument rejects
// anything else so typos cannot shadow a live document.
var knownKeys = map[string]bool{
	models.SettingsKeyFilter:    true,
	models.SettingsKeyStrikes:   true,
	models.SettingsKeyProfile:   true,
	models.SettingsKeyTechRanks: true,
	models.SettingsKeyStopList:  true,
	models.SettingsKeyWorker:    true,
	models.SettingsKeyScheduler: true,
	models.SettingsKeyAI:        true,
}

// Service caches typed settings documents. Reads hit the cache; Reload and
// SetDocument invalidate so the next read sees fresh rows.
type Service struct {
	storage interfaces.SettingsStorage
	logger  arbor.ILogger

	mu    sync.RWMutex
	cache map[string]interface{}
}

// NewService creates a settings service and seeds any missing documents
// with their defaults.
func NewService(ctx context.Context, storage interfaces.SettingsStorage, logger arbor.ILogger) (interfaces.SettingsService, error) {
	s := &Service{
		storage: storage,
		logger:  logger,
		cache:   make(map[string]interface{}),
	}
	if err := s.seedDefaults(ctx); err != nil {
		return nil, fmt.Errorf("seed settings defaults: %w", err)
	}
	return s, nil
}

// seedDefaults writes each missing document. Existing documents are never
// touched.
func (s *Service) seedDefaults(ctx context.Context) error {
	defaults := map[string]interface{}{
		models.SettingsKeyFilter:    defaultFilterSettings(),
		models.SettingsKeyStrikes:   defaultStrikeSettings(),
		models.SettingsKeyProfile:   defaultProfile(),
		models.SettingsKeyTechRanks: defaultTechRanks(),
		models.SettingsKeyStopList:  defaultStopList(),
		models.SettingsKeyWorker:    defaultWorkerSettings(),
		models.SettingsKeyScheduler: defaultSchedulerSettings(),
		models.SettingsKeyAI:        defaultAISettings(),
	}

	seeded := 0
	for key, doc := range defaults {
		_, err := s.storage.Get(ctx, key)
		if err == nil {
			continue
		}
		if !errors.Is(err, models.ErrSettingNotFound) {
			return err
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		if err := s.storage.Set(ctx, key, string(data)); err != nil {
			return err
		}
		seeded++
	}

	if seeded > 0 {
		s.logger.Info().
			Str(common.FieldCategory, common.CategorySystem).
			Str(common.FieldAction, common.ActionMigrate).
			Int("documents", seeded).
			Msg("Seeded default settings documents")
	}
	return nil
}

// load fetches and caches a typed document. The out parameter must be a
// pointer; the cached pointer is returned on subsequent calls.
func (s *Service) load(ctx context.Context, key string, out interface{}) (interface{}, error) {
	s.mu.RLock()
	if cached, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	value, err := s.storage.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(value), out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = out
	s.mu.Unlock()
	return out, nil
}

func (s *Service) FilterSettings(ctx context.Context) (*models.FilterSettings, error) {
	doc, err := s.load(ctx, models.SettingsKeyFilter, &models.FilterSettings{})
	if err != nil {
		return nil, err
	}
	return doc.(*models.FilterSettings), nil
}

func (s *Service) StrikeSettings(ctx context.Context) (*models.StrikeSettings, error) {
	doc, err := s.load(ctx, models.SettingsKeyStrikes, &models.StrikeSettings{})
	if err != nil {
		return nil, err
	}
	return doc.(*models.StrikeSettings), nil
}

func (s *Service) Profile(ctx context.Context) (*models.ProfileSettings, error) {
	doc, err := s.load(ctx, models.SettingsKeyProfile, &models.ProfileSettings{})
	if err != nil {
		return nil, err
	}
	return doc.(*models.ProfileSettings), nil
}

func (s *Service) TechRanks(ctx context.Context) (*models.TechRanks, error) {
	doc, err := s.load(ctx, models.SettingsKeyTechRanks, &models.TechRanks{})
	if err != nil {
		return nil, err
	}
	return doc.(*models.TechRanks), nil
}

func (s *Service) StopList(ctx context.Context) (*models.StopList, error) {
	doc, err := s.load(ctx, models.SettingsKeyStopList, &models.StopList{})
	if err != nil {
		return nil, err
	}
	return doc.(*models.StopList), nil
}

func (s *Service) WorkerSettings(ctx context.Context) (*models.WorkerSettings, error) {
	doc, err := s.load(ctx, models.SettingsKeyWorker, &models.WorkerSettings{})
	if err != nil {
		return nil, err
	}
	return doc.(*models.WorkerSettings), nil
}

func (s *Service) SchedulerSettings(ctx context.Context) (*models.SchedulerSettings, error) {
	doc, err := s.load(ctx, models.SettingsKeyScheduler, &models.SchedulerSettings{})
	if err != nil {
		return nil, err
	}
	return doc.(*models.SchedulerSettings), nil
}

func (s *Service) AISettings(ctx context.Context) (*models.AISettings, error) {
	doc, err := s.load(ctx, models.SettingsKeyAI, &models.AISettings{})
	if err != nil {
		return nil, err
	}
	return doc.(*models.AISettings), nil
}

// GetDocument returns the raw JSON for a document key.
func (s *Service) GetDocument(ctx context.Context, key string) (string, error) {
	if !knownKeys[key] {
		return "", fmt.Errorf("unknown settings key %q", key)
	}
	return s.storage.Get(ctx, key)
}

// SetDocument replaces a document and invalidates its cache entry. The
// value must be valid JSON for the key's document type.
func (s *Service) SetDocument(ctx context.Context, key, value string) error {
	if !knownKeys[key] {
		return fmt.Errorf("unknown settings key %q", key)
	}
	if err := validateDocument(key, value); err != nil {
		return err
	}
	if err := s.storage.Set(ctx, key, value); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	s.logger.Info().
		Str(common.FieldCategory, common.CategorySystem).
		Str(common.FieldAction, common.ActionReload).
		Str("key", key).
		Msg("Settings document updated")
	return nil
}

// Reload drops the whole cache. The HTTP reload endpoint and the config
// file watcher both land here.
func (s *Service) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]interface{})
	s.mu.Unlock()

	s.logger.Info().
		Str(common.FieldCategory, common.CategorySystem).
		Str(common.FieldAction, common.ActionReload).
		Msg("Settings cache invalidated")
}

// validateDocument does a strict decode into the key's document type so a
// malformed write cannot poison later reads.
func validateDocument(key, value string) error {
	var target interface{}
	switch key {
	case models.SettingsKeyFilter:
		target = &models.FilterSettings{}
	case models.SettingsKeyStrikes:
		target = &models.StrikeSettings{}
	case models.SettingsKeyProfile:
		target = &models.ProfileSettings{}
	case models.SettingsKeyTechRanks:
		target = &models.TechRanks{}
	case models.SettingsKeyStopList:
		target = &models.StopList{}
	case models.SettingsKeyWorker:
		target = &models.WorkerSettings{}
	case models.SettingsKeyScheduler:
		target = &models.SchedulerSettings{}
	case models.SettingsKeyAI:
		target = &models.AISettings{}
	default:
		return fmt.Errorf("unknown settings key %q", key)
	}
	if err := json.Unmarshal([]byte(value), target); err != nil {
		return fmt.Errorf("invalid %s document: %w", key, err)
	}
	return nil
}
