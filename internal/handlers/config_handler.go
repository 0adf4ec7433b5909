// -----------------------------------------------------------------------
// Config Handler - dynamic worker settings read/update/reload
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// ConfigHandler exposes the dynamic worker settings. The static TOML config
// is read-only at runtime; only the settings documents change here.
type ConfigHandler struct {
	settings  interfaces.SettingsService
	scheduler interfaces.SchedulerService
	logger    arbor.ILogger
}

// NewConfigHandler creates a new ConfigHandler. scheduler may be nil when
// the scheduler is disabled; reload then skips it.
func NewConfigHandler(settings interfaces.SettingsService, scheduler interfaces.SchedulerService, logger arbor.ILogger) *ConfigHandler {
	return &ConfigHandler{
		settings:  settings,
		scheduler: scheduler,
		logger:    logger,
	}
}

// GetConfigHandler handles GET /config
func (h *ConfigHandler) GetConfigHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.settings.WorkerSettings(r.Context())
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategoryWorker).
			Msg("Failed to load worker settings")
		WriteError(w, http.StatusInternalServerError, "Failed to load worker settings")
		return
	}

	WriteJSON(w, http.StatusOK, cfg)
}

// configUpdate carries the fields POST /config may change. Pointers
// distinguish "absent" from zero.
type configUpdate struct {
	PollIntervalSeconds *int    `json:"poll_interval_seconds"`
	BatchSize           *int    `json:"batch_size"`
	MinMatchScore       *int    `json:"min_match_score"`
	Provider            *string `json:"provider"`
}

// UpdateConfigHandler handles POST /config. The update is merged into the
// worker settings document and the settings cache is invalidated so the
// next poll cycle sees the new values.
func (h *ConfigHandler) UpdateConfigHandler(w http.ResponseWriter, r *http.Request) {
	var update configUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()
	cfg, err := h.settings.WorkerSettings(ctx)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategoryWorker).
			Msg("Failed to load worker settings")
		WriteError(w, http.StatusInternalServerError, "Failed to load worker settings")
		return
	}
	if cfg == nil {
		cfg = &models.WorkerSettings{}
	}

	if update.PollIntervalSeconds != nil {
		if *update.PollIntervalSeconds <= 0 {
			WriteError(w, http.StatusBadRequest, "poll_interval_seconds must be positive")
			return
		}
		cfg.PollIntervalSeconds = *update.PollIntervalSeconds
	}
	if update.BatchSize != nil {
		if *update.BatchSize <= 0 {
			WriteError(w, http.StatusBadRequest, "batch_size must be positive")
			return
		}
		cfg.BatchSize = *update.BatchSize
	}
	if update.MinMatchScore != nil {
		if *update.MinMatchScore < 0 || *update.MinMatchScore > 100 {
			WriteError(w, http.StatusBadRequest, "min_match_score must be between 0 and 100")
			return
		}
		cfg.MinMatchScore = *update.MinMatchScore
	}
	if update.Provider != nil {
		cfg.Provider = *update.Provider
	}

	doc, err := json.Marshal(cfg)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to encode worker settings")
		return
	}
	if err := h.settings.SetDocument(ctx, models.SettingsKeyWorker, string(doc)); err != nil {
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategoryDatabase).
			Msg("Failed to persist worker settings")
		WriteError(w, http.StatusInternalServerError, "Failed to persist worker settings")
		return
	}
	h.settings.Reload()

	h.logger.Info().
		Str(common.FieldCategory, common.CategoryWorker).
		Str(common.FieldAction, common.ActionReload).
		Int("poll_interval_seconds", cfg.PollIntervalSeconds).
		Int("min_match_score", cfg.MinMatchScore).
		Msg("Worker settings updated")

	WriteJSON(w, http.StatusOK, cfg)
}

// ReloadConfigHandler handles POST /config/reload. The settings cache is
// dropped so every service rereads its documents, and the scheduler
// reschedules from the fresh scheduler document.
func (h *ConfigHandler) ReloadConfigHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	h.settings.Reload()

	if h.scheduler != nil {
		if err := h.scheduler.Reload(r.Context()); err != nil {
			h.logger.Warn().
				Err(err).
				Str(common.FieldCategory, common.CategorySystem).
				Str(common.FieldAction, common.ActionReload).
				Msg("Scheduler reload failed")
			WriteError(w, http.StatusInternalServerError, "Settings reloaded but scheduler reschedule failed")
			return
		}
	}

	h.logger.Info().
		Str(common.FieldCategory, common.CategorySystem).
		Str(common.FieldAction, common.ActionReload).
		Msg("Dynamic settings reloaded")

	WriteSuccess(w, "settings reloaded")
}
