// -----------------------------------------------------------------------
// Sources Handler - source management and per-source queue actions
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// SourcesHandler handles HTTP requests for source management. Scrape and
// recover actions queue work instead of touching the source inline.
type SourcesHandler struct {
	sources interfaces.SourceService
	queue   interfaces.QueueService
	logger  arbor.ILogger
}

// NewSourcesHandler creates a new SourcesHandler
func NewSourcesHandler(sources interfaces.SourceService, queue interfaces.QueueService, logger arbor.ILogger) *SourcesHandler {
	return &SourcesHandler{
		sources: sources,
		queue:   queue,
		logger:  logger,
	}
}

// ListSourcesHandler handles GET /sources
func (h *SourcesHandler) ListSourcesHandler(w http.ResponseWriter, r *http.Request) {
	sources, err := h.sources.List(r.Context())
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategoryDatabase).
			Msg("Failed to list sources")
		WriteError(w, http.StatusInternalServerError, "Failed to list sources")
		return
	}

	if sources == nil {
		sources = []*models.Source{}
	}
	WriteJSON(w, http.StatusOK, sources)
}

// CreateSourceHandler handles POST /sources
func (h *SourcesHandler) CreateSourceHandler(w http.ResponseWriter, r *http.Request) {
	var source models.Source
	if err := json.NewDecoder(r.Body).Decode(&source); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, err := h.sources.Create(r.Context(), &source); err != nil {
		h.logger.Warn().
			Err(err).
			Str(common.FieldCategory, common.CategoryScrape).
			Str("type", source.SourceType).
			Msg("Source creation rejected")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, &source)
}

// GetSourceHandler handles GET /sources/{id}
func (h *SourcesHandler) GetSourceHandler(w http.ResponseWriter, r *http.Request) {
	id := ExtractIDFromPath(r.URL.Path, "/sources/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Source ID is required")
		return
	}

	source, err := h.sources.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrSourceNotFound) {
			WriteError(w, http.StatusNotFound, "Source not found")
			return
		}
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategoryDatabase).
			Str("source_id", id).
			Msg("Failed to get source")
		WriteError(w, http.StatusInternalServerError, "Failed to get source")
		return
	}

	WriteJSON(w, http.StatusOK, source)
}

// UpdateSourceHandler handles PUT /sources/{id}
func (h *SourcesHandler) UpdateSourceHandler(w http.ResponseWriter, r *http.Request) {
	id := ExtractIDFromPath(r.URL.Path, "/sources/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Source ID is required")
		return
	}

	var source models.Source
	if err := json.NewDecoder(r.Body).Decode(&source); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Path wins over any id in the body.
	source.ID = id

	if err := h.sources.Update(r.Context(), &source); err != nil {
		if errors.Is(err, models.ErrSourceNotFound) {
			WriteError(w, http.StatusNotFound, "Source not found")
			return
		}
		h.logger.Warn().
			Err(err).
			Str(common.FieldCategory, common.CategoryScrape).
			Str("source_id", id).
			Msg("Source update rejected")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, &source)
}

// DeleteSourceHandler handles DELETE /sources/{id}
func (h *SourcesHandler) DeleteSourceHandler(w http.ResponseWriter, r *http.Request) {
	id := ExtractIDFromPath(r.URL.Path, "/sources/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Source ID is required")
		return
	}

	if err := h.sources.Delete(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrSourceNotFound) {
			WriteError(w, http.StatusNotFound, "Source not found")
			return
		}
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategoryDatabase).
			Str("source_id", id).
			Msg("Failed to delete source")
		WriteError(w, http.StatusInternalServerError, "Failed to delete source")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ScrapeSourceHandler handles POST /sources/{id}/scrape. A SCRAPE_SOURCE
// item is queued; the worker runs the scrape on its next poll.
func (h *SourcesHandler) ScrapeSourceHandler(w http.ResponseWriter, r *http.Request) {
	h.queueSourceAction(w, r, models.ItemTypeScrapeSource, "scrape queued")
}

// RecoverSourceHandler handles POST /sources/{id}/recover. A SOURCE_RECOVER
// item is queued; the worker attempts config repair on its next poll.
func (h *SourcesHandler) RecoverSourceHandler(w http.ResponseWriter, r *http.Request) {
	h.queueSourceAction(w, r, models.ItemTypeSourceRecover, "recovery queued")
}

func (h *SourcesHandler) queueSourceAction(w http.ResponseWriter, r *http.Request, itemType models.ItemType, message string) {
	id := ExtractIDFromPath(r.URL.Path, "/sources/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Source ID is required")
		return
	}

	source, err := h.sources.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrSourceNotFound) {
			WriteError(w, http.StatusNotFound, "Source not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to get source")
		return
	}

	itemID, err := h.queue.Add(r.Context(), &models.QueueItem{
		Type:        itemType,
		SourceID:    source.ID,
		SubmittedBy: "api",
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategoryQueue).
			Str("source_id", id).
			Str("item_type", string(itemType)).
			Msg("Failed to queue source action")
		WriteError(w, http.StatusInternalServerError, "Failed to queue source action")
		return
	}

	h.logger.Info().
		Str(common.FieldCategory, common.CategoryQueue).
		Str(common.FieldAction, common.ActionEnqueue).
		Str("source_id", id).
		Str("item_id", itemID).
		Str("item_type", string(itemType)).
		Msg("Source action queued")

	WriteAccepted(w, fmt.Sprintf("%s for %s", message, source.Name), itemID)
}

// EnableSourceHandler handles POST /sources/{id}/enable
func (h *SourcesHandler) EnableSourceHandler(w http.ResponseWriter, r *http.Request) {
	id := ExtractIDFromPath(r.URL.Path, "/sources/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Source ID is required")
		return
	}

	if err := h.sources.Enable(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrSourceNotFound) {
			WriteError(w, http.StatusNotFound, "Source not found")
			return
		}
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategoryScrape).
			Str("source_id", id).
			Msg("Failed to enable source")
		WriteError(w, http.StatusInternalServerError, "Failed to enable source")
		return
	}

	WriteSuccess(w, "source enabled")
}

// DisableSourceHandler handles POST /sources/{id}/disable. An optional JSON
// body may carry operator notes.
func (h *SourcesHandler) DisableSourceHandler(w http.ResponseWriter, r *http.Request) {
	id := ExtractIDFromPath(r.URL.Path, "/sources/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Source ID is required")
		return
	}

	var body struct {
		Notes string `json:"notes"`
	}
	// Body is optional; a decode failure on an empty body is fine.
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Notes == "" {
		body.Notes = "disabled by operator"
	}

	if err := h.sources.Disable(r.Context(), id, body.Notes); err != nil {
		if errors.Is(err, models.ErrSourceNotFound) {
			WriteError(w, http.StatusNotFound, "Source not found")
			return
		}
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategoryScrape).
			Str(common.FieldAction, common.ActionDisable).
			Str("source_id", id).
			Msg("Failed to disable source")
		WriteError(w, http.StatusInternalServerError, "Failed to disable source")
		return
	}

	WriteSuccess(w, "source disabled")
}
