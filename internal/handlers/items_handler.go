// -----------------------------------------------------------------------
// Items Handler - queue item submission, inspection, and control
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// ItemsHandler is the external submitter entry point plus the admin view
// over the queue.
type ItemsHandler struct {
	queue  interfaces.QueueService
	events interfaces.EventService
	logger arbor.ILogger
}

// NewItemsHandler creates a new ItemsHandler
func NewItemsHandler(queue interfaces.QueueService, events interfaces.EventService, logger arbor.ILogger) *ItemsHandler {
	return &ItemsHandler{
		queue:  queue,
		events: events,
		logger: logger,
	}
}

// SubmitItemHandler handles POST /items. Per-kind required fields are
// enforced by the queue service; a duplicate URL maps to 409.
func (h *ItemsHandler) SubmitItemHandler(w http.ResponseWriter, r *http.Request) {
	var item models.QueueItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if item.SubmittedBy == "" {
		item.SubmittedBy = "api"
	}

	id, err := h.queue.Add(r.Context(), &item)
	if err != nil {
		if models.IsDuplicateItem(err) {
			WriteError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Warn().
			Err(err).
			Str(common.FieldCategory, common.CategoryQueue).
			Str("item_type", string(item.Type)).
			Msg("Item submission rejected")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info().
		Str(common.FieldCategory, common.CategoryQueue).
		Str(common.FieldAction, common.ActionEnqueue).
		Str("item_id", id).
		Str("item_type", string(item.Type)).
		Str("submitted_by", item.SubmittedBy).
		Msg("Item submitted via API")

	WriteJSON(w, http.StatusCreated, &item)
}

// ListItemsHandler handles GET /items. Optional query parameters: status
// (one of the item statuses) and limit (default 50).
func (h *ItemsHandler) ListItemsHandler(w http.ResponseWriter, r *http.Request) {
	status := models.ItemStatus(r.URL.Query().Get("status"))
	if status != "" && !validItemStatus(status) {
		WriteError(w, http.StatusBadRequest, "Unknown status filter")
		return
	}
	limit := QueryInt(r, "limit", 50)

	items, err := h.queue.List(r.Context(), status, limit)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategoryQueue).
			Msg("Failed to list queue items")
		WriteError(w, http.StatusInternalServerError, "Failed to list queue items")
		return
	}

	if items == nil {
		items = []*models.QueueItem{}
	}
	WriteJSON(w, http.StatusOK, items)
}

// GetItemHandler handles GET /items/{id}
func (h *ItemsHandler) GetItemHandler(w http.ResponseWriter, r *http.Request) {
	id := ExtractIDFromPath(r.URL.Path, "/items/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Item ID is required")
		return
	}

	item, err := h.queue.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrItemNotFound) {
			WriteError(w, http.StatusNotFound, "Item not found")
			return
		}
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategoryQueue).
			Str("item_id", id).
			Msg("Failed to get queue item")
		WriteError(w, http.StatusInternalServerError, "Failed to get queue item")
		return
	}

	WriteJSON(w, http.StatusOK, item)
}

// RetryItemHandler handles POST /items/{id}/retry
func (h *ItemsHandler) RetryItemHandler(w http.ResponseWriter, r *http.Request) {
	id := ExtractIDFromPath(r.URL.Path, "/items/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Item ID is required")
		return
	}

	retried, err := h.queue.Retry(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrItemNotFound) {
			WriteError(w, http.StatusNotFound, "Item not found")
			return
		}
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategoryQueue).
			Str("item_id", id).
			Msg("Failed to retry queue item")
		WriteError(w, http.StatusInternalServerError, "Failed to retry queue item")
		return
	}
	if !retried {
		WriteError(w, http.StatusConflict, "Item is not in a retryable state")
		return
	}

	WriteSuccess(w, "item requeued")
}

// CancelItemHandler handles POST /items/{id}/cancel. The cancel command is
// published synchronously; the queue service marks the item SKIPPED unless
// it already reached a terminal status.
func (h *ItemsHandler) CancelItemHandler(w http.ResponseWriter, r *http.Request) {
	id := ExtractIDFromPath(r.URL.Path, "/items/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Item ID is required")
		return
	}

	if _, err := h.queue.Get(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrItemNotFound) {
			WriteError(w, http.StatusNotFound, "Item not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to get queue item")
		return
	}

	err := h.events.PublishSync(r.Context(), interfaces.Event{
		Type:    interfaces.EventCommandCancel,
		Payload: map[string]string{"item_id": id},
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategoryQueue).
			Str(common.FieldAction, common.ActionCancel).
			Str("item_id", id).
			Msg("Cancel command failed")
		WriteError(w, http.StatusInternalServerError, "Failed to cancel queue item")
		return
	}

	WriteSuccess(w, "item cancelled")
}

// DeleteItemHandler handles DELETE /items/{id}
func (h *ItemsHandler) DeleteItemHandler(w http.ResponseWriter, r *http.Request) {
	id := ExtractIDFromPath(r.URL.Path, "/items/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Item ID is required")
		return
	}

	deleted, err := h.queue.Delete(r.Context(), id)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategoryQueue).
			Str("item_id", id).
			Msg("Failed to delete queue item")
		WriteError(w, http.StatusInternalServerError, "Failed to delete queue item")
		return
	}
	if !deleted {
		WriteError(w, http.StatusNotFound, "Item not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// validItemStatus reports whether the status filter names a known status.
func validItemStatus(status models.ItemStatus) bool {
	switch status {
	case models.StatusPending, models.StatusProcessing, models.StatusSuccess,
		models.StatusFailed, models.StatusFiltered, models.StatusSkipped:
		return true
	}
	return false
}
