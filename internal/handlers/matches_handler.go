// -----------------------------------------------------------------------
// Matches Handler - read access to the published match store
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// MatchesHandler exposes the published matches the pipeline has saved.
type MatchesHandler struct {
	published interfaces.PublishedStore
	logger    arbor.ILogger
}

// NewMatchesHandler creates a new MatchesHandler
func NewMatchesHandler(published interfaces.PublishedStore, logger arbor.ILogger) *MatchesHandler {
	return &MatchesHandler{
		published: published,
		logger:    logger,
	}
}

// ListMatchesHandler handles GET /matches. Query parameters: min_score,
// status, company, tracking_id, limit.
func (h *MatchesHandler) ListMatchesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	q := r.URL.Query()
	filters := models.MatchFilters{
		MinScore:   QueryInt(r, "min_score", 0),
		Status:     q.Get("status"),
		Company:    q.Get("company"),
		TrackingID: q.Get("tracking_id"),
		Limit:      QueryInt(r, "limit", 50),
	}

	matches, err := h.published.GetMatches(r.Context(), filters)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategoryDatabase).
			Msg("Failed to list matches")
		WriteError(w, http.StatusInternalServerError, "Failed to list matches")
		return
	}

	if matches == nil {
		matches = []*models.JobMatch{}
	}
	WriteJSON(w, http.StatusOK, matches)
}
