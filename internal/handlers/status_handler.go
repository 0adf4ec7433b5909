// -----------------------------------------------------------------------
// Status Handler - worker health and queue statistics
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
)

// StatusHandler reports worker health and queue statistics.
type StatusHandler struct {
	worker    interfaces.WorkerController
	queue     interfaces.QueueService
	sources   interfaces.SourceService
	startedAt time.Time
	logger    arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler. startedAt is the process
// start time used for the uptime figure.
func NewStatusHandler(worker interfaces.WorkerController, queue interfaces.QueueService, sources interfaces.SourceService, startedAt time.Time, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		worker:    worker,
		queue:     queue,
		sources:   sources,
		startedAt: startedAt,
		logger:    logger,
	}
}

// HealthHandler handles GET /health. The response carries the worker
// running flag and processing counters so a probe sees liveness and
// progress in one call.
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	stats := h.worker.Stats()
	response := map[string]interface{}{
		"status":          "ok",
		"worker_running":  stats.Running,
		"items_processed": stats.ItemsProcessed,
	}
	if !stats.LastPollAt.IsZero() {
		response["last_poll_at"] = stats.LastPollAt.UTC().Format(time.RFC3339)
	}

	WriteJSON(w, http.StatusOK, response)
}

// StatusResponse is the GET /status payload.
type StatusResponse struct {
	Worker        interfaces.WorkerStats `json:"worker"`
	Queue         map[string]int         `json:"queue"`
	QueueByType   map[string]int         `json:"queue_by_type"`
	Sources       map[string]int         `json:"sources"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Version       string                 `json:"version"`
}

// GetStatusHandler handles GET /status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	ctx := r.Context()

	queueStats, err := h.queue.Stats(ctx)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategoryQueue).
			Msg("Failed to read queue statistics")
		WriteError(w, http.StatusInternalServerError, "Failed to read queue statistics")
		return
	}

	typeStats, err := h.queue.StatsByType(ctx)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategoryQueue).
			Msg("Failed to read queue type statistics")
		WriteError(w, http.StatusInternalServerError, "Failed to read queue statistics")
		return
	}

	sourceStats, err := h.sources.CountByStatus(ctx)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategoryDatabase).
			Msg("Failed to read source statistics")
		WriteError(w, http.StatusInternalServerError, "Failed to read source statistics")
		return
	}

	WriteJSON(w, http.StatusOK, StatusResponse{
		Worker:        h.worker.Stats(),
		Queue:         queueStats,
		QueueByType:   typeStats,
		Sources:       sourceStats,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Version:       common.GetVersion(),
	})
}
