// -----------------------------------------------------------------------
// Worker Handler - queue processor lifecycle control
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
)

// WorkerHandler exposes start/stop/restart for the queue processor.
type WorkerHandler struct {
	worker interfaces.WorkerController
	logger arbor.ILogger
}

// NewWorkerHandler creates a new WorkerHandler
func NewWorkerHandler(worker interfaces.WorkerController, logger arbor.ILogger) *WorkerHandler {
	return &WorkerHandler{
		worker: worker,
		logger: logger,
	}
}

// StartHandler handles POST /start
func (h *WorkerHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if err := h.worker.Start(); err != nil {
		h.logger.Warn().
			Err(err).
			Str(common.FieldCategory, common.CategoryWorker).
			Str(common.FieldAction, common.ActionStart).
			Msg("Worker start rejected")
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	WriteSuccess(w, "worker started")
}

// StopHandler handles POST /stop
func (h *WorkerHandler) StopHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if err := h.worker.Stop(); err != nil {
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategoryWorker).
			Str(common.FieldAction, common.ActionStop).
			Msg("Worker stop failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteSuccess(w, "worker stopped")
}

// RestartHandler handles POST /restart
func (h *WorkerHandler) RestartHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if err := h.worker.Restart(); err != nil {
		h.logger.Error().
			Err(err).
			Str(common.FieldCategory, common.CategoryWorker).
			Str(common.FieldAction, common.ActionStart).
			Msg("Worker restart failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteSuccess(w, "worker restarted")
}
