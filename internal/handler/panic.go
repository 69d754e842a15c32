package handler

import (
	"log/slog"
	"net/http"

	"github.com/avelar/famcare/internal/auth"
	"github.com/avelar/famcare/internal/panicalert"
)

type PanicHandler struct {
	manager *panicalert.Manager
	logger  *slog.Logger
}

func NewPanicHandler(manager *panicalert.Manager, logger *slog.Logger) *PanicHandler {
	return &PanicHandler{manager: manager, logger: logger}
}

// Trigger handles POST /api/panic. The client only calls this after the
// press-and-hold gesture completes.
func (h *PanicHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	alert, err := h.manager.Trigger(auth.ProfileID(r.Context()))
	if err != nil {
		h.logger.Error("trigger panic alert", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to trigger panic alert")
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

// Resolve handles POST /api/panic/resolve
func (h *PanicHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	alert, err := h.manager.Resolve(auth.ProfileID(r.Context()))
	if err != nil {
		h.logger.Error("resolve panic alert", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve panic alert")
		return
	}
	if alert == nil {
		writeError(w, http.StatusNotFound, "no active panic alert")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// Status handles GET /api/panic
func (h *PanicHandler) Status(w http.ResponseWriter, r *http.Request) {
	alert, err := h.manager.Active(auth.ProfileID(r.Context()))
	if err != nil {
		h.logger.Error("get panic status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load panic status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active": alert != nil,
		"alert":  alert,
	})
}
