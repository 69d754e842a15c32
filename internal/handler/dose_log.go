package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/avelar/famcare/internal/auth"
	"github.com/avelar/famcare/internal/model"
	"github.com/avelar/famcare/internal/store"
	"github.com/avelar/famcare/internal/websocket"
)

type DoseLogHandler struct {
	logs        *store.DoseLogStore
	medications *store.MedicationStore
	scheduler   alarmRefresher
	hub         broadcaster
	logger      *slog.Logger
}

func NewDoseLogHandler(logs *store.DoseLogStore, medications *store.MedicationStore, scheduler alarmRefresher, hub broadcaster, logger *slog.Logger) *DoseLogHandler {
	return &DoseLogHandler{logs: logs, medications: medications, scheduler: scheduler, hub: hub, logger: logger}
}

// List handles GET /api/dose-logs?date=YYYY-MM-DD. Defaults to today.
func (h *DoseLogHandler) List(w http.ResponseWriter, r *http.Request) {
	day := time.Now()
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := time.ParseInLocation("2006-01-02", d, time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.Local)
	dayEnd := dayStart.AddDate(0, 0, 1)

	logs, err := h.logs.ListForDay(auth.ProfileID(r.Context()), dayStart, dayEnd)
	if err != nil {
		h.logger.Error("list dose logs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list dose logs")
		return
	}
	if logs == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

type doseLogRequest struct {
	MedicationID int64  `json:"medication_id"`
	ScheduleID   int64  `json:"schedule_id"`
	Status       string `json:"status"`
	ScheduledFor string `json:"scheduled_for"` // RFC 3339
}

// Create handles POST /api/dose-logs. Used to mark a past dose as skipped
// or to back-fill a confirmation outside the ringing flow.
func (h *DoseLogHandler) Create(w http.ResponseWriter, r *http.Request) {
	profileID := auth.ProfileID(r.Context())

	var req doseLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Status != model.DoseConfirmed && req.Status != model.DoseSkipped {
		writeError(w, http.StatusBadRequest, "status must be confirmed or skipped")
		return
	}
	scheduledFor, err := time.Parse(time.RFC3339, req.ScheduledFor)
	if err != nil {
		writeError(w, http.StatusBadRequest, "scheduled_for must be RFC 3339")
		return
	}

	med, err := h.medications.GetByID(req.MedicationID)
	if err != nil {
		h.logger.Error("get medication", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create dose log")
		return
	}
	if med == nil || med.ProfileID != profileID {
		writeError(w, http.StatusNotFound, "medication not found")
		return
	}

	var takenAt *time.Time
	if req.Status == model.DoseConfirmed {
		now := time.Now()
		takenAt = &now
	}

	log, err := h.logs.Insert(profileID, req.MedicationID, req.ScheduleID, req.Status, scheduledFor.In(time.Local), takenAt)
	if errors.Is(err, store.ErrDuplicateLog) {
		writeError(w, http.StatusConflict, "dose already logged for this schedule today")
		return
	}
	if err != nil {
		h.logger.Error("insert dose log", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create dose log")
		return
	}

	// A skipped dose written here must reach the scheduler before its next
	// evaluation, or the alarm still rings against the stale snapshot.
	if err := h.scheduler.Refresh(); err != nil {
		h.logger.Error("refresh alarm after dose log", "error", err)
	}
	if h.hub != nil {
		h.hub.Broadcast(websocket.NewMessage("dose_log", "created", log.ID, nil))
	}

	writeJSON(w, http.StatusCreated, log)
}
