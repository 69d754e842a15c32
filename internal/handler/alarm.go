package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/avelar/famcare/internal/alarm"
	"github.com/avelar/famcare/internal/store"
)

// Snooze durations accepted by the client, in minutes.
var allowedSnoozes = map[int]bool{5: true, 10: true, 15: true, 30: true, 60: true}

type AlarmHandler struct {
	scheduler *alarm.Scheduler
	logger    *slog.Logger
}

func NewAlarmHandler(scheduler *alarm.Scheduler, logger *slog.Logger) *AlarmHandler {
	return &AlarmHandler{scheduler: scheduler, logger: logger}
}

// Snapshot handles GET /api/alarm
func (h *AlarmHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Snapshot())
}

type confirmRequest struct {
	MedicationID int64 `json:"medication_id"`
	ScheduleID   int64 `json:"schedule_id"`
}

// Confirm handles POST /api/alarm/confirm
func (h *AlarmHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	err := h.scheduler.Confirm(req.MedicationID, req.ScheduleID)
	switch {
	case errors.Is(err, alarm.ErrDoseNotActive):
		writeError(w, http.StatusConflict, "dose is not currently ringing")
		return
	case errors.Is(err, store.ErrDuplicateLog):
		writeError(w, http.StatusConflict, "dose already logged today")
		return
	case err != nil:
		h.logger.Error("confirm dose", "medication_id", req.MedicationID, "schedule_id", req.ScheduleID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to confirm dose")
		return
	}

	writeJSON(w, http.StatusOK, h.scheduler.Snapshot())
}

type snoozeRequest struct {
	Minutes int `json:"minutes"`
}

// Snooze handles POST /api/alarm/snooze
func (h *AlarmHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	var req snoozeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !allowedSnoozes[req.Minutes] {
		writeError(w, http.StatusBadRequest, "invalid snooze duration")
		return
	}

	err := h.scheduler.Snooze(req.Minutes)
	switch {
	case errors.Is(err, alarm.ErrNotRinging):
		writeError(w, http.StatusConflict, "no alarm is ringing")
		return
	case err != nil:
		h.logger.Error("snooze alarm", "minutes", req.Minutes, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to snooze alarm")
		return
	}

	writeJSON(w, http.StatusOK, h.scheduler.Snapshot())
}

// Mute handles POST /api/alarm/mute
func (h *AlarmHandler) Mute(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Mute()
	writeJSON(w, http.StatusOK, h.scheduler.Snapshot())
}

// Unmute handles POST /api/alarm/unmute
func (h *AlarmHandler) Unmute(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Unmute()
	writeJSON(w, http.StatusOK, h.scheduler.Snapshot())
}
