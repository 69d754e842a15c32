package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avelar/famcare/internal/auth"
	"github.com/avelar/famcare/internal/model"
	"github.com/avelar/famcare/internal/store"
	"github.com/avelar/famcare/internal/websocket"
)

type AppointmentHandler struct {
	appointments *store.AppointmentStore
	hub          broadcaster
	logger       *slog.Logger
}

func NewAppointmentHandler(appointments *store.AppointmentStore, hub broadcaster, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{appointments: appointments, hub: hub, logger: logger}
}

func (h *AppointmentHandler) broadcast(action string, id int64) {
	if h.hub != nil {
		h.hub.Broadcast(websocket.NewMessage("appointment", action, id, nil))
	}
}

type appointmentRequest struct {
	Doctor    string `json:"doctor"`
	Specialty string `json:"specialty"`
	Location  string `json:"location"`
	StartsAt  string `json:"starts_at"` // RFC 3339
	Notes     string `json:"notes"`
}

func (req *appointmentRequest) validate() (time.Time, string) {
	req.Doctor = strings.TrimSpace(req.Doctor)
	if req.Doctor == "" {
		return time.Time{}, "doctor is required"
	}
	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		return time.Time{}, "starts_at must be RFC 3339"
	}
	return startsAt, ""
}

// List handles GET /api/appointments
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	appts, err := h.appointments.ListByProfile(auth.ProfileID(r.Context()))
	if err != nil {
		h.logger.Error("list appointments", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list appointments")
		return
	}
	if appts == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, appts)
}

// Create handles POST /api/appointments
func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	startsAt, msg := req.validate()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	appt, err := h.appointments.Create(auth.ProfileID(r.Context()), req.Doctor, req.Specialty, req.Location, startsAt, req.Notes)
	if err != nil {
		h.logger.Error("create appointment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create appointment")
		return
	}
	h.broadcast("created", appt.ID)
	writeJSON(w, http.StatusCreated, appt)
}

// Update handles PUT /api/appointments/{id}
func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	appt, ok := h.ownedAppointment(w, r)
	if !ok {
		return
	}

	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	startsAt, msg := req.validate()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	updated, err := h.appointments.Update(appt.ID, req.Doctor, req.Specialty, req.Location, startsAt, req.Notes)
	if err != nil {
		h.logger.Error("update appointment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update appointment")
		return
	}
	h.broadcast("updated", updated.ID)
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/appointments/{id}
func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	appt, ok := h.ownedAppointment(w, r)
	if !ok {
		return
	}

	if err := h.appointments.Delete(appt.ID); err != nil {
		h.logger.Error("delete appointment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete appointment")
		return
	}
	h.broadcast("deleted", appt.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AppointmentHandler) ownedAppointment(w http.ResponseWriter, r *http.Request) (*model.Appointment, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}

	appt, err := h.appointments.GetByID(id)
	if err != nil {
		h.logger.Error("get appointment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load appointment")
		return nil, false
	}
	if appt == nil || appt.ProfileID != auth.ProfileID(r.Context()) {
		writeError(w, http.StatusNotFound, "appointment not found")
		return nil, false
	}
	return appt, true
}
