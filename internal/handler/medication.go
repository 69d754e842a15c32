package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/avelar/famcare/internal/auth"
	"github.com/avelar/famcare/internal/model"
	"github.com/avelar/famcare/internal/store"
	"github.com/avelar/famcare/internal/websocket"
)

var timeOfDayRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

var validForms = map[string]bool{
	model.FormTablet:    true,
	model.FormCapsule:   true,
	model.FormDrops:     true,
	model.FormLiquid:    true,
	model.FormInjection: true,
	model.FormOintment:  true,
}

type MedicationHandler struct {
	medications *store.MedicationStore
	scheduler   alarmRefresher
	hub         broadcaster
	logger      *slog.Logger
}

func NewMedicationHandler(medications *store.MedicationStore, scheduler alarmRefresher, hub broadcaster, logger *slog.Logger) *MedicationHandler {
	return &MedicationHandler{medications: medications, scheduler: scheduler, hub: hub, logger: logger}
}

func (h *MedicationHandler) broadcast(action string, id int64) {
	if h.hub != nil {
		h.hub.Broadcast(websocket.NewMessage("medication", action, id, nil))
	}
}

type medicationRequest struct {
	Name      string   `json:"name"`
	Dosage    string   `json:"dosage"`
	Form      string   `json:"form"`
	Stock     int      `json:"stock_quantity"`
	StartDate string   `json:"start_date"` // YYYY-MM-DD
	EndDate   string   `json:"end_date"`   // YYYY-MM-DD, optional
	Times     []string `json:"times"`      // HH:MM
}

func (req *medicationRequest) validate() string {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return "name is required"
	}
	if !validForms[req.Form] {
		return "invalid form"
	}
	if req.Stock < 0 {
		return "stock_quantity cannot be negative"
	}
	if len(req.Times) == 0 {
		return "at least one dose time is required"
	}
	seen := make(map[string]bool)
	for _, t := range req.Times {
		if !timeOfDayRe.MatchString(t) {
			return "times must be HH:MM"
		}
		if seen[t] {
			return "duplicate dose time"
		}
		seen[t] = true
	}
	return ""
}

func (req *medicationRequest) dates() (time.Time, *time.Time, string) {
	start, err := time.ParseInLocation("2006-01-02", req.StartDate, time.Local)
	if err != nil {
		return time.Time{}, nil, "start_date must be YYYY-MM-DD"
	}
	if req.EndDate == "" {
		return start, nil, ""
	}
	end, err := time.ParseInLocation("2006-01-02", req.EndDate, time.Local)
	if err != nil {
		return time.Time{}, nil, "end_date must be YYYY-MM-DD"
	}
	if end.Before(start) {
		return time.Time{}, nil, "end_date cannot precede start_date"
	}
	return start, &end, ""
}

// List handles GET /api/medications
func (h *MedicationHandler) List(w http.ResponseWriter, r *http.Request) {
	meds, err := h.medications.ListByProfile(auth.ProfileID(r.Context()))
	if err != nil {
		h.logger.Error("list medications", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list medications")
		return
	}
	if meds == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, meds)
}

// Get handles GET /api/medications/{id}
func (h *MedicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	med, ok := h.ownedMedication(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, med)
}

// Create handles POST /api/medications. Free-plan accounts are capped at a
// fixed number of active medications per profile.
func (h *MedicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	profileID := auth.ProfileID(r.Context())

	var req medicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	start, end, msg := req.dates()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if auth.Plan(r.Context()) == model.PlanFree {
		count, err := h.medications.CountActiveByProfile(profileID)
		if err != nil {
			h.logger.Error("count medications", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create medication")
			return
		}
		if count >= model.FreePlanMedicationLimit {
			writeError(w, http.StatusPaymentRequired, "free plan medication limit reached")
			return
		}
	}

	med, err := h.medications.Create(profileID, req.Name, req.Dosage, req.Form, req.Stock, start, end, req.Times)
	if err != nil {
		h.logger.Error("create medication", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create medication")
		return
	}

	h.refreshAlarm()
	h.broadcast("created", med.ID)
	writeJSON(w, http.StatusCreated, med)
}

// Update handles PUT /api/medications/{id}
func (h *MedicationHandler) Update(w http.ResponseWriter, r *http.Request) {
	med, ok := h.ownedMedication(w, r)
	if !ok {
		return
	}

	var req medicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	start, end, msg := req.dates()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	updated, err := h.medications.Update(med.ID, req.Name, req.Dosage, req.Form, req.Stock, start, end, req.Times)
	if err != nil {
		h.logger.Error("update medication", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update medication")
		return
	}

	h.refreshAlarm()
	h.broadcast("updated", updated.ID)
	writeJSON(w, http.StatusOK, updated)
}

// Deactivate handles POST /api/medications/{id}/deactivate
func (h *MedicationHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	med, ok := h.ownedMedication(w, r)
	if !ok {
		return
	}

	if err := h.medications.Deactivate(med.ID); err != nil {
		h.logger.Error("deactivate medication", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to deactivate medication")
		return
	}

	h.refreshAlarm()
	h.broadcast("deactivated", med.ID)
	w.WriteHeader(http.StatusNoContent)
}

// Activate handles POST /api/medications/{id}/activate
func (h *MedicationHandler) Activate(w http.ResponseWriter, r *http.Request) {
	med, ok := h.ownedMedication(w, r)
	if !ok {
		return
	}

	if auth.Plan(r.Context()) == model.PlanFree {
		count, err := h.medications.CountActiveByProfile(med.ProfileID)
		if err != nil {
			h.logger.Error("count medications", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to activate medication")
			return
		}
		if count >= model.FreePlanMedicationLimit {
			writeError(w, http.StatusPaymentRequired, "free plan medication limit reached")
			return
		}
	}

	if err := h.medications.Activate(med.ID); err != nil {
		h.logger.Error("activate medication", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to activate medication")
		return
	}

	h.refreshAlarm()
	h.broadcast("activated", med.ID)
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/medications/{id}
func (h *MedicationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	med, ok := h.ownedMedication(w, r)
	if !ok {
		return
	}

	if err := h.medications.Delete(med.ID); err != nil {
		h.logger.Error("delete medication", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete medication")
		return
	}

	h.refreshAlarm()
	h.broadcast("deleted", med.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *MedicationHandler) ownedMedication(w http.ResponseWriter, r *http.Request) (*model.Medication, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}

	med, err := h.medications.GetByID(id)
	if err != nil {
		h.logger.Error("get medication", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load medication")
		return nil, false
	}
	if med == nil || med.ProfileID != auth.ProfileID(r.Context()) {
		writeError(w, http.StatusNotFound, "medication not found")
		return nil, false
	}
	return med, true
}

// refreshAlarm reloads the scheduler snapshot after a medication change so
// the next evaluation sees current data.
func (h *MedicationHandler) refreshAlarm() {
	if err := h.scheduler.Refresh(); err != nil {
		h.logger.Error("refresh alarm after medication change", "error", err)
	}
}
