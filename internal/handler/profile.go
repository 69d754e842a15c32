package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avelar/famcare/internal/alarm"
	"github.com/avelar/famcare/internal/auth"
	"github.com/avelar/famcare/internal/model"
	"github.com/avelar/famcare/internal/store"
)

type ProfileHandler struct {
	profiles  *store.ProfileStore
	sessions  *store.SessionStore
	scheduler *alarm.Scheduler
	logger    *slog.Logger
}

func NewProfileHandler(profiles *store.ProfileStore, sessions *store.SessionStore, scheduler *alarm.Scheduler, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, sessions: sessions, scheduler: scheduler, logger: logger}
}

type profileRequest struct {
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"` // YYYY-MM-DD, optional
	Relation  string `json:"relation"`
}

func (req *profileRequest) birthDate() (*time.Time, error) {
	if req.BirthDate == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", req.BirthDate)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List handles GET /api/profiles
func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profiles.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list profiles", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list profiles")
		return
	}
	if profiles == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

// Create handles POST /api/profiles
func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	bd, err := req.birthDate()
	if err != nil {
		writeError(w, http.StatusBadRequest, "birth_date must be YYYY-MM-DD")
		return
	}

	p, err := h.profiles.Create(auth.UserID(r.Context()), req.Name, bd, req.Relation)
	if err != nil {
		h.logger.Error("create profile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create profile")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Update handles PUT /api/profiles/{id}
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedProfile(w, r)
	if !ok {
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	bd, err := req.birthDate()
	if err != nil {
		writeError(w, http.StatusBadRequest, "birth_date must be YYYY-MM-DD")
		return
	}

	updated, err := h.profiles.Update(p.ID, req.Name, bd, req.Relation)
	if err != nil {
		h.logger.Error("update profile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/profiles/{id}
func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedProfile(w, r)
	if !ok {
		return
	}

	if err := h.profiles.Delete(p.ID); err != nil {
		h.logger.Error("delete profile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete profile")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Select handles POST /api/profiles/{id}/select. It rebinds the session and
// the alarm scheduler to the chosen profile.
func (h *ProfileHandler) Select(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedProfile(w, r)
	if !ok {
		return
	}

	ac, _ := auth.FromContext(r.Context())
	if err := h.sessions.SetProfile(ac.SessionID, p.ID); err != nil {
		h.logger.Error("set session profile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to select profile")
		return
	}

	if err := h.scheduler.BindProfile(p.ID); err != nil {
		h.logger.Error("bind alarm profile", "profile_id", p.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to select profile")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// ownedProfile loads the {id} profile and checks it belongs to the caller.
func (h *ProfileHandler) ownedProfile(w http.ResponseWriter, r *http.Request) (*model.Profile, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}

	profile, err := h.profiles.GetByID(id)
	if err != nil {
		h.logger.Error("get profile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return nil, false
	}
	if profile == nil || profile.UserID != auth.UserID(r.Context()) {
		writeError(w, http.StatusNotFound, "profile not found")
		return nil, false
	}
	return profile, true
}
