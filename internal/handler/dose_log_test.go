package handler

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/avelar/famcare/internal/model"
	"github.com/avelar/famcare/internal/store"
)

func setupDoseLogHandler(t *testing.T) (*DoseLogHandler, *stubRefresher, *stubBroadcaster, *model.Medication, int64, int64) {
	t.Helper()
	db, userID, profileID := setupHandlerDB(t)

	meds := store.NewMedicationStore(db)
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.Local)
	med, err := meds.Create(profileID, "Losartana", "50mg", model.FormTablet, 10, start, nil, []string{"08:00"})
	if err != nil {
		t.Fatalf("create medication: %v", err)
	}

	refresher := &stubRefresher{}
	hub := &stubBroadcaster{}
	h := NewDoseLogHandler(store.NewDoseLogStore(db), meds, refresher, hub, slog.New(slog.DiscardHandler))
	return h, refresher, hub, med, userID, profileID
}

func TestDoseLogCreateRefreshesAlarm(t *testing.T) {
	h, refresher, hub, med, userID, profileID := setupDoseLogHandler(t)

	body := map[string]any{
		"medication_id": med.ID,
		"schedule_id":   med.Schedules[0].ID,
		"status":        model.DoseSkipped,
		"scheduled_for": time.Now().Format(time.RFC3339),
	}
	rec := httptest.NewRecorder()
	h.Create(rec, authedRequest(t, http.MethodPost, "/api/dose-logs", body, userID, profileID))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	// A dose skipped through this endpoint must reach the scheduler before
	// its next evaluation, or the alarm rings against the stale snapshot.
	if refresher.calls != 1 {
		t.Errorf("refresh calls = %d, want 1", refresher.calls)
	}
	if got := hub.types(); len(got) != 1 || got[0] != "dose_log_created" {
		t.Errorf("broadcasts = %v, want [dose_log_created]", got)
	}
}

func TestDoseLogCreateInvalidDoesNotRefresh(t *testing.T) {
	h, refresher, hub, med, userID, profileID := setupDoseLogHandler(t)

	body := map[string]any{
		"medication_id": med.ID,
		"schedule_id":   med.Schedules[0].ID,
		"status":        model.DoseMissed, // not accepted from the UI
		"scheduled_for": time.Now().Format(time.RFC3339),
	}
	rec := httptest.NewRecorder()
	h.Create(rec, authedRequest(t, http.MethodPost, "/api/dose-logs", body, userID, profileID))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if refresher.calls != 0 {
		t.Errorf("refresh calls = %d, want 0 for a rejected log", refresher.calls)
	}
	if len(hub.msgs) != 0 {
		t.Errorf("broadcasts = %v, want none", hub.types())
	}
}

func TestDoseLogCreateDuplicateDoesNotRefresh(t *testing.T) {
	h, refresher, hub, med, userID, profileID := setupDoseLogHandler(t)

	scheduledFor := time.Now().Format(time.RFC3339)
	body := map[string]any{
		"medication_id": med.ID,
		"schedule_id":   med.Schedules[0].ID,
		"status":        model.DoseSkipped,
		"scheduled_for": scheduledFor,
	}

	rec := httptest.NewRecorder()
	h.Create(rec, authedRequest(t, http.MethodPost, "/api/dose-logs", body, userID, profileID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("first insert status = %d, want 201", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Create(rec, authedRequest(t, http.MethodPost, "/api/dose-logs", body, userID, profileID))
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", rec.Code)
	}
	if refresher.calls != 1 {
		t.Errorf("refresh calls = %d, want 1 (only the successful insert)", refresher.calls)
	}
	if len(hub.msgs) != 1 {
		t.Errorf("broadcasts = %v, want one", hub.types())
	}
}
