package panicalert

import (
	"log/slog"
	"testing"

	"github.com/avelar/famcare/internal/database"
	"github.com/avelar/famcare/internal/model"
	"github.com/avelar/famcare/internal/store"
)

type fakePauser struct {
	states []bool
}

func (f *fakePauser) SetPanicActive(active bool) {
	f.states = append(f.states, active)
}

type fakeBroadcaster struct {
	alerts []*model.PanicAlert
}

func (f *fakeBroadcaster) BroadcastPanic(alert *model.PanicAlert) {
	f.alerts = append(f.alerts, alert)
}

func setupManager(t *testing.T) (*Manager, *fakePauser, *fakeBroadcaster, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	profiles := store.NewProfileStore(db)

	u, err := users.Create("ana@example.com", "Ana", "secret123")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	p, err := profiles.Create(u.ID, "Vovó Maria", nil, "mother")
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}

	m := NewManager(store.NewPanicAlertStore(db), slog.New(slog.DiscardHandler))
	pauser := &fakePauser{}
	broadcaster := &fakeBroadcaster{}
	m.SetAudioPauser(pauser)
	m.SetBroadcaster(broadcaster)
	return m, pauser, broadcaster, p.ID
}

func TestTriggerCreatesAlertAndPausesAudio(t *testing.T) {
	m, pauser, broadcaster, profileID := setupManager(t)

	alert, err := m.Trigger(profileID)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if alert.Status != model.PanicActive {
		t.Errorf("status = %q, want %q", alert.Status, model.PanicActive)
	}
	if len(pauser.states) != 1 || !pauser.states[0] {
		t.Errorf("pauser states = %v, want [true]", pauser.states)
	}
	if len(broadcaster.alerts) != 1 {
		t.Errorf("broadcasts = %d, want 1", len(broadcaster.alerts))
	}
}

func TestTriggerIdempotentWhileActive(t *testing.T) {
	m, pauser, _, profileID := setupManager(t)

	first, err := m.Trigger(profileID)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	second, err := m.Trigger(profileID)
	if err != nil {
		t.Fatalf("second trigger: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second trigger id = %d, want %d", second.ID, first.ID)
	}
	if len(pauser.states) != 1 {
		t.Errorf("pauser called %d times, want 1", len(pauser.states))
	}
}

func TestResolveClosesAlertAndResumesAudio(t *testing.T) {
	m, pauser, broadcaster, profileID := setupManager(t)

	if _, err := m.Trigger(profileID); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	resolved, err := m.Resolve(profileID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved == nil {
		t.Fatal("expected resolved alert")
	}
	if resolved.Status != model.PanicResolved {
		t.Errorf("status = %q, want %q", resolved.Status, model.PanicResolved)
	}
	if resolved.ResolvedAt == nil {
		t.Error("expected resolved_at to be set")
	}

	want := []bool{true, false}
	if len(pauser.states) != 2 || pauser.states[0] != want[0] || pauser.states[1] != want[1] {
		t.Errorf("pauser states = %v, want %v", pauser.states, want)
	}
	if len(broadcaster.alerts) != 2 {
		t.Errorf("broadcasts = %d, want 2", len(broadcaster.alerts))
	}

	active, err := m.Active(profileID)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active != nil {
		t.Errorf("active = %+v, want nil", active)
	}
}

func TestResolveWithoutActiveAlert(t *testing.T) {
	m, pauser, _, profileID := setupManager(t)

	resolved, err := m.Resolve(profileID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved != nil {
		t.Errorf("resolved = %+v, want nil", resolved)
	}
	if len(pauser.states) != 0 {
		t.Errorf("pauser states = %v, want none", pauser.states)
	}
}
