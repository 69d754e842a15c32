package panicalert

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/avelar/famcare/internal/model"
	"github.com/avelar/famcare/internal/store"
)

// AudioPauser is notified when a panic alert opens or closes so alarm
// audio can yield to the emergency. Satisfied by *alarm.Scheduler.
type AudioPauser interface {
	SetPanicActive(active bool)
}

// Broadcaster pushes a panic status change to connected family devices.
type Broadcaster interface {
	BroadcastPanic(alert *model.PanicAlert)
}

// Manager owns the panic alert lifecycle: trigger, notify, resolve.
// Triggering is idempotent while an alert is already active.
type Manager struct {
	mu          sync.Mutex
	alerts      *store.PanicAlertStore
	pauser      AudioPauser
	broadcaster Broadcaster
	logger      *slog.Logger
}

func NewManager(alerts *store.PanicAlertStore, logger *slog.Logger) *Manager {
	return &Manager{
		alerts: alerts,
		logger: logger.With("component", "panic"),
	}
}

// SetAudioPauser wires the alarm scheduler. Optional; nil means no audio
// coordination.
func (m *Manager) SetAudioPauser(p AudioPauser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauser = p
}

// SetBroadcaster wires the websocket hub. Optional.
func (m *Manager) SetBroadcaster(b Broadcaster) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcaster = b
}

// Trigger opens a panic alert for the profile. If one is already active it
// is returned unchanged so a second press, or a reconnecting client, does
// not stack alerts.
func (m *Manager) Trigger(profileID int64) (*model.PanicAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.alerts.GetActive(profileID)
	if err != nil {
		return nil, fmt.Errorf("check active alert: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	alert, err := m.alerts.Create(profileID)
	if err != nil {
		return nil, fmt.Errorf("create panic alert: %w", err)
	}

	m.logger.Warn("panic alert triggered", "alert_id", alert.ID, "profile_id", profileID)

	if m.pauser != nil {
		m.pauser.SetPanicActive(true)
	}
	if m.broadcaster != nil {
		m.broadcaster.BroadcastPanic(alert)
	}
	return alert, nil
}

// Resolve closes the active alert for the profile. Resolving when nothing
// is active is a no-op.
func (m *Manager) Resolve(profileID int64) (*model.PanicAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alert, err := m.alerts.GetActive(profileID)
	if err != nil {
		return nil, fmt.Errorf("check active alert: %w", err)
	}
	if alert == nil {
		return nil, nil
	}

	if err := m.alerts.Resolve(alert.ID); err != nil {
		return nil, fmt.Errorf("resolve panic alert: %w", err)
	}

	resolved, err := m.alerts.GetByID(alert.ID)
	if err != nil {
		return nil, fmt.Errorf("reload panic alert: %w", err)
	}

	m.logger.Info("panic alert resolved", "alert_id", alert.ID, "profile_id", profileID)

	if m.pauser != nil {
		m.pauser.SetPanicActive(false)
	}
	if m.broadcaster != nil {
		m.broadcaster.BroadcastPanic(resolved)
	}
	return resolved, nil
}

// Active returns the open alert for the profile, or nil.
func (m *Manager) Active(profileID int64) (*model.PanicAlert, error) {
	return m.alerts.GetActive(profileID)
}
