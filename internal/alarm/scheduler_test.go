package alarm

import (
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/avelar/famcare/internal/model"
	"github.com/avelar/famcare/internal/store"
)

type fakeDataSource struct {
	meds      []model.Medication
	logs      []model.DoseLog
	audits    []model.SnoozeAudit
	nextLogID int64

	insertErr error
	listErr   error
}

func (f *fakeDataSource) ListMedications(profileID int64) ([]model.Medication, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Medication, len(f.meds))
	copy(out, f.meds)
	return out, nil
}

func (f *fakeDataSource) ListTodayLogs(profileID int64, dayStart, dayEnd time.Time) ([]model.DoseLog, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.DoseLog, len(f.logs))
	copy(out, f.logs)
	return out, nil
}

func (f *fakeDataSource) InsertDoseLog(profileID, medicationID, scheduleID int64, status string, scheduledFor time.Time, takenAt *time.Time) (*model.DoseLog, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.nextLogID++
	l := model.DoseLog{
		ID:           f.nextLogID,
		ProfileID:    profileID,
		MedicationID: medicationID,
		ScheduleID:   scheduleID,
		Status:       status,
		ScheduledFor: scheduledFor,
		TakenAt:      takenAt,
	}
	f.logs = append(f.logs, l)
	return &l, nil
}

func (f *fakeDataSource) DecrementStock(medicationID int64) error {
	for i := range f.meds {
		if f.meds[i].ID == medicationID {
			if f.meds[i].StockQuantity <= 0 {
				return errors.New("stock depleted")
			}
			f.meds[i].StockQuantity--
			return nil
		}
	}
	return errors.New("medication not found")
}

func (f *fakeDataSource) InsertSnoozeAudit(profileID, medicationID, scheduleID int64, minutes int) error {
	f.audits = append(f.audits, model.SnoozeAudit{
		ProfileID:    profileID,
		MedicationID: medicationID,
		ScheduleID:   scheduleID,
		Minutes:      minutes,
	})
	return nil
}

func medication(id int64, name, form string, stock int, times ...string) model.Medication {
	m := model.Medication{
		ID:            id,
		ProfileID:     1,
		Name:          name,
		Form:          form,
		Active:        true,
		StockQuantity: stock,
		StartDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local),
	}
	for i, tod := range times {
		m.Schedules = append(m.Schedules, model.DoseSchedule{
			ID:           id*100 + int64(i),
			MedicationID: id,
			TimeOfDay:    tod,
		})
	}
	return m
}

func localTime(t *testing.T, hour, min, sec int) time.Time {
	t.Helper()
	return time.Date(2025, 3, 10, hour, min, sec, 0, time.Local)
}

func setupScheduler(t *testing.T, ds *fakeDataSource, now time.Time) *Scheduler {
	t.Helper()
	cache, err := LoadSnoozeCache(filepath.Join(t.TempDir(), "snoozes.json"))
	if err != nil {
		t.Fatalf("load snooze cache: %v", err)
	}

	s := NewScheduler(ds, cache, slog.New(slog.DiscardHandler))
	s.now = func() time.Time { return now }
	if err := s.BindProfile(1); err != nil {
		t.Fatalf("bind profile: %v", err)
	}
	return s
}

func TestFiresDueDoseWithinGraceWindow(t *testing.T) {
	ds := &fakeDataSource{meds: []model.Medication{
		medication(1, "Losartana", model.FormTablet, 10, "08:00"),
	}}
	s := setupScheduler(t, ds, localTime(t, 8, 3, 0))

	snap := s.Snapshot()
	if snap.State != StateRinging {
		t.Fatalf("state = %q, want %q", snap.State, StateRinging)
	}
	if len(snap.ActiveDoses) != 1 {
		t.Fatalf("active doses = %d, want 1", len(snap.ActiveDoses))
	}
	if snap.ActiveDoses[0].Medication.Name != "Losartana" {
		t.Errorf("medication = %q, want Losartana", snap.ActiveDoses[0].Medication.Name)
	}
	if got := snap.ActiveDoses[0].ScheduledFor; got.Hour() != 8 || got.Minute() != 0 {
		t.Errorf("scheduled_for = %v, want 08:00 today", got)
	}
	if !snap.AudioPlaying {
		t.Error("expected audio playing while ringing and unmuted")
	}
}

func TestNotYetDue(t *testing.T) {
	ds := &fakeDataSource{meds: []model.Medication{
		medication(1, "Losartana", model.FormTablet, 10, "09:00"),
	}}
	s := setupScheduler(t, ds, localTime(t, 8, 30, 0))

	if snap := s.Snapshot(); snap.State != StateIdle {
		t.Fatalf("state = %q, want idle for a future dose", snap.State)
	}
}

func TestGraceWindowBoundary(t *testing.T) {
	cases := []struct {
		name     string
		min, sec int
		want     State
	}{
		{"59 minutes late fires", 59, 0, StateRinging},
		{"exactly 60 minutes late does not fire", 0, 0, StateIdle},
		{"61 minutes late does not fire", 1, 0, StateIdle},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hour := 8
			if tc.want == StateIdle {
				hour = 9
			}
			ds := &fakeDataSource{meds: []model.Medication{
				medication(1, "Losartana", model.FormTablet, 10, "08:00"),
			}}
			s := setupScheduler(t, ds, localTime(t, hour, tc.min, tc.sec))

			if snap := s.Snapshot(); snap.State != tc.want {
				t.Errorf("state = %q, want %q", snap.State, tc.want)
			}
		})
	}
}

func TestTerminalLogSuppressesFiring(t *testing.T) {
	for _, status := range []string{model.DoseConfirmed, model.DoseSkipped} {
		t.Run(status, func(t *testing.T) {
			ds := &fakeDataSource{
				meds: []model.Medication{medication(1, "Losartana", model.FormTablet, 10, "08:00")},
				logs: []model.DoseLog{{ScheduleID: 100, Status: status}},
			}
			s := setupScheduler(t, ds, localTime(t, 8, 3, 0))

			if snap := s.Snapshot(); snap.State != StateIdle {
				t.Errorf("state = %q, want idle with %s log present", snap.State, status)
			}
		})
	}
}

func TestMissedLogDoesNotSuppress(t *testing.T) {
	ds := &fakeDataSource{
		meds: []model.Medication{medication(1, "Losartana", model.FormTablet, 10, "08:00")},
		logs: []model.DoseLog{{ScheduleID: 100, Status: model.DoseMissed}},
	}
	s := setupScheduler(t, ds, localTime(t, 8, 3, 0))

	if snap := s.Snapshot(); snap.State != StateRinging {
		t.Errorf("state = %q, want ringing: a missed log is not terminal", snap.State)
	}
}

func TestMinuteDedup(t *testing.T) {
	ds := &fakeDataSource{
		meds: []model.Medication{medication(1, "Losartana", model.FormTablet, 10, "08:00")},
		logs: []model.DoseLog{{ScheduleID: 100, Status: model.DoseConfirmed}},
	}

	now := localTime(t, 8, 3, 1)
	s := setupScheduler(t, ds, now)
	if snap := s.Snapshot(); snap.State != StateIdle {
		t.Fatalf("state = %q, want idle while log present", snap.State)
	}

	// Log disappears (edited elsewhere), but a refresh within the same
	// minute must not re-evaluate.
	ds.logs = nil
	s.now = func() time.Time { return localTime(t, 8, 3, 40) }
	if err := s.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if snap := s.Snapshot(); snap.State != StateIdle {
		t.Fatalf("state = %q, want idle: minute 08:03 was already evaluated", snap.State)
	}

	// Next minute re-evaluates and fires.
	s.now = func() time.Time { return localTime(t, 8, 4, 10) }
	s.tick()
	if snap := s.Snapshot(); snap.State != StateRinging {
		t.Fatalf("state = %q, want ringing in the next minute", snap.State)
	}
}

func TestRingingBlocksReevaluation(t *testing.T) {
	ds := &fakeDataSource{meds: []model.Medication{
		medication(1, "Losartana", model.FormTablet, 10, "08:00"),
		medication(2, "Metformina", model.FormTablet, 10, "08:05"),
	}}
	s := setupScheduler(t, ds, localTime(t, 8, 3, 0))

	if snap := s.Snapshot(); len(snap.ActiveDoses) != 1 {
		t.Fatalf("active doses = %d, want 1", len(snap.ActiveDoses))
	}

	// The 08:05 dose becomes due, but the active prompt is not interrupted.
	s.now = func() time.Time { return localTime(t, 8, 6, 0) }
	s.tick()
	if snap := s.Snapshot(); len(snap.ActiveDoses) != 1 {
		t.Errorf("active doses = %d, want still 1 while ringing", len(snap.ActiveDoses))
	}
}

func TestConfirmWritesLogAndDecrementsStock(t *testing.T) {
	ds := &fakeDataSource{meds: []model.Medication{
		medication(1, "Losartana", model.FormTablet, 5, "08:00"),
	}}
	now := localTime(t, 8, 5, 0)
	s := setupScheduler(t, ds, now)

	if err := s.Confirm(1, 100); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if len(ds.logs) != 1 {
		t.Fatalf("logs = %d, want 1", len(ds.logs))
	}
	l := ds.logs[0]
	if l.Status != model.DoseConfirmed {
		t.Errorf("status = %q, want confirmed", l.Status)
	}
	if l.TakenAt == nil || !l.TakenAt.Equal(now) {
		t.Errorf("taken_at = %v, want %v", l.TakenAt, now)
	}
	if l.ScheduledFor.Hour() != 8 || l.ScheduledFor.Minute() != 0 {
		t.Errorf("scheduled_for = %v, want 08:00", l.ScheduledFor)
	}
	if ds.meds[0].StockQuantity != 4 {
		t.Errorf("stock = %d, want 4", ds.meds[0].StockQuantity)
	}
	if snap := s.Snapshot(); snap.State != StateIdle {
		t.Errorf("state = %q, want idle after confirming the only dose", snap.State)
	}

	// The confirmed log now suppresses re-firing for the rest of the day.
	s.now = func() time.Time { return localTime(t, 8, 10, 0) }
	s.tick()
	if snap := s.Snapshot(); snap.State != StateIdle {
		t.Errorf("state = %q, want idle after terminal log", snap.State)
	}
}

func TestConfirmLiquidFormKeepsStock(t *testing.T) {
	ds := &fakeDataSource{meds: []model.Medication{
		medication(1, "Dipirona gotas", model.FormDrops, 3, "08:00"),
	}}
	s := setupScheduler(t, ds, localTime(t, 8, 5, 0))

	if err := s.Confirm(1, 100); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if ds.meds[0].StockQuantity != 3 {
		t.Errorf("stock = %d, want 3: drops never decrement", ds.meds[0].StockQuantity)
	}
}

func TestConfirmWriteFailureKeepsDoseActive(t *testing.T) {
	ds := &fakeDataSource{meds: []model.Medication{
		medication(1, "Losartana", model.FormTablet, 5, "08:00"),
	}}
	s := setupScheduler(t, ds, localTime(t, 8, 5, 0))

	ds.insertErr = errors.New("network down")
	if err := s.Confirm(1, 100); err == nil {
		t.Fatal("expected confirm error")
	}

	snap := s.Snapshot()
	if snap.State != StateRinging {
		t.Errorf("state = %q, want still ringing after failed write", snap.State)
	}
	if len(snap.ActiveDoses) != 1 {
		t.Errorf("active doses = %d, want 1 (retryable)", len(snap.ActiveDoses))
	}
	if ds.meds[0].StockQuantity != 5 {
		t.Errorf("stock = %d, want untouched 5", ds.meds[0].StockQuantity)
	}

	// Retry succeeds.
	ds.insertErr = nil
	if err := s.Confirm(1, 100); err != nil {
		t.Fatalf("retry confirm: %v", err)
	}
	if snap := s.Snapshot(); snap.State != StateIdle {
		t.Errorf("state = %q, want idle after retry", snap.State)
	}
}

func TestConfirmDuplicateFromAnotherDevice(t *testing.T) {
	ds := &fakeDataSource{meds: []model.Medication{
		medication(1, "Losartana", model.FormTablet, 10, "08:00"),
	}}
	s := setupScheduler(t, ds, localTime(t, 8, 3, 0))

	if snap := s.Snapshot(); snap.State != StateRinging {
		t.Fatalf("state = %q, want ringing", snap.State)
	}

	// Another device confirmed first: the store refuses a second terminal
	// log and the refetch returns the remote one.
	taken := localTime(t, 8, 2, 0)
	ds.logs = append(ds.logs, model.DoseLog{
		ID: 1, ProfileID: 1, MedicationID: 1, ScheduleID: 100,
		Status: model.DoseConfirmed, ScheduledFor: localTime(t, 8, 0, 0), TakenAt: &taken,
	})
	ds.insertErr = store.ErrDuplicateLog

	err := s.Confirm(1, 100)
	if !errors.Is(err, store.ErrDuplicateLog) {
		t.Fatalf("confirm error = %v, want ErrDuplicateLog", err)
	}

	snap := s.Snapshot()
	if snap.State != StateIdle {
		t.Errorf("state = %q, want idle once the remote log is settled", snap.State)
	}
	if len(snap.ActiveDoses) != 0 {
		t.Errorf("active doses = %d, want 0", len(snap.ActiveDoses))
	}
	if ds.meds[0].StockQuantity != 10 {
		t.Errorf("stock = %d, want untouched 10", ds.meds[0].StockQuantity)
	}

	// The refetched terminal log keeps the dose quiet in later minutes.
	ds.insertErr = nil
	s.now = func() time.Time { return localTime(t, 8, 4, 0) }
	s.tick()
	if snap := s.Snapshot(); snap.State != StateIdle {
		t.Errorf("state = %q, want idle after refetch", snap.State)
	}
}

func TestConfirmUnknownDose(t *testing.T) {
	ds := &fakeDataSource{meds: []model.Medication{
		medication(1, "Losartana", model.FormTablet, 5, "08:00"),
	}}
	s := setupScheduler(t, ds, localTime(t, 8, 5, 0))

	if err := s.Confirm(1, 999); !errors.Is(err, ErrDoseNotActive) {
		t.Errorf("err = %v, want ErrDoseNotActive", err)
	}
}

func TestSnoozeSuppressesAllUntilExpiry(t *testing.T) {
	ds := &fakeDataSource{meds: []model.Medication{
		medication(1, "Losartana", model.FormTablet, 10, "08:00"),
		medication(2, "Metformina", model.FormTablet, 10, "08:00"),
	}}
	s := setupScheduler(t, ds, localTime(t, 8, 0, 10))

	if snap := s.Snapshot(); len(snap.ActiveDoses) != 2 {
		t.Fatalf("active doses = %d, want 2", len(snap.ActiveDoses))
	}

	if err := s.Snooze(5); err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if snap := s.Snapshot(); snap.State != StateIdle {
		t.Fatalf("state = %q, want idle after snooze", snap.State)
	}
	if len(ds.audits) != 2 {
		t.Errorf("audits = %d, want 2", len(ds.audits))
	}

	// Still suppressed at 08:03.
	s.now = func() time.Time { return localTime(t, 8, 3, 0) }
	s.tick()
	if snap := s.Snapshot(); snap.State != StateIdle {
		t.Fatalf("state = %q, want idle while snoozed", snap.State)
	}

	// Expired at 08:06 (expiry was 08:05:10), both fire again.
	s.now = func() time.Time { return localTime(t, 8, 6, 0) }
	s.tick()
	snap := s.Snapshot()
	if snap.State != StateRinging {
		t.Fatalf("state = %q, want ringing after snooze expiry", snap.State)
	}
	if len(snap.ActiveDoses) != 2 {
		t.Errorf("active doses = %d, want both back", len(snap.ActiveDoses))
	}
}

func TestSnoozeWithoutRinging(t *testing.T) {
	ds := &fakeDataSource{meds: []model.Medication{
		medication(1, "Losartana", model.FormTablet, 10, "20:00"),
	}}
	s := setupScheduler(t, ds, localTime(t, 8, 0, 0))

	if err := s.Snooze(5); !errors.Is(err, ErrNotRinging) {
		t.Errorf("err = %v, want ErrNotRinging", err)
	}
}

func TestSnoozeSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snoozes.json")

	ds := &fakeDataSource{meds: []model.Medication{
		medication(1, "Losartana", model.FormTablet, 10, "08:00"),
	}}
	cache, err := LoadSnoozeCache(path)
	if err != nil {
		t.Fatalf("load cache: %v", err)
	}
	s := NewScheduler(ds, cache, slog.New(slog.DiscardHandler))
	s.now = func() time.Time { return localTime(t, 8, 0, 10) }
	if err := s.BindProfile(1); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := s.Snooze(15); err != nil {
		t.Fatalf("snooze: %v", err)
	}

	// Process restart: a fresh cache loaded from the same file keeps the
	// suppression.
	cache2, err := LoadSnoozeCache(path)
	if err != nil {
		t.Fatalf("reload cache: %v", err)
	}
	s2 := NewScheduler(ds, cache2, slog.New(slog.DiscardHandler))
	s2.now = func() time.Time { return localTime(t, 8, 5, 0) }
	if err := s2.BindProfile(1); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if snap := s2.Snapshot(); snap.State != StateIdle {
		t.Errorf("state = %q, want idle: snooze persisted across restart", snap.State)
	}
}

func TestMuteKeepsPromptOpen(t *testing.T) {
	ds := &fakeDataSource{meds: []model.Medication{
		medication(1, "Losartana", model.FormTablet, 10, "08:00"),
	}}
	s := setupScheduler(t, ds, localTime(t, 8, 3, 0))

	s.Mute()
	snap := s.Snapshot()
	if snap.State != StateRinging {
		t.Errorf("state = %q, want still ringing while muted", snap.State)
	}
	if snap.AudioPlaying {
		t.Error("audio should stop when muted")
	}

	s.Unmute()
	if snap := s.Snapshot(); !snap.AudioPlaying {
		t.Error("audio should resume on unmute while still ringing")
	}
}

func TestPanicAlertForcesAudioPause(t *testing.T) {
	ds := &fakeDataSource{meds: []model.Medication{
		medication(1, "Losartana", model.FormTablet, 10, "08:00"),
	}}
	s := setupScheduler(t, ds, localTime(t, 8, 3, 0))

	s.SetPanicActive(true)
	if snap := s.Snapshot(); snap.AudioPlaying {
		t.Error("audio must pause while a panic alert is active")
	}

	// Clears: audio resumes because the user never muted.
	s.SetPanicActive(false)
	if snap := s.Snapshot(); !snap.AudioPlaying {
		t.Error("audio should resume when the panic alert clears")
	}

	// But not if the user muted in the meantime.
	s.SetPanicActive(true)
	s.Mute()
	s.SetPanicActive(false)
	if snap := s.Snapshot(); snap.AudioPlaying {
		t.Error("audio must stay off after panic clears if user muted")
	}
}

func TestInactiveMedicationSkipped(t *testing.T) {
	med := medication(1, "Losartana", model.FormTablet, 10, "08:00")
	med.Active = false
	ds := &fakeDataSource{meds: []model.Medication{med}}
	s := setupScheduler(t, ds, localTime(t, 8, 3, 0))

	if snap := s.Snapshot(); snap.State != StateIdle {
		t.Errorf("state = %q, want idle for inactive medication", snap.State)
	}
}

func TestEndedCourseSkipped(t *testing.T) {
	med := medication(1, "Amoxicilina", model.FormCapsule, 10, "08:00")
	end := time.Date(2025, 3, 1, 0, 0, 0, 0, time.Local)
	med.EndDate = &end
	ds := &fakeDataSource{meds: []model.Medication{med}}
	s := setupScheduler(t, ds, localTime(t, 8, 3, 0))

	if snap := s.Snapshot(); snap.State != StateIdle {
		t.Errorf("state = %q, want idle after course end date", snap.State)
	}
}

func TestBindProfileResetsState(t *testing.T) {
	ds := &fakeDataSource{meds: []model.Medication{
		medication(1, "Losartana", model.FormTablet, 10, "08:00"),
	}}
	s := setupScheduler(t, ds, localTime(t, 8, 3, 0))

	if snap := s.Snapshot(); snap.State != StateRinging {
		t.Fatalf("state = %q, want ringing", snap.State)
	}

	// Switching to another profile clears the alarm surface entirely.
	ds.meds = nil
	if err := s.BindProfile(2); err != nil {
		t.Fatalf("bind profile 2: %v", err)
	}
	snap := s.Snapshot()
	if snap.State != StateIdle {
		t.Errorf("state = %q, want idle after profile switch", snap.State)
	}
	if len(snap.ActiveDoses) != 0 {
		t.Errorf("active doses = %d, want 0 after profile switch", len(snap.ActiveDoses))
	}
}

func TestRefreshFailureKeepsLastSnapshot(t *testing.T) {
	ds := &fakeDataSource{meds: []model.Medication{
		medication(1, "Losartana", model.FormTablet, 10, "08:00"),
	}}
	s := setupScheduler(t, ds, localTime(t, 7, 0, 0))

	// Network goes away; refresh fails but the cached medication list
	// still drives evaluation.
	ds.listErr = errors.New("network down")
	if err := s.Refresh(); err == nil {
		t.Fatal("expected refresh error")
	}

	s.now = func() time.Time { return localTime(t, 8, 3, 0) }
	s.tick()
	if snap := s.Snapshot(); snap.State != StateRinging {
		t.Errorf("state = %q, want ringing from last-known-good snapshot", snap.State)
	}
}

func TestOnChangeCallback(t *testing.T) {
	ds := &fakeDataSource{meds: []model.Medication{
		medication(1, "Losartana", model.FormTablet, 10, "08:00"),
	}}
	cache, err := LoadSnoozeCache(filepath.Join(t.TempDir(), "snoozes.json"))
	if err != nil {
		t.Fatalf("load cache: %v", err)
	}

	var states []State
	s := NewScheduler(ds, cache, slog.New(slog.DiscardHandler))
	s.now = func() time.Time { return localTime(t, 8, 3, 0) }
	s.SetOnChange(func(snap Snapshot) { states = append(states, snap.State) })

	if err := s.BindProfile(1); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if len(states) == 0 || states[len(states)-1] != StateRinging {
		t.Fatalf("states = %v, want ringing broadcast", states)
	}

	if err := s.Snooze(5); err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if states[len(states)-1] != StateIdle {
		t.Errorf("states = %v, want trailing idle after snooze", states)
	}
}
