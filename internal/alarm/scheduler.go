package alarm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avelar/famcare/internal/model"
	"github.com/avelar/famcare/internal/store"
)

// State of the global alarm surface. Ringing covers every currently due
// dose; there is no per-dose state.
type State string

const (
	StateIdle    State = "idle"
	StateRinging State = "ringing"
)

const (
	// graceWindow is how long after its scheduled time a dose may still
	// trigger. A dose exactly 60 minutes late no longer fires; no missed
	// log is written for it, the prompt is simply suppressed.
	graceWindow = 60 * time.Minute

	defaultInterval = 15 * time.Second
)

// ErrDoseNotActive is returned when confirming a dose that is not in the
// currently ringing set.
var ErrDoseNotActive = errors.New("dose is not currently ringing")

// ErrNotRinging is returned when snoozing with no active alarm.
var ErrNotRinging = errors.New("no alarm is ringing")

// ActiveDose is one (medication, schedule) pair requiring attention, with
// the day+time occurrence it applies to.
type ActiveDose struct {
	Medication   model.Medication   `json:"medication"`
	Schedule     model.DoseSchedule `json:"schedule"`
	ScheduledFor time.Time          `json:"scheduled_for"`
}

// Snapshot is the derived alarm surface handed to UI layers. It is
// recomputed, never persisted.
type Snapshot struct {
	State        State        `json:"state"`
	ActiveDoses  []ActiveDose `json:"active_doses"`
	Muted        bool         `json:"muted"`
	PanicActive  bool         `json:"panic_active"`
	AudioPlaying bool         `json:"audio_playing"`
}

// Scheduler owns the ringing state machine. It polls wall-clock time
// against an in-memory snapshot of medications, today's logs and the snooze
// cache, and mediates confirm/snooze back into the data source.
//
// The snapshot is replaced atomically on every refresh; evaluation runs
// against whatever snapshot is current, so a tick racing an in-flight
// refresh sees stale but consistent data.
type Scheduler struct {
	mu       sync.Mutex
	ds       DataSource
	cache    *SnoozeCache
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	notifier Notifier
	reporter AbuseReporter
	onChange func(Snapshot)

	profileID  int64
	meds       []model.Medication
	todayLogs  []model.DoseLog
	loaded     bool
	lastMinute string

	state       State
	active      []ActiveDose
	muted       bool
	panicActive bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates an alarm scheduler bound to no profile. Call
// BindProfile before or after Start.
func NewScheduler(ds DataSource, cache *SnoozeCache, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		ds:       ds,
		cache:    cache,
		logger:   logger,
		interval: defaultInterval,
		now:      time.Now,
		state:    StateIdle,
	}
}

// SetInterval overrides the evaluation interval. Must be called before
// Start.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// SetNotifier wires the best-effort push notifier.
func (s *Scheduler) SetNotifier(n Notifier) { s.notifier = n }

// SetReporter wires the abuse-detector reporter.
func (s *Scheduler) SetReporter(r AbuseReporter) { s.reporter = r }

// SetOnChange registers a callback invoked with a fresh Snapshot after
// every state transition. Used by the websocket hub.
func (s *Scheduler) SetOnChange(fn func(Snapshot)) { s.onChange = fn }

// Start begins the evaluation loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	interval := s.interval
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Stop gracefully stops the evaluation loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	s.evaluate()
	s.mu.Unlock()
}

// BindProfile switches the monitored profile (caregiver mode). All alarm
// state is reset, the snooze cache cleared, and fresh data fetched for the
// new target; the evaluation that follows works entirely from that data.
func (s *Scheduler) BindProfile(profileID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Clearing only on an actual switch keeps snoozes loaded from disk
	// alive across a restart for the same profile.
	if s.profileID != 0 && profileID != s.profileID {
		if err := s.cache.Clear(); err != nil {
			s.logger.Error("clear snooze cache", "error", err)
		}
	}

	s.profileID = profileID
	s.loaded = false
	s.lastMinute = ""
	s.state = StateIdle
	s.active = nil
	s.muted = false

	if profileID == 0 {
		s.notifyChange()
		return nil
	}
	if err := s.refresh(); err != nil {
		return err
	}
	s.evaluate()
	s.notifyChange()
	return nil
}

// Refresh refetches medications and today's logs, then re-evaluates. Called
// after any external mutation (medication edits, log inserts from other
// devices).
func (s *Scheduler) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.profileID == 0 {
		return nil
	}
	if err := s.refresh(); err != nil {
		return err
	}
	s.evaluate()
	return nil
}

// refresh replaces the in-memory snapshot. On failure the last-known-good
// snapshot is kept and evaluation continues against it; the next natural
// poll cycle re-attempts nothing; callers retrigger refresh on mutation.
// Callers hold s.mu.
func (s *Scheduler) refresh() error {
	meds, err := s.ds.ListMedications(s.profileID)
	if err != nil {
		return fmt.Errorf("list medications: %w", err)
	}

	dayStart, dayEnd := s.dayWindow()
	logs, err := s.ds.ListTodayLogs(s.profileID, dayStart, dayEnd)
	if err != nil {
		return fmt.Errorf("list today logs: %w", err)
	}

	s.meds = meds
	s.todayLogs = logs
	s.loaded = true
	return nil
}

// evaluate runs one cycle of the due-dose algorithm. Callers hold s.mu.
//
// The device's wall clock is trusted as-is. A backward clock jump (DST
// fall-back, manual adjustment) can move a dose that had aged out of the
// grace window back into it, in which case it fires again.
func (s *Scheduler) evaluate() {
	if !s.loaded || s.profileID == 0 {
		return
	}
	// Never interrupt an active prompt with a re-evaluation.
	if s.state == StateRinging {
		return
	}

	now := s.now()
	currentMinute := now.Format("15:04")
	// Minute-granularity dedup: the loop ticks every 15s but a minute is
	// evaluated once.
	if currentMinute == s.lastMinute {
		return
	}

	firing := s.computeFiringSet(now, currentMinute)
	s.lastMinute = currentMinute

	if len(firing) == 0 {
		return
	}

	s.state = StateRinging
	s.active = firing
	s.logger.Info("alarm ringing", "profile_id", s.profileID, "doses", len(firing))

	if s.notifier != nil {
		doses := make([]ActiveDose, len(firing))
		copy(doses, firing)
		go s.notifier.NotifyDoses(s.profileID, doses)
	}
	s.notifyChange()
}

// computeFiringSet rebuilds the due set from scratch:
// Medication × DoseSchedule × DoseLog × Snooze. Callers hold s.mu.
func (s *Scheduler) computeFiringSet(now time.Time, currentMinute string) []ActiveDose {
	var firing []ActiveDose

	for _, med := range s.meds {
		if !med.Active {
			continue
		}
		if !s.withinCourse(&med, now) {
			continue
		}

		for _, sched := range med.Schedules {
			// Zero-padded "HH:MM" compares correctly as a string.
			if sched.TimeOfDay > currentMinute {
				continue // not yet due
			}

			occurrence, ok := todayAt(now, sched.TimeOfDay)
			if !ok {
				s.logger.Warn("malformed schedule time", "schedule_id", sched.ID, "time", sched.TimeOfDay)
				continue
			}

			if now.Sub(occurrence) >= graceWindow {
				continue // late beyond the grace window, no retroactive alarm
			}
			if s.hasTerminalLog(sched.ID) {
				continue
			}
			if exp, ok := s.cache.Get(sched.ID); ok && exp.After(now) {
				continue
			}

			firing = append(firing, ActiveDose{
				Medication:   med,
				Schedule:     sched,
				ScheduledFor: occurrence,
			})
		}
	}
	return firing
}

// Confirm records a confirmed dose log for one ringing dose, decrements
// stock for unit-based forms, removes the dose from the active list and
// refetches. On write failure the dose stays active so the user can retry.
func (s *Scheduler) Confirm(medicationID, scheduleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, d := range s.active {
		if d.Medication.ID == medicationID && d.Schedule.ID == scheduleID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrDoseNotActive
	}
	dose := s.active[idx]

	takenAt := s.now()
	if _, err := s.ds.InsertDoseLog(s.profileID, medicationID, scheduleID, model.DoseConfirmed, dose.ScheduledFor, &takenAt); err != nil {
		if errors.Is(err, store.ErrDuplicateLog) {
			// Another device already logged this dose. Drop it locally and
			// resync rather than keep a prompt the remote state has settled.
			s.removeActive(idx)
			if rerr := s.refresh(); rerr != nil {
				s.logger.Error("refresh after duplicate log", "error", rerr)
			}
			s.notifyChange()
			return err
		}
		return fmt.Errorf("insert dose log: %w", err)
	}

	// Stock decrement is best-effort and not transactional with the log.
	if dose.Medication.IsUnitForm() && dose.Medication.StockQuantity > 0 {
		if err := s.ds.DecrementStock(medicationID); err != nil {
			s.logger.Error("decrement stock", "medication_id", medicationID, "error", err)
		}
	}

	s.removeActive(idx)

	if err := s.refresh(); err != nil {
		s.logger.Error("refresh after confirm", "error", err)
	}
	s.notifyChange()
	return nil
}

// removeActive drops one dose from the active list, returning to Idle when
// it was the last one. Callers hold s.mu.
func (s *Scheduler) removeActive(idx int) {
	s.active = append(s.active[:idx], s.active[idx+1:]...)
	if len(s.active) == 0 {
		s.state = StateIdle
		s.muted = false
	}
}

// Snooze suppresses every currently ringing dose for the given duration.
// Remote audits are best-effort; the local cache write is the one that must
// succeed, and it happens immediately so a crash cannot lose the
// suppression. Clears the active list and returns to Idle.
func (s *Scheduler) Snooze(minutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRinging || len(s.active) == 0 {
		return ErrNotRinging
	}

	now := s.now()
	expiry := now.Add(time.Duration(minutes) * time.Minute)

	expiries := make(map[int64]time.Time, len(s.active))
	scheduleIDs := make([]int64, 0, len(s.active))
	for _, d := range s.active {
		expiries[d.Schedule.ID] = expiry
		scheduleIDs = append(scheduleIDs, d.Schedule.ID)

		if err := s.ds.InsertSnoozeAudit(s.profileID, d.Medication.ID, d.Schedule.ID, minutes); err != nil {
			s.logger.Warn("snooze audit", "schedule_id", d.Schedule.ID, "error", err)
		}
	}

	if err := s.cache.SetAll(expiries, now); err != nil {
		return fmt.Errorf("persist snoozes: %w", err)
	}

	if s.reporter != nil {
		go s.reporter.ReportSnoozes(s.profileID, scheduleIDs, minutes)
	}

	s.active = nil
	s.state = StateIdle
	s.muted = false
	s.notifyChange()
	return nil
}

// Mute stops the audio but keeps the prompt open.
func (s *Scheduler) Mute() {
	s.mu.Lock()
	s.muted = true
	s.notifyChange()
	s.mu.Unlock()
}

// Unmute resumes audio if still ringing.
func (s *Scheduler) Unmute() {
	s.mu.Lock()
	s.muted = false
	s.notifyChange()
	s.mu.Unlock()
}

// SetPanicActive force-pauses alarm audio while a panic alert is active,
// regardless of mute state. When the alert clears, audio resumes unless
// the user had muted.
func (s *Scheduler) SetPanicActive(active bool) {
	s.mu.Lock()
	s.panicActive = active
	s.notifyChange()
	s.mu.Unlock()
}

// Snapshot returns the current derived alarm surface.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// snapshot builds a Snapshot copy. Callers hold s.mu.
func (s *Scheduler) snapshot() Snapshot {
	doses := make([]ActiveDose, len(s.active))
	copy(doses, s.active)
	return Snapshot{
		State:        s.state,
		ActiveDoses:  doses,
		Muted:        s.muted,
		PanicActive:  s.panicActive,
		AudioPlaying: s.state == StateRinging && !s.muted && !s.panicActive,
	}
}

// notifyChange invokes the change callback. Callers hold s.mu, so the
// callback must not call back into the scheduler.
func (s *Scheduler) notifyChange() {
	if s.onChange != nil {
		s.onChange(s.snapshot())
	}
}

func (s *Scheduler) dayWindow() (time.Time, time.Time) {
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 0, 1)
}

// withinCourse checks the medication's start/end dates at day granularity.
// No end date means open-ended.
func (s *Scheduler) withinCourse(med *model.Medication, now time.Time) bool {
	startDay := time.Date(med.StartDate.Year(), med.StartDate.Month(), med.StartDate.Day(), 0, 0, 0, 0, now.Location())
	if now.Before(startDay) {
		return false
	}
	if med.EndDate != nil {
		endOfDay := time.Date(med.EndDate.Year(), med.EndDate.Month(), med.EndDate.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
		if !now.Before(endOfDay) {
			return false
		}
	}
	return true
}

// hasTerminalLog reports whether today's log snapshot has a confirmed or
// skipped entry for the schedule. The snapshot only ever holds today's
// logs, so no date check is needed here. Callers hold s.mu.
func (s *Scheduler) hasTerminalLog(scheduleID int64) bool {
	for _, l := range s.todayLogs {
		if l.ScheduleID != scheduleID {
			continue
		}
		if l.Status == model.DoseConfirmed || l.Status == model.DoseSkipped {
			return true
		}
	}
	return false
}

// todayAt resolves an "HH:MM" time-of-day against now's calendar day in
// now's location.
func todayAt(now time.Time, timeOfDay string) (time.Time, bool) {
	t, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location()), true
}
