package alarm

import (
	"time"

	"github.com/avelar/famcare/internal/model"
)

// DataSource is the narrow boundary the scheduler reads from and writes to.
// The SQLite store layer implements it in production; tests supply a fake.
type DataSource interface {
	// ListMedications returns all medications for the profile, schedules
	// included. Inactive medications are returned too; the scheduler skips
	// them itself.
	ListMedications(profileID int64) ([]model.Medication, error)

	// ListTodayLogs returns dose logs whose scheduled_for falls within
	// [dayStart, dayEnd).
	ListTodayLogs(profileID int64, dayStart, dayEnd time.Time) ([]model.DoseLog, error)

	// InsertDoseLog records an outcome. Implementations refuse a second
	// terminal log for the same (schedule, day).
	InsertDoseLog(profileID, medicationID, scheduleID int64, status string, scheduledFor time.Time, takenAt *time.Time) (*model.DoseLog, error)

	// DecrementStock takes one unit off a medication's stock. Best-effort:
	// not transactional with InsertDoseLog.
	DecrementStock(medicationID int64) error

	// InsertSnoozeAudit mirrors a snooze for the excessive-snoozing alert.
	InsertSnoozeAudit(profileID, medicationID, scheduleID int64, minutes int) error
}

// AbuseReporter is notified after snoozes are recorded so an external
// detector can alert emergency contacts on repeated snoozing. Calls are
// fire-and-forget; the scheduler never waits on the result.
type AbuseReporter interface {
	ReportSnoozes(profileID int64, scheduleIDs []int64, minutes int)
}

// Notifier delivers best-effort reminders outside the app (web push). It is
// never the source of truth for the ringing state.
type Notifier interface {
	NotifyDoses(profileID int64, doses []ActiveDose)
}
