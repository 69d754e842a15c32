package model

import "time"

// Dose log status constants. Confirmed and skipped are terminal for the
// (schedule, day) pair; missed is informational.
const (
	DoseConfirmed = "confirmed"
	DoseMissed    = "missed"
	DoseSkipped   = "skipped"
)

// DoseLog is an immutable outcome record for one schedule on one day.
// ScheduledFor is the day+time the dose applied to; TakenAt is set only for
// confirmed doses.
type DoseLog struct {
	ID           int64      `json:"id"`
	ProfileID    int64      `json:"profile_id"`
	MedicationID int64      `json:"medication_id"`
	ScheduleID   int64      `json:"schedule_id"`
	Status       string     `json:"status"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	TakenAt      *time.Time `json:"taken_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// SnoozeAudit mirrors a snooze to the store. The per-day count per profile
// feeds the excessive-snoozing alert.
type SnoozeAudit struct {
	ID           int64     `json:"id"`
	ProfileID    int64     `json:"profile_id"`
	MedicationID int64     `json:"medication_id"`
	ScheduleID   int64     `json:"schedule_id"`
	Minutes      int       `json:"minutes"`
	CreatedAt    time.Time `json:"created_at"`
}
