package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avelar/famcare/internal/model"
)

// ErrDuplicateLog is returned when a terminal log already exists for the
// same schedule and day.
var ErrDuplicateLog = errors.New("dose already logged for this schedule today")

type DoseLogStore struct {
	db *sql.DB
}

func NewDoseLogStore(db *sql.DB) *DoseLogStore {
	return &DoseLogStore{db: db}
}

func scanDoseLog(scanner interface{ Scan(...any) error }) (*model.DoseLog, error) {
	var l model.DoseLog
	var takenAt sql.NullTime

	err := scanner.Scan(
		&l.ID, &l.ProfileID, &l.MedicationID, &l.ScheduleID,
		&l.Status, &l.ScheduledFor, &takenAt, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if takenAt.Valid {
		l.TakenAt = &takenAt.Time
	}
	return &l, nil
}

const doseLogCols = `id, profile_id, medication_id, schedule_id, status, scheduled_for, taken_at, created_at`

// Insert writes an outcome for one (schedule, day). It pre-checks for an
// existing terminal log on the same day rather than relying on a
// uniqueness constraint; a duplicate returns ErrDuplicateLog.
func (s *DoseLogStore) Insert(profileID, medicationID, scheduleID int64, status string, scheduledFor time.Time, takenAt *time.Time) (*model.DoseLog, error) {
	terminal, err := s.HasTerminalLog(scheduleID, scheduledFor)
	if err != nil {
		return nil, err
	}
	if terminal {
		return nil, ErrDuplicateLog
	}

	var taken sql.NullTime
	if takenAt != nil {
		taken = sql.NullTime{Time: *takenAt, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO dose_logs (profile_id, medication_id, schedule_id, status, scheduled_for, taken_at) VALUES (?, ?, ?, ?, ?, ?)`,
		profileID, medicationID, scheduleID, status, scheduledFor.UTC(), taken,
	)
	if err != nil {
		return nil, fmt.Errorf("insert dose log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *DoseLogStore) GetByID(id int64) (*model.DoseLog, error) {
	row := s.db.QueryRow(`SELECT `+doseLogCols+` FROM dose_logs WHERE id = ?`, id)
	l, err := scanDoseLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dose log: %w", err)
	}
	return l, nil
}

// ListForDay returns all logs for a profile whose scheduled_for falls
// within [dayStart, dayEnd).
func (s *DoseLogStore) ListForDay(profileID int64, dayStart, dayEnd time.Time) ([]model.DoseLog, error) {
	rows, err := s.db.Query(
		`SELECT `+doseLogCols+` FROM dose_logs WHERE profile_id = ? AND scheduled_for >= ? AND scheduled_for < ? ORDER BY scheduled_for ASC`,
		profileID, dayStart.UTC(), dayEnd.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list dose logs: %w", err)
	}
	defer rows.Close()

	var logs []model.DoseLog
	for rows.Next() {
		l, err := scanDoseLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dose log: %w", err)
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

// HasTerminalLog reports whether a confirmed or skipped log exists for the
// schedule on the same calendar day as scheduledFor.
func (s *DoseLogStore) HasTerminalLog(scheduleID int64, scheduledFor time.Time) (bool, error) {
	dayStart := time.Date(scheduledFor.Year(), scheduledFor.Month(), scheduledFor.Day(), 0, 0, 0, 0, scheduledFor.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM dose_logs
		 WHERE schedule_id = ? AND scheduled_for >= ? AND scheduled_for < ? AND status IN ('confirmed', 'skipped')`,
		scheduleID, dayStart.UTC(), dayEnd.UTC(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check terminal log: %w", err)
	}
	return count > 0, nil
}
