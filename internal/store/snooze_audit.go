package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/avelar/famcare/internal/model"
)

type SnoozeAuditStore struct {
	db *sql.DB
}

func NewSnoozeAuditStore(db *sql.DB) *SnoozeAuditStore {
	return &SnoozeAuditStore{db: db}
}

func (s *SnoozeAuditStore) Insert(profileID, medicationID, scheduleID int64, minutes int) (*model.SnoozeAudit, error) {
	result, err := s.db.Exec(
		`INSERT INTO snooze_audits (profile_id, medication_id, schedule_id, minutes) VALUES (?, ?, ?, ?)`,
		profileID, medicationID, scheduleID, minutes,
	)
	if err != nil {
		return nil, fmt.Errorf("insert snooze audit: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	var a model.SnoozeAudit
	err = s.db.QueryRow(
		`SELECT id, profile_id, medication_id, schedule_id, minutes, created_at FROM snooze_audits WHERE id = ?`, id,
	).Scan(&a.ID, &a.ProfileID, &a.MedicationID, &a.ScheduleID, &a.Minutes, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get snooze audit: %w", err)
	}
	return &a, nil
}

// CountForDay returns how many snoozes a profile recorded within
// [dayStart, dayEnd). Feeds the excessive-snoozing alert.
func (s *SnoozeAuditStore) CountForDay(profileID int64, dayStart, dayEnd time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM snooze_audits WHERE profile_id = ? AND created_at >= ? AND created_at < ?`,
		profileID, dayStart.UTC(), dayEnd.UTC(),
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count snooze audits: %w", err)
	}
	return count, nil
}
