package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/avelar/famcare/internal/model"
)

type AppointmentStore struct {
	db *sql.DB
}

func NewAppointmentStore(db *sql.DB) *AppointmentStore {
	return &AppointmentStore{db: db}
}

func scanAppointment(scanner interface{ Scan(...any) error }) (*model.Appointment, error) {
	var a model.Appointment
	err := scanner.Scan(
		&a.ID, &a.ProfileID, &a.Doctor, &a.Specialty, &a.Location,
		&a.StartsAt, &a.Notes, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const appointmentCols = `id, profile_id, doctor, specialty, location, starts_at, notes, created_at, updated_at`

func (s *AppointmentStore) Create(profileID int64, doctor, specialty, location string, startsAt time.Time, notes string) (*model.Appointment, error) {
	result, err := s.db.Exec(
		`INSERT INTO appointments (profile_id, doctor, specialty, location, starts_at, notes) VALUES (?, ?, ?, ?, ?, ?)`,
		profileID, doctor, specialty, location, startsAt.UTC(), notes,
	)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *AppointmentStore) GetByID(id int64) (*model.Appointment, error) {
	row := s.db.QueryRow(`SELECT `+appointmentCols+` FROM appointments WHERE id = ?`, id)
	a, err := scanAppointment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (s *AppointmentStore) ListByProfile(profileID int64) ([]model.Appointment, error) {
	rows, err := s.db.Query(
		`SELECT `+appointmentCols+` FROM appointments WHERE profile_id = ? ORDER BY starts_at ASC`,
		profileID,
	)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		appts = append(appts, *a)
	}
	return appts, rows.Err()
}

func (s *AppointmentStore) Update(id int64, doctor, specialty, location string, startsAt time.Time, notes string) (*model.Appointment, error) {
	_, err := s.db.Exec(
		`UPDATE appointments SET doctor = ?, specialty = ?, location = ?, starts_at = ?, notes = ?, updated_at = datetime('now') WHERE id = ?`,
		doctor, specialty, location, startsAt.UTC(), notes, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	return s.GetByID(id)
}

func (s *AppointmentStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM appointments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	return nil
}
