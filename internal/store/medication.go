package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avelar/famcare/internal/model"
)

// ErrStockDepleted is returned when a decrement would take stock below zero.
var ErrStockDepleted = errors.New("medication stock depleted")

type MedicationStore struct {
	db *sql.DB
}

func NewMedicationStore(db *sql.DB) *MedicationStore {
	return &MedicationStore{db: db}
}

func scanMedication(scanner interface{ Scan(...any) error }) (*model.Medication, error) {
	var m model.Medication
	var active int
	var endDate sql.NullTime

	err := scanner.Scan(
		&m.ID, &m.ProfileID, &m.Name, &m.Dosage, &m.Form, &active,
		&m.StockQuantity, &m.StartDate, &endDate, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Active = active != 0
	if endDate.Valid {
		m.EndDate = &endDate.Time
	}
	return &m, nil
}

const medicationCols = `id, profile_id, name, dosage, form, active, stock_quantity, start_date, end_date, created_at, updated_at`

func (s *MedicationStore) Create(profileID int64, name, dosage, form string, stock int, startDate time.Time, endDate *time.Time, times []string) (*model.Medication, error) {
	var end sql.NullTime
	if endDate != nil {
		end = sql.NullTime{Time: *endDate, Valid: true}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO medications (profile_id, name, dosage, form, stock_quantity, start_date, end_date) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		profileID, name, dosage, form, stock, startDate.UTC(), end,
	)
	if err != nil {
		return nil, fmt.Errorf("insert medication: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	for _, tod := range times {
		if _, err := tx.Exec(
			`INSERT INTO dose_schedules (medication_id, time_of_day) VALUES (?, ?)`,
			id, tod,
		); err != nil {
			return nil, fmt.Errorf("insert schedule: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

func (s *MedicationStore) GetByID(id int64) (*model.Medication, error) {
	row := s.db.QueryRow(`SELECT `+medicationCols+` FROM medications WHERE id = ?`, id)
	m, err := scanMedication(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get medication: %w", err)
	}

	schedules, err := s.listSchedules(m.ID)
	if err != nil {
		return nil, err
	}
	m.Schedules = schedules
	return m, nil
}

// ListByProfile returns all medications for a profile, schedules included,
// inactive ones too. The alarm scheduler filters on Active itself.
func (s *MedicationStore) ListByProfile(profileID int64) ([]model.Medication, error) {
	rows, err := s.db.Query(
		`SELECT `+medicationCols+` FROM medications WHERE profile_id = ? ORDER BY name ASC`,
		profileID,
	)
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	defer rows.Close()

	var meds []model.Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan medication: %w", err)
		}
		meds = append(meds, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range meds {
		schedules, err := s.listSchedules(meds[i].ID)
		if err != nil {
			return nil, err
		}
		meds[i].Schedules = schedules
	}
	return meds, nil
}

// Update rewrites the medication row and replaces its schedule list
// wholesale: all existing schedule rows are deleted and the new times
// inserted fresh. Schedule IDs are not preserved across an edit.
func (s *MedicationStore) Update(id int64, name, dosage, form string, stock int, startDate time.Time, endDate *time.Time, times []string) (*model.Medication, error) {
	var end sql.NullTime
	if endDate != nil {
		end = sql.NullTime{Time: *endDate, Valid: true}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`UPDATE medications SET name = ?, dosage = ?, form = ?, stock_quantity = ?, start_date = ?, end_date = ?, updated_at = datetime('now') WHERE id = ?`,
		name, dosage, form, stock, startDate.UTC(), end, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update medication: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM dose_schedules WHERE medication_id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete schedules: %w", err)
	}
	for _, tod := range times {
		if _, err := tx.Exec(
			`INSERT INTO dose_schedules (medication_id, time_of_day) VALUES (?, ?)`,
			id, tod,
		); err != nil {
			return nil, fmt.Errorf("insert schedule: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

// Deactivate flags a medication inactive, preserving its history.
func (s *MedicationStore) Deactivate(id int64) error {
	_, err := s.db.Exec(
		`UPDATE medications SET active = 0, updated_at = datetime('now') WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("deactivate medication: %w", err)
	}
	return nil
}

func (s *MedicationStore) Activate(id int64) error {
	_, err := s.db.Exec(
		`UPDATE medications SET active = 1, updated_at = datetime('now') WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("activate medication: %w", err)
	}
	return nil
}

func (s *MedicationStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM medications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete medication: %w", err)
	}
	return nil
}

// DecrementStock sets stock to current-1, refusing to go below zero.
// Best-effort from the caller's viewpoint: not transactional with the
// dose log insert.
func (s *MedicationStore) DecrementStock(id int64) error {
	result, err := s.db.Exec(
		`UPDATE medications SET stock_quantity = stock_quantity - 1, updated_at = datetime('now')
		 WHERE id = ? AND stock_quantity > 0`, id,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrStockDepleted
	}
	return nil
}

// CountActiveByProfile is used for free-plan limit checks.
func (s *MedicationStore) CountActiveByProfile(profileID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM medications WHERE profile_id = ? AND active = 1`, profileID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count medications: %w", err)
	}
	return count, nil
}

func (s *MedicationStore) listSchedules(medicationID int64) ([]model.DoseSchedule, error) {
	rows, err := s.db.Query(
		`SELECT id, medication_id, time_of_day, created_at FROM dose_schedules WHERE medication_id = ? ORDER BY time_of_day ASC`,
		medicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []model.DoseSchedule
	for rows.Next() {
		var ds model.DoseSchedule
		if err := rows.Scan(&ds.ID, &ds.MedicationID, &ds.TimeOfDay, &ds.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		schedules = append(schedules, ds)
	}
	return schedules, rows.Err()
}
