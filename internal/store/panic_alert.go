package store

import (
	"database/sql"
	"fmt"

	"github.com/avelar/famcare/internal/model"
)

type PanicAlertStore struct {
	db *sql.DB
}

func NewPanicAlertStore(db *sql.DB) *PanicAlertStore {
	return &PanicAlertStore{db: db}
}

func scanPanicAlert(scanner interface{ Scan(...any) error }) (*model.PanicAlert, error) {
	var a model.PanicAlert
	var resolvedAt sql.NullTime

	err := scanner.Scan(&a.ID, &a.ProfileID, &a.Status, &a.TriggeredAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	return &a, nil
}

const panicAlertCols = `id, profile_id, status, triggered_at, resolved_at`

func (s *PanicAlertStore) Create(profileID int64) (*model.PanicAlert, error) {
	result, err := s.db.Exec(
		`INSERT INTO panic_alerts (profile_id) VALUES (?)`, profileID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert panic alert: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *PanicAlertStore) GetByID(id int64) (*model.PanicAlert, error) {
	row := s.db.QueryRow(`SELECT `+panicAlertCols+` FROM panic_alerts WHERE id = ?`, id)
	a, err := scanPanicAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get panic alert: %w", err)
	}
	return a, nil
}

// GetActive returns the most recent unresolved alert for a profile, or nil.
func (s *PanicAlertStore) GetActive(profileID int64) (*model.PanicAlert, error) {
	row := s.db.QueryRow(
		`SELECT `+panicAlertCols+` FROM panic_alerts WHERE profile_id = ? AND status = 'active' ORDER BY triggered_at DESC LIMIT 1`,
		profileID,
	)
	a, err := scanPanicAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active panic alert: %w", err)
	}
	return a, nil
}

func (s *PanicAlertStore) Resolve(id int64) error {
	_, err := s.db.Exec(
		`UPDATE panic_alerts SET status = 'resolved', resolved_at = datetime('now') WHERE id = ? AND status = 'active'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("resolve panic alert: %w", err)
	}
	return nil
}
