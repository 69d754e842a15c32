package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/avelar/famcare/internal/model"
)

type ProfileStore struct {
	db *sql.DB
}

func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func scanProfile(scanner interface{ Scan(...any) error }) (*model.Profile, error) {
	var p model.Profile
	var birthDate sql.NullTime

	err := scanner.Scan(&p.ID, &p.UserID, &p.Name, &birthDate, &p.Relation, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if birthDate.Valid {
		p.BirthDate = &birthDate.Time
	}
	return &p, nil
}

const profileCols = `id, user_id, name, birth_date, relation, created_at, updated_at`

func (s *ProfileStore) Create(userID int64, name string, birthDate *time.Time, relation string) (*model.Profile, error) {
	var bd sql.NullTime
	if birthDate != nil {
		bd = sql.NullTime{Time: *birthDate, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO profiles (user_id, name, birth_date, relation) VALUES (?, ?, ?, ?)`,
		userID, name, bd, relation,
	)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ProfileStore) GetByID(id int64) (*model.Profile, error) {
	row := s.db.QueryRow(`SELECT `+profileCols+` FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *ProfileStore) ListByUser(userID int64) ([]model.Profile, error) {
	rows, err := s.db.Query(
		`SELECT `+profileCols+` FROM profiles WHERE user_id = ? ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

func (s *ProfileStore) Update(id int64, name string, birthDate *time.Time, relation string) (*model.Profile, error) {
	var bd sql.NullTime
	if birthDate != nil {
		bd = sql.NullTime{Time: *birthDate, Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE profiles SET name = ?, birth_date = ?, relation = ?, updated_at = datetime('now') WHERE id = ?`,
		name, bd, relation, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return s.GetByID(id)
}

func (s *ProfileStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}
