package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/avelar/famcare/internal/model"
)

const sessionTTL = 30 * 24 * time.Hour

type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

func scanSession(scanner interface{ Scan(...any) error }) (*model.Session, error) {
	var sess model.Session
	err := scanner.Scan(&sess.ID, &sess.Token, &sess.UserID, &sess.ProfileID, &sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

const sessionCols = `id, token, user_id, profile_id, expires_at, created_at`

// Create issues a new session with a random 32-byte token. profileID is the
// initially monitored profile and may be zero until one is selected.
func (s *SessionStore) Create(userID, profileID int64) (*model.Session, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(buf)

	result, err := s.db.Exec(
		`INSERT INTO sessions (token, user_id, profile_id, expires_at) VALUES (?, ?, ?, ?)`,
		token, userID, profileID, time.Now().UTC().Add(sessionTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// GetByToken returns the session for a token, or nil if unknown or expired.
func (s *SessionStore) GetByToken(token string) (*model.Session, error) {
	row := s.db.QueryRow(
		`SELECT `+sessionCols+` FROM sessions WHERE token = ? AND expires_at > ?`,
		token, time.Now().UTC(),
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// SetProfile switches the monitored profile for a session (caregiver mode).
func (s *SessionStore) SetProfile(sessionID, profileID int64) error {
	_, err := s.db.Exec(`UPDATE sessions SET profile_id = ? WHERE id = ?`, profileID, sessionID)
	if err != nil {
		return fmt.Errorf("set session profile: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(token string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// LastActiveProfileID returns the profile bound to the most recently
// created unexpired session, or 0 when no session has a profile selected.
// Used to restore the alarm binding after a restart.
func (s *SessionStore) LastActiveProfileID() (int64, error) {
	var id int64
	err := s.db.QueryRow(
		`SELECT profile_id FROM sessions WHERE profile_id != 0 AND expires_at > ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		time.Now().UTC(),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("last active profile: %w", err)
	}
	return id, nil
}

// DeleteExpired removes stale sessions; called from the cleanup loop.
func (s *SessionStore) DeleteExpired() error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	return nil
}
