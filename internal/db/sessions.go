package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is one run of the monitor.
type Session struct {
	ID               string `json:"session_id"`
	StartedUnixNanos int64  `json:"started_unix_nanos"`
	EndedUnixNanos   *int64 `json:"ended_unix_nanos,omitempty"`
	Source           string `json:"source"`
	TuningJSON       string `json:"tuning_json"`
}

// CreateSession starts a new session and returns it.
func (db *DB) CreateSession(source, tuningJSON string) (*Session, error) {
	if tuningJSON == "" {
		tuningJSON = "{}"
	}
	s := &Session{
		ID:               uuid.NewString(),
		StartedUnixNanos: time.Now().UnixNano(),
		Source:           source,
		TuningJSON:       tuningJSON,
	}
	_, err := db.Exec(`INSERT INTO sessions (session_id, started_unix_nanos, source, tuning_json) VALUES (?, ?, ?, ?)`,
		s.ID, s.StartedUnixNanos, s.Source, s.TuningJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// EndSession stamps the session's end time.
func (db *DB) EndSession(id string) error {
	res, err := db.Exec(`UPDATE sessions SET ended_unix_nanos = ? WHERE session_id = ?`, time.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// GetSession returns the session with the given ID, or nil if none.
func (db *DB) GetSession(id string) (*Session, error) {
	var s Session
	var ended sql.NullInt64
	err := db.QueryRow(`SELECT session_id, started_unix_nanos, ended_unix_nanos, source, tuning_json FROM sessions WHERE session_id = ?`, id).
		Scan(&s.ID, &s.StartedUnixNanos, &ended, &s.Source, &s.TuningJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ended.Valid {
		s.EndedUnixNanos = &ended.Int64
	}
	return &s, nil
}
