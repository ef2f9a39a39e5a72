package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/posture.report/internal/posture"
)

// PoseEvent is a persisted classification.
type PoseEvent struct {
	EventID         string          `json:"event_id"`
	SessionID       string          `json:"session_id"`
	TrackingID      int             `json:"tracking_id"`
	TakenUnixNanos  int64           `json:"taken_unix_nanos"`
	Label           string          `json:"label"`
	FallProbability float64         `json:"fall_probability"`
	Metrics         posture.Metrics `json:"metrics"`
}

// InsertPoseEvent records r and returns the new event's ID.
func (db *DB) InsertPoseEvent(sessionID string, at time.Time, r posture.Result) (string, error) {
	metrics, err := json.Marshal(r.Metrics)
	if err != nil {
		return "", fmt.Errorf("failed to encode metrics: %w", err)
	}
	id := uuid.NewString()
	_, err = db.Exec(`INSERT INTO pose_events (event_id, session_id, tracking_id, taken_unix_nanos, label, fall_probability, metrics_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, sessionID, r.TrackingID, at.UnixNano(), r.Label, r.FallProbability, string(metrics))
	if err != nil {
		return "", fmt.Errorf("failed to insert pose event: %w", err)
	}
	return id, nil
}

// RecentPoseEvents returns up to limit events of the session, oldest first.
func (db *DB) RecentPoseEvents(sessionID string, limit int) ([]PoseEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT event_id, session_id, tracking_id, taken_unix_nanos, label, fall_probability, metrics_json
		FROM (
			SELECT * FROM pose_events WHERE session_id = ?
			ORDER BY taken_unix_nanos DESC, rowid DESC LIMIT ?
		) ORDER BY taken_unix_nanos ASC, rowid ASC`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []PoseEvent
	for rows.Next() {
		var e PoseEvent
		var metrics string
		if err := rows.Scan(&e.EventID, &e.SessionID, &e.TrackingID, &e.TakenUnixNanos, &e.Label, &e.FallProbability, &metrics); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metrics), &e.Metrics); err != nil {
			return nil, fmt.Errorf("failed to decode metrics of %s: %w", e.EventID, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LabelCounts returns how often each label was recorded in the session.
func (db *DB) LabelCounts(sessionID string) (map[string]int, error) {
	rows, err := db.Query(`SELECT label, COUNT(*) FROM pose_events WHERE session_id = ? GROUP BY label`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		counts[label] = n
	}
	return counts, rows.Err()
}
