package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/posture.report/internal/alert"
	"github.com/banshee-data/posture.report/internal/wearable"
)

// InsertAlert implements alert.Store.
func (db *DB) InsertAlert(a *alert.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := db.Exec(`INSERT INTO alerts (alert_id, session_id, raised_unix_nanos, reason, tracking_id, label, fall_probability, wearable_state, caller_started)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.RaisedAt.UnixNano(), a.Reason, a.TrackingID, a.Label, a.FallProbability, int(a.Wearable), a.CallerStarted)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// RecentAlerts returns up to limit alerts of the session, newest first.
func (db *DB) RecentAlerts(sessionID string, limit int) ([]alert.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`SELECT alert_id, session_id, raised_unix_nanos, reason, tracking_id, label, fall_probability, wearable_state, caller_started
		FROM alerts WHERE session_id = ? ORDER BY raised_unix_nanos DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alert.Alert
	for rows.Next() {
		var a alert.Alert
		var raised int64
		var ws int
		if err := rows.Scan(&a.ID, &a.SessionID, &raised, &a.Reason, &a.TrackingID, &a.Label, &a.FallProbability, &ws, &a.CallerStarted); err != nil {
			return nil, err
		}
		a.RaisedAt = time.Unix(0, raised)
		a.Wearable = wearable.State(ws)
		out = append(out, a)
	}
	return out, rows.Err()
}
