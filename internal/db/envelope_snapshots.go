package db

import (
	"database/sql"
	"fmt"

	"github.com/banshee-data/posture.report/internal/depth"
)

// InsertEnvelopeSnapshot implements depth.EnvelopeStore.
func (db *DB) InsertEnvelopeSnapshot(s *depth.EnvelopeSnapshot) (int64, error) {
	res, err := db.Exec(`INSERT INTO envelope_snapshots (session_id, taken_unix_nanos, width, height, envelope_blob, snapshot_reason)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.TakenUnixNanos, s.Width, s.Height, s.EnvelopeBlob, s.Reason)
	if err != nil {
		return 0, fmt.Errorf("failed to insert envelope snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.SnapshotID = &id
	return id, nil
}

// LatestEnvelopeSnapshot implements depth.EnvelopeStore. It returns nil, nil
// when the session has no snapshot.
func (db *DB) LatestEnvelopeSnapshot(sessionID string) (*depth.EnvelopeSnapshot, error) {
	row := db.QueryRow(`SELECT snapshot_id, session_id, taken_unix_nanos, width, height, envelope_blob, snapshot_reason
		FROM envelope_snapshots WHERE session_id = ? ORDER BY snapshot_id DESC LIMIT 1`, sessionID)
	s, err := scanEnvelopeSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// ListEnvelopeSnapshots returns snapshot metadata, newest first. Blobs are
// not loaded.
func (db *DB) ListEnvelopeSnapshots(sessionID string, limit int) ([]depth.EnvelopeSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`SELECT snapshot_id, session_id, taken_unix_nanos, width, height, snapshot_reason
		FROM envelope_snapshots WHERE session_id = ? ORDER BY snapshot_id DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []depth.EnvelopeSnapshot
	for rows.Next() {
		var s depth.EnvelopeSnapshot
		var id int64
		if err := rows.Scan(&id, &s.SessionID, &s.TakenUnixNanos, &s.Width, &s.Height, &s.Reason); err != nil {
			return nil, err
		}
		s.SnapshotID = &id
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanEnvelopeSnapshot(row *sql.Row) (*depth.EnvelopeSnapshot, error) {
	var s depth.EnvelopeSnapshot
	var id int64
	if err := row.Scan(&id, &s.SessionID, &s.TakenUnixNanos, &s.Width, &s.Height, &s.EnvelopeBlob, &s.Reason); err != nil {
		return nil, err
	}
	s.SnapshotID = &id
	return &s, nil
}
