package depth

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"

	"github.com/banshee-data/posture.report/internal/timeutil"
)

// EnvelopeSnapshot is a persisted copy of a completed envelope. It is kept
// for inspection; a new run always trains its own envelope.
type EnvelopeSnapshot struct {
	SnapshotID     *int64 // set by the store after insert
	SessionID      string
	TakenUnixNanos int64
	Width          int
	Height         int
	EnvelopeBlob   []byte // gob+gzip encoded envelopeBlob
	Reason         string // "calibration_complete", "manual"
}

// EnvelopeStore persists envelope snapshots. Implemented by db.DB.
type EnvelopeStore interface {
	InsertEnvelopeSnapshot(s *EnvelopeSnapshot) (int64, error)
	LatestEnvelopeSnapshot(sessionID string) (*EnvelopeSnapshot, error)
}

type envelopeBlob struct {
	Min []byte
	Max []byte
}

// EncodeEnvelope compresses the envelope grids into a blob.
func EncodeEnvelope(e *Envelope) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("nil envelope")
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(envelopeBlob{Min: e.Min, Max: e.Max}); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEnvelope restores an envelope of the given resolution from a blob.
func DecodeEnvelope(blob []byte, width, height int) (*Envelope, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty envelope blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var b envelopeBlob
	if err := gob.NewDecoder(gz).Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if len(b.Min) != width*height || len(b.Max) != width*height {
		return nil, fmt.Errorf("%w: blob holds %d/%d pixels, want %d", ErrResolutionMismatch, len(b.Min), len(b.Max), width*height)
	}
	return &Envelope{Width: width, Height: height, Min: b.Min, Max: b.Max}, nil
}

// PersistEnvelope encodes e and writes it through store, stamped with
// clock's current time. A nil clock uses the real clock.
func PersistEnvelope(store EnvelopeStore, clock timeutil.Clock, sessionID string, e *Envelope, reason string) (int64, error) {
	if store == nil || e == nil {
		return 0, nil
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	blob, err := EncodeEnvelope(e)
	if err != nil {
		return 0, err
	}
	snap := &EnvelopeSnapshot{
		SessionID:      sessionID,
		TakenUnixNanos: clock.Now().UnixNano(),
		Width:          e.Width,
		Height:         e.Height,
		EnvelopeBlob:   blob,
		Reason:         reason,
	}
	id, err := store.InsertEnvelopeSnapshot(snap)
	if err != nil {
		return 0, err
	}
	logf("persisted envelope snapshot: id=%d session=%s reason=%s blob=%d bytes", id, sessionID, reason, len(blob))
	return id, nil
}

// Envelope decodes the snapshot's blob.
func (s *EnvelopeSnapshot) Envelope() (*Envelope, error) {
	return DecodeEnvelope(s.EnvelopeBlob, s.Width, s.Height)
}
