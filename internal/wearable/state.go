// Package wearable reads the fall flag reported by a body-worn
// accelerometer, either from a file the vendor daemon rewrites or from a
// serial link carrying one reading per line.
package wearable

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"time"
)

// State is the last reading from the wearable.
type State int

const (
	Unknown State = -1
	OK      State = 0
	Fall    State = 1
)

func (s State) String() string {
	switch s {
	case OK:
		return "ok"
	case Fall:
		return "fall"
	case Unknown:
		return "unknown"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseState reads the first non-blank byte of b: '0' or a raw 0x00 is
// OK, '1' or a raw 0x01 is a fall, anything else is Unknown.
func ParseState(b []byte) State {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return Unknown
	}
	switch b[0] {
	case '0', 0x00:
		return OK
	case '1', 0x01:
		return Fall
	}
	return Unknown
}

// Reader reports the current wearable state.
type Reader interface {
	State() State
}

// latest holds the most recent reading and when it arrived.
type latest struct {
	state atomic.Int32
	at    atomic.Int64
}

func newLatest() *latest {
	l := &latest{}
	l.state.Store(int32(Unknown))
	return l
}

func (l *latest) set(s State, at time.Time) {
	l.state.Store(int32(s))
	l.at.Store(at.UnixNano())
}

func (l *latest) get() (State, time.Time) {
	at := l.at.Load()
	if at == 0 {
		return State(l.state.Load()), time.Time{}
	}
	return State(l.state.Load()), time.Unix(0, at)
}
