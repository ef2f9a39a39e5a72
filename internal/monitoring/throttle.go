package monitoring

import (
	"sync"
	"time"

	"github.com/banshee-data/posture.report/internal/timeutil"
)

// Throttle lets a message through at most once per interval. Suppressed
// calls are counted and reported with the next line that passes.
type Throttle struct {
	mu         sync.Mutex
	clock      timeutil.Clock
	interval   time.Duration
	last       time.Time
	suppressed int
}

// NewThrottle returns a throttle. A nil clock uses the real clock and a
// non-positive interval lets every call through.
func NewThrottle(interval time.Duration, clock timeutil.Clock) *Throttle {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Throttle{clock: clock, interval: interval}
}

// Allow reports whether a message may be emitted now and how many calls
// were suppressed since the last allowed one.
func (t *Throttle) Allow() (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	if t.interval > 0 && !t.last.IsZero() && now.Sub(t.last) < t.interval {
		t.suppressed++
		return false, 0
	}
	skipped := t.suppressed
	t.suppressed = 0
	t.last = now
	return true, skipped
}

// Logf emits through the package logger when Allow permits it.
func (t *Throttle) Logf(format string, v ...interface{}) bool {
	ok, skipped := t.Allow()
	if !ok {
		return false
	}
	if skipped > 0 {
		Logf(format+" (%d suppressed)", append(v, skipped)...)
	} else {
		Logf(format, v...)
	}
	return true
}
