// Package alert decides when a fall warrants calling a caregiver and
// records every alert raised.
package alert

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/posture.report/internal/monitoring"
	"github.com/banshee-data/posture.report/internal/posture"
	"github.com/banshee-data/posture.report/internal/timeutil"
	"github.com/banshee-data/posture.report/internal/wearable"
)

var logf = monitoring.Prefixed("Alert")

// Alert reasons.
const (
	ReasonFallScore    = "fall_score"
	ReasonWearableFall = "wearable_fall"
)

// Alert is one raised alert.
type Alert struct {
	ID              string         `json:"alert_id"`
	SessionID       string         `json:"session_id"`
	RaisedAt        time.Time      `json:"raised_at"`
	Reason          string         `json:"reason"`
	TrackingID      int            `json:"tracking_id"`
	Label           string         `json:"label"`
	FallProbability float64        `json:"fall_probability"`
	Wearable        wearable.State `json:"wearable_state"`
	CallerStarted   bool           `json:"caller_started"`
}

// Store records alerts. Implemented by db.DB.
type Store interface {
	InsertAlert(a *Alert) error
}

// Publisher forwards alerts to remote subscribers.
type Publisher interface {
	PublishAlert(a Alert) error
}

// Config holds the alert policy.
type Config struct {
	// Threshold is the fall score at or above which an alert is raised.
	Threshold float64
	// Cooldown is the minimum time between two alerts.
	Cooldown time.Duration
	// PollInterval is how often Run checks the wearable.
	PollInterval time.Duration
}

// Options wires the monitor's collaborators. Every field is optional.
type Options struct {
	SessionID string
	Clock     timeutil.Clock
	Wearable  wearable.Reader
	Caller    Caller
	Store     Store
	Publisher Publisher
}

// Stats counts monitor outcomes.
type Stats struct {
	Raised     uint64 `json:"raised"`
	Suppressed uint64 `json:"suppressed"`
	CallErrors uint64 `json:"call_errors"`
	LastReason string `json:"last_reason,omitempty"`
}

// Monitor raises at most one alert per cooldown, from either a high fall
// score or a wearable fall.
type Monitor struct {
	cfg  Config
	opts Options

	mu        sync.Mutex
	lastAlert time.Time
	stats     Stats
}

// NewMonitor returns a monitor.
func NewMonitor(cfg Config, opts Options) *Monitor {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Monitor{cfg: cfg, opts: opts}
}

// Observe checks one pose result, together with the wearable's current
// state, and raises an alert if the policy calls for one.
func (m *Monitor) Observe(ctx context.Context, r posture.Result) (*Alert, bool) {
	ws := m.wearableState()
	reason := ""
	switch {
	case r.FallProbability >= m.cfg.Threshold:
		reason = ReasonFallScore
	case ws == wearable.Fall:
		reason = ReasonWearableFall
	default:
		return nil, false
	}
	return m.raise(ctx, Alert{
		Reason:          reason,
		TrackingID:      r.TrackingID,
		Label:           r.Label,
		FallProbability: r.FallProbability,
		Wearable:        ws,
	})
}

// CheckWearable raises an alert if the wearable reports a fall.
func (m *Monitor) CheckWearable(ctx context.Context) (*Alert, bool) {
	ws := m.wearableState()
	if ws != wearable.Fall {
		return nil, false
	}
	return m.raise(ctx, Alert{Reason: ReasonWearableFall, Wearable: ws})
}

// Run polls the wearable until ctx is done, so a fall is noticed even
// when no skeleton is tracked.
func (m *Monitor) Run(ctx context.Context) error {
	if m.opts.Wearable == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := m.opts.Clock.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			m.CheckWearable(ctx)
		}
	}
}

// Stats returns a copy of the counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Monitor) wearableState() wearable.State {
	if m.opts.Wearable == nil {
		return wearable.Unknown
	}
	return m.opts.Wearable.State()
}

func (m *Monitor) raise(ctx context.Context, a Alert) (*Alert, bool) {
	now := m.opts.Clock.Now()
	m.mu.Lock()
	if !m.lastAlert.IsZero() && now.Sub(m.lastAlert) < m.cfg.Cooldown {
		m.stats.Suppressed++
		m.mu.Unlock()
		return nil, false
	}
	m.lastAlert = now
	m.stats.Raised++
	m.stats.LastReason = a.Reason
	m.mu.Unlock()

	a.ID = uuid.NewString()
	a.SessionID = m.opts.SessionID
	a.RaisedAt = now

	if m.opts.Caller != nil {
		if err := m.opts.Caller.Call(ctx, a); err != nil {
			logf("caller failed for alert %s: %v", a.ID, err)
			m.mu.Lock()
			m.stats.CallErrors++
			m.mu.Unlock()
		} else {
			a.CallerStarted = true
		}
	}
	logf("raised %s alert %s: label=%q fall_probability=%.2f wearable=%s caller_started=%v",
		a.Reason, a.ID, a.Label, a.FallProbability, a.Wearable, a.CallerStarted)

	if m.opts.Store != nil {
		if err := m.opts.Store.InsertAlert(&a); err != nil {
			logf("failed to record alert %s: %v", a.ID, err)
		}
	}
	if m.opts.Publisher != nil {
		if err := m.opts.Publisher.PublishAlert(a); err != nil {
			logf("failed to publish alert %s: %v", a.ID, err)
		}
	}
	return &a, true
}
