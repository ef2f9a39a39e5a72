package alert

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/posture.report/internal/monitoring"
	"github.com/banshee-data/posture.report/internal/posture"
	"github.com/banshee-data/posture.report/internal/timeutil"
	"github.com/banshee-data/posture.report/internal/wearable"
)

func init() {
	monitoring.SetLogger(nil)
}

type fixedWearable struct {
	mu sync.Mutex
	s  wearable.State
}

func (f *fixedWearable) State() wearable.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.s
}

func (f *fixedWearable) set(s wearable.State) {
	f.mu.Lock()
	f.s = s
	f.mu.Unlock()
}

type memStore struct {
	mu     sync.Mutex
	alerts []Alert
}

func (m *memStore) InsertAlert(a *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, *a)
	return nil
}

func (m *memStore) all() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Alert(nil), m.alerts...)
}

type memPublisher struct{ alerts []Alert }

func (m *memPublisher) PublishAlert(a Alert) error {
	m.alerts = append(m.alerts, a)
	return nil
}

func newTestMonitor(clock *timeutil.MockClock, w wearable.Reader, caller Caller) (*Monitor, *memStore, *memPublisher) {
	store := &memStore{}
	pub := &memPublisher{}
	m := NewMonitor(Config{Threshold: 0.75, Cooldown: time.Minute, PollInterval: time.Second}, Options{
		SessionID: "session-1",
		Clock:     clock,
		Wearable:  w,
		Caller:    caller,
		Store:     store,
		Publisher: pub,
	})
	return m, store, pub
}

func TestMonitor_FallScoreRaisesAlert(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(5000, 0))
	var calls []Alert
	caller := CallerFunc(func(_ context.Context, a Alert) error {
		calls = append(calls, a)
		return nil
	})
	m, store, pub := newTestMonitor(clock, nil, caller)

	_, raised := m.Observe(context.Background(), posture.Result{Label: posture.LabelSleeping, FallProbability: 0.5})
	assert.False(t, raised, "below threshold")

	a, raised := m.Observe(context.Background(), posture.Result{TrackingID: 3, Label: posture.LabelUndefinedSitting, FallProbability: 0.8})
	require.True(t, raised)
	assert.Equal(t, ReasonFallScore, a.Reason)
	assert.Equal(t, "session-1", a.SessionID)
	assert.Equal(t, 3, a.TrackingID)
	assert.Equal(t, wearable.Unknown, a.Wearable)
	assert.True(t, a.CallerStarted)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, time.Unix(5000, 0), a.RaisedAt)

	require.Len(t, calls, 1)
	assert.Equal(t, a.ID, calls[0].ID)
	require.Len(t, store.all(), 1)
	assert.True(t, store.all()[0].CallerStarted)
	require.Len(t, pub.alerts, 1)
}

func TestMonitor_ThresholdIsInclusive(t *testing.T) {
	m, _, _ := newTestMonitor(timeutil.NewMockClock(time.Unix(0, 0)), nil, nil)
	_, raised := m.Observe(context.Background(), posture.Result{FallProbability: 0.75})
	assert.True(t, raised)
}

func TestMonitor_Cooldown(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(5000, 0))
	m, store, _ := newTestMonitor(clock, nil, nil)
	high := posture.Result{FallProbability: 0.9}

	_, raised := m.Observe(context.Background(), high)
	require.True(t, raised)

	clock.Advance(30 * time.Second)
	_, raised = m.Observe(context.Background(), high)
	assert.False(t, raised)

	clock.Advance(30 * time.Second)
	_, raised = m.Observe(context.Background(), high)
	assert.True(t, raised)

	stats := m.Stats()
	assert.Equal(t, uint64(2), stats.Raised)
	assert.Equal(t, uint64(1), stats.Suppressed)
	assert.Len(t, store.all(), 2)
}

func TestMonitor_WearableFall(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(5000, 0))
	w := &fixedWearable{s: wearable.OK}
	m, _, _ := newTestMonitor(clock, w, nil)

	_, raised := m.Observe(context.Background(), posture.Result{Label: posture.LabelConcentrating, FallProbability: 0.2})
	assert.False(t, raised)
	_, raised = m.CheckWearable(context.Background())
	assert.False(t, raised)

	w.set(wearable.Fall)
	a, raised := m.Observe(context.Background(), posture.Result{Label: posture.LabelConcentrating, FallProbability: 0.2})
	require.True(t, raised)
	assert.Equal(t, ReasonWearableFall, a.Reason)
	assert.Equal(t, wearable.Fall, a.Wearable)
	assert.False(t, a.CallerStarted, "no caller configured")
}

func TestMonitor_CallerErrorStillRecorded(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(5000, 0))
	caller := CallerFunc(func(context.Context, Alert) error { return errors.New("no line") })
	m, store, _ := newTestMonitor(clock, nil, caller)

	a, raised := m.Observe(context.Background(), posture.Result{FallProbability: 1})
	require.True(t, raised)
	assert.False(t, a.CallerStarted)
	assert.Equal(t, uint64(1), m.Stats().CallErrors)
	require.Len(t, store.all(), 1)
	assert.False(t, store.all()[0].CallerStarted)
}

func TestMonitor_RunPollsWearable(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(5000, 0))
	w := &fixedWearable{s: wearable.Fall}
	m, store, _ := newTestMonitor(clock, w, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool {
		clock.Advance(time.Second)
		return len(store.all()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, ReasonWearableFall, store.all()[0].Reason)
}

func TestCommandCaller(t *testing.T) {
	err := CommandCaller{}.Call(context.Background(), Alert{})
	assert.Error(t, err)

	_, err = exec.LookPath("true")
	if err != nil {
		t.Skip("true not available")
	}
	assert.NoError(t, CommandCaller{Program: "true"}.Call(context.Background(), Alert{ID: "a"}))

	err = CommandCaller{Program: "/nonexistent/caller"}.Call(context.Background(), Alert{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, CommandCaller{Program: "true"}.Call(ctx, Alert{}))
}
