package timeutil

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	before := time.Now()
	got := RealClock{}.Now()
	if got.Before(before) {
		t.Errorf("RealClock.Now() = %v, before %v", got, before)
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	tk := RealClock{}.NewTicker(5 * time.Millisecond)
	defer tk.Stop()
	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("ticker did not fire")
	}
}

func TestMockClock_AdvanceAndSince(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	c.Advance(1500 * time.Millisecond)
	if got := c.Since(start); got != 1500*time.Millisecond {
		t.Errorf("Since() = %v, want 1.5s", got)
	}
}

func TestMockClock_SleepRecordsAndAdvances(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	c.Sleep(time.Second)
	c.Sleep(2 * time.Second)

	sleeps := c.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != 2*time.Second {
		t.Errorf("Sleeps() = %v", sleeps)
	}
	if !c.Now().Equal(start.Add(3 * time.Second)) {
		t.Errorf("Now() = %v, want start+3s", c.Now())
	}
}

func TestMockTicker_FiresOnAdvance(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	tk := c.NewTicker(time.Second)

	c.Advance(500 * time.Millisecond)
	select {
	case <-tk.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(500 * time.Millisecond)
	select {
	case <-tk.C():
	default:
		t.Fatal("ticker did not fire at deadline")
	}

	tk.Stop()
	c.Advance(2 * time.Second)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestMockClock_Set(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	target := time.Unix(100, 0)
	c.Set(target)
	if !c.Now().Equal(target) {
		t.Errorf("Now() = %v, want %v", c.Now(), target)
	}
}

func TestRealClock_SleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	err := RealClock{}.SleepContext(ctx, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("SleepContext() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("SleepContext() waited %v after cancel", time.Since(start))
	}
}

func TestRealClock_SleepContextElapses(t *testing.T) {
	if err := (RealClock{}).SleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("SleepContext() error = %v", err)
	}
}

func TestMockClock_SleepContext(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	if err := c.SleepContext(context.Background(), time.Second); err != nil {
		t.Fatalf("SleepContext() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.SleepContext(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("SleepContext() error = %v, want context.Canceled", err)
	}
	if got := c.Sleeps(); len(got) != 1 || got[0] != time.Second {
		t.Errorf("Sleeps() = %v, want [1s]", got)
	}
	if !c.Now().Equal(time.Unix(1, 0)) {
		t.Errorf("Now() = %v, want 1s", c.Now())
	}
}
