package main

import (
	"sync/atomic"
	"testing"
	"time"
)

// waitFor polls until cond holds or the timeout runs out. Timer and
// channel behavior is asynchronous by nature, so tests observe effects
// instead of sleeping fixed amounts.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTimerSetFires(t *testing.T) {
	ts := newTimerSet()
	defer ts.CancelAll()

	var fired atomic.Bool
	ts.Schedule(0.005, func() { fired.Store(true) })

	waitFor(t, time.Second, "timer to fire", fired.Load)
}

func TestTimerSetNegativeDelayFiresImmediately(t *testing.T) {
	ts := newTimerSet()
	defer ts.CancelAll()

	var fired atomic.Bool
	ts.Schedule(-3.5, func() { fired.Store(true) })

	waitFor(t, time.Second, "clamped timer to fire", fired.Load)
}

func TestTimerSetCancelPreventsCallback(t *testing.T) {
	ts := newTimerSet()
	defer ts.CancelAll()

	var fired atomic.Bool
	h := ts.Schedule(0.05, func() { fired.Store(true) })
	ts.Cancel(h)

	time.Sleep(80 * time.Millisecond)
	if fired.Load() {
		t.Fatal("cancelled timer still fired")
	}

	// Cancelling again, or cancelling a fired handle, must not panic.
	ts.Cancel(h)
	ts.Cancel(timerHandle(9999))
}

func TestTimerSetCancelAll(t *testing.T) {
	ts := newTimerSet()

	var fired atomic.Int32
	for i := 0; i < 5; i++ {
		ts.Schedule(0.05, func() { fired.Add(1) })
	}
	if got := ts.Pending(); got != 5 {
		t.Fatalf("Pending() = %d, want 5", got)
	}

	ts.CancelAll()
	time.Sleep(80 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Fatalf("%d timers fired after CancelAll", n)
	}
	if got := ts.Pending(); got != 0 {
		t.Fatalf("Pending() = %d after CancelAll, want 0", got)
	}
}

func TestTimerSetDeadAfterCancelAll(t *testing.T) {
	ts := newTimerSet()
	ts.CancelAll()

	var fired atomic.Bool
	if h := ts.Schedule(0, func() { fired.Store(true) }); h != 0 {
		t.Fatalf("Schedule on a dead set returned handle %d, want 0", h)
	}

	time.Sleep(20 * time.Millisecond)
	if fired.Load() {
		t.Fatal("dead timer set ran a callback")
	}
}

func TestTimerSetCallbackRunsOncePerSchedule(t *testing.T) {
	ts := newTimerSet()
	defer ts.CancelAll()

	var fired atomic.Int32
	ts.Schedule(0.001, func() { fired.Add(1) })

	waitFor(t, time.Second, "timer to fire", func() bool { return fired.Load() >= 1 })
	time.Sleep(20 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Fatalf("callback ran %d times, want 1", n)
	}
	if got := ts.Pending(); got != 0 {
		t.Fatalf("Pending() = %d after fire, want 0", got)
	}
}
