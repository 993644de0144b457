package main

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// timerHandle identifies one scheduled callback so it can be cancelled.
// The zero handle is never issued and cancels nothing.
type timerHandle uint64

// timerScheduler is the scheduling capability the beat engine depends on.
// Tests substitute a recording implementation to drive beats by hand.
type timerScheduler interface {
	Schedule(delaySeconds float64, fn func()) timerHandle
	Cancel(h timerHandle)
}

// timerSet owns every pending one-shot timer of a playback session.
// Cancelling the set is the session's kill switch: nothing scheduled on a
// dead set runs, and callbacks that lost the race to CancelAll find the
// set dead and return without touching anything.
type timerSet struct {
	mu     sync.Mutex
	live   bool
	nextID timerHandle
	timers map[timerHandle]*time.Timer
}

func newTimerSet() *timerSet {
	return &timerSet{
		live:   true,
		timers: make(map[timerHandle]*time.Timer),
	}
}

// Schedule runs fn after delaySeconds on its own goroutine. Delays at or
// below zero fire as soon as possible; a negative delay is clamped and
// traced, since it means the caller is already behind the clock.
func (ts *timerSet) Schedule(delaySeconds float64, fn func()) timerHandle {
	if delaySeconds < 0 {
		logrus.Debugf("timer: clamping negative delay %.4fs to 0", delaySeconds)
		delaySeconds = 0
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if !ts.live {
		return 0
	}

	ts.nextID++
	id := ts.nextID
	d := time.Duration(delaySeconds * float64(time.Second))
	ts.timers[id] = time.AfterFunc(d, func() {
		ts.mu.Lock()
		_, pending := ts.timers[id]
		delete(ts.timers, id)
		live := ts.live
		ts.mu.Unlock()
		if !pending || !live {
			return
		}
		fn()
	})
	return id
}

// Cancel stops a pending timer. It is safe to call with a handle that
// already fired, was already cancelled, or is firing right now; in every
// case the callback body runs at most once.
func (ts *timerSet) Cancel(h timerHandle) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.timers[h]; ok {
		t.Stop()
		delete(ts.timers, h)
	}
}

// CancelAll stops every pending timer and marks the set dead. Schedule
// calls after CancelAll are no-ops, which is what stops an in-flight
// callback from re-arming more work.
func (ts *timerSet) CancelAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.live = false
	for id, t := range ts.timers {
		t.Stop()
		delete(ts.timers, id)
	}
}

// Pending reports how many timers are scheduled but not yet fired.
func (ts *timerSet) Pending() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.timers)
}
