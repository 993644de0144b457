package main

import (
	"sync"
	"testing"
	"time"
)

// stateRecorder collects channel writes in order.
type stateRecorder struct {
	mu     sync.Mutex
	writes []struct {
		number int
		on     bool
	}
}

func (r *stateRecorder) notify(number int, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, struct {
		number int
		on     bool
	}{number, on})
}

func (r *stateRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.writes)
}

func TestChannelAutoOff(t *testing.T) {
	rec := &stateRecorder{}
	channels := NewMemoryChannels(1, rec.notify)
	ch := channels[0].(*outputChannel)

	ch.On(0.02)
	if !ch.IsOn() {
		t.Fatal("channel off right after On")
	}

	waitFor(t, time.Second, "auto-off", func() bool { return !ch.IsOn() })

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.writes) != 2 || !rec.writes[0].on || rec.writes[1].on {
		t.Fatalf("writes = %v, want on then off", rec.writes)
	}
}

func TestChannelIndefiniteOnNeedsExplicitOff(t *testing.T) {
	channels := NewMemoryChannels(1, nil)
	ch := channels[0].(*outputChannel)

	ch.On(0)
	time.Sleep(30 * time.Millisecond)
	if !ch.IsOn() {
		t.Fatal("indefinite On turned itself off")
	}
	ch.Off()
	if ch.IsOn() {
		t.Fatal("channel on after Off")
	}
}

func TestChannelNewOnReplacesAutoOff(t *testing.T) {
	channels := NewMemoryChannels(1, nil)
	ch := channels[0].(*outputChannel)

	ch.On(0.01)
	ch.On(0) // replaces the pending auto-off
	time.Sleep(40 * time.Millisecond)
	if !ch.IsOn() {
		t.Fatal("stale auto-off from the first On fired anyway")
	}
}

func TestChannelOffCancelsAutoOff(t *testing.T) {
	rec := &stateRecorder{}
	channels := NewMemoryChannels(1, rec.notify)
	ch := channels[0].(*outputChannel)

	ch.On(0.02)
	ch.Off()
	before := rec.count()
	time.Sleep(50 * time.Millisecond)
	if got := rec.count(); got != before {
		t.Fatalf("cancelled auto-off still wrote: %d writes, had %d", got, before)
	}
}

func TestAllOff(t *testing.T) {
	channels := NewMemoryChannels(4, nil)
	for _, ch := range channels {
		ch.On(0)
	}
	allOff(channels)
	for i, ch := range channels {
		if ch.(*outputChannel).IsOn() {
			t.Errorf("channel %d still on after allOff", i)
		}
	}
}

func TestMemoryChannelsNumbering(t *testing.T) {
	rec := &stateRecorder{}
	channels := NewMemoryChannels(3, rec.notify)

	channels[2].On(0)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.writes) != 1 || rec.writes[0].number != 2 || !rec.writes[0].on {
		t.Fatalf("writes = %v, want channel 2 on", rec.writes)
	}
}
