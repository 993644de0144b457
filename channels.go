package main

import (
	"sync"
	"time"
)

// Channel is one controllable output: a relay, a DMX slot, a MIDI note,
// or an in-memory lamp. On with a positive duration arms an automatic
// off; a duration of 0 leaves the channel on until something turns it
// off. Both calls are safe from any goroutine, last write wins.
type Channel interface {
	On(durationSeconds float64)
	Off()
}

// outputChannel adapts a raw write function to the Channel contract and
// owns the auto-off timer a timed On implies. A new On replaces any
// pending auto-off so overlapping notes extend rather than truncate.
type outputChannel struct {
	number int
	write  func(number int, on bool)

	mu       sync.Mutex
	on       bool
	offTimer *time.Timer
}

func newOutputChannel(number int, write func(int, bool)) *outputChannel {
	return &outputChannel{number: number, write: write}
}

func (c *outputChannel) On(durationSeconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
	c.on = true
	if durationSeconds > 0 {
		c.offTimer = time.AfterFunc(secondsToDuration(durationSeconds), c.Off)
	}
	c.write(c.number, true)
}

func (c *outputChannel) Off() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
	c.on = false
	c.write(c.number, false)
}

// IsOn reports the channel's last written state.
func (c *outputChannel) IsOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.on
}

func (c *outputChannel) stopTimerLocked() {
	if c.offTimer != nil {
		c.offTimer.Stop()
		c.offTimer = nil
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// NewMemoryChannels builds an in-process rig of n channels. The notify
// callback, when set, hears every state write; the terminal simulator
// and the tests hang off it.
func NewMemoryChannels(n int, notify func(number int, on bool)) []Channel {
	channels := make([]Channel, n)
	for i := 0; i < n; i++ {
		channels[i] = newOutputChannel(i, func(number int, on bool) {
			if notify != nil {
				notify(number, on)
			}
		})
	}
	return channels
}

// allOff forces every channel off.
func allOff(channels []Channel) {
	for _, ch := range channels {
		ch.Off()
	}
}
