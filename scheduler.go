package main

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// beatScheduler walks one section's (or segment's) beat grid against the
// live playback clock. Beat b of a unit with start time S and tempo T
// lands at S + b*T on the player's clock: wake-up targets are always
// computed from that fixed origin, never from "now plus a beat", so a
// late or slow wake-up never pushes later beats off the grid.
//
// Each wake-up arms the next beat before running the current beat's
// actions. Action dispatch latency therefore cannot leak into the next
// beat's target, and drift stays bounded by the player's own reporting
// jitter.
type beatScheduler struct {
	name       string
	startTime  float64
	tempo      float64
	totalBeats int
	sequences  []Sequence

	currentBeat atomic.Int32
	finished    atomic.Bool

	timers timerScheduler
	player Player
	exec   *actionExecutor
	onDone func()
}

// start arms the first wake-up at the unit's start time. That wake-up
// is the transition into the beat grid; beats 1..totalBeats follow, one
// wake-up each.
func (b *beatScheduler) start() {
	b.arm(0)
}

// arm schedules the wake-up for the given beat at its absolute target
// time on the player clock.
func (b *beatScheduler) arm(beat int) {
	target := b.startTime + float64(beat)*b.tempo
	pos := b.player.Position()
	if pos < 0 {
		pos = 0
	}
	delay := target - pos
	if delay < 0 {
		logrus.Debugf("%s: beat %d target %.3fs already passed at position %.3fs", b.name, beat, target, pos)
		delay = 0
	}
	b.timers.Schedule(delay, func() { b.fire(beat) })
}

// fire handles one wake-up. The next beat is armed before anything
// else; then the beat's matching sequences run; finishing is decided
// last, so the final beat's actions are fully dispatched before the
// owner hears about completion.
func (b *beatScheduler) fire(beat int) {
	b.currentBeat.Store(int32(beat))

	if beat < b.totalBeats {
		b.arm(beat + 1)
	}

	if beat >= 1 {
		for i := range b.sequences {
			seq := &b.sequences[i]
			if !seq.Beats.Matches(beat) {
				continue
			}
			for _, action := range seq.Actions {
				b.exec.execute(action, b.tempo)
			}
		}
	}

	if beat >= b.totalBeats {
		b.finished.Store(true)
		logrus.Debugf("%s: finished after %d beats", b.name, b.totalBeats)
		if b.onDone != nil {
			b.onDone()
		}
	}
}

// Beat reports the most recent wake-up's beat number.
func (b *beatScheduler) Beat() int { return int(b.currentBeat.Load()) }

// Finished reports whether the scheduler has run out its beat grid.
// A stopped show leaves schedulers unfinished.
func (b *beatScheduler) Finished() bool { return b.finished.Load() }
