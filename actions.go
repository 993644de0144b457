package main

import (
	"github.com/sirupsen/logrus"
)

// stepUpOrder and stepDownOrder are the fixed visual orders of the
// cascade effects, as 0-indexed channel numbers. They trace the rig's
// physical arrangement on the house, not numeric channel order.
var (
	stepUpOrder   = []int{9, 8, 1, 6, 5, 3, 2, 4, 7, 0}
	stepDownOrder = []int{0, 7, 4, 2, 3, 5, 6, 1, 8, 9}
)

// actionExecutor turns actions into channel commands, immediate or
// timed. A bad channel index or a dangling phrase reference skips that
// one action with a warning; the rest of the beat is unaffected.
type actionExecutor struct {
	channels    []Channel
	phrases     map[string]Phrase
	timers      timerScheduler
	onFlashMode func(mode int)
}

// execute dispatches one action at the tempo of the section firing it.
func (e *actionExecutor) execute(a Action, tempo float64) {
	switch {
	case a.Note != nil:
		e.playNote(*a.Note, tempo)
	case a.Phrase != nil:
		e.playPhrase(a.Phrase.ID, tempo)
	case a.AllChannels != nil:
		e.allChannelsOn(*a.AllChannels, tempo)
	case a.StepUp != nil:
		e.stepUp(tempo)
	case a.StepDown != nil:
		e.stepDown(tempo)
	case a.FlashMode != nil:
		if e.onFlashMode != nil {
			e.onFlashMode(a.FlashMode.Mode)
		} else {
			logrus.Debugf("flash_mode %d has no listener", a.FlashMode.Mode)
		}
	}
}

// playNote turns one channel on after the note's delay. A multiplier
// that is present and positive beats the absolute value, which keeps a
// song's feel intact when a section's tempo is retuned.
func (e *actionExecutor) playNote(n NoteAction, tempo float64) {
	ch, ok := e.channel(n.Channel)
	if !ok {
		return
	}

	delay := n.Delay
	if n.HasDelayMult && n.DelayMultiplier > 0 {
		delay = tempo * n.DelayMultiplier
	}
	duration := n.Duration
	if n.HasDurationMult && n.DurationMultiplier > 0 {
		duration = tempo * n.DurationMultiplier
	}
	e.fireNote(ch, delay, duration)
}

// fireNote applies the shared immediate-vs-delayed policy: a zero delay
// runs on the calling goroutine, anything else goes through a timer.
func (e *actionExecutor) fireNote(ch Channel, delay, duration float64) {
	if delay == 0 {
		ch.On(duration)
		return
	}
	e.timers.Schedule(delay, func() { ch.On(duration) })
}

// playPhrase expands a phrase reference against the current tempo. A
// missing id is reported and skipped, never fatal; songs that reference
// deleted phrases keep playing everything else.
func (e *actionExecutor) playPhrase(id string, tempo float64) {
	phrase, ok := e.phrases[id]
	if !ok {
		logrus.Warnf("phrase %q not found, skipping action", id)
		return
	}
	for _, note := range resolvePhrase(phrase, tempo) {
		ch, ok := e.channel(note.Channel)
		if !ok {
			continue
		}
		e.fireNote(ch, note.Delay, note.Duration)
	}
}

// allChannelsOn lights the whole rig at once. An explicit positive
// duration wins over the tempo-scaled one.
func (e *actionExecutor) allChannelsOn(a AllChannelsAction, tempo float64) {
	duration := a.Duration
	if duration <= 0 {
		duration = tempo * a.DurationMultiplier
	}
	for _, ch := range e.channels {
		ch.On(duration)
	}
}

// stepUp lights channels one at a time across the rig. The first lamp
// in the order burns for one beat; the rest come on staggered a tenth
// of a beat apart and stay lit until something turns them off.
func (e *actionExecutor) stepUp(tempo float64) {
	for x, number := range stepUpOrder {
		ch, ok := e.channel(number)
		if !ok {
			continue
		}
		if x == 0 {
			ch.On(tempo)
			continue
		}
		target := ch
		e.timers.Schedule(tempo*0.1*float64(x), func() { target.On(0) })
	}
}

// stepDown starts every channel together with stepped durations, so the
// rig goes dark one lamp at a time; the final lamp in the order stays
// on indefinitely.
func (e *actionExecutor) stepDown(tempo float64) {
	last := len(stepDownOrder) - 1
	for x, number := range stepDownOrder {
		ch, ok := e.channel(number)
		if !ok {
			continue
		}
		if x == last {
			ch.On(0)
			continue
		}
		ch.On(tempo * 0.1 * float64(x+1))
	}
}

// channel resolves an index against the rig, reporting and skipping
// anything out of range.
func (e *actionExecutor) channel(number int) (Channel, bool) {
	if number < 0 || number >= len(e.channels) {
		logrus.Warnf("channel %d out of range (rig has %d), skipping", number, len(e.channels))
		return nil, false
	}
	return e.channels[number], true
}
