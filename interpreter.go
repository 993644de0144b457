package main

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Interpreter drives one loaded song against the player clock. It owns
// every beat scheduler and, through one timer set per session, every
// pending timer the song creates; Stop cancels them all at once.
//
// FlashModeFunc, when set before Start, hears flash_mode actions.
type Interpreter struct {
	FlashModeFunc func(mode int)

	player   Player
	channels []Channel

	mu         sync.Mutex
	song       *Song
	schedulers []*beatScheduler
	timers     *timerSet
	running    bool
	notified   bool
	onFinished func()
}

// NewInterpreter builds an interpreter around its two collaborators:
// the clock it schedules against and the rig it plays on.
func NewInterpreter(player Player, channels []Channel) *Interpreter {
	return &Interpreter{player: player, channels: channels}
}

// Load replaces the current song and resets all scheduler state. It
// rejects songs whose timing would divide by zero somewhere, and it
// refuses to swap songs mid-playback.
func (it *Interpreter) Load(song *Song) error {
	if song == nil {
		return errors.New("no song given")
	}
	if problems := validateLoadedSong(song); len(problems) > 0 {
		return &ValidationError{ID: song.ID, Problems: problems}
	}

	it.mu.Lock()
	defer it.mu.Unlock()
	if it.running {
		return errors.New("cannot load a song while one is playing")
	}
	it.song = song
	it.schedulers = nil
	it.notified = false
	return nil
}

// validateLoadedSong re-checks the invariants the schedulers rely on.
// Songs from ParseSong already satisfy them; hand-built ones might not.
func validateLoadedSong(song *Song) []string {
	var problems []string
	for _, sec := range song.Sections {
		if sec.Simple() {
			if sec.Tempo <= 0 {
				problems = append(problems, fmt.Sprintf("section %q: missing 'tempo' field (must be at root, section, or segment level)", sec.Name))
			}
			if sec.TotalBeats < 0 {
				problems = append(problems, fmt.Sprintf("section %q: 'total_beats' must be a non-negative integer", sec.Name))
			}
			continue
		}
		for i, seg := range sec.Segments {
			if seg.Tempo <= 0 {
				problems = append(problems, fmt.Sprintf("section %q segment %d: missing 'tempo' field (must be at root, section, or segment level)", sec.Name, i))
			}
			if seg.TotalBeats < 0 {
				problems = append(problems, fmt.Sprintf("section %q segment %d: 'total_beats' must be a non-negative integer", sec.Name, i))
			}
		}
	}
	return problems
}

// Start arms one scheduler per simple section and one per segment, all
// sharing a fresh timer set. The callback, if given, fires exactly once
// when every scheduler has run out its beats.
func (it *Interpreter) Start(onFinished func()) error {
	it.mu.Lock()
	if it.song == nil {
		it.mu.Unlock()
		return errors.New("no song loaded")
	}
	if it.running {
		it.mu.Unlock()
		return errors.New("song already playing")
	}

	it.timers = newTimerSet()
	it.onFinished = onFinished
	it.notified = false
	it.schedulers = nil

	exec := &actionExecutor{
		channels:    it.channels,
		phrases:     it.song.Phrases,
		timers:      it.timers,
		onFlashMode: it.FlashModeFunc,
	}

	for si := range it.song.Sections {
		sec := &it.song.Sections[si]
		if sec.Simple() {
			it.schedulers = append(it.schedulers, it.newScheduler(sec.Name, sec.StartTime, sec.Tempo, sec.TotalBeats, sec.Sequences, exec))
			continue
		}
		for gi := range sec.Segments {
			seg := &sec.Segments[gi]
			name := fmt.Sprintf("%s_%d", sec.Name, gi)
			it.schedulers = append(it.schedulers, it.newScheduler(name, seg.StartTime, seg.Tempo, seg.TotalBeats, seg.Sequences, exec))
		}
	}

	if len(it.schedulers) == 0 {
		// Nothing to play counts as played.
		it.notified = true
		cb := it.onFinished
		songID := it.song.ID
		it.mu.Unlock()
		logrus.Warnf("song %q has no sections", songID)
		if cb != nil {
			cb()
		}
		return nil
	}

	it.running = true
	schedulers := it.schedulers
	it.mu.Unlock()

	logrus.Infof("starting light show: %d scheduler(s)", len(schedulers))
	for _, s := range schedulers {
		s.start()
	}
	return nil
}

func (it *Interpreter) newScheduler(name string, start, tempo float64, totalBeats int, seqs []Sequence, exec *actionExecutor) *beatScheduler {
	b := &beatScheduler{
		name:       name,
		startTime:  start,
		tempo:      tempo,
		totalBeats: totalBeats,
		sequences:  seqs,
		timers:     it.timers,
		player:     it.player,
		exec:       exec,
	}
	b.onDone = it.sectionDone
	return b
}

// sectionDone runs whenever a scheduler finishes. When the last one is
// done the completion callback fires, once, outside the lock.
func (it *Interpreter) sectionDone() {
	it.mu.Lock()
	if it.notified || !it.running {
		it.mu.Unlock()
		return
	}
	for _, s := range it.schedulers {
		if !s.Finished() {
			it.mu.Unlock()
			return
		}
	}
	it.notified = true
	it.running = false
	cb := it.onFinished
	songID := it.song.ID
	it.mu.Unlock()

	logrus.Infof("light show for %q finished", songID)
	if cb != nil {
		cb()
	}
}

// Stop cancels every pending beat and note timer, then forces the rig
// dark. It is idempotent and safe from any goroutine, including from
// inside error recovery or a completion callback.
func (it *Interpreter) Stop() {
	it.mu.Lock()
	timers := it.timers
	it.running = false
	it.mu.Unlock()

	if timers != nil {
		timers.CancelAll()
	}
	allOff(it.channels)
}

// Running reports whether a started song has neither finished nor been
// stopped.
func (it *Interpreter) Running() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.running
}

// IsFinished reports whether every scheduler ran out its beats. A show
// cut short by Stop never reads as finished.
func (it *Interpreter) IsFinished() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if len(it.schedulers) == 0 {
		return it.notified
	}
	for _, s := range it.schedulers {
		if !s.Finished() {
			return false
		}
	}
	return true
}

// SectionStatus is a point-in-time view of one scheduler.
type SectionStatus struct {
	Name       string `json:"name"`
	Beat       int    `json:"beat"`
	TotalBeats int    `json:"total_beats"`
	Finished   bool   `json:"finished"`
}

// Sections snapshots scheduler progress for status reporting.
func (it *Interpreter) Sections() []SectionStatus {
	it.mu.Lock()
	defer it.mu.Unlock()
	out := make([]SectionStatus, 0, len(it.schedulers))
	for _, s := range it.schedulers {
		out = append(out, SectionStatus{
			Name:       s.name,
			Beat:       s.Beat(),
			TotalBeats: s.totalBeats,
			Finished:   s.Finished(),
		})
	}
	return out
}
