package main

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"
)

// Flash modes for the idle rig. Modes are what the rig does between
// songs; ModePlaying means a song owns the channels.
const (
	ModeOff     = -1
	ModeSteady  = 0
	ModeSlow    = 1
	ModeMedium  = 2
	ModeFast    = 3
	ModePlaying = 4
)

// flashScales maps flashing modes to the upper bound of their random
// on and off intervals, in seconds.
var flashScales = map[int]float64{
	ModeSlow:   5.0,
	ModeMedium: 3.0,
	ModeFast:   0.5,
}

func modeName(mode int) string {
	switch mode {
	case ModeOff:
		return "off"
	case ModeSteady:
		return "steady"
	case ModeSlow:
		return "slow flash"
	case ModeMedium:
		return "medium flash"
	case ModeFast:
		return "fast flash"
	case ModePlaying:
		return "playing"
	}
	return fmt.Sprintf("mode %d", mode)
}

// playerFactory builds a player for one song with its callbacks wired.
// The controller owns when songs start; main decides how they sound.
type playerFactory func(song *Song, onSync func(position float64), onEnd func()) (showPlayer, error)

// ShowController owns everything above a single song: the idle flash
// behavior, the playlist cursor, and the lifecycle of one player and
// one interpreter per song.
type ShowController struct {
	// OnIdle, when set, runs each time the rig returns to idle.
	OnIdle func()
	// OnFlashEvent, when set, hears flash_mode actions from songs.
	OnFlashEvent func(mode int)

	library   *Library
	channels  []Channel
	newPlayer playerFactory

	mu            sync.Mutex
	mode          int
	previousMode  int
	playlistIdx   int
	autoPlay      bool
	fromPlaylist  bool
	playing       bool
	interpStarted bool
	player        showPlayer
	interp        *Interpreter
	song          *Song
	flashTimers   *timerSet
}

// NewShowController wires the controller to its library, rig, and
// player factory. The rig starts dark.
func NewShowController(library *Library, channels []Channel, factory playerFactory) *ShowController {
	return &ShowController{
		library:      library,
		channels:     channels,
		newPlayer:    factory,
		mode:         ModeOff,
		previousMode: ModeSteady,
	}
}

// SetMode switches the idle behavior. Mode changes cancel all flash
// timers before applying the new behavior, so modes never overlap.
func (c *ShowController) SetMode(mode int) {
	c.mu.Lock()
	c.setModeLocked(mode)
	c.mu.Unlock()
}

func (c *ShowController) setModeLocked(mode int) {
	if c.flashTimers != nil {
		c.flashTimers.CancelAll()
		c.flashTimers = nil
	}
	c.mode = mode
	logrus.Infof("light mode: %s", modeName(mode))

	switch mode {
	case ModeOff, ModePlaying:
		allOff(c.channels)
	case ModeSteady:
		for _, ch := range c.channels {
			ch.On(0)
		}
	case ModeSlow, ModeMedium, ModeFast:
		allOff(c.channels)
		c.flashTimers = newTimerSet()
		scale := flashScales[mode]
		for _, ch := range c.channels {
			startFlashing(c.flashTimers, ch, scale)
		}
	}
}

// startFlashing begins one channel's random blink loop. Each lit or
// dark phase lasts up to scale seconds, so every lamp wanders on its
// own schedule.
func startFlashing(timers *timerSet, ch Channel, scale float64) {
	var lit, dark func()
	lit = func() {
		ch.On(0)
		timers.Schedule(rand.Float64()*scale, dark)
	}
	dark = func() {
		ch.Off()
		timers.Schedule(rand.Float64()*scale, lit)
	}
	timers.Schedule(rand.Float64()*scale, lit)
}

// Mode reports the current mode.
func (c *ShowController) Mode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Playing reports whether a song currently owns the rig.
func (c *ShowController) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// CycleMode is the mode button: during playback it stops the show and
// restores the previous idle mode; when idle it cycles steady, slow,
// medium, fast.
func (c *ShowController) CycleMode() {
	c.mu.Lock()
	playing := c.playing
	c.mu.Unlock()
	if playing {
		c.StopShow()
		return
	}

	c.mu.Lock()
	c.setModeLocked((c.mode + 1) % 4)
	c.mu.Unlock()
}

// StartShow is the lightshow button: play the current playlist entry,
// or skip to the next song when one is already playing.
func (c *ShowController) StartShow() error {
	c.mu.Lock()
	if c.playing {
		c.mu.Unlock()
		return c.Skip()
	}
	if len(c.library.Songs) == 0 {
		c.mu.Unlock()
		return errors.New("song library is empty")
	}
	if c.mode != ModePlaying {
		c.previousMode = c.mode
	}
	c.autoPlay = true
	idx := c.playlistIdx
	c.mu.Unlock()

	return c.playIndex(idx)
}

// PlaySong plays one song by id as a one-shot: no auto-advance, and the
// playlist cursor stays where it was.
func (c *ShowController) PlaySong(id string) error {
	song, ok := c.library.Song(id)
	if !ok {
		return fmt.Errorf("unknown song %q", id)
	}

	c.mu.Lock()
	if c.playing {
		c.mu.Unlock()
		return errors.New("a song is already playing")
	}
	if c.mode != ModePlaying {
		c.previousMode = c.mode
	}
	c.autoPlay = false
	c.mu.Unlock()

	return c.playSong(song, false)
}

// Skip stops the current song without firing its end callback and
// starts the next playlist entry.
func (c *ShowController) Skip() error {
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return errors.New("nothing is playing")
	}
	player := c.player
	interp := c.interp
	c.clearPlaybackLocked()
	c.playlistIdx = (c.playlistIdx + 1) % len(c.library.Songs)
	idx := c.playlistIdx
	c.mu.Unlock()

	player.Stop()
	interp.Stop()
	return c.playIndex(idx)
}

// StopShow ends playback and returns the rig to the pre-show mode.
func (c *ShowController) StopShow() {
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return
	}
	player := c.player
	interp := c.interp
	c.clearPlaybackLocked()
	c.autoPlay = false
	prev := c.previousMode
	c.mu.Unlock()

	player.Stop()
	interp.Stop()
	c.enterIdle(prev)
}

// Shutdown stops everything for process exit and leaves the rig dark.
func (c *ShowController) Shutdown() {
	c.mu.Lock()
	player := c.player
	interp := c.interp
	c.clearPlaybackLocked()
	c.autoPlay = false
	if c.flashTimers != nil {
		c.flashTimers.CancelAll()
		c.flashTimers = nil
	}
	c.mode = ModeOff
	c.mu.Unlock()

	if player != nil {
		player.Stop()
	}
	if interp != nil {
		interp.Stop()
	}
	allOff(c.channels)
}

func (c *ShowController) clearPlaybackLocked() {
	c.playing = false
	c.player = nil
	c.interp = nil
	c.song = nil
}

func (c *ShowController) playIndex(idx int) error {
	c.mu.Lock()
	if idx >= len(c.library.Songs) {
		c.mu.Unlock()
		return fmt.Errorf("playlist index %d out of range", idx)
	}
	song := c.library.Songs[idx]
	c.mu.Unlock()
	return c.playSong(song, true)
}

// playSong builds the player and interpreter for one song and starts
// the audio. The beat schedulers arm later, on the first sync pulse,
// once the player reports a real position.
func (c *ShowController) playSong(song *Song, fromPlaylist bool) error {
	var interp *Interpreter

	player, err := c.newPlayer(song,
		func(pos float64) { c.syncPulse(interp, pos) },
		func() { c.songEnded(interp) },
	)
	if err != nil {
		return fmt.Errorf("player for %q: %w", song.ID, err)
	}

	interp = NewInterpreter(player, c.channels)
	interp.FlashModeFunc = c.flashEvent
	if err := interp.Load(song); err != nil {
		player.Stop()
		return err
	}

	c.mu.Lock()
	c.player = player
	c.interp = interp
	c.song = song
	c.playing = true
	c.interpStarted = false
	c.fromPlaylist = fromPlaylist
	c.setModeLocked(ModePlaying)
	c.mu.Unlock()

	fmt.Printf("Playing %q by %s\n", song.Title, song.Artist)
	player.Play()
	return nil
}

// syncPulse arrives from the player a couple of times a second. The
// first pulse with a real position starts the beat schedulers, so
// section start times line up with what is actually audible.
func (c *ShowController) syncPulse(interp *Interpreter, pos float64) {
	if interp == nil || pos < 0 {
		return
	}
	c.mu.Lock()
	if c.interp != interp || !c.playing || c.interpStarted {
		c.mu.Unlock()
		return
	}
	c.interpStarted = true
	c.mu.Unlock()

	logrus.Debugf("first sync at %.3fs, arming schedulers", pos)
	if err := interp.Start(func() { c.showFinished(interp) }); err != nil {
		logrus.Errorf("start light show: %v", err)
	}
}

// showFinished means every section ran out of beats. The audio usually
// has a tail left; the rig just stays quiet until the song ends.
func (c *ShowController) showFinished(interp *Interpreter) {
	c.mu.Lock()
	current := c.interp == interp
	c.mu.Unlock()
	if current {
		logrus.Debug("all sections finished, waiting for audio to end")
	}
}

// songEnded is the player's end-of-stream callback: stop the light
// show, then advance the playlist, or return to idle when auto-play is
// done or the playlist wraps around.
func (c *ShowController) songEnded(interp *Interpreter) {
	c.mu.Lock()
	if interp == nil || c.interp != interp {
		c.mu.Unlock()
		return
	}
	fromPlaylist := c.fromPlaylist
	c.clearPlaybackLocked()

	next := false
	idx := 0
	if fromPlaylist {
		c.playlistIdx = (c.playlistIdx + 1) % len(c.library.Songs)
		wrapped := c.playlistIdx == 0
		next = c.autoPlay && !wrapped
		if wrapped {
			c.autoPlay = false
		}
		idx = c.playlistIdx
	}
	prev := c.previousMode
	c.mu.Unlock()

	interp.Stop()

	if next {
		if err := c.playIndex(idx); err != nil {
			logrus.Errorf("next song: %v", err)
			c.enterIdle(prev)
		}
		return
	}
	c.enterIdle(prev)
}

// enterIdle restores the pre-show mode and tells the owner the rig is
// idle again.
func (c *ShowController) enterIdle(mode int) {
	c.SetMode(mode)
	if c.OnIdle != nil {
		c.OnIdle()
	}
}

// flashEvent hears flash_mode actions from the interpreter. They are
// presentation hints; the channels stay with the song.
func (c *ShowController) flashEvent(mode int) {
	logrus.Debugf("song requested flash mode %d", mode)
	if c.OnFlashEvent != nil {
		c.OnFlashEvent(mode)
	}
}

// ControllerStatus is a snapshot of the whole rig for the API and the
// simulator.
type ControllerStatus struct {
	Mode     int             `json:"mode"`
	ModeName string          `json:"mode_name"`
	Playing  bool            `json:"playing"`
	AutoPlay bool            `json:"auto_play"`
	Song     *SongSummary    `json:"song,omitempty"`
	Position float64         `json:"position"`
	Sections []SectionStatus `json:"sections,omitempty"`
}

// Status snapshots the controller.
func (c *ShowController) Status() ControllerStatus {
	c.mu.Lock()
	st := ControllerStatus{
		Mode:     c.mode,
		ModeName: modeName(c.mode),
		Playing:  c.playing,
		AutoPlay: c.autoPlay,
		Position: -1,
	}
	player := c.player
	interp := c.interp
	if c.song != nil {
		summary := c.song.Summary()
		st.Song = &summary
	}
	c.mu.Unlock()

	if player != nil {
		st.Position = player.Position()
	}
	if interp != nil {
		st.Sections = interp.Sections()
	}
	return st
}
