package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/sirupsen/logrus"
)

// Player is the playback clock the schedulers follow.
type Player interface {
	// Position returns the current playback position in seconds, or a
	// negative value when nothing is playing.
	Position() float64
	Stop()
}

// showPlayer is what the show controller needs beyond the clock: a way
// to actually start the audio.
type showPlayer interface {
	Player
	Play()
}

const syncInterval = 500 * time.Millisecond

// decodeAudio opens and decodes an mp3 or wav file using faiface/beep.
func decodeAudio(path string) (beep.StreamSeekCloser, beep.Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		stream, format, err := mp3.Decode(file)
		if err != nil {
			file.Close()
			return nil, beep.Format{}, fmt.Errorf("decode %s: %w", path, err)
		}
		return stream, format, nil
	case ".wav":
		stream, format, err := wav.Decode(file)
		if err != nil {
			file.Close()
			return nil, beep.Format{}, fmt.Errorf("decode %s: %w", path, err)
		}
		return stream, format, nil
	default:
		file.Close()
		return nil, beep.Format{}, fmt.Errorf("unsupported audio format %q", ext)
	}
}

// BeepPlayer plays an mp3 or wav file through the system audio device.
// Position is wall clock anchored at the moment playback starts, which
// tracks the audible stream closely at the buffer sizes used here and
// never goes backwards.
//
// OnSync and OnEnd, when set before Play, receive the periodic position
// and the single end-of-stream notification.
type BeepPlayer struct {
	OnSync func(position float64)
	OnEnd  func()

	stream beep.StreamSeekCloser
	format beep.Format
	volume *effects.Volume
	length float64

	mu        sync.Mutex
	playing   bool
	startedAt time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	endOnce  sync.Once
}

// NewBeepPlayer decodes the audio file and prepares the speaker. The
// volume is in powers of two: 0 plays the file as is, -1 halves it.
func NewBeepPlayer(path string, volume float64) (*BeepPlayer, error) {
	stream, format, err := decodeAudio(path)
	if err != nil {
		return nil, err
	}
	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		stream.Close()
		return nil, fmt.Errorf("init speaker: %w", err)
	}

	return &BeepPlayer{
		stream: stream,
		format: format,
		length: format.SampleRate.D(stream.Len()).Seconds(),
		volume: &effects.Volume{Streamer: stream, Base: 2, Volume: volume},
		stopCh: make(chan struct{}),
	}, nil
}

// Duration reports the decoded track length in seconds.
func (p *BeepPlayer) Duration() float64 { return p.length }

// Play starts audio output, the position clock, and the sync loop.
func (p *BeepPlayer) Play() {
	done := make(chan struct{})
	speaker.Play(beep.Seq(p.volume, beep.Callback(func() {
		close(done)
	})))

	p.mu.Lock()
	p.startedAt = time.Now()
	p.playing = true
	p.mu.Unlock()

	go p.watch(done)
}

// watch drives the periodic sync callback and the end notification.
func (p *BeepPlayer) watch(done chan struct{}) {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			p.mu.Lock()
			p.playing = false
			p.mu.Unlock()
			p.endOnce.Do(func() {
				logrus.Debug("audio stream ended")
				if p.OnEnd != nil {
					p.OnEnd()
				}
			})
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if p.OnSync != nil {
				p.OnSync(p.Position())
			}
		}
	}
}

// Position reports seconds since playback started, or -1 when stopped.
func (p *BeepPlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return -1
	}
	return time.Since(p.startedAt).Seconds()
}

// Stop halts playback without firing the end callback; skipping a song
// is not the same as the song ending.
func (p *BeepPlayer) Stop() {
	p.mu.Lock()
	wasPlaying := p.playing
	p.playing = false
	p.mu.Unlock()

	p.stopOnce.Do(func() {
		close(p.stopCh)
		if wasPlaying {
			speaker.Clear()
		}
		p.stream.Close()
	})
}

// SimulatedPlayer advances a wall-clock position without touching any
// audio hardware. It drives rehearsals, the terminal simulator on
// machines with no sound device, and the tests.
type SimulatedPlayer struct {
	OnSync func(position float64)
	OnEnd  func()

	// Length is the pretend track length in seconds.
	Length float64
	// Tick overrides the sync poll interval; zero means the default.
	Tick time.Duration

	mu        sync.Mutex
	playing   bool
	startedAt time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	endOnce  sync.Once
}

// NewSimulatedPlayer builds a player that pretends to play for length
// seconds. A zero length gets a generous default.
func NewSimulatedPlayer(length float64) *SimulatedPlayer {
	if length <= 0 {
		length = 300
	}
	return &SimulatedPlayer{Length: length, stopCh: make(chan struct{})}
}

// Play starts the pretend clock.
func (p *SimulatedPlayer) Play() {
	p.mu.Lock()
	p.startedAt = time.Now()
	p.playing = true
	p.mu.Unlock()

	go p.watch()
}

func (p *SimulatedPlayer) watch() {
	tick := p.Tick
	if tick <= 0 {
		tick = syncInterval
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			pos := p.Position()
			if pos < 0 {
				return
			}
			if pos >= p.Length {
				p.mu.Lock()
				p.playing = false
				p.mu.Unlock()
				p.endOnce.Do(func() {
					if p.OnEnd != nil {
						p.OnEnd()
					}
				})
				return
			}
			if p.OnSync != nil {
				p.OnSync(pos)
			}
		}
	}
}

// Position reports seconds since Play, or -1 when stopped or done.
func (p *SimulatedPlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return -1
	}
	return time.Since(p.startedAt).Seconds()
}

// Stop halts the pretend clock without firing the end callback.
func (p *SimulatedPlayer) Stop() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
	p.stopOnce.Do(func() { close(p.stopCh) })
}
