package main

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func testLibrary(ids ...string) *Library {
	lib := &Library{}
	for _, id := range ids {
		lib.Songs = append(lib.Songs, &Song{
			ID:      id,
			Title:   strings.ToUpper(id),
			Artist:  "Tester",
			MP3File: id + ".mp3",
			Sections: []Section{{
				Name: "main", StartTime: 0, Tempo: 0.01, TotalBeats: 1,
			}},
		})
	}
	return lib
}

// simFactory hands the controller short simulated players and records
// the order songs were played in.
type simFactory struct {
	mu     sync.Mutex
	played []string
	length float64
}

func (f *simFactory) build(song *Song, onSync func(float64), onEnd func()) (showPlayer, error) {
	f.mu.Lock()
	f.played = append(f.played, song.ID)
	f.mu.Unlock()

	p := NewSimulatedPlayer(f.length)
	p.Tick = 2 * time.Millisecond
	p.OnSync = onSync
	p.OnEnd = onEnd
	return p, nil
}

func (f *simFactory) playedSongs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.played...)
}

func waitForIdle(t *testing.T, idle chan struct{}) {
	t.Helper()
	select {
	case <-idle:
	case <-time.After(5 * time.Second):
		t.Fatal("rig never returned to idle")
	}
}

func TestControllerModeCycle(t *testing.T) {
	channels := NewMemoryChannels(3, nil)
	ctrl := NewShowController(testLibrary("a"), channels, (&simFactory{length: 1}).build)
	defer ctrl.Shutdown()

	ctrl.SetMode(ModeSteady)
	for i, ch := range channels {
		if !ch.(*outputChannel).IsOn() {
			t.Fatalf("channel %d off in steady mode", i)
		}
	}

	want := []int{ModeSlow, ModeMedium, ModeFast, ModeSteady}
	for _, w := range want {
		ctrl.CycleMode()
		if got := ctrl.Mode(); got != w {
			t.Fatalf("Mode() = %d, want %d", got, w)
		}
	}

	ctrl.SetMode(ModeOff)
	for i, ch := range channels {
		if ch.(*outputChannel).IsOn() {
			t.Fatalf("channel %d on in off mode", i)
		}
	}
}

func TestControllerFlashModeBlinks(t *testing.T) {
	saved := flashScales[ModeFast]
	flashScales[ModeFast] = 0.002
	defer func() { flashScales[ModeFast] = saved }()

	rec := &stateRecorder{}
	channels := NewMemoryChannels(2, rec.notify)
	ctrl := NewShowController(testLibrary("a"), channels, (&simFactory{length: 1}).build)
	defer ctrl.Shutdown()

	ctrl.SetMode(ModeFast)
	waitFor(t, 2*time.Second, "flash mode to blink", func() bool { return rec.count() > 4 })
	ctrl.SetMode(ModeOff)
}

func TestControllerPlaylistRunThrough(t *testing.T) {
	fac := &simFactory{length: 0.04}
	channels := NewMemoryChannels(2, nil)
	ctrl := NewShowController(testLibrary("a", "b"), channels, fac.build)
	defer ctrl.Shutdown()
	ctrl.SetMode(ModeSteady)

	idle := make(chan struct{}, 4)
	ctrl.OnIdle = func() { idle <- struct{}{} }

	if err := ctrl.StartShow(); err != nil {
		t.Fatalf("StartShow: %v", err)
	}
	if !ctrl.Playing() || ctrl.Mode() != ModePlaying {
		t.Fatal("show did not take over the rig")
	}

	waitForIdle(t, idle)

	got := fac.playedSongs()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("played %v, want [a b]", got)
	}
	if ctrl.Playing() {
		t.Fatal("still playing after the playlist wrapped")
	}
	if ctrl.Mode() != ModeSteady {
		t.Fatalf("Mode() = %d after the show, want steady restored", ctrl.Mode())
	}

	// The cursor wrapped, so the next show starts from the top.
	if err := ctrl.StartShow(); err != nil {
		t.Fatalf("second StartShow: %v", err)
	}
	waitForIdle(t, idle)
	got = fac.playedSongs()
	if len(got) != 4 || got[2] != "a" {
		t.Fatalf("played %v, want the second run to start at a", got)
	}
}

func TestControllerSkipAndStop(t *testing.T) {
	fac := &simFactory{length: 60} // songs never end on their own here
	channels := NewMemoryChannels(2, nil)
	ctrl := NewShowController(testLibrary("a", "b", "c"), channels, fac.build)
	defer ctrl.Shutdown()
	ctrl.SetMode(ModeOff)

	idleCount := 0
	idle := make(chan struct{}, 4)
	ctrl.OnIdle = func() { idleCount++; idle <- struct{}{} }

	if err := ctrl.StartShow(); err != nil {
		t.Fatalf("StartShow: %v", err)
	}
	// The lightshow button doubles as skip while playing.
	if err := ctrl.StartShow(); err != nil {
		t.Fatalf("StartShow as skip: %v", err)
	}
	if err := ctrl.Skip(); err != nil {
		t.Fatalf("Skip: %v", err)
	}

	got := fac.playedSongs()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("played %v, want [a b c]", got)
	}
	if !ctrl.Playing() {
		t.Fatal("not playing after skips")
	}

	ctrl.StopShow()
	if ctrl.Playing() {
		t.Fatal("still playing after StopShow")
	}
	if ctrl.Mode() != ModeOff {
		t.Fatalf("Mode() = %d after StopShow, want off restored", ctrl.Mode())
	}
	waitForIdle(t, idle)
	if idleCount != 1 {
		t.Fatalf("idle hook ran %d times, want 1", idleCount)
	}

	ctrl.StopShow() // idempotent when idle
}

func TestControllerPlaySongOneShot(t *testing.T) {
	fac := &simFactory{length: 0.04}
	channels := NewMemoryChannels(2, nil)
	ctrl := NewShowController(testLibrary("a", "b", "c"), channels, fac.build)
	defer ctrl.Shutdown()

	idle := make(chan struct{}, 4)
	ctrl.OnIdle = func() { idle <- struct{}{} }

	if err := ctrl.PlaySong("nope"); err == nil {
		t.Fatal("unknown song id accepted")
	}

	if err := ctrl.PlaySong("b"); err != nil {
		t.Fatalf("PlaySong: %v", err)
	}
	if err := ctrl.PlaySong("c"); err == nil {
		t.Fatal("PlaySong succeeded while another song was playing")
	}

	waitForIdle(t, idle)
	got := fac.playedSongs()
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("played %v, want just [b]", got)
	}

	// One-shots leave the playlist cursor alone.
	if err := ctrl.StartShow(); err != nil {
		t.Fatalf("StartShow: %v", err)
	}
	waitFor(t, 2*time.Second, "playlist to start", func() bool {
		return len(fac.playedSongs()) >= 2
	})
	if got := fac.playedSongs(); got[1] != "a" {
		t.Fatalf("playlist started at %q, want a", got[1])
	}
	ctrl.StopShow()
}

func TestControllerStartShowEmptyLibrary(t *testing.T) {
	ctrl := NewShowController(&Library{}, NewMemoryChannels(1, nil), (&simFactory{length: 1}).build)
	defer ctrl.Shutdown()
	if err := ctrl.StartShow(); err == nil {
		t.Fatal("StartShow succeeded with no songs")
	}
}

func TestControllerStatus(t *testing.T) {
	fac := &simFactory{length: 60}
	ctrl := NewShowController(testLibrary("a"), NewMemoryChannels(2, nil), fac.build)
	defer ctrl.Shutdown()

	st := ctrl.Status()
	if st.Playing || st.Song != nil || st.ModeName != "off" {
		t.Fatalf("idle status = %+v", st)
	}

	if err := ctrl.StartShow(); err != nil {
		t.Fatalf("StartShow: %v", err)
	}

	waitFor(t, 2*time.Second, "status to show sections", func() bool {
		return len(ctrl.Status().Sections) > 0
	})
	st = ctrl.Status()
	if !st.Playing || st.Song == nil || st.Song.ID != "a" {
		t.Fatalf("playing status = %+v", st)
	}
	if st.ModeName != "playing" {
		t.Errorf("ModeName = %q, want \"playing\"", st.ModeName)
	}
	if st.Position < 0 {
		t.Errorf("Position = %v, want the live playback position", st.Position)
	}

	ctrl.StopShow()
}
