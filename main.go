// pi-lightshow — Beat-synchronised relay light shows for audio playback
//
// Overview
//   • Loads JSON song files that pair an mp3 with light sequences timed in
//     beats: each section names a start time, a tempo (seconds per beat), and
//     a beat count, and its sequences fire channel actions on matching beats.
//   • Beat timers re-arm against the live audio position before every beat,
//     so timing drift never accumulates across a song.
//   • Drives ten relay channels over Art-Net DMX, a serial relay board, MIDI
//     notes, or an in-memory rig with a terminal simulator.
//   • Between songs the rig idles in flash modes (steady / slow / medium /
//     fast); the lightshow and mode buttons are exposed on the CLI, an HTTP
//     API, and the simulator keys.
//
// Notes
//   • Song tempo is seconds per beat, not BPM. Sections may be split into
//     segments that share the section's sequences at different tempos.
//   • A web integration endpoint can be polled to start shows remotely.

package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
)

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func initLogging(debug bool) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

// buildChannels constructs the configured channel backend and returns
// the rig plus a shutdown func for the backend's resources.
func buildChannels(cfg ShowConfig, sim *Simulator) ([]Channel, func(), error) {
	switch cfg.Output.Backend {
	case "", "memory":
		notify := func(int, bool) {}
		if sim != nil {
			notify = sim.LampChanged
		}
		return NewMemoryChannels(cfg.Channels, notify), func() {}, nil

	case "artnet":
		out, err := NewArtNetOutput(cfg.Output.ArtNet)
		if err != nil {
			return nil, nil, err
		}
		return out.Channels(cfg.Channels), func() { out.Close() }, nil

	case "serial":
		out, err := OpenSerialOutput(cfg.Output.Serial)
		if err != nil {
			return nil, nil, err
		}
		return out.Channels(cfg.Channels), func() { out.Close() }, nil

	case "midi":
		out, err := OpenMIDIOutput(cfg.Output.MIDI)
		if err != nil {
			return nil, nil, err
		}
		return out.Channels(cfg.Channels), func() { out.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown output backend %q", cfg.Output.Backend)
}

// buildPlayerFactory picks real or simulated audio for the controller.
func buildPlayerFactory(cfg ShowConfig) playerFactory {
	if cfg.Player.Simulate {
		return func(song *Song, onSync func(float64), onEnd func()) (showPlayer, error) {
			p := NewSimulatedPlayer(cfg.Player.Length)
			p.OnSync = onSync
			p.OnEnd = onEnd
			return p, nil
		}
	}
	return func(song *Song, onSync func(float64), onEnd func()) (showPlayer, error) {
		path := song.MP3File
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.SongsDir, path)
		}
		p, err := NewBeepPlayer(path, cfg.Volume)
		if err != nil {
			return nil, err
		}
		p.OnSync = onSync
		p.OnEnd = onEnd
		return p, nil
	}
}

// main loads the config and song library, builds the rig, and runs the
// selected front end until interrupted.
func main() {
	poll := flag.Bool("poll", false, "Poll for Art-Net nodes and exit")
	list := flag.Bool("list", false, "List the song library and exit")
	songID := flag.String("song", "", "Play one song by id, then exit")
	simulate := flag.Bool("simulate", false, "Run the terminal rig simulator instead of hardware")
	api := flag.Bool("api", false, "Serve the HTTP control API")
	debug := flag.Bool("debug", false, "Verbose engine logging")
	flag.Parse()

	initLogging(*debug)

	if *poll {
		must(pollArtNetNodes())
		os.Exit(0)
	}

	cfg := defaultConfig()
	if flag.NArg() > 0 {
		must(loadConfig(flag.Arg(0), &cfg))
	}
	if *simulate {
		cfg.Output.Backend = "memory"
		cfg.Player.Simulate = true
	}

	library, err := LoadLibrary(cfg.SongsDir)
	must(err)

	if *list {
		for _, s := range library.Summaries() {
			fmt.Printf("%-24s %s — %s\n", s.ID, s.Title, s.Artist)
		}
		os.Exit(0)
	}
	if len(library.Songs) == 0 {
		fmt.Printf("No songs found in %s\n", cfg.SongsDir)
		os.Exit(1)
	}

	var sim *Simulator
	if *simulate {
		sim = NewSimulator()
	}

	channels, closeOutput, err := buildChannels(cfg, sim)
	must(err)

	ctrl := NewShowController(library, channels, buildPlayerFactory(cfg))
	ctrl.SetMode(cfg.IdleMode)

	var srv *http.Server
	var poller *integrationPoller
	if *api {
		srv = startAPI(cfg.API.Listen, newRouter(ctrl, library))
		if cfg.API.IntegrationCheckURL != "" {
			poller = newIntegrationPoller(cfg.API.IntegrationCheckURL, cfg.API.IntegrationDoneURL, ctrl)
			go poller.Run()
		}
	}

	shutdown := func() {
		if poller != nil {
			poller.Stop()
		}
		if srv != nil {
			srv.Close()
		}
		ctrl.Shutdown()
		closeOutput()
	}

	if *songID != "" {
		idle := make(chan struct{})
		var once sync.Once
		ctrl.OnIdle = func() { once.Do(func() { close(idle) }) }
		must(ctrl.PlaySong(*songID))
		<-idle
		shutdown()
		fmt.Println("Done.")
		return
	}

	if *simulate {
		must(sim.Run(ctrl, cfg.Channels))
		shutdown()
		return
	}

	fmt.Printf("Rig up: %d channels on %s, %d songs loaded\n",
		cfg.Channels, cfg.Output.Backend, len(library.Songs))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\nShutting down.")
	shutdown()
}
