package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// MIDIOutput maps rig channels to MIDI notes for dimmer packs and DAWs
// that take note triggers: channel n plays note base+n, on at velocity
// 100, off on release.
type MIDIOutput struct {
	drv  *rtmididrv.Driver
	out  drivers.Out
	base uint8

	mu   sync.Mutex
	send func(midi.Message) error
}

// OpenMIDIOutput opens the named MIDI port, or the first available port
// when the name is empty.
func OpenMIDIOutput(cfg MIDIConfig) (*MIDIOutput, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("midi driver: %w", err)
	}

	outs, err := drv.Outs()
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("list midi ports: %w", err)
	}

	var out drivers.Out
	for _, o := range outs {
		if cfg.Port == "" || strings.Contains(o.String(), cfg.Port) {
			out = o
			break
		}
	}
	if out == nil {
		drv.Close()
		return nil, fmt.Errorf("midi port %q not found (%d ports available)", cfg.Port, len(outs))
	}
	if err := out.Open(); err != nil {
		drv.Close()
		return nil, fmt.Errorf("open midi port %s: %w", out, err)
	}

	send, err := midi.SendTo(out)
	if err != nil {
		out.Close()
		drv.Close()
		return nil, fmt.Errorf("midi sender: %w", err)
	}

	base := cfg.BaseNote
	if base == 0 {
		base = 60
	}
	logrus.Infof("midi output on %s, base note %d", out, base)
	return &MIDIOutput{drv: drv, out: out, base: base, send: send}, nil
}

// Channels builds the rig view over the MIDI port.
func (m *MIDIOutput) Channels(n int) []Channel {
	channels := make([]Channel, n)
	for i := 0; i < n; i++ {
		channels[i] = newOutputChannel(i, m.write)
	}
	return channels
}

func (m *MIDIOutput) write(number int, on bool) {
	key := m.base + uint8(number)
	var msg midi.Message
	if on {
		msg = midi.NoteOn(0, key, 100)
	} else {
		msg = midi.NoteOff(0, key)
	}
	m.mu.Lock()
	err := m.send(msg)
	m.mu.Unlock()
	if err != nil {
		logrus.Warnf("midi send for channel %d: %v", number, err)
	}
}

// Close releases all notes, then the port and driver.
func (m *MIDIOutput) Close() {
	for i := 0; i < 10; i++ {
		m.write(i, false)
	}
	m.out.Close()
	m.drv.Close()
}
