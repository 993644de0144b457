package main

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// SerialOutput drives a relay board over a serial line. The board's
// protocol is one three-byte command per state change: the channel as
// an ASCII digit, '1' or '0' for the state, and a newline.
type SerialOutput struct {
	mu   sync.Mutex
	port serial.Port
}

// OpenSerialOutput opens the relay board port.
func OpenSerialOutput(cfg SerialConfig) (*SerialOutput, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("serial backend needs a port (e.g. /dev/ttyUSB0)")
	}
	baud := cfg.Baud
	if baud <= 0 {
		baud = 9600
	}
	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}
	logrus.Infof("relay board on %s at %d baud", cfg.Port, baud)
	return &SerialOutput{port: port}, nil
}

// Channels builds the rig view over the relay board. Boards used here
// address at most ten relays, one per ASCII digit.
func (s *SerialOutput) Channels(n int) []Channel {
	if n > 10 {
		logrus.Warnf("serial backend addresses 10 relays, ignoring channels above 9")
		n = 10
	}
	channels := make([]Channel, n)
	for i := 0; i < n; i++ {
		channels[i] = newOutputChannel(i, s.write)
	}
	return channels
}

// write sends one command. Commands from different channels must not
// interleave mid-command on the wire, hence the board-level lock.
func (s *SerialOutput) write(number int, on bool) {
	state := byte('0')
	if on {
		state = '1'
	}
	cmd := []byte{byte('0' + number), state, '\n'}
	s.mu.Lock()
	_, err := s.port.Write(cmd)
	s.mu.Unlock()
	if err != nil {
		logrus.Warnf("serial write for channel %d: %v", number, err)
	}
}

// Close drops all relays and releases the port.
func (s *SerialOutput) Close() {
	for i := 0; i < 10; i++ {
		s.write(i, false)
	}
	s.port.Close()
}
