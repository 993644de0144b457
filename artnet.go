package main

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

const artnetPort = 6454

// artnetSender owns the UDP socket and sequence counter for Art-Net
// broadcast.
type artnetSender struct {
	conn      *net.UDPConn
	broadcast *net.UDPAddr
	seq       uint8
}

// newArtnetSender opens a UDP socket and prepares the broadcast
// address. An empty subnet broadcasts to 255.255.255.255.
func newArtnetSender(subnet string) (*artnetSender, error) {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("open artnet socket: %w", err)
	}
	enableBroadcast(conn)

	ip := net.IPv4bcast
	if subnet != "" {
		parsed := net.ParseIP(subnet)
		if parsed != nil {
			ip = parsed
		} else {
			logrus.Warnf("invalid broadcast_subnet %q, using 255.255.255.255", subnet)
		}
	}

	logrus.Infof("broadcasting Art-Net to %s", ip)
	return &artnetSender{
		conn:      conn,
		broadcast: &net.UDPAddr{IP: ip, Port: artnetPort},
		seq:       1,
	}, nil
}

func enableBroadcast(conn *net.UDPConn) {
	raw, err := conn.SyscallConn()
	if err != nil {
		logrus.Warnf("unable to reach raw socket: %v", err)
		return
	}
	raw.Control(func(fd uintptr) {
		syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
}

// sendFrame broadcasts one DMX frame on the subnet.
func (a *artnetSender) sendFrame(dmx []byte, universe uint16) error {
	if len(dmx) > 512 {
		return fmt.Errorf("dmx length %d exceeds 512", len(dmx))
	}
	packet := buildArtDMX(a.seq, universe, dmx)
	a.seq++
	if _, err := a.conn.WriteToUDP(packet, a.broadcast); err != nil {
		return fmt.Errorf("send ArtDMX: %w", err)
	}
	return nil
}

func (a *artnetSender) close() { a.conn.Close() }

// buildArtDMX constructs an ArtDMX packet for the given universe.
func buildArtDMX(seq uint8, universe uint16, payload []byte) []byte {
	packet := make([]byte, 18+len(payload))
	copy(packet[0:], []byte("Art-Net\x00"))
	packet[8], packet[9] = 0x00, 0x50 // OpCode ArtDMX
	packet[10], packet[11] = 0x00, 14 // Protocol version 14
	packet[12], packet[13] = seq, 0x00
	packet[14] = byte(universe & 0xFF)        // SubUni
	packet[15] = byte((universe >> 8) & 0x7F) // Net
	packet[16] = byte((len(payload) >> 8) & 0xFF)
	packet[17] = byte(len(payload) & 0xFF)
	copy(packet[18:], payload)
	return packet
}

// ArtNetOutput mirrors the rig into a DMX universe and broadcasts it at
// a steady 40 Hz, the refresh rate DMX nodes expect. Show channel n
// drives DMX slot n at full or zero.
type ArtNetOutput struct {
	sender   *artnetSender
	universe uint16

	mu    sync.Mutex
	frame [512]byte

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewArtNetOutput opens the broadcast socket and starts the frame loop.
func NewArtNetOutput(cfg ArtNetConfig) (*ArtNetOutput, error) {
	sender, err := newArtnetSender(cfg.BroadcastSubnet)
	if err != nil {
		return nil, err
	}
	out := &ArtNetOutput{
		sender:   sender,
		universe: cfg.Universe,
		stopCh:   make(chan struct{}),
	}
	go out.frameLoop()
	return out, nil
}

// frameLoop rebroadcasts the current frame every 25ms so nodes that
// missed a change still converge.
func (o *ArtNetOutput) frameLoop() {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.mu.Lock()
			frame := o.frame
			o.mu.Unlock()
			if err := o.sender.sendFrame(frame[:], o.universe); err != nil {
				logrus.Warnf("artnet: %v", err)
			}
		}
	}
}

// Channels builds the rig view over this universe.
func (o *ArtNetOutput) Channels(n int) []Channel {
	channels := make([]Channel, n)
	for i := 0; i < n; i++ {
		channels[i] = newOutputChannel(i, o.write)
	}
	return channels
}

func (o *ArtNetOutput) write(number int, on bool) {
	if number < 0 || number >= len(o.frame) {
		return
	}
	var value byte
	if on {
		value = 255
	}
	o.mu.Lock()
	o.frame[number] = value
	o.mu.Unlock()
}

// Close blacks out the universe and stops the frame loop.
func (o *ArtNetOutput) Close() {
	o.stopOnce.Do(func() {
		o.mu.Lock()
		o.frame = [512]byte{}
		frame := o.frame
		o.mu.Unlock()
		if err := o.sender.sendFrame(frame[:], o.universe); err != nil {
			logrus.Debugf("artnet blackout: %v", err)
		}
		close(o.stopCh)
		o.sender.close()
	})
}

// pollArtNetNodes sends an ArtPoll and prints every ArtPollReply heard
// within five seconds.
func pollArtNetNodes() error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: artnetPort})
	if err != nil {
		return fmt.Errorf("open UDP socket on port %d: %w", artnetPort, err)
	}
	defer conn.Close()
	enableBroadcast(conn)

	pkt := make([]byte, 14)
	copy(pkt[0:], []byte("Art-Net\x00"))
	pkt[8], pkt[9] = 0x00, 0x20 // OpCode ArtPoll
	pkt[10], pkt[11] = 0x00, 14 // Protocol version
	pkt[12] = 0x06              // TalkToMe flags
	pkt[13] = 0x00              // Priority

	bcast := &net.UDPAddr{IP: preferredBroadcastIP(), Port: artnetPort}
	fmt.Printf("Broadcasting ArtPoll to %s ...\n", bcast.IP)
	if _, err := conn.WriteToUDP(pkt, bcast); err != nil {
		return fmt.Errorf("send ArtPoll: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	fmt.Println("Listening for ArtPollReply packets (5s)...")
	found := false
	buf := make([]byte, 512)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			break
		}
		if n < 44 || string(buf[0:7]) != "Art-Net" || buf[8] != 0x00 || buf[9] != 0x21 {
			continue
		}
		name := buf[26:44]
		for i, b := range name {
			if b == 0 {
				name = name[:i]
				break
			}
		}
		fmt.Printf("Node: %-16s  IP: %s\n", string(name), addr.IP)
		found = true
	}

	if !found {
		fmt.Println("No Art-Net nodes replied.")
	}
	return nil
}

// preferredBroadcastIP picks a directed broadcast address, preferring
// home-network style 192.168.* interfaces over whatever is first.
func preferredBroadcastIP() net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return net.IPv4bcast
	}

	var fallback net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil || len(ipnet.Mask) != 4 {
				continue
			}
			ip := ipnet.IP.To4()
			bcast := make(net.IP, 4)
			for i := 0; i < 4; i++ {
				bcast[i] = ip[i] | ^ipnet.Mask[i]
			}
			if strings.HasPrefix(ip.String(), "192.168.") {
				return bcast
			}
			if fallback == nil {
				fallback = bcast
			}
		}
	}
	if fallback != nil {
		return fallback
	}
	return net.IPv4bcast
}
