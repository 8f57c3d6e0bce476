// Copyright 2019 Lanikai Labs. All rights reserved.

// Package transport implements the UDP send/receive plumbing shared by the
// discovery and media planes: broadcast- or multicast-addressed sockets with
// the platform socket options needed for LAN fan-out, per RFC 1112 (IGMP)
// and the usual BSD socket broadcast conventions.
package transport

import (
	"context"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/lanikai/scrshare/internal/logging"
)

var log = logging.DefaultLogger.WithTag("transport")

// Mode selects how a Sender/Receiver addresses the LAN.
type Mode int

const (
	// ModeBroadcast sends to 255.255.255.255 and requires SO_BROADCAST.
	ModeBroadcast Mode = iota
	// ModeMulticast sends to / joins a multicast group.
	ModeMulticast
)

// MulticastGroup is the default IPv4 multicast group for the media plane.
var MulticastGroup = net.ParseIP("239.255.0.1")

const (
	sendBufferSize = 2 << 20 // 2 MiB
	recvBufferSize = 4 << 20 // 4 MiB

	// DefaultReadTimeout bounds each receive so a stalled stream doesn't
	// block a cancellation check indefinitely.
	DefaultReadTimeout = 100 * time.Millisecond
)

// Sender transmits datagrams to the LAN, either broadcast or multicast
// addressed.
type Sender struct {
	conn *net.UDPConn
	pc   *ipv4.PacketConn
	dst  *net.UDPAddr
}

// NewSender creates a Sender bound to an unbound ephemeral port, configured
// per mode: broadcast requires SO_BROADCAST, multicast sets TTL=1 and
// enables loopback so a Teacher and Student on the same host can talk.
func NewSender(mode Mode, port int) (*Sender, error) {
	lc := net.ListenConfig{Control: BroadcastControl}
	pconn, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return nil, err
	}
	conn := pconn.(*net.UDPConn)
	_ = conn.SetWriteBuffer(sendBufferSize)

	s := &Sender{conn: conn}

	switch mode {
	case ModeMulticast:
		pc := ipv4.NewPacketConn(conn)
		if err := pc.SetMulticastTTL(1); err != nil {
			conn.Close()
			return nil, err
		}
		if err := pc.SetMulticastLoopback(true); err != nil {
			conn.Close()
			return nil, err
		}
		s.pc = pc
		s.dst = &net.UDPAddr{IP: MulticastGroup, Port: port}

	default:
		s.dst = &net.UDPAddr{IP: net.IPv4bcast, Port: port}
	}

	log.Info("transport: sender ready, destination %s", s.dst)
	return s, nil
}

// Send transmits one datagram to the configured destination.
func (s *Sender) Send(payload []byte) error {
	_, err := s.conn.WriteToUDP(payload, s.dst)
	return err
}

// Close releases the sender's socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}

// Receiver receives datagrams addressed to a bound port, per mode.
type Receiver struct {
	conn *net.UDPConn
	pc   *ipv4.PacketConn
}

// NewReceiver binds 0.0.0.0:port with SO_REUSEADDR/SO_REUSEPORT, sized recv
// buffer, and — for multicast — joins the group on every up, multicast-
// capable, non-loopback interface.
func NewReceiver(mode Mode, port int) (*Receiver, error) {
	lc := net.ListenConfig{Control: reuseControl}
	pconn, err := lc.ListenPacket(context.Background(), "udp4", addrFor(port))
	if err != nil {
		return nil, err
	}
	conn := pconn.(*net.UDPConn)
	_ = conn.SetReadBuffer(recvBufferSize)

	r := &Receiver{conn: conn}

	if mode == ModeMulticast {
		pc := ipv4.NewPacketConn(conn)
		if err := pc.SetMulticastLoopback(true); err != nil {
			conn.Close()
			return nil, err
		}

		ifaces, err := net.Interfaces()
		if err != nil {
			conn.Close()
			return nil, err
		}
		joined := false
		for _, ifi := range ifaces {
			if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 || ifi.Flags&net.FlagLoopback != 0 {
				continue
			}
			if err := pc.JoinGroup(&ifi, &net.UDPAddr{IP: MulticastGroup}); err == nil {
				joined = true
			}
		}
		if !joined {
			log.Warn("transport: failed to join multicast group %s on any interface", MulticastGroup)
		}
		r.pc = pc
	}

	return r, nil
}

func addrFor(port int) string {
	return (&net.UDPAddr{Port: port}).String()
}

// Receive reads one datagram into buf, bounded by DefaultReadTimeout. It
// returns (0, false, nil) on timeout, which callers use to re-check
// cancellation rather than blocking forever on a dead stream.
func (r *Receiver) Receive(buf []byte) (int, bool, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(DefaultReadTimeout)); err != nil {
		return 0, false, err
	}
	n, err := r.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, false, nil
		}
		return 0, false, err
	}
	return n, true, nil
}

// ReceiveFrom reads one datagram and the source address, bounded by
// DefaultReadTimeout.
func (r *Receiver) ReceiveFrom(buf []byte) (int, *net.UDPAddr, bool, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(DefaultReadTimeout)); err != nil {
		return 0, nil, false, err
	}
	n, addr, err := r.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil, false, nil
		}
		return 0, nil, false, err
	}
	return n, addr, true, nil
}

// Close releases the receiver's socket.
func (r *Receiver) Close() error {
	return r.conn.Close()
}
