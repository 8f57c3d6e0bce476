// Copyright 2019 Lanikai Labs. All rights reserved.

// Package discovery implements the LAN peer-discovery protocol used to let
// Teachers and Students find each other without any central server: a
// magic-prefixed JSON datagram broadcast over UDP.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/lanikai/scrshare/internal/logging"
	"github.com/lanikai/scrshare/internal/transport"
)

var log = logging.DefaultLogger.WithTag("discovery")

const (
	// Port is the well-known UDP port used for discovery traffic.
	Port = 5001

	// AnnounceInterval is the recommended interval at which a peer should
	// re-broadcast its Announce message.
	AnnounceInterval = 2 * time.Second

	// PeerTimeout is how long a peer is kept in the table after its last
	// Announce/Response before it's considered gone.
	PeerTimeout = 10 * time.Second

	maxDatagram = 2048
)

var magic = []byte("SCRSHARE")

// Role distinguishes a Teacher (broadcaster) from a Student (viewer) in the
// peer table.
type Role string

const (
	RoleTeacher Role = "Teacher"
	RoleStudent Role = "Student"
)

// PeerInfo describes one discovered peer. The JSON field names are the wire
// format; changing them breaks interop with older peers.
type PeerInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       Role   `json:"role"`
	IP         string `json:"ip"`
	StreamPort uint16 `json:"stream_port"`
	Version    string `json:"version"`
}

// message is the tagged union broadcast on the wire: a single-key JSON
// object naming the variant.
type message struct {
	Announce *PeerInfo `json:"Announce,omitempty"`
	Query    *struct{} `json:"Query,omitempty"`
	Response *PeerInfo `json:"Response,omitempty"`
}

// Service runs the discovery protocol over a single UDP socket. It is safe
// for concurrent use.
type Service struct {
	conn        *net.UDPConn
	broadcastTo net.IP
	port        int
	local       PeerInfo

	mu      sync.Mutex
	peers   map[string]peerEntry
	Dropped uint64
}

type peerEntry struct {
	info     PeerInfo
	lastSeen time.Time
}

// New binds the discovery socket and assembles this process's PeerInfo. The
// stream port is the RTP port this peer advertises for the media session;
// version is reported verbatim in outgoing messages.
func New(name string, role Role, streamPort uint16, version string) (*Service, error) {
	return newOn(Port, net.IPv4bcast, name, role, streamPort, version)
}

// newOn binds the discovery socket to the given local port and directs
// broadcasts to the given address, so tests can run multiple Services on
// one host without colliding on the well-known port or real broadcast
// traffic.
func newOn(port int, broadcastTo net.IP, name string, role Role, streamPort uint16, version string) (*Service, error) {
	lc := net.ListenConfig{Control: transport.BroadcastControl}
	pconn, err := lc.ListenPacket(context.Background(), "udp4", (&net.UDPAddr{Port: port}).String())
	if err != nil {
		return nil, fmt.Errorf("discovery: listen: %w", err)
	}
	conn := pconn.(*net.UDPConn)

	ip, err := localIP()
	if err != nil {
		ip = "0.0.0.0"
	}

	local := PeerInfo{
		ID:         generateID(),
		Name:       name,
		Role:       role,
		IP:         ip,
		StreamPort: streamPort,
		Version:    version,
	}

	log.Info("discovery service created: %s (%s) at %s:%d", local.Name, local.Role, local.IP, streamPort)

	return &Service{
		conn:        conn,
		broadcastTo: broadcastTo,
		port:        conn.LocalAddr().(*net.UDPAddr).Port,
		local:       local,
		peers:       make(map[string]peerEntry),
	}, nil
}

// Local returns this process's own advertised PeerInfo.
func (s *Service) Local() PeerInfo {
	return s.local
}

// Close releases the underlying socket.
func (s *Service) Close() error {
	return s.conn.Close()
}

// Announce broadcasts this peer's info to the LAN.
func (s *Service) Announce() error {
	return s.broadcast(message{Announce: &s.local})
}

// Query broadcasts a request for any listening peer to respond with its
// info.
func (s *Service) Query() error {
	return s.broadcast(message{Query: &struct{}{}})
}

func (s *Service) broadcast(msg message) error {
	payload, err := encode(msg)
	if err != nil {
		return err
	}
	_, err = s.conn.WriteToUDP(payload, &net.UDPAddr{
		IP:   s.broadcastTo,
		Port: s.port,
	})
	return err
}

// Poll reads and processes one pending datagram with the given deadline. It
// returns a newly discovered peer and true, or (PeerInfo{}, false) if nothing
// arrived before the deadline, the datagram was malformed/ours/a Query, or
// it only refreshed an already-known peer (whose lastSeen is still updated).
func (s *Service) Poll(timeout time.Duration) (PeerInfo, bool) {
	buf := make([]byte, maxDatagram)

	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return PeerInfo{}, false
	}

	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return PeerInfo{}, false
		}
		s.mu.Lock()
		s.Dropped++
		s.mu.Unlock()
		return PeerInfo{}, false
	}

	msg, ok := decode(buf[:n])
	if !ok {
		s.mu.Lock()
		s.Dropped++
		s.mu.Unlock()
		return PeerInfo{}, false
	}

	return s.handle(msg, addr)
}

func (s *Service) handle(msg message, addr *net.UDPAddr) (PeerInfo, bool) {
	switch {
	case msg.Announce != nil:
		return s.observe(*msg.Announce, addr)

	case msg.Query != nil:
		local := s.local
		if err := s.send(message{Response: &local}, addr); err != nil {
			log.Warn("discovery: failed to answer query from %s: %v", addr, err)
		}
		return PeerInfo{}, false

	case msg.Response != nil:
		return s.observe(*msg.Response, addr)
	}

	return PeerInfo{}, false
}

// observe records a peer seen via Announce or Response, overwriting its
// claimed IP with the UDP packet's actual source address.
func (s *Service) observe(peer PeerInfo, addr *net.UDPAddr) (PeerInfo, bool) {
	peer.IP = addr.IP.String()

	if peer.ID == s.local.ID {
		return PeerInfo{}, false
	}

	log.Debug("discovered peer: %s (%s) at %s", peer.Name, peer.Role, peer.IP)

	s.mu.Lock()
	_, known := s.peers[peer.ID]
	s.peers[peer.ID] = peerEntry{info: peer, lastSeen: time.Now()}
	s.mu.Unlock()

	return peer, !known
}

func (s *Service) send(msg message, addr *net.UDPAddr) error {
	payload, err := encode(msg)
	if err != nil {
		return err
	}
	_, err = s.conn.WriteToUDP(payload, addr)
	return err
}

// Peers returns all live peers, pruning any whose last sighting exceeds
// PeerTimeout.
func (s *Service) Peers() []PeerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	peers := make([]PeerInfo, 0, len(s.peers))
	for id, entry := range s.peers {
		if now.Sub(entry.lastSeen) >= PeerTimeout {
			delete(s.peers, id)
			continue
		}
		peers = append(peers, entry.info)
	}
	return peers
}

// Teachers returns currently live peers advertising the Teacher role.
func (s *Service) Teachers() []PeerInfo {
	var teachers []PeerInfo
	for _, p := range s.Peers() {
		if p.Role == RoleTeacher {
			teachers = append(teachers, p)
		}
	}
	return teachers
}

// Students returns currently live peers advertising the Student role.
func (s *Service) Students() []PeerInfo {
	var students []PeerInfo
	for _, p := range s.Peers() {
		if p.Role == RoleStudent {
			students = append(students, p)
		}
	}
	return students
}

func encode(msg message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("discovery: encode: %w", err)
	}
	buf := make([]byte, 0, len(magic)+len(body))
	buf = append(buf, magic...)
	buf = append(buf, body...)
	return buf, nil
}

func decode(buf []byte) (message, bool) {
	if len(buf) < len(magic) || !bytes.Equal(buf[:len(magic)], magic) {
		return message{}, false
	}
	var msg message
	if err := json.Unmarshal(buf[len(magic):], &msg); err != nil {
		return message{}, false
	}
	return msg, true
}

func generateID() string {
	return fmt.Sprintf("%x", time.Now().UnixNano())
}

func localIP() (string, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
