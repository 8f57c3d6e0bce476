package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, name string, role Role) *Service {
	t.Helper()
	s, err := newOn(0, net.ParseIP("127.0.0.1"), name, role, 5004, "test")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addrOf(s *Service) *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	peer := PeerInfo{ID: "abc", Name: "Ms. Lee", Role: RoleTeacher, IP: "10.0.0.5", StreamPort: 5004, Version: "1.0"}
	msg := message{Announce: &peer}

	buf, err := encode(msg)
	require.NoError(t, err)
	assert.True(t, len(buf) > len(magic))

	got, ok := decode(buf)
	require.True(t, ok)
	require.NotNil(t, got.Announce)
	assert.Equal(t, peer, *got.Announce)
}

func TestDecodeRejectsMissingOrWrongMagic(t *testing.T) {
	_, ok := decode([]byte("short"))
	assert.False(t, ok)

	bad := append([]byte("WRONGTAG"), []byte(`{}`)...)
	_, ok = decode(bad)
	assert.False(t, ok)
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	buf := append(append([]byte{}, magic...), []byte("{not json")...)
	_, ok := decode(buf)
	assert.False(t, ok)
}

// Announce from one peer is observed by the other, with its IP overwritten
// from the actual packet source rather than whatever the sender claimed.
func TestAnnounceDiscoversPeerAndOverwritesIP(t *testing.T) {
	teacher := newTestService(t, "Ms. Lee", RoleTeacher)
	student := newTestService(t, "Alex", RoleStudent)

	claimed := teacher.local
	claimed.IP = "1.2.3.4" // bogus, should be overwritten on receipt

	require.NoError(t, teacher.send(message{Announce: &claimed}, addrOf(student)))

	peer, ok := student.Poll(time.Second)
	require.True(t, ok)
	assert.Equal(t, teacher.local.ID, peer.ID)
	assert.Equal(t, "127.0.0.1", peer.IP)
	assert.NotEqual(t, "1.2.3.4", peer.IP)

	students := teacher.Students()
	assert.Empty(t, students)
	assert.Len(t, student.Teachers(), 1)
}

// A peer never adds itself to its own peer table, even if it somehow
// receives its own Announce.
func TestSelfAnnounceIsIgnored(t *testing.T) {
	s := newTestService(t, "Solo", RoleTeacher)

	require.NoError(t, s.send(message{Announce: &s.local}, addrOf(s)))

	_, ok := s.Poll(time.Second)
	assert.False(t, ok)
	assert.Empty(t, s.Peers())
}

// A second Announce from an already-known peer refreshes lastSeen but is not
// reported as newly discovered.
func TestRepeatedAnnounceIsNotNew(t *testing.T) {
	teacher := newTestService(t, "Ms. Lee", RoleTeacher)
	student := newTestService(t, "Alex", RoleStudent)

	require.NoError(t, teacher.send(message{Announce: &teacher.local}, addrOf(student)))
	_, ok := student.Poll(time.Second)
	require.True(t, ok)

	require.NoError(t, teacher.send(message{Announce: &teacher.local}, addrOf(student)))
	_, ok = student.Poll(time.Second)
	assert.False(t, ok)

	assert.Len(t, student.Peers(), 1)
}

// Query/Response round trip: a Query elicits a Response carrying the
// responder's own info, observed by the querier.
func TestQueryResponseRoundTrip(t *testing.T) {
	teacher := newTestService(t, "Ms. Lee", RoleTeacher)
	student := newTestService(t, "Alex", RoleStudent)

	require.NoError(t, student.send(message{Query: &struct{}{}}, addrOf(teacher)))

	_, ok := teacher.Poll(time.Second)
	assert.False(t, ok, "a Query never yields a discovered peer for the responder")

	peer, ok := student.Poll(time.Second)
	require.True(t, ok)
	assert.Equal(t, teacher.local.ID, peer.ID)
	assert.Equal(t, RoleTeacher, peer.Role)
}

// Peers older than PeerTimeout are pruned on the next call to Peers.
func TestPeerTimeoutPrunesStalePeers(t *testing.T) {
	s := newTestService(t, "Alex", RoleStudent)

	peer := PeerInfo{ID: "stale-peer", Name: "Old", Role: RoleTeacher, IP: "10.0.0.9"}
	s.mu.Lock()
	s.peers[peer.ID] = peerEntry{info: peer, lastSeen: time.Now().Add(-PeerTimeout - time.Second)}
	s.mu.Unlock()

	assert.Empty(t, s.Peers())

	s.mu.Lock()
	_, stillThere := s.peers[peer.ID]
	s.mu.Unlock()
	assert.False(t, stillThere)
}

func TestMalformedDatagramIncrementsDropped(t *testing.T) {
	s := newTestService(t, "Alex", RoleStudent)

	conn, err := net.DialUDP("udp4", nil, addrOf(s))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not a valid discovery datagram"))
	require.NoError(t, err)

	_, ok := s.Poll(time.Second)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), s.Dropped)
}

func TestTeachersAndStudentsFilterByRole(t *testing.T) {
	hub := newTestService(t, "Hub", RoleStudent)
	teacher := newTestService(t, "Ms. Lee", RoleTeacher)
	student := newTestService(t, "Alex", RoleStudent)

	require.NoError(t, teacher.send(message{Announce: &teacher.local}, addrOf(hub)))
	_, ok := hub.Poll(time.Second)
	require.True(t, ok)

	require.NoError(t, student.send(message{Announce: &student.local}, addrOf(hub)))
	_, ok = hub.Poll(time.Second)
	require.True(t, ok)

	assert.Len(t, hub.Teachers(), 1)
	assert.Len(t, hub.Students(), 1)
	assert.Equal(t, teacher.local.ID, hub.Teachers()[0].ID)
	assert.Equal(t, student.local.ID, hub.Students()[0].ID)
}
