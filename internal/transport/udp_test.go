package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddrForBindsWildcard(t *testing.T) {
	assert.Equal(t, ":5000", addrFor(5000))
}

func TestReceiverTimesOutWithoutBlocking(t *testing.T) {
	r, err := NewReceiver(ModeBroadcast, 0)
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 1500)
	start := time.Now()
	n, ok, err := r.Receive(buf)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, n)
	assert.Less(t, elapsed, 2*DefaultReadTimeout)
}

func TestReceiverReceivesFromLoopback(t *testing.T) {
	r, err := NewReceiver(ModeBroadcast, 0)
	require.NoError(t, err)
	defer r.Close()

	boundPort := r.conn.LocalAddr().(*net.UDPAddr).Port

	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: boundPort})
	require.NoError(t, err)
	defer conn.Close()

	payload := []byte("hello transport")
	_, err = conn.Write(payload)
	require.NoError(t, err)

	buf := make([]byte, 1500)
	n, addr, ok, err := r.ReceiveFrom(buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload, buf[:n])
	assert.Equal(t, "127.0.0.1", addr.IP.String())
}

func TestNewSenderBroadcastConfiguresDestination(t *testing.T) {
	s, err := NewSender(ModeBroadcast, 5000)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, net.IPv4bcast.String(), s.dst.IP.String())
	assert.Equal(t, 5000, s.dst.Port)
}

func TestNewSenderMulticastConfiguresDestination(t *testing.T) {
	s, err := NewSender(ModeMulticast, 5000)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, MulticastGroup.String(), s.dst.IP.String())
	assert.NotNil(t, s.pc)
}

func TestSenderSendDoesNotErrorOnLoopbackReceiver(t *testing.T) {
	r, err := NewReceiver(ModeBroadcast, 0)
	require.NoError(t, err)
	defer r.Close()

	port := r.conn.LocalAddr().(*net.UDPAddr).Port

	s, err := NewSender(ModeBroadcast, port)
	require.NoError(t, err)
	defer s.Close()
	// Redirect to loopback so the test doesn't depend on a real broadcast
	// domain being present in the sandbox.
	s.dst = &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port}

	require.NoError(t, s.Send([]byte("ping")))

	buf := make([]byte, 1500)
	n, ok, err := r.Receive(buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ping", string(buf[:n]))
}
