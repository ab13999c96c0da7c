package lb

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type evictorFixture struct {
	vips   *VipTable
	conns  *ConnTable
	client ConnKey
}

func newEvictorFixture(t *testing.T) *evictorFixture {
	t.Helper()
	conns, err := NewConnTable(16)
	require.NoError(t, err)
	vips := &VipTable{}
	vips.Set(Vip{Addr: mustAddr(t, "10.0.0.1"), Port: 80})

	client := connKey(t, "192.168.1.5", 4444)
	conns.Insert(client, Backend{Addr: mustAddr(t, "10.0.0.2"), Port: 80})
	return &evictorFixture{vips: vips, conns: conns, client: client}
}

func (f *evictorFixture) release(t *testing.T, sockType int, local string, localPort uint16) SocketInfo {
	return SocketInfo{
		Type:   sockType,
		Local:  Endpoint{Addr: mustAddr(t, local), Port: localPort},
		Remote: Endpoint{Addr: f.client.ClientAddr, Port: f.client.ClientPort},
	}
}

func TestNotifierLocalMode(t *testing.T) {
	f := newEvictorFixture(t)
	notifier := NewNotifier(f.vips, NewEvictor(EvictLocal, f.conns, nil))

	notifier.SocketReleased(f.release(t, unix.SOCK_STREAM, "10.0.0.1", 80))
	_, ok := f.conns.Lookup(f.client)
	assert.False(t, ok)

	// a second release of the same socket is harmless
	notifier.SocketReleased(f.release(t, unix.SOCK_STREAM, "10.0.0.1", 80))
	assert.Equal(t, 0, f.conns.Len())
}

func TestNotifierIgnoresOtherSockets(t *testing.T) {
	tests := []struct {
		name     string
		sockType int
		local    string
		port     uint16
	}{
		{"datagram", unix.SOCK_DGRAM, "10.0.0.1", 80},
		{"other address", unix.SOCK_STREAM, "10.0.0.9", 80},
		{"other port", unix.SOCK_STREAM, "10.0.0.1", 8080},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEvictorFixture(t)
			notifier := NewNotifier(f.vips, NewLocalEvictor(f.conns))

			notifier.SocketReleased(f.release(t, tt.sockType, tt.local, tt.port))
			_, ok := f.conns.Lookup(f.client)
			assert.True(t, ok)
		})
	}
}

func TestNotifierWithoutVip(t *testing.T) {
	f := newEvictorFixture(t)
	f.vips.Clear()
	notifier := NewNotifier(f.vips, NewLocalEvictor(f.conns))

	notifier.SocketReleased(f.release(t, unix.SOCK_STREAM, "10.0.0.1", 80))
	assert.Equal(t, 1, f.conns.Len())
}

func TestNotifierNotifyMode(t *testing.T) {
	f := newEvictorFixture(t)
	queue := NewEventQueue(4)
	evictor := NewEvictor(EvictNotify, f.conns, queue)
	require.Equal(t, EvictNotify, evictor.Mode())
	notifier := NewNotifier(f.vips, evictor)

	notifier.SocketReleased(f.release(t, unix.SOCK_STREAM, "10.0.0.1", 80))

	// the table is left to the consumer
	assert.Equal(t, 1, f.conns.Len())
	require.Equal(t, 1, queue.Len())
	ev := <-queue.Events()
	assert.Equal(t, f.client, ev.Key())
}

func TestNotifyEvictorQueueFull(t *testing.T) {
	queue := NewEventQueue(2)
	evictor := NewNotifyEvictor(queue)
	before := testutil.ToFloat64(eventsDropped)

	for port := uint16(1); port <= 3; port++ {
		evictor.Evict(connKey(t, "192.168.1.5", port))
	}
	assert.Equal(t, 2, queue.Len())
	assert.Equal(t, before+1, testutil.ToFloat64(eventsDropped))

	// the oldest events survive
	assert.Equal(t, uint16(1), (<-queue.Events()).Port)
	assert.Equal(t, uint16(2), (<-queue.Events()).Port)
}

func TestParseEvictionMode(t *testing.T) {
	assert.Equal(t, EvictNotify, ParseEvictionMode("notify"))
	assert.Equal(t, EvictNotify, ParseEvictionMode(" Notify "))
	assert.Equal(t, EvictLocal, ParseEvictionMode("local"))
	assert.Equal(t, EvictLocal, ParseEvictionMode(""))
}
