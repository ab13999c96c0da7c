package lb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type recordingPropagator struct {
	mu     sync.Mutex
	events []EvictionEvent
	err    error
}

func (p *recordingPropagator) Propagate(ev EvictionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPropagator) seen() []EvictionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]EvictionEvent(nil), p.events...)
}

func TestEventCleanerClean(t *testing.T) {
	f := newEvictorFixture(t)
	propagator := &recordingPropagator{err: errors.New("no peers")}
	cleaner := NewEventCleanerLoop(NewEventQueue(4), f.conns, propagator)

	ev := EvictionEvent{Addr: f.client.ClientAddr, Port: f.client.ClientPort}
	cleaner.Clean(ev)

	assert.Equal(t, 0, f.conns.Len())
	// a failed propagation does not undo the local removal
	assert.Equal(t, []EvictionEvent{ev}, propagator.seen())
}

func TestEventCleanerLoop(t *testing.T) {
	f := newEvictorFixture(t)
	queue := NewEventQueue(4)
	propagator := &recordingPropagator{}
	var cleaner ConnectionCleaner = NewEventCleanerLoop(queue, f.conns, propagator)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cleaner.CleanLoop(ctx)
		close(done)
	}()

	notifier := NewNotifier(f.vips, NewNotifyEvictor(queue))
	notifier.SocketReleased(SocketInfo{
		Type:   unix.SOCK_STREAM,
		Local:  Endpoint{Addr: mustAddr(t, "10.0.0.1"), Port: 80},
		Remote: Endpoint{Addr: f.client.ClientAddr, Port: f.client.ClientPort},
	})

	assert.Eventually(t, func() bool {
		return f.conns.Len() == 0 && len(propagator.seen()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("clean loop did not stop")
	}
}

func TestEventCleanerWithoutPropagator(t *testing.T) {
	f := newEvictorFixture(t)
	cleaner := NewEventCleanerLoop(NewEventQueue(1), f.conns, nil)
	require.NotPanics(t, func() {
		cleaner.Clean(EvictionEvent{Addr: f.client.ClientAddr, Port: f.client.ClientPort})
	})
	assert.Equal(t, 0, f.conns.Len())
}
