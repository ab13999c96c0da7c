package lb

import (
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// DefaultEventQueueSize is the number of eviction events buffered for the
// consumer.
const DefaultEventQueueSize = 256

// EvictionMode selects what happens when a serviced connection is released.
type EvictionMode int

const (
	// EvictLocal deletes the connection table entry directly.
	EvictLocal EvictionMode = iota
	// EvictNotify publishes an EvictionEvent for a consumer to act on.
	EvictNotify
)

func (m EvictionMode) String() string {
	if m == EvictNotify {
		return "notify"
	}
	return "local"
}

// ParseEvictionMode maps a config value to a mode. Anything but "notify"
// means local.
func ParseEvictionMode(s string) EvictionMode {
	if strings.EqualFold(strings.TrimSpace(s), "notify") {
		return EvictNotify
	}
	return EvictLocal
}

// Evictor invalidates the table entry of one client connection.
type Evictor interface {
	Evict(key ConnKey)
	Mode() EvictionMode
}

// LocalEvictor removes entries straight from the connection table.
type LocalEvictor struct {
	conns *ConnTable
}

func NewLocalEvictor(conns *ConnTable) *LocalEvictor {
	return &LocalEvictor{conns: conns}
}

func (e *LocalEvictor) Evict(key ConnKey) {
	removed := e.conns.Remove(key)
	if removed {
		RecordReleaseEviction(EvictLocal)
	}
	log.Debugf("%s is released, deleted: %t", key, removed)
}

func (e *LocalEvictor) Mode() EvictionMode { return EvictLocal }

// EventQueue is a bounded FIFO of eviction events. Producers never block:
// when the queue is full the newest event is dropped.
type EventQueue struct {
	events chan EvictionEvent
}

func NewEventQueue(size int) *EventQueue {
	if size <= 0 {
		size = DefaultEventQueueSize
	}
	return &EventQueue{events: make(chan EvictionEvent, size)}
}

// Offer enqueues ev and reports whether there was room for it.
func (q *EventQueue) Offer(ev EvictionEvent) bool {
	select {
	case q.events <- ev:
		return true
	default:
		return false
	}
}

// Events is the consumer side of the queue.
func (q *EventQueue) Events() <-chan EvictionEvent {
	return q.events
}

func (q *EventQueue) Len() int {
	return len(q.events)
}

// NotifyEvictor publishes released connections on an EventQueue.
type NotifyEvictor struct {
	queue *EventQueue
}

func NewNotifyEvictor(queue *EventQueue) *NotifyEvictor {
	return &NotifyEvictor{queue: queue}
}

func (e *NotifyEvictor) Evict(key ConnKey) {
	ev := EvictionEvent{Addr: key.ClientAddr, Port: key.ClientPort}
	if !e.queue.Offer(ev) {
		RecordEventDropped()
		log.Debugf("event queue full, dropped %s", ev)
		return
	}
	RecordReleaseEviction(EvictNotify)
}

func (e *NotifyEvictor) Mode() EvictionMode { return EvictNotify }

// NewEvictor builds the evictor for mode. queue is only used in notify mode.
func NewEvictor(mode EvictionMode, conns *ConnTable, queue *EventQueue) Evictor {
	if mode == EvictNotify {
		return NewNotifyEvictor(queue)
	}
	return NewLocalEvictor(conns)
}

// SocketInfo describes a socket that is being released. Local is the
// backend side, Remote the client.
type SocketInfo struct {
	Type   int
	Local  Endpoint
	Remote Endpoint
}

// Notifier turns socket releases into evictions for connections that were
// served on behalf of the VIP.
type Notifier struct {
	vips    *VipTable
	evictor Evictor
}

func NewNotifier(vips *VipTable, evictor Evictor) *Notifier {
	return &Notifier{vips: vips, evictor: evictor}
}

// SocketReleased handles one release signal. Sockets that are not stream
// sockets bound to the VIP are ignored.
func (n *Notifier) SocketReleased(sock SocketInfo) {
	if sock.Type != unix.SOCK_STREAM {
		return
	}
	vip, ok := n.vips.Get()
	if !ok {
		log.Debugf("Sock no vip, pass")
		return
	}
	if sock.Local.Addr != vip.Addr || sock.Local.Port != vip.Port {
		return
	}
	n.evictor.Evict(ConnKey{ClientAddr: sock.Remote.Addr, ClientPort: sock.Remote.Port})
}
