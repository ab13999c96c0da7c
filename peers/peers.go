// Package peers shares connection eviction events between balancer
// instances fronting the same VIP. Events are gossiped with memberlist; a
// received event removes the connection from the local table.
package peers

import (
	"fmt"
	stdlog "log"
	"time"

	"github.com/hashicorp/memberlist"
	log "github.com/sirupsen/logrus"

	lb "slb"
)

const retransmitMult = 3

// ConnRemover is the part of the connection table peers need.
type ConnRemover interface {
	Remove(key lb.ConnKey) bool
}

type Config struct {
	NodeName string
	BindAddr string
	BindPort int
	Join     []string
}

// Peers implements lb.Propagator.
type Peers struct {
	Memberlist *memberlist.Memberlist
	delegate   *delegate
	eventCh    chan memberlist.NodeEvent
	stopCh     chan struct{}
}

func New(cfg *Config, conns ConnRemover) (*Peers, error) {
	mconfig := memberlist.DefaultLANConfig()
	mconfig.Name = cfg.NodeName
	mconfig.BindAddr = cfg.BindAddr
	mconfig.BindPort = cfg.BindPort
	mconfig.AdvertisePort = cfg.BindPort
	mconfig.Logger = stdlog.New(log.WithField("component", "memberlist").WriterLevel(log.DebugLevel), "", 0)

	d := &delegate{conns: conns}
	mconfig.Delegate = d

	eventCh := make(chan memberlist.NodeEvent, 16)
	mconfig.Events = &memberlist.ChannelEventDelegate{Ch: eventCh}

	mlist, err := memberlist.Create(mconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	d.broadcasts = &memberlist.TransmitLimitedQueue{
		NumNodes:       mlist.NumMembers,
		RetransmitMult: retransmitMult,
	}

	p := &Peers{
		Memberlist: mlist,
		delegate:   d,
		eventCh:    eventCh,
		stopCh:     make(chan struct{}),
	}
	go p.watchEvents()
	return p, nil
}

// Join contacts the given members. It is fine for none to answer: the
// instance then runs alone until someone joins it.
func (p *Peers) Join(members []string) error {
	if len(members) == 0 {
		return nil
	}
	n, err := p.Memberlist.Join(members)
	log.WithFields(log.Fields{"joined": n, "error": err}).Info("memberlist join")
	return err
}

// Propagate queues ev for gossip to every other member.
func (p *Peers) Propagate(ev lb.EvictionEvent) error {
	msg, err := ev.MarshalBinary()
	if err != nil {
		return err
	}
	p.delegate.broadcasts.QueueBroadcast(&evictionBroadcast{key: ev.Key(), msg: msg})
	return nil
}

func (p *Peers) Shutdown() error {
	close(p.stopCh)
	err := p.Memberlist.Leave(time.Second)
	if serr := p.Memberlist.Shutdown(); err == nil {
		err = serr
	}
	log.Infof("memberlist shut down, error: %v", err)
	return err
}

func event2String(e memberlist.NodeEventType) string {
	return [...]string{"NodeJoin", "NodeLeave", "NodeUpdate"}[e]
}

func (p *Peers) watchEvents() {
	for {
		select {
		case event := <-p.eventCh:
			log.WithFields(log.Fields{
				"node":  event.Node.Name,
				"addr":  event.Node.Addr,
				"event": event2String(event.Event),
			}).Info("peer event")
		case <-p.stopCh:
			return
		}
	}
}

// delegate receives gossip for memberlist.
type delegate struct {
	conns      ConnRemover
	broadcasts *memberlist.TransmitLimitedQueue
}

func (d *delegate) NodeMeta(limit int) []byte { return nil }

func (d *delegate) NotifyMsg(msg []byte) {
	var ev lb.EvictionEvent
	if err := ev.UnmarshalBinary(msg); err != nil {
		log.Debugf("ignoring peer message: %s", err)
		return
	}
	removed := d.conns.Remove(ev.Key())
	log.Debugf("peer %s, removed: %t", ev, removed)
}

func (d *delegate) GetBroadcasts(overhead, limit int) [][]byte {
	if d.broadcasts == nil {
		return nil
	}
	return d.broadcasts.GetBroadcasts(overhead, limit)
}

func (d *delegate) LocalState(join bool) []byte { return nil }

func (d *delegate) MergeRemoteState(buf []byte, join bool) {}

// evictionBroadcast is one queued event. A newer event for the same key
// replaces an older one still in the queue.
type evictionBroadcast struct {
	key lb.ConnKey
	msg []byte
}

func (b *evictionBroadcast) Invalidates(other memberlist.Broadcast) bool {
	o, ok := other.(*evictionBroadcast)
	return ok && o.key == b.key
}

func (b *evictionBroadcast) Message() []byte { return b.msg }

func (b *evictionBroadcast) Finished() {}
