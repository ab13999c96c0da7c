package lb

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Propagator hands eviction events to other balancer instances.
type Propagator interface {
	Propagate(ev EvictionEvent) error
}

// ConnectionCleaner consumes eviction events until ctx is done.
type ConnectionCleaner interface {
	CleanLoop(ctx context.Context)
}

// EventCleanerLoop is the consumer of the notify-mode event queue: each
// event removes the connection from the local table and, when a propagator
// is set, is passed on to the peers.
type EventCleanerLoop struct {
	events     *EventQueue
	conns      *ConnTable
	propagator Propagator
}

func NewEventCleanerLoop(events *EventQueue, conns *ConnTable, propagator Propagator) *EventCleanerLoop {
	return &EventCleanerLoop{events: events, conns: conns, propagator: propagator}
}

func (cleaner *EventCleanerLoop) CleanLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-cleaner.events.Events():
			cleaner.Clean(ev)
		}
	}
}

func (cleaner *EventCleanerLoop) Clean(ev EvictionEvent) {
	removed := cleaner.conns.Remove(ev.Key())
	log.Debugf("%s, removed locally: %t", ev, removed)

	if cleaner.propagator == nil {
		return
	}
	if err := cleaner.propagator.Propagate(ev); err != nil {
		log.Errorf("failed to propagate %s: %s", ev, err)
	}
}
