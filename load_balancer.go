package lb

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

type LoadBalancer interface {
	Start() error
	Stop() error
}

// ReleaseSource delivers raw socket release records (see DecodeReleaseEvent).
type ReleaseSource interface {
	Start() (<-chan []byte, error)
	Stop()
}

// SlbLoadBalancer wires the engine, the eviction path and the optional
// frame listener, release probe and peer propagation together.
type SlbLoadBalancer struct {
	Config *Config
	// Listener feeds frames to the engine. Optional.
	Listener Listener
	// Releases feeds socket release records to the notifier. Optional.
	Releases ReleaseSource
	// Propagator receives notify-mode events after local removal. Optional.
	Propagator Propagator

	vips     VipTable
	pool     *BackendPool
	conns    *ConnTable
	queue    *EventQueue
	engine   *Engine
	notifier *Notifier

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSlbLoadBalancer builds the tables and the engine from conf. routes may
// be nil, in which case the host routing tables are used through netlink.
func NewSlbLoadBalancer(conf *Config, routes RouteLookuper) (*SlbLoadBalancer, error) {
	if conf == nil {
		return nil, ErrNoConfig
	}
	lb := &SlbLoadBalancer{Config: conf}

	pool, err := NewBackendPool(conf.BackendCount)
	if err != nil {
		return nil, err
	}
	for i, b := range conf.Backends {
		if err := pool.Set(uint32(i), b); err != nil {
			return nil, err
		}
	}
	lb.pool = pool

	if conf.Vip != nil {
		lb.vips.Set(*conf.Vip)
	}

	lb.conns, err = NewConnTable(conf.MaxConnections)
	if err != nil {
		return nil, err
	}

	if routes == nil {
		nl := NewNetlinkRouteLookuper()
		log.Infof("resolving next hops with %s, cache ttl %s", nl, conf.RouteCacheTTL)
		routes = NewCachedLookuper(nl, DefaultRouteCacheSize, conf.RouteCacheTTL)
	}

	lb.engine, err = NewEngine(EngineParams{
		LocalAddr:    conf.LocalAddr,
		MaxTCPLength: conf.MaxTCPLength,
		Vips:         &lb.vips,
		Conns:        lb.conns,
		Strategy:     NewStrategy(conf.Algorithm, pool),
		Resolver:     NewMACRewriter(routes),
	})
	if err != nil {
		return nil, err
	}

	lb.queue = NewEventQueue(conf.EventQueueSize)
	lb.notifier = NewNotifier(&lb.vips, NewEvictor(conf.EvictionMode, lb.conns, lb.queue))
	return lb, nil
}

func (lb *SlbLoadBalancer) Engine() *Engine { return lb.engine }
func (lb *SlbLoadBalancer) Conns() *ConnTable { return lb.conns }
func (lb *SlbLoadBalancer) Notifier() *Notifier { return lb.notifier }
func (lb *SlbLoadBalancer) Vips() *VipTable { return &lb.vips }
func (lb *SlbLoadBalancer) Events() *EventQueue { return lb.queue }
func (lb *SlbLoadBalancer) Pool() *BackendPool { return lb.pool }

func (lb *SlbLoadBalancer) Start() error {
	if lb.Config == nil {
		return ErrNoConfig
	}
	ctx, cancel := context.WithCancel(context.Background())
	lb.cancel = cancel

	if lb.Releases != nil {
		channel, err := lb.Releases.Start()
		if err != nil {
			cancel()
			return err
		}
		lb.goRun(func() { ReadReleaseEvents(ctx, channel, lb.notifier) })
	}

	if lb.Config.EvictionMode == EvictNotify {
		cleaner := NewEventCleanerLoop(lb.queue, lb.conns, lb.Propagator)
		lb.goRun(func() { cleaner.CleanLoop(ctx) })
	}

	if lb.Listener != nil {
		lb.goRun(func() {
			if err := lb.Listener.Listen(ctx, lb.engine); err != nil {
				log.Errorf("listener stopped: %s", err)
			}
		})
	}

	log.WithFields(log.Fields{
		"local":     lb.Config.LocalAddr,
		"vip":       lb.Config.Vip,
		"backends":  lb.pool.Count(),
		"algorithm": lb.Config.Algorithm,
		"eviction":  lb.Config.EvictionMode,
	}).Infof("started load balancer.")
	return nil
}

func (lb *SlbLoadBalancer) Stop() error {
	log.Infof("stopping load balancer")
	if lb.cancel != nil {
		lb.cancel()
	}
	if lb.Releases != nil {
		log.Debugf("stopping release probe")
		lb.Releases.Stop()
	}
	lb.wg.Wait()

	if log.IsLevelEnabled(log.DebugLevel) {
		for _, entry := range lb.conns.Entries() {
			log.Debugf("conn %s -> %s", entry.Key, entry.Backend)
		}
	}
	snap := lb.engine.Stats().Snapshot()
	log.Infof("stopped load balancer, total=%d local=%d conns=%d", snap.TotalBits, snap.LocalBits, lb.conns.Len())
	return nil
}

func (lb *SlbLoadBalancer) goRun(f func()) {
	lb.wg.Add(1)
	go func() {
		defer lb.wg.Done()
		f()
	}()
}
