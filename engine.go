package lb

import (
	"errors"

	log "github.com/sirupsen/logrus"
)

// DefaultMaxTCPLength is the largest TCP segment (header and payload) the
// engine accepts on the VIP path: a 1500 byte MTU minus the IPv4 header.
const DefaultMaxTCPLength = 1480

// EngineParams are the runtime constants of an Engine.
type EngineParams struct {
	// LocalAddr is this host's own service address.
	LocalAddr Addr4
	// MaxTCPLength bounds the TCP length claimed by the IP header.
	MaxTCPLength int
	Vips         *VipTable
	Conns        *ConnTable
	Strategy     Strategy
	Resolver     *MACRewriter
}

// Engine runs the per-frame decision pipeline. Process may be called from
// many goroutines at once; the connection table and the counters are the
// only shared state.
type Engine struct {
	localAddr    Addr4
	maxTCPLength int
	vips         *VipTable
	conns        *ConnTable
	strategy     Strategy
	resolver     *MACRewriter
	stats        Stats
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Vips == nil || params.Conns == nil || params.Strategy == nil || params.Resolver == nil {
		return nil, errors.New("engine needs a vip table, connection table, strategy and resolver")
	}
	maxLen := params.MaxTCPLength
	if maxLen <= 0 {
		maxLen = DefaultMaxTCPLength
	}
	return &Engine{
		localAddr:    params.LocalAddr,
		maxTCPLength: maxLen,
		vips:         params.Vips,
		conns:        params.Conns,
		strategy:     params.Strategy,
		resolver:     params.Resolver,
	}, nil
}

// Stats returns the engine's counters.
func (e *Engine) Stats() *Stats {
	return &e.stats
}

// Process decides what happens to one frame. It never blocks and never
// returns anything but a verdict.
func (e *Engine) Process(frame *Frame) Verdict {
	verdict := e.process(frame)
	RecordVerdict(verdict)
	return verdict
}

func (e *Engine) process(frame *Frame) Verdict {
	pktSize := len(frame.Data)
	log.Debugf("%s,Got a packet, size %d", e.localAddr, pktSize)

	pkt, res := ParseFrame(frame.Data)
	if res != ParseOK {
		log.Debugf("%s,%s, pass", e.localAddr, res)
		return VerdictPass
	}

	src, dst := pkt.IP.Src(), pkt.IP.Dst()
	sport, dport := pkt.TCP.SrcPort(), pkt.TCP.DstPort()

	if dst == e.localAddr {
		// addressed to us as a backend, not part of the balancer stats
		log.Debugf("%s,Process a packet from %s:%d to %s:%d as real server",
			e.localAddr, src, sport, dst, dport)
		return VerdictPass
	}

	vip, ok := e.vips.Get()
	if !ok {
		log.Debugf("%s,No vip, pass", e.localAddr)
		return VerdictPass
	}
	log.Debugf("%s,Got a TCP packet from %s:%d to %s:%d, vip %s",
		e.localAddr, src, sport, dst, dport, vip)

	if tcpLen := pkt.IP.TCPLen(); tcpLen < 0 || tcpLen > e.maxTCPLength {
		log.Debugf("%s,Tcp_len %d outside [0, %d], drop", e.localAddr, tcpLen, e.maxTCPLength)
		return VerdictDrop
	}

	if dst != vip.Addr {
		log.Debugf("%s,No such ip %s, drop", e.localAddr, dst)
		return VerdictDrop
	}
	if dport != vip.Port {
		log.Debugf("%s,No such port %d, drop", e.localAddr, dport)
		return VerdictDrop
	}

	e.stats.addTotal(pktSize)

	// every packet of a connection must land on the same backend
	key := ConnKey{ClientAddr: src, ClientPort: sport}
	backend, ok := e.conns.Lookup(key)
	if !ok {
		backend, ok = e.strategy.Pick(key)
		if !ok {
			log.Debugf("%s,No rs, pass", e.localAddr)
			return VerdictPass
		}
		if !pkt.TCP.SYN() {
			// entry was evicted mid-connection; the new pick may differ
			log.Debugf("%s,No entry for non-SYN packet of %s, picked %s", e.localAddr, key, backend)
		}
		e.conns.Insert(key, backend)
	}

	if backend.Addr == e.localAddr {
		e.stats.addLocal(pktSize)
		log.Debugf("%s,Picked this rs, pass", e.localAddr)
		return VerdictPass
	}

	verdict := e.resolver.Forward(frame, pkt, e.localAddr, backend.Addr)
	log.Debugf("%s,Ingress a nat packet from %s:%d to %s:%d via %s, %s",
		e.localAddr, src, sport, dst, dport, backend, verdict)
	return verdict
}
