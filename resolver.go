package lb

import (
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
)

// FibCode classifies the answer of a route lookup. The set mirrors the
// results of the kernel's forwarding lookup helper.
type FibCode int

const (
	FibSuccess FibCode = iota
	FibBlackhole
	FibUnreachable
	FibProhibit
	FibNotForwarded
	FibForwardingDisabled
	FibUnsupportedLwt
	FibNoNeighbor
	FibFragNeeded
)

func (c FibCode) String() string {
	switch c {
	case FibSuccess:
		return "success"
	case FibBlackhole:
		return "blackhole"
	case FibUnreachable:
		return "unreachable"
	case FibProhibit:
		return "prohibit"
	case FibNotForwarded:
		return "not_fwded"
	case FibForwardingDisabled:
		return "fwd_disabled"
	case FibUnsupportedLwt:
		return "unsupp_lwt"
	case FibNoNeighbor:
		return "no_neigh"
	case FibFragNeeded:
		return "frag_needed"
	}
	return fmt.Sprintf("fib(%d)", int(c))
}

// FibLookup describes the packet to route.
type FibLookup struct {
	Src      Addr4
	Dst      Addr4
	Tos      uint8
	Protocol uint8
	TotLen   uint16
	Ifindex  int
}

// FibResult carries the link-layer addresses to use toward the next hop.
// SrcMAC and DstMAC are only meaningful when Code is FibSuccess.
type FibResult struct {
	Code    FibCode
	SrcMAC  net.HardwareAddr
	DstMAC  net.HardwareAddr
	Ifindex int
	MTU     int
}

// RouteLookuper answers route lookups. Implementations must not block for
// long: they run on the packet path.
type RouteLookuper interface {
	Lookup(req FibLookup) FibResult
}

// MACRewriter turns a route lookup into a verdict and, on success, rewrites
// the ethernet addresses of the frame in place. IP headers are left alone.
type MACRewriter struct {
	routes RouteLookuper
}

func NewMACRewriter(routes RouteLookuper) *MACRewriter {
	return &MACRewriter{routes: routes}
}

// Forward resolves the next hop from src toward dst and prepares frame for
// retransmission on its ingress interface.
func (r *MACRewriter) Forward(frame *Frame, pkt Packet, src, dst Addr4) Verdict {
	req := FibLookup{
		Src:      src,
		Dst:      dst,
		Tos:      pkt.IP.TOS(),
		Protocol: pkt.IP.Protocol(),
		TotLen:   pkt.IP.TotalLen(),
		Ifindex:  frame.IngressIfindex,
	}
	log.Debugf("Look up from %s to %s", src, dst)

	res := r.routes.Lookup(req)
	log.Debugf("origin-- %s to------ %s", pkt.Eth.Src(), pkt.Eth.Dst())

	verdict := VerdictPass
	switch res.Code {
	case FibSuccess:
		pkt.Eth.SetDst(res.DstMAC)
		pkt.Eth.SetSrc(res.SrcMAC)
		verdict = VerdictTransmit
		log.Debugf("fib lookup %s, tx", res.Code)
	case FibBlackhole, FibUnreachable, FibProhibit:
		verdict = VerdictDrop
		log.Debugf("fib lookup %s, drop", res.Code)
	case FibNotForwarded, FibForwardingDisabled, FibUnsupportedLwt, FibNoNeighbor, FibFragNeeded:
		log.Debugf("fib lookup %s, pass", res.Code)
	default:
		log.Debugf("fib lookup returned unknown code %d, pass", int(res.Code))
	}
	RecordFibResult(res.Code)

	log.Debugf("now----- %s to------ %s", pkt.Eth.Src(), pkt.Eth.Dst())
	return verdict
}
