package lb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

const ipv4ConfDir = "/proc/sys/net/ipv4/conf"

// usableNeighState are the neighbour states whose hardware address can be
// used without waiting for resolution.
const usableNeighState = netlink.NUD_REACHABLE | netlink.NUD_STALE | netlink.NUD_DELAY |
	netlink.NUD_PROBE | netlink.NUD_PERMANENT | netlink.NUD_NOARP

// NetlinkRouteLookuper resolves next hops from the host's routing and
// neighbour tables over netlink.
type NetlinkRouteLookuper struct {
	confDir    string
	forwarding sync.Map // ifindex -> bool
}

func NewNetlinkRouteLookuper() *NetlinkRouteLookuper {
	return &NetlinkRouteLookuper{confDir: ipv4ConfDir}
}

func (n *NetlinkRouteLookuper) Lookup(req FibLookup) FibResult {
	if req.Ifindex > 0 && !n.forwardingEnabled(req.Ifindex) {
		return FibResult{Code: FibForwardingDisabled}
	}

	routes, err := netlink.RouteGet(req.Dst.IP())
	if err != nil {
		code := classifyRouteErr(err)
		log.Debugf("route get %s failed: %s (%s)", req.Dst, err, code)
		return FibResult{Code: code}
	}
	if len(routes) == 0 {
		return FibResult{Code: FibNotForwarded}
	}
	route := routes[0]

	switch route.Type {
	case unix.RTN_BLACKHOLE:
		return FibResult{Code: FibBlackhole}
	case unix.RTN_UNREACHABLE:
		return FibResult{Code: FibUnreachable}
	case unix.RTN_PROHIBIT:
		return FibResult{Code: FibProhibit}
	case unix.RTN_UNICAST, unix.RTN_UNSPEC:
	default:
		// local, broadcast, multicast, nat ...
		return FibResult{Code: FibNotForwarded}
	}
	if route.Encap != nil {
		return FibResult{Code: FibUnsupportedLwt}
	}

	link, err := netlink.LinkByIndex(route.LinkIndex)
	if err != nil {
		log.Debugf("failed to get link %d: %s", route.LinkIndex, err)
		return FibResult{Code: FibNotForwarded}
	}
	attrs := link.Attrs()
	if attrs.MTU > 0 && int(req.TotLen) > attrs.MTU {
		return FibResult{Code: FibFragNeeded, Ifindex: route.LinkIndex, MTU: attrs.MTU}
	}

	nextHop := route.Gw
	if nextHop == nil {
		nextHop = req.Dst.IP()
	}
	neighs, err := netlink.NeighList(route.LinkIndex, netlink.FAMILY_V4)
	if err != nil {
		log.Debugf("failed to list neighbours on %s: %s", attrs.Name, err)
		return FibResult{Code: FibNoNeighbor}
	}
	for _, neigh := range neighs {
		if !neigh.IP.Equal(nextHop) || neigh.State&usableNeighState == 0 || len(neigh.HardwareAddr) != 6 {
			continue
		}
		return FibResult{
			Code:    FibSuccess,
			SrcMAC:  attrs.HardwareAddr,
			DstMAC:  neigh.HardwareAddr,
			Ifindex: route.LinkIndex,
			MTU:     attrs.MTU,
		}
	}
	return FibResult{Code: FibNoNeighbor}
}

// forwardingEnabled reads net.ipv4.conf.<ifname>.forwarding once per link.
func (n *NetlinkRouteLookuper) forwardingEnabled(ifindex int) bool {
	if v, ok := n.forwarding.Load(ifindex); ok {
		return v.(bool)
	}
	link, err := netlink.LinkByIndex(ifindex)
	if err != nil {
		return true
	}
	raw, err := os.ReadFile(filepath.Join(n.confDir, link.Attrs().Name, "forwarding"))
	if err != nil {
		log.Warnf("failed to read forwarding sysctl for %s: %s", link.Attrs().Name, err)
		return true
	}
	enabled := strings.TrimSpace(string(raw)) != "0"
	n.forwarding.Store(ifindex, enabled)
	if !enabled {
		log.Warnf("forwarding is disabled on %s, balanced traffic will be passed", link.Attrs().Name)
	}
	return enabled
}

func classifyRouteErr(err error) FibCode {
	switch {
	case errors.Is(err, unix.ENETUNREACH), errors.Is(err, unix.EHOSTUNREACH):
		return FibUnreachable
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return FibProhibit
	case errors.Is(err, unix.EINVAL):
		return FibBlackhole
	}
	return FibNotForwarded
}

// String names the lookuper in logs.
func (n *NetlinkRouteLookuper) String() string {
	return fmt.Sprintf("netlink(%s)", n.confDir)
}
