package lb

import (
	"encoding/binary"
	"fmt"
	"net"

	byteorder "github.com/moolen/udplb/byteorder"
)

// Addr4 is an IPv4 address in network byte order, the way it sits in a frame.
type Addr4 [4]byte

// ParseAddr4 parses a dotted quad.
func ParseAddr4(s string) (Addr4, error) {
	ip := net.ParseIP(s)
	if ip == nil || ip.To4() == nil {
		return Addr4{}, fmt.Errorf("invalid ipv4 address: %q", s)
	}
	return Addr4(byteorder.HtonIP(ip.To4())), nil
}

// Uint32 returns the numeric value of the address (192.168.1.5 -> 0xc0a80105).
func (a Addr4) Uint32() uint32 {
	return binary.BigEndian.Uint32(a[:])
}

func (a Addr4) IP() net.IP {
	return net.IPv4(a[0], a[1], a[2], a[3])
}

func (a Addr4) IsZero() bool {
	return a == Addr4{}
}

func (a Addr4) String() string {
	return a.IP().String()
}

// Endpoint is an address/port pair. Port is in host byte order.
type Endpoint struct {
	Addr Addr4
	Port uint16
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Addr, e.Port)
}

// Backend is one real server. Its link-layer address is resolved per packet.
type Backend Endpoint

func (b Backend) String() string {
	return Endpoint(b).String()
}

// Vip is the virtual service address clients connect to.
type Vip Endpoint

func (v Vip) String() string {
	return Endpoint(v).String()
}

// ConnKey identifies a client connection: the client address and port.
type ConnKey struct {
	ClientAddr Addr4
	ClientPort uint16
}

func (k ConnKey) String() string {
	return fmt.Sprintf("%s:%d", k.ClientAddr, k.ClientPort)
}

// Verdict is the outcome of processing one frame.
type Verdict int

const (
	// VerdictPass hands the frame, unmodified, to the normal stack.
	VerdictPass Verdict = iota
	// VerdictDrop discards the frame.
	VerdictDrop
	// VerdictTransmit re-emits the (rewritten) frame on the ingress interface.
	VerdictTransmit
)

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "pass"
	case VerdictDrop:
		return "drop"
	case VerdictTransmit:
		return "tx"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Frame is a received link-layer frame. Data may be rewritten in place.
type Frame struct {
	Data           []byte
	IngressIfindex int
}
