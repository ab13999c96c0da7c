package lb

import (
	"encoding/binary"
	"net"
)

const (
	EthHdrLen     = 14
	IPv4MinHdrLen = 20
	TCPMinHdrLen  = 20

	EtherTypeIPv4 = 0x0800
	IPProtoTCP    = 6
)

// ParseResult tells why ParseFrame stopped.
type ParseResult int

const (
	ParseOK ParseResult = iota
	ParseTruncated
	ParseNotIPv4
	ParseNotTCP
)

func (r ParseResult) String() string {
	switch r {
	case ParseOK:
		return "ok"
	case ParseTruncated:
		return "truncated"
	case ParseNotIPv4:
		return "not ipv4"
	case ParseNotTCP:
		return "not tcp"
	}
	return "unknown"
}

// EthHdr is a view of the ethernet header inside a frame.
type EthHdr []byte

func (h EthHdr) Dst() net.HardwareAddr { return net.HardwareAddr(h[0:6]) }
func (h EthHdr) Src() net.HardwareAddr { return net.HardwareAddr(h[6:12]) }
func (h EthHdr) EtherType() uint16 { return binary.BigEndian.Uint16(h[12:14]) }

// SetDst overwrites the destination MAC in place.
func (h EthHdr) SetDst(mac net.HardwareAddr) { copy(h[0:6], mac) }

// SetSrc overwrites the source MAC in place.
func (h EthHdr) SetSrc(mac net.HardwareAddr) { copy(h[6:12], mac) }

// IPv4Hdr is a view of the IPv4 header, options included.
type IPv4Hdr []byte

func (h IPv4Hdr) IHL() int { return int(h[0]&0x0f) << 2 }
func (h IPv4Hdr) TOS() uint8 { return h[1] }
func (h IPv4Hdr) TotalLen() uint16 { return binary.BigEndian.Uint16(h[2:4]) }
func (h IPv4Hdr) Protocol() uint8 { return h[9] }
func (h IPv4Hdr) Src() Addr4 { return Addr4(h[12:16]) }
func (h IPv4Hdr) Dst() Addr4 { return Addr4(h[16:20]) }
func (h IPv4Hdr) Version() uint8 { return h[0] >> 4 }

// TCPLen is the length of the TCP segment (header and payload) claimed by
// the IP header. It is negative when the total length is smaller than the
// IP header itself.
func (h IPv4Hdr) TCPLen() int {
	return int(h.TotalLen()) - h.IHL()
}

// TCPHdr is a view of the fixed part of the TCP header.
type TCPHdr []byte

func (h TCPHdr) SrcPort() uint16 { return binary.BigEndian.Uint16(h[0:2]) }
func (h TCPHdr) DstPort() uint16 { return binary.BigEndian.Uint16(h[2:4]) }
func (h TCPHdr) Flags() uint8 { return h[13] }
func (h TCPHdr) SYN() bool { return h[13]&0x02 != 0 }

// Packet holds the header views of a parsed frame. Views alias the frame.
type Packet struct {
	Eth EthHdr
	IP  IPv4Hdr
	TCP TCPHdr
	Len int
}

// ParseFrame checks and slices out the ethernet, IPv4 and TCP headers. Every
// range is checked against len(data) before it is read; the frame is never
// modified.
func ParseFrame(data []byte) (Packet, ParseResult) {
	pkt := Packet{Len: len(data)}

	if len(data) < EthHdrLen {
		return pkt, ParseTruncated
	}
	pkt.Eth = EthHdr(data[:EthHdrLen])
	if pkt.Eth.EtherType() != EtherTypeIPv4 {
		return pkt, ParseNotIPv4
	}

	if len(data) < EthHdrLen+IPv4MinHdrLen {
		return pkt, ParseTruncated
	}
	ihl := int(data[EthHdrLen]&0x0f) << 2
	if ihl < IPv4MinHdrLen || len(data) < EthHdrLen+ihl {
		return pkt, ParseTruncated
	}
	pkt.IP = IPv4Hdr(data[EthHdrLen : EthHdrLen+ihl])
	if pkt.IP.Protocol() != IPProtoTCP {
		return pkt, ParseNotTCP
	}

	l4 := EthHdrLen + ihl
	if len(data) < l4+TCPMinHdrLen {
		return pkt, ParseTruncated
	}
	pkt.TCP = TCPHdr(data[l4 : l4+TCPMinHdrLen])

	return pkt, ParseOK
}
