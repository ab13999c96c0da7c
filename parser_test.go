package lb

import (
	"testing"
)

func TestParseFrame(t *testing.T) {
	frame := tcpFrame(t, tcpFrameOpts{src: "192.168.1.5", dst: "10.0.0.1", sport: 4444, dport: 80, syn: true})

	pkt, res := ParseFrame(frame)
	if res != ParseOK {
		t.Fatalf("parse failed: %s", res)
	}
	if pkt.Eth.Src().String() != clientMAC.String() || pkt.Eth.Dst().String() != lbMAC.String() {
		t.Errorf("wrong macs: %s -> %s", pkt.Eth.Src(), pkt.Eth.Dst())
	}
	if pkt.IP.Src().String() != "192.168.1.5" || pkt.IP.Dst().String() != "10.0.0.1" {
		t.Errorf("wrong addresses: %s -> %s", pkt.IP.Src(), pkt.IP.Dst())
	}
	if pkt.TCP.SrcPort() != 4444 || pkt.TCP.DstPort() != 80 {
		t.Errorf("wrong ports: %d -> %d", pkt.TCP.SrcPort(), pkt.TCP.DstPort())
	}
	if !pkt.TCP.SYN() {
		t.Errorf("syn flag not set")
	}
	if pkt.IP.TCPLen() != TCPMinHdrLen {
		t.Errorf("tcp len: %d expected: %d", pkt.IP.TCPLen(), TCPMinHdrLen)
	}
}

func TestParseFrameTruncated(t *testing.T) {
	frame := tcpFrame(t, tcpFrameOpts{src: "192.168.1.5", dst: "10.0.0.1", sport: 4444, dport: 80})

	for _, size := range []int{0, 1, EthHdrLen - 1, EthHdrLen, EthHdrLen + IPv4MinHdrLen - 1,
		EthHdrLen + IPv4MinHdrLen, 40, EthHdrLen + IPv4MinHdrLen + TCPMinHdrLen - 1} {
		_, res := ParseFrame(frame[:size])
		if res != ParseTruncated {
			t.Errorf("size %d: got %s expected truncated", size, res)
		}
	}
}

func TestParseFrameNotIPv4(t *testing.T) {
	frame := tcpFrame(t, tcpFrameOpts{src: "192.168.1.5", dst: "10.0.0.1", sport: 4444, dport: 80})
	frame[12], frame[13] = 0x08, 0x06 // ARP

	if _, res := ParseFrame(frame); res != ParseNotIPv4 {
		t.Errorf("got %s expected not ipv4", res)
	}
}

func TestParseFrameNotTCP(t *testing.T) {
	if _, res := ParseFrame(udpFrame(t, "192.168.1.5", "10.0.0.1")); res != ParseNotTCP {
		t.Errorf("got %s expected not tcp", res)
	}
}

func TestParseFrameBadIHL(t *testing.T) {
	frame := tcpFrame(t, tcpFrameOpts{src: "192.168.1.5", dst: "10.0.0.1", sport: 4444, dport: 80})

	short := append([]byte(nil), frame...)
	short[EthHdrLen] = 0x44 // ihl 16 bytes
	if _, res := ParseFrame(short); res != ParseTruncated {
		t.Errorf("ihl 4: got %s expected truncated", res)
	}

	long := append([]byte(nil), frame...)
	long[EthHdrLen] = 0x4f // ihl 60 bytes, past the end of a minimal frame
	if _, res := ParseFrame(long[:EthHdrLen+40]); res != ParseTruncated {
		t.Errorf("ihl 15: got %s expected truncated", res)
	}
}

func TestParseFrameIPOptions(t *testing.T) {
	frame := tcpFrame(t, tcpFrameOpts{src: "192.168.1.5", dst: "10.0.0.1", sport: 4444, dport: 80})

	// insert 4 bytes of NOP options between the IP and TCP headers
	withOpts := make([]byte, 0, len(frame)+4)
	withOpts = append(withOpts, frame[:EthHdrLen+IPv4MinHdrLen]...)
	withOpts = append(withOpts, 1, 1, 1, 1)
	withOpts = append(withOpts, frame[EthHdrLen+IPv4MinHdrLen:]...)
	withOpts[EthHdrLen] = 0x46

	pkt, res := ParseFrame(withOpts)
	if res != ParseOK {
		t.Fatalf("parse failed: %s", res)
	}
	if pkt.IP.IHL() != 24 {
		t.Errorf("ihl: %d expected 24", pkt.IP.IHL())
	}
	if pkt.TCP.SrcPort() != 4444 || pkt.TCP.DstPort() != 80 {
		t.Errorf("wrong ports: %d -> %d", pkt.TCP.SrcPort(), pkt.TCP.DstPort())
	}
}
