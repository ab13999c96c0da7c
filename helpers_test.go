package lb

import (
	"net"
	"sync"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

var (
	clientMAC  = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	lbMAC      = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	backendMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x03}
)

type tcpFrameOpts struct {
	src, dst     string
	sport, dport uint16
	syn          bool
	payload      int
}

func tcpFrame(t *testing.T, o tcpFrameOpts) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       clientMAC,
		DstMAC:       lbMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.ParseIP(o.src).To4(),
		DstIP:    net.ParseIP(o.dst).To4(),
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(o.sport),
		DstPort: layers.TCPPort(o.dport),
		SYN:     o.syn,
		ACK:     !o.syn,
		Window:  1024,
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(make([]byte, o.payload))))
	return append([]byte(nil), buf.Bytes()...)
}

func udpFrame(t *testing.T, src, dst string) []byte {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: clientMAC, DstMAC: lbMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload([]byte("query"))))
	return append([]byte(nil), buf.Bytes()...)
}

func mustAddr(t *testing.T, s string) Addr4 {
	t.Helper()
	a, err := ParseAddr4(s)
	require.NoError(t, err)
	return a
}

func mustPool(t *testing.T, addrs ...string) *BackendPool {
	t.Helper()
	backends := make([]Backend, 0, len(addrs))
	for _, a := range addrs {
		backends = append(backends, Backend{Addr: mustAddr(t, a), Port: 80})
	}
	pool, err := NewBackendPoolFrom(backends)
	require.NoError(t, err)
	return pool
}

// fakeRoutes answers every lookup with result and records the requests.
type fakeRoutes struct {
	mu     sync.Mutex
	result FibResult
	reqs   []FibLookup
}

func (f *fakeRoutes) Lookup(req FibLookup) FibResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.result
}

func (f *fakeRoutes) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func successRoutes() *fakeRoutes {
	return &fakeRoutes{result: FibResult{
		Code:    FibSuccess,
		SrcMAC:  lbMAC,
		DstMAC:  backendMAC,
		Ifindex: 2,
		MTU:     1500,
	}}
}
