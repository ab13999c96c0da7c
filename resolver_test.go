package lb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMACRewriterSuccess(t *testing.T) {
	routes := successRoutes()
	r := NewMACRewriter(routes)
	frame := &Frame{Data: vipFrame(t, 4444, true), IngressIfindex: 7}
	pkt, res := ParseFrame(frame.Data)
	require.Equal(t, ParseOK, res)

	verdict := r.Forward(frame, pkt, mustAddr(t, "10.0.0.9"), mustAddr(t, "10.0.0.2"))
	assert.Equal(t, VerdictTransmit, verdict)
	assert.Equal(t, backendMAC.String(), pkt.Eth.Dst().String())
	assert.Equal(t, lbMAC.String(), pkt.Eth.Src().String())
	// the IP header still names the VIP
	assert.Equal(t, "10.0.0.1", pkt.IP.Dst().String())

	require.Equal(t, 1, routes.calls())
	req := routes.reqs[0]
	assert.Equal(t, 7, req.Ifindex)
	assert.Equal(t, pkt.IP.TotalLen(), req.TotLen)
	assert.Equal(t, "10.0.0.9", req.Src.String())
	assert.Equal(t, "10.0.0.2", req.Dst.String())
}

func TestMACRewriterFailureLeavesFrame(t *testing.T) {
	for _, code := range []FibCode{FibBlackhole, FibNoNeighbor, FibFragNeeded} {
		routes := successRoutes()
		routes.result.Code = code
		r := NewMACRewriter(routes)

		data := vipFrame(t, 4444, true)
		orig := append([]byte(nil), data...)
		frame := &Frame{Data: data}
		pkt, _ := ParseFrame(data)

		r.Forward(frame, pkt, mustAddr(t, "10.0.0.9"), mustAddr(t, "10.0.0.2"))
		assert.Equal(t, orig, data, code.String())
	}
}

func TestFibCodeString(t *testing.T) {
	assert.Equal(t, "success", FibSuccess.String())
	assert.Equal(t, "no_neigh", FibNoNeighbor.String())
	assert.Equal(t, "fib(42)", FibCode(42).String())
}
