// Package capture runs the balancer engine on frames read from an AF_PACKET
// socket. The kernel still receives its own copy of every frame, so PASS and
// DROP leave the frame alone and TRANSMIT writes the rewritten copy back out
// of the same interface.
package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket/afpacket"
	log "github.com/sirupsen/logrus"

	lb "slb"
)

const pollTimeout = 100 * time.Millisecond

// tpacketConn adapts a TPacket to lb.FrameConn.
type tpacketConn struct {
	handle *afpacket.TPacket
}

func (c *tpacketConn) ReadFrame() ([]byte, error) {
	data, _, err := c.handle.ReadPacketData()
	if errors.Is(err, afpacket.ErrTimeout) {
		return nil, lb.ErrReadTimeout
	}
	return data, err
}

func (c *tpacketConn) WriteFrame(frame []byte) error {
	return c.handle.WritePacketData(frame)
}

// Listener implements lb.Listener on one interface.
type Listener struct {
	Interface string
	Workers   int
}

func NewListener(iface string, workers int) *Listener {
	return &Listener{Interface: iface, Workers: workers}
}

func (l *Listener) Listen(ctx context.Context, engine *lb.Engine) error {
	iface, err := net.InterfaceByName(l.Interface)
	if err != nil {
		return fmt.Errorf("failed to verify interface:%s, error: %w", l.Interface, err)
	}

	handle, err := afpacket.NewTPacket(
		afpacket.OptInterface(iface.Name),
		afpacket.OptPollTimeout(pollTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to open af_packet socket on %s: %w", iface.Name, err)
	}
	defer handle.Close()

	log.Infof("listening on %s (ifindex %d, %s)", iface.Name, iface.Index, iface.HardwareAddr)
	return lb.Listen(ctx, engine, lb.ListenerParams{
		Conn:     &tpacketConn{handle: handle},
		Ifindex:  iface.Index,
		LocalMAC: iface.HardwareAddr,
		Workers:  l.Workers,
	})
}
