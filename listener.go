package lb

import (
	"bytes"
	"context"
	"errors"
	"net"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrReadTimeout is returned by a FrameConn when no frame arrived within its
// poll interval. Listen keeps reading after it.
var ErrReadTimeout = errors.New("frame read timeout")

// FrameConn reads frames from and writes frames to one interface.
type FrameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
}

// Listener drives an Engine with frames from some source until ctx is done.
type Listener interface {
	Listen(ctx context.Context, engine *Engine) error
}

type ListenerParams struct {
	Conn    FrameConn
	Ifindex int
	// LocalMAC is the interface's own address; frames sent from it are the
	// ones this process transmitted and are skipped.
	LocalMAC net.HardwareAddr
	Workers  int
}

// Listen reads frames with conf.Workers goroutines and transmits the ones the
// engine rewrites. It returns the first read error other than a timeout.
func Listen(ctx context.Context, engine *Engine, conf ListenerParams) error {
	workers := conf.Workers
	if workers <= 0 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for ctx.Err() == nil {
				buf, err := conf.Conn.ReadFrame()
				if errors.Is(err, ErrReadTimeout) {
					continue
				}
				if err != nil {
					log.Errorf("failed to read frame: %s", err)
					return err
				}
				processFrame(engine, conf, buf)
			}
			return nil
		})
	}
	return g.Wait()
}

func processFrame(engine *Engine, conf ListenerParams, buf []byte) Verdict {
	if len(conf.LocalMAC) == 6 && len(buf) >= EthHdrLen && bytes.Equal(EthHdr(buf[:EthHdrLen]).Src(), conf.LocalMAC) {
		return VerdictPass
	}

	frame := &Frame{Data: buf, IngressIfindex: conf.Ifindex}
	verdict := engine.Process(frame)
	if verdict != VerdictTransmit {
		return verdict
	}
	if err := conf.Conn.WriteFrame(frame.Data); err != nil {
		log.Debugf("failed to transmit %d bytes: %s", len(frame.Data), err)
	}
	return verdict
}
