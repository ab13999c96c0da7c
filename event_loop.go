package lb

import (
	"bytes"
	"context"
	"encoding/binary"

	log "github.com/sirupsen/logrus"
)

// ReleaseEventSize is the size of one record pushed by the socket release
// probe.
const ReleaseEventSize = 16

// releaseEvent mirrors struct release_event of the probe program. Numbers
// are in the host's byte order except RemotePort, which is copied from the
// socket in network order.
type releaseEvent struct {
	Type       uint32
	LocalAddr  [4]byte
	RemoteAddr [4]byte
	LocalPort  uint16
	RemotePort [2]byte
}

// DecodeReleaseEvent turns one raw probe record into a SocketInfo.
func DecodeReleaseEvent(data []byte) (SocketInfo, error) {
	var message releaseEvent
	if err := binary.Read(bytes.NewBuffer(data), binary.NativeEndian, &message); err != nil {
		return SocketInfo{}, err
	}
	return SocketInfo{
		Type: int(message.Type),
		Local: Endpoint{
			Addr: Addr4(message.LocalAddr),
			Port: message.LocalPort,
		},
		Remote: Endpoint{
			Addr: Addr4(message.RemoteAddr),
			Port: binary.BigEndian.Uint16(message.RemotePort[:]),
		},
	}, nil
}

// ReadReleaseEvents feeds raw probe records to notifier until ctx is done or
// channel is closed.
func ReadReleaseEvents(ctx context.Context, channel <-chan []byte, notifier *Notifier) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-channel:
			if !ok {
				return
			}
			sock, err := DecodeReleaseEvent(data)
			if err != nil {
				log.Debugf("failed to decode release event: %s", err)
				continue
			}
			log.Debugf("RELEASE-EVENT: type=%d local=%s remote=%s", sock.Type, sock.Local, sock.Remote)
			notifier.SocketReleased(sock)
		}
	}
}
