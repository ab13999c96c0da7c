package lb

import (
	"encoding/binary"
	"errors"
	"fmt"

	byteorder "github.com/moolen/udplb/byteorder"
)

// EvictionEventSize is the size of an encoded EvictionEvent.
const EvictionEventSize = 8

var ErrShortEvent = errors.New("eviction event too short")

// EvictionEvent asks a consumer to forget the connection of one client.
type EvictionEvent struct {
	Addr Addr4
	Port uint16
}

func (ev EvictionEvent) Key() ConnKey {
	return ConnKey{ClientAddr: ev.Addr, ClientPort: ev.Port}
}

func (ev EvictionEvent) String() string {
	return fmt.Sprintf("evict %s", ev.Key())
}

// byteOrderedEvent is the wire layout of an EvictionEvent: address and port
// in network order followed by two bytes of padding.
type byteOrderedEvent struct {
	addr [4]byte
	port [2]byte
	pad  [2]byte
}

func (ev EvictionEvent) byteOrdered() byteOrderedEvent {
	return byteOrderedEvent{
		addr: [4]byte(ev.Addr),
		port: byteorder.Htons(ev.Port),
	}
}

// MarshalBinary encodes the event in its fixed wire layout.
func (ev EvictionEvent) MarshalBinary() ([]byte, error) {
	values := ev.byteOrdered()
	buf := make([]byte, EvictionEventSize)
	copy(buf[0:4], values.addr[:])
	copy(buf[4:6], values.port[:])
	copy(buf[6:8], values.pad[:])
	return buf, nil
}

// UnmarshalBinary decodes an event produced by MarshalBinary.
func (ev *EvictionEvent) UnmarshalBinary(data []byte) error {
	if len(data) < EvictionEventSize {
		return fmt.Errorf("%w: %d bytes", ErrShortEvent, len(data))
	}
	copy(ev.Addr[:], data[0:4])
	ev.Port = binary.BigEndian.Uint16(data[4:6])
	return nil
}
