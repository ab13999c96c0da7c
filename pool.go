package lb

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// MaxBackends is the capacity of a BackendPool.
const MaxBackends = 256

var (
	ErrInvalidBackend = errors.New("invalid backend")
	ErrPoolIndex      = errors.New("backend index out of range")
)

// BackendPool is a fixed array of backends indexed 0..Count()-1. It is filled
// before traffic starts and only read afterwards.
type BackendPool struct {
	slots [MaxBackends]*Backend
	count uint32
}

// NewBackendPool creates a pool that serves the first count slots.
func NewBackendPool(count uint32) (*BackendPool, error) {
	if count > MaxBackends {
		return nil, fmt.Errorf("%w: count %d > %d", ErrPoolIndex, count, MaxBackends)
	}
	return &BackendPool{count: count}, nil
}

// NewBackendPoolFrom creates a pool holding backends at indexes 0..len-1.
func NewBackendPoolFrom(backends []Backend) (*BackendPool, error) {
	pool, err := NewBackendPool(uint32(len(backends)))
	if err != nil {
		return nil, err
	}
	for i, b := range backends {
		if err := pool.Set(uint32(i), b); err != nil {
			return nil, err
		}
	}
	return pool, nil
}

// Set stores b in slot idx.
func (p *BackendPool) Set(idx uint32, b Backend) error {
	if idx >= MaxBackends {
		return fmt.Errorf("%w: %d", ErrPoolIndex, idx)
	}
	if b.Addr.IsZero() {
		return fmt.Errorf("%w: slot %d has no address", ErrInvalidBackend, idx)
	}
	p.slots[idx] = &b
	return nil
}

// Lookup returns the backend in slot idx, or false if idx is past the
// configured count or the slot was never filled.
func (p *BackendPool) Lookup(idx uint32) (Backend, bool) {
	if idx >= p.count || idx >= MaxBackends {
		return Backend{}, false
	}
	b := p.slots[idx]
	if b == nil {
		return Backend{}, false
	}
	return *b, true
}

func (p *BackendPool) Count() uint32 {
	return p.count
}

// VipTable holds the single service address. An empty table disables
// balancing.
type VipTable struct {
	vip atomic.Pointer[Vip]
}

func (t *VipTable) Set(v Vip) {
	t.vip.Store(&v)
}

func (t *VipTable) Clear() {
	t.vip.Store(nil)
}

func (t *VipTable) Get() (Vip, bool) {
	v := t.vip.Load()
	if v == nil {
		return Vip{}, false
	}
	return *v, true
}
