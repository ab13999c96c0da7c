package lb

import (
	"math/rand/v2"
	"strings"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Algorithm selects how a new connection is assigned to a backend.
type Algorithm int

const (
	// AlgRandom is also the fallback for unknown selectors.
	AlgRandom Algorithm = iota
	// AlgHash lets independent balancers agree on a backend without talking.
	AlgHash
	AlgRoundRobin
)

func (a Algorithm) String() string {
	switch a {
	case AlgHash:
		return "hash"
	case AlgRoundRobin:
		return "round_robin"
	default:
		return "random"
	}
}

// ParseAlgorithm maps a config value to an Algorithm. Unknown names give
// AlgRandom.
func ParseAlgorithm(s string) Algorithm {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hash", "n_hash":
		return AlgHash
	case "round_robin", "roundrobin", "rr":
		return AlgRoundRobin
	default:
		return AlgRandom
	}
}

// Strategy picks a backend for a connection that has no table entry yet.
type Strategy interface {
	Pick(key ConnKey) (Backend, bool)
	Algorithm() Algorithm
}

// NewStrategy returns the implementation for alg over pool.
func NewStrategy(alg Algorithm, pool *BackendPool) Strategy {
	switch alg {
	case AlgHash:
		return &HashStrategy{pool: pool}
	case AlgRoundRobin:
		return &RoundRobinStrategy{pool: pool}
	default:
		return &RandomStrategy{pool: pool, rand: rand.Uint32}
	}
}

// HashStrategy maps (addr<<16 | port) mod N onto the pool.
type HashStrategy struct {
	pool *BackendPool
}

// ConnHash is the value HashStrategy reduces modulo the pool size. The
// shift truncates to 32 bits.
func ConnHash(key ConnKey) uint32 {
	return key.ClientAddr.Uint32()<<16 | uint32(key.ClientPort)
}

func (s *HashStrategy) Pick(key ConnKey) (Backend, bool) {
	n := s.pool.Count()
	if n == 0 {
		return Backend{}, false
	}
	hash := ConnHash(key)
	log.Debugf("LB hash %d for %s", hash, key)
	return s.pool.Lookup(hash % n)
}

func (s *HashStrategy) Algorithm() Algorithm { return AlgHash }

// RoundRobinStrategy walks the pool with a shared cursor. Concurrent picks
// never see the same cursor value but the cursor wraps at 2^32, so the
// sequence restarts at index 0 when N does not divide 2^32.
type RoundRobinStrategy struct {
	pool   *BackendPool
	cursor atomic.Uint32
}

func (s *RoundRobinStrategy) Pick(key ConnKey) (Backend, bool) {
	n := s.pool.Count()
	if n == 0 {
		return Backend{}, false
	}
	idx := (s.cursor.Add(1) - 1) % n
	log.Debugf("LB rr_idx %d for %s", idx, key)
	return s.pool.Lookup(idx)
}

func (s *RoundRobinStrategy) Algorithm() Algorithm { return AlgRoundRobin }

// RandomStrategy picks a uniformly random slot.
type RandomStrategy struct {
	pool *BackendPool
	rand func() uint32
}

func (s *RandomStrategy) Pick(key ConnKey) (Backend, bool) {
	n := s.pool.Count()
	if n == 0 {
		return Backend{}, false
	}
	idx := s.rand() % n
	log.Debugf("LB rand_idx %d for %s", idx, key)
	return s.pool.Lookup(idx)
}

func (s *RandomStrategy) Algorithm() Algorithm { return AlgRandom }
