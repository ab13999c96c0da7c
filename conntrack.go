package lb

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
)

// DefaultMaxConnections bounds the connection table when no size is configured.
const DefaultMaxConnections = 65536

// ConnTable pins client connections to backends. It is a bounded LRU: when
// full, inserting a new key forgets the least recently used one. All methods
// are safe for concurrent use.
type ConnTable struct {
	conns    *lru.Cache[ConnKey, Backend]
	capacity int
}

func NewConnTable(capacity int) (*ConnTable, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("invalid connection table size: %d", capacity)
	}
	conns, err := lru.New[ConnKey, Backend](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection table: %w", err)
	}
	return &ConnTable{conns: conns, capacity: capacity}, nil
}

// Lookup returns the backend pinned to key and marks the entry as used.
func (t *ConnTable) Lookup(key ConnKey) (Backend, bool) {
	return t.conns.Get(key)
}

// Insert pins key to backend, replacing any previous entry.
func (t *ConnTable) Insert(key ConnKey, backend Backend) {
	if t.conns.Add(key, backend) {
		RecordConnEviction()
		log.Debugf("conn table full (%d), evicted oldest entry for %s", t.capacity, key)
	}
}

// Remove forgets key. It reports whether an entry was present.
func (t *ConnTable) Remove(key ConnKey) bool {
	return t.conns.Remove(key)
}

func (t *ConnTable) Len() int {
	return t.conns.Len()
}

func (t *ConnTable) Capacity() int {
	return t.capacity
}

// ConnEntry is one row of a table dump.
type ConnEntry struct {
	Key     ConnKey
	Backend Backend
}

// Entries returns the current entries, least recently used first, without
// touching their recency.
func (t *ConnTable) Entries() []ConnEntry {
	keys := t.conns.Keys()
	entries := make([]ConnEntry, 0, len(keys))
	for _, k := range keys {
		if b, ok := t.conns.Peek(k); ok {
			entries = append(entries, ConnEntry{Key: k, Backend: b})
		}
	}
	return entries
}
