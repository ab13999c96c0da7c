package lb

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultRouteCacheSize = 1024
	DefaultRouteCacheTTL  = time.Second
)

type routeCacheKey struct {
	src     Addr4
	dst     Addr4
	ifindex int
}

// CachedLookuper remembers successful lookups for a short time so that
// established flows do not query the routing tables for every frame. Only
// successes are cached; failures are retried on the next packet.
type CachedLookuper struct {
	next  RouteLookuper
	cache *expirable.LRU[routeCacheKey, FibResult]
}

func NewCachedLookuper(next RouteLookuper, size int, ttl time.Duration) *CachedLookuper {
	if size <= 0 {
		size = DefaultRouteCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultRouteCacheTTL
	}
	return &CachedLookuper{
		next:  next,
		cache: expirable.NewLRU[routeCacheKey, FibResult](size, nil, ttl),
	}
}

func (c *CachedLookuper) Lookup(req FibLookup) FibResult {
	key := routeCacheKey{src: req.Src, dst: req.Dst, ifindex: req.Ifindex}
	if res, ok := c.cache.Get(key); ok {
		if res.MTU > 0 && int(req.TotLen) > res.MTU {
			return FibResult{Code: FibFragNeeded, Ifindex: res.Ifindex, MTU: res.MTU}
		}
		return res
	}
	res := c.next.Lookup(req)
	if res.Code == FibSuccess {
		c.cache.Add(key, res)
	}
	return res
}

// Purge drops every cached route.
func (c *CachedLookuper) Purge() {
	c.cache.Purge()
}
