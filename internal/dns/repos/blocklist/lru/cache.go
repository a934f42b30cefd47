// Package lru provides the blocklist decision cache on top of hashicorp/golang-lru.
package lru

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-recursor/internal/dns/domain"
	"github.com/haukened/rr-recursor/internal/dns/repos/blocklist"
)

// decisionCache counts hits, misses and evictions around an LRU.
type decisionCache struct {
	lru       *lru.Cache[string, domain.BlockDecision]
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// disabledCache always misses. It is returned for size <= 0.
type disabledCache struct{}

// New creates a DecisionCache holding up to size decisions.
func New(size int) (blocklist.DecisionCache, error) {
	if size <= 0 {
		return disabledCache{}, nil
	}
	dc := &decisionCache{}
	// Purge reports through the eviction callback as well.
	cache, err := lru.NewWithEvict(size, func(string, domain.BlockDecision) {
		dc.evictions.Add(1)
	})
	if err != nil {
		return nil, fmt.Errorf("create decision cache: %w", err)
	}
	dc.lru = cache
	return dc, nil
}

func (c *decisionCache) Get(name string) (domain.BlockDecision, bool) {
	if v, ok := c.lru.Get(name); ok {
		c.hits.Add(1)
		return v, true
	}
	c.misses.Add(1)
	return domain.BlockDecision{}, false
}

func (c *decisionCache) Put(name string, d domain.BlockDecision) { c.lru.Add(name, d) }

func (c *decisionCache) Len() int { return c.lru.Len() }

func (c *decisionCache) Purge() { c.lru.Purge() }

func (c *decisionCache) Stats() (hits, misses, evictions uint64) {
	return c.hits.Load(), c.misses.Load(), c.evictions.Load()
}

func (disabledCache) Get(string) (domain.BlockDecision, bool) { return domain.BlockDecision{}, false }
func (disabledCache) Put(string, domain.BlockDecision)        {}
func (disabledCache) Len() int                                { return 0 }
func (disabledCache) Purge()                                  {}
func (disabledCache) Stats() (uint64, uint64, uint64)         { return 0, 0, 0 }

var (
	_ blocklist.DecisionCache = (*decisionCache)(nil)
	_ blocklist.DecisionCache = disabledCache{}
)
