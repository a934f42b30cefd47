// Package blocklist decides whether a queried name is blocked.
//
// Lookups run through three layers: a Bloom filter rejects most names
// without touching storage, an LRU keeps recent decisions, and the bbolt
// store is authoritative. Adapters for each layer live in sub-packages.
package blocklist

import (
	"strings"
	"sync"

	"github.com/haukened/rr-recursor/internal/dns/common/log"
	"github.com/haukened/rr-recursor/internal/dns/common/utils"
	"github.com/haukened/rr-recursor/internal/dns/domain"
)

// DefaultFPRate is the Bloom false-positive target used when none is given.
const DefaultFPRate = 0.01

// repository implements Repository. It applies a bloom → cache → store
// pipeline on reads and swaps snapshots atomically on writes.
type repository struct {
	mu      sync.RWMutex
	store   Store
	cache   DecisionCache
	bloom   BloomFilter
	factory BloomFactory
	fpRate  float64
	logger  log.Logger
}

// NewRepository constructs a Repository. fpRate is the target false-positive
// rate for the Bloom filter built on every UpdateAll; values outside (0,1)
// fall back to DefaultFPRate.
func NewRepository(store Store, cache DecisionCache, factory BloomFactory, fpRate float64, logger log.Logger) Repository {
	if !(fpRate > 0 && fpRate < 1) {
		fpRate = DefaultFPRate
	}
	return &repository{
		store:   store,
		cache:   cache,
		factory: factory,
		fpRate:  fpRate,
		logger:  log.OrNoop(logger),
	}
}

// Decide returns the block decision for name. Store errors allow the query
// and are not cached.
func (r *repository) Decide(name string) domain.BlockDecision {
	cn := utils.CanonicalDNSName(name)
	if cn == "" {
		return domain.AllowDecision()
	}
	if !r.checkBloom(cn) {
		return domain.AllowDecision()
	}
	if d, ok := r.checkCache(cn); ok {
		return d
	}
	dec, err := r.checkStore(cn)
	if err != nil {
		r.logger.Warn(map[string]any{"name": cn, "error": err.Error()}, "Blocklist store lookup failed")
		return domain.AllowDecision()
	}
	r.updateCache(cn, dec)
	return dec
}

// UpdateAll rebuilds the store, then swaps in a fresh Bloom filter and purges
// the decision cache under one lock.
func (r *repository) UpdateAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error {
	if err := r.store.RebuildAll(rules, version, updatedUnix); err != nil {
		return err
	}

	bf := r.factory.New(uint64(len(rules)), r.fpRate)
	for _, ru := range rules {
		switch ru.Kind {
		case domain.BlockRuleExact:
			bf.Add([]byte(ru.Name))
		case domain.BlockRuleSuffix:
			bf.Add([]byte(reverseString(ru.Name)))
		}
	}

	r.mu.Lock()
	r.bloom = bf
	r.cache.Purge()
	r.mu.Unlock()

	st := r.store.Stats()
	r.logger.Info(map[string]any{
		"version": version,
		"exact":   st.ExactCount,
		"suffix":  st.SuffixCount,
	}, "Blocklist updated")
	return nil
}

// Stats reports cache counters together with the store stats.
func (r *repository) Stats() RepoStats {
	hits, misses, evictions := r.cache.Stats()
	return RepoStats{
		Hits:      hits,
		Misses:    misses,
		Evictions: evictions,
		Store:     r.store.Stats(),
	}
}

// reverseString reverses s byte-wise. Suffix anchors are keyed reversed in
// both the Bloom filter and the store.
func reverseString(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// checkBloom reports whether the store must be consulted. Without a loaded
// filter every name is a candidate.
func (r *repository) checkBloom(cn string) bool {
	r.mu.RLock()
	bf := r.bloom
	r.mu.RUnlock()
	if bf == nil {
		return true
	}
	if bf.MightContain([]byte(cn)) {
		return true
	}
	for a := cn; a != ""; {
		if bf.MightContain([]byte(reverseString(a))) {
			return true
		}
		i := strings.IndexByte(a, '.')
		if i < 0 {
			break
		}
		a = a[i+1:]
	}
	return false
}

func (r *repository) checkCache(cn string) (domain.BlockDecision, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache.Get(cn)
}

// checkStore materializes a decision from the store. Errors are not cached.
func (r *repository) checkStore(cn string) (domain.BlockDecision, error) {
	rule, ok, err := r.store.GetFirstMatch(cn)
	if err != nil {
		return domain.BlockDecision{}, err
	}
	if !ok {
		return domain.AllowDecision(), nil
	}
	return domain.BlockDecision{Blocked: true, MatchedRule: rule.Name, Source: rule.Source, Kind: rule.Kind}, nil
}

func (r *repository) updateCache(cn string, dec domain.BlockDecision) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.cache.Put(cn, dec)
}
