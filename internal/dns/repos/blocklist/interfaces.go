package blocklist

import "github.com/haukened/rr-recursor/internal/dns/domain"

// BloomFilter is the minimal interface the repository needs from a Bloom filter.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds filters sized for a dataset of the given capacity.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// DecisionCache caches block decisions by canonical name with basic metrics.
type DecisionCache interface {
	Get(name string) (domain.BlockDecision, bool)
	Put(name string, d domain.BlockDecision)
	Len() int
	Purge()
	Stats() (hits, misses, evictions uint64)
}

// StoreStats captures counts and metadata of the persistent index.
type StoreStats struct {
	ExactCount  uint64
	SuffixCount uint64
	Version     uint64
	UpdatedUnix int64 // seconds since epoch
}

// Store is the authoritative rule index.
//
// RebuildAll replaces every rule in one transaction.
// GetFirstMatch returns the most specific rule matching a canonical name:
// an exact rule wins, then suffix rules from the longest anchor to the shortest.
type Store interface {
	RebuildAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error
	GetFirstMatch(name string) (domain.BlockRule, bool, error)
	Stats() StoreStats
	Close() error
}

// RepoStats exposes repository-level counters and the underlying store stats.
type RepoStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Store     StoreStats
}

// Repository is the composition layer that wires cache → bloom → store.
// Decide never fails: lookup errors resolve to an allow decision.
type Repository interface {
	Decide(name string) domain.BlockDecision
	UpdateAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error
	Stats() RepoStats
}
