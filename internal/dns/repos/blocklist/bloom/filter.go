package bloom

import (
	"sync"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"
)

// Filter is a blocklist.BloomFilter safe for concurrent use.
type Filter struct {
	mu    sync.RWMutex
	bits  *bitsbloom.BloomFilter
	added uint64
}

func newFilter(m uint64, k uint8) *Filter {
	return &Filter{bits: bitsbloom.New(uint(m), uint(k))}
}

// Add inserts key. Adding the same key twice is harmless.
func (f *Filter) Add(key []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bits.Add(key)
	f.added++
}

// MightContain reports false only if key was never added.
func (f *Filter) MightContain(key []byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bits.Test(key)
}

// Bits is the size of the bit array.
func (f *Filter) Bits() uint { return f.bits.Cap() }

// Hashes is the number of hash functions applied per key.
func (f *Filter) Hashes() uint { return f.bits.K() }

// Added counts calls to Add, duplicates included.
func (f *Filter) Added() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.added
}
