// Package bloom adapts bits-and-blooms filters to the blocklist repository.
package bloom

import (
	"math"

	"github.com/haukened/rr-recursor/internal/dns/repos/blocklist"
)

// factory implements blocklist.BloomFactory.
type factory struct{}

// NewFactory returns a BloomFactory that sizes filters from capacity and FP rate.
func NewFactory() blocklist.BloomFactory { return factory{} }

// New constructs a filter sized for capacity keys at the target false-positive rate.
func (factory) New(capacity uint64, fpRate float64) blocklist.BloomFilter {
	m, k := Size(capacity, fpRate)
	return newFilter(m, k)
}

// Size computes the bit count m and hash count k for n keys at rate p:
//
//	m = -(n * ln p) / (ln 2)^2
//	k = (m / n) * ln 2
//
// n = 0 is treated as 1 and p outside (0,1) as 0.01. Both results are at least 1.
func Size(n uint64, p float64) (uint64, uint8) {
	if n == 0 {
		n = 1
	}
	if !(p > 0 && p < 1) {
		p = 0.01
	}
	m := uint64(math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	if m == 0 {
		m = 1
	}
	k := uint8(math.Max(1, math.Round(float64(m)/float64(n)*math.Ln2)))
	return m, k
}
