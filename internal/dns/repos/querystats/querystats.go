// Package querystats keeps running counters about served queries: totals per
// result code and query type, cumulative latency, and the busiest apex
// domains in a bounded LRU table.
package querystats

import (
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-recursor/internal/dns/common/log"
	"github.com/haukened/rr-recursor/internal/dns/common/utils"
	"github.com/haukened/rr-recursor/internal/dns/domain"
)

// DefaultTopSize is the number of apex domains tracked when none is configured.
const DefaultTopSize = 100

// DomainCount is a per-apex query counter.
type DomainCount struct {
	Domain string
	Count  uint64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Total      uint64
	ByRcode    map[string]uint64
	ByType     map[string]uint64
	TotalTime  time.Duration
	TopDomains []DomainCount // most queried first
}

// AvgLatency returns the mean handling time, or zero when nothing was recorded.
func (s Snapshot) AvgLatency() time.Duration {
	if s.Total == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(s.Total)
}

// Recorder is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	total   uint64
	elapsed time.Duration
	rcodes  map[domain.ResultCode]uint64
	types   map[domain.QueryType]uint64
	domains *lru.Cache[string, uint64]
}

// New returns a Recorder tracking at most topSize apex domains. Domains that
// fall out of the LRU lose their count.
func New(topSize int) (*Recorder, error) {
	if topSize <= 0 {
		topSize = DefaultTopSize
	}
	cache, err := lru.New[string, uint64](topSize)
	if err != nil {
		return nil, fmt.Errorf("create domain table: %w", err)
	}
	return &Recorder{
		rcodes:  make(map[domain.ResultCode]uint64),
		types:   make(map[domain.QueryType]uint64),
		domains: cache,
	}, nil
}

// Record counts one handled query. A zero Question (undecodable request)
// only contributes to the total and the result code.
func (r *Recorder) Record(q domain.Question, rcode domain.ResultCode, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	r.elapsed += elapsed
	r.rcodes[rcode]++
	if q == (domain.Question{}) {
		return
	}
	r.types[q.Type]++
	if apex := utils.GetApexDomain(q.Name); apex != "" {
		n, _ := r.domains.Peek(apex)
		r.domains.Add(apex, n+1)
	}
}

// Snapshot copies the current counters.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Total:     r.total,
		TotalTime: r.elapsed,
		ByRcode:   make(map[string]uint64, len(r.rcodes)),
		ByType:    make(map[string]uint64, len(r.types)),
	}
	for k, v := range r.rcodes {
		s.ByRcode[k.String()] = v
	}
	for k, v := range r.types {
		s.ByType[k.String()] = v
	}
	for _, k := range r.domains.Keys() {
		if v, ok := r.domains.Peek(k); ok {
			s.TopDomains = append(s.TopDomains, DomainCount{Domain: k, Count: v})
		}
	}
	sort.Slice(s.TopDomains, func(i, j int) bool {
		a, b := s.TopDomains[i], s.TopDomains[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Domain < b.Domain
	})
	return s
}

// LogSummary writes the snapshot at info level, listing at most top domains.
func (r *Recorder) LogSummary(logger log.Logger, top int) {
	s := r.Snapshot()
	if top >= 0 && len(s.TopDomains) > top {
		s.TopDomains = s.TopDomains[:top]
	}
	domains := make([]string, 0, len(s.TopDomains))
	for _, d := range s.TopDomains {
		domains = append(domains, fmt.Sprintf("%s=%d", d.Domain, d.Count))
	}
	log.OrNoop(logger).Info(map[string]any{
		"total":       s.Total,
		"by_rcode":    s.ByRcode,
		"by_type":     s.ByType,
		"avg_latency": s.AvgLatency().String(),
		"top_domains": domains,
	}, "Query statistics")
}
