package handler

import (
	"context"
	"time"

	"github.com/haukened/rr-recursor/internal/dns/domain"
)

// Resolver answers a question by walking the delegation chain.
type Resolver interface {
	RecursiveLookup(ctx context.Context, name string, qtype domain.QueryType) (domain.Packet, error)
}

// Blocklist decides whether a name must be refused.
type Blocklist interface {
	Decide(name string) domain.BlockDecision
}

// Stats records the outcome of every handled datagram.
type Stats interface {
	Record(q domain.Question, rcode domain.ResultCode, elapsed time.Duration)
}
