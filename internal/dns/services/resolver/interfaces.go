package resolver

import (
	"context"

	"github.com/haukened/rr-recursor/internal/dns/domain"
)

// Exchanger performs one query/response exchange with a single server.
// server is a host:port address.
type Exchanger interface {
	Lookup(ctx context.Context, name string, qtype domain.QueryType, server string) (domain.Packet, error)
}
