// Package resolver walks the DNS delegation hierarchy from the root hints
// until a name is answered, denied, or no further delegation is offered.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/haukened/rr-recursor/internal/dns/common/log"
	"github.com/haukened/rr-recursor/internal/dns/common/utils"
	"github.com/haukened/rr-recursor/internal/dns/domain"
)

var (
	// ErrDepthExceeded is returned when a lookup, including the nested
	// lookups it starts for glue-free name servers, needs more exchanges than
	// the step budget allows.
	ErrDepthExceeded = errors.New("resolution depth exceeded")
	// ErrNoRootHints is returned by NewResolver when no root server is given.
	ErrNoRootHints = errors.New("no root hints configured")
)

const (
	// DefaultMaxSteps is the exchange budget of one RecursiveLookup.
	DefaultMaxSteps = 32
	// DefaultPort is used to contact delegated name servers.
	DefaultPort = 53
)

const errExchangerRequired = "exchanger is required"

// Resolver performs iterative resolution. It holds no per-lookup state, so a
// single Resolver may serve concurrent lookups.
type Resolver struct {
	exchanger Exchanger
	roots     []netip.AddrPort
	port      uint16
	maxSteps  int
	logger    log.Logger
}

// Options configures a Resolver. Exchanger and at least one root hint are
// required.
type Options struct {
	Exchanger Exchanger
	// RootHints are the bootstrap servers; lookups start at the first one.
	RootHints []netip.AddrPort
	// Port is used for servers learned from glue or nested lookups.
	Port     uint16
	MaxSteps int
	Logger   log.Logger
}

// NewResolver creates a Resolver, applying DefaultPort and DefaultMaxSteps
// when those options are zero.
func NewResolver(opts Options) (*Resolver, error) {
	if opts.Exchanger == nil {
		return nil, errors.New(errExchangerRequired)
	}
	if len(opts.RootHints) == 0 {
		return nil, ErrNoRootHints
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	roots := make([]netip.AddrPort, len(opts.RootHints))
	copy(roots, opts.RootHints)
	return &Resolver{
		exchanger: opts.Exchanger,
		roots:     roots,
		port:      opts.Port,
		maxSteps:  opts.MaxSteps,
		logger:    log.OrNoop(opts.Logger),
	}, nil
}

// lookupState is shared by a lookup and every nested lookup it starts.
type lookupState struct {
	steps     int
	remaining int
}

func (st *lookupState) spend() bool {
	if st.remaining == 0 {
		return false
	}
	st.remaining--
	st.steps++
	return true
}

// RecursiveLookup resolves name and qtype starting from the first root hint.
//
// Each step queries the current server and then:
//   - returns the reply if it has answers and NOERROR;
//   - returns the reply if it is NXDOMAIN;
//   - follows a name server for name whose glue A record is in the reply;
//   - otherwise resolves the first name server for name with a nested A
//     lookup and follows its first address;
//   - otherwise returns the reply as the best available result.
//
// Upstream result codes other than NXDOMAIN are not errors. Exchange
// failures and budget exhaustion are returned as errors.
func (r *Resolver) RecursiveLookup(ctx context.Context, name string, qtype domain.QueryType) (domain.Packet, error) {
	st := &lookupState{remaining: r.maxSteps}
	resp, err := r.lookup(ctx, st, utils.CanonicalDNSName(name), qtype, 0)
	if err != nil {
		return domain.Packet{}, err
	}
	r.logger.Debug(map[string]any{
		"name":  name,
		"type":  qtype.String(),
		"steps": st.steps,
		"rcode": resp.Header.ResultCode.String(),
	}, "Recursive lookup finished")
	return resp, nil
}

func (r *Resolver) lookup(ctx context.Context, st *lookupState, name string, qtype domain.QueryType, depth int) (domain.Packet, error) {
	server := r.roots[0]

	for {
		if err := ctx.Err(); err != nil {
			return domain.Packet{}, err
		}
		if !st.spend() {
			return domain.Packet{}, fmt.Errorf("%w: %s %s after %d exchanges", ErrDepthExceeded, name, qtype, st.steps)
		}

		resp, err := r.exchanger.Lookup(ctx, name, qtype, server.String())
		if err != nil {
			return domain.Packet{}, fmt.Errorf("query %s for %s %s: %w", server, name, qtype, err)
		}

		fields := map[string]any{
			"name":        name,
			"type":        qtype.String(),
			"server":      server.String(),
			"depth":       depth,
			"step":        st.steps,
			"rcode":       resp.Header.ResultCode.String(),
			"answers":     len(resp.Answers),
			"authorities": len(resp.Authorities),
			"additional":  len(resp.Resources),
		}

		switch {
		case len(resp.Answers) > 0 && resp.Header.ResultCode == domain.NOERROR:
			return resp, nil
		case resp.Header.ResultCode == domain.NXDOMAIN:
			return resp, nil
		}

		if addr, ok := resp.ResolvedNS(name); ok {
			server = netip.AddrPortFrom(addr, r.port)
			fields["next"] = server.String()
			r.logger.Debug(fields, "Following glued delegation")
			continue
		}

		host, ok := resp.UnresolvedNS(name)
		if !ok {
			r.logger.Debug(fields, "No further delegation")
			return resp, nil
		}

		fields["ns"] = host
		r.logger.Debug(fields, "Resolving glue-free name server")
		nsResp, err := r.lookup(ctx, st, utils.CanonicalDNSName(host), domain.TypeA, depth+1)
		if err != nil {
			return domain.Packet{}, err
		}
		addr, ok := nsResp.FirstA()
		if !ok {
			r.logger.Debug(fields, "Name server has no address")
			return resp, nil
		}
		server = netip.AddrPortFrom(addr, r.port)
	}
}
