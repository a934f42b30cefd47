// Package upstream performs single DNS exchanges with remote name servers
// over UDP.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/haukened/rr-recursor/internal/dns/common/clock"
	"github.com/haukened/rr-recursor/internal/dns/common/log"
	"github.com/haukened/rr-recursor/internal/dns/domain"
	"github.com/haukened/rr-recursor/internal/dns/gateways/wire"
	"github.com/haukened/rr-recursor/internal/dns/services/resolver"
)

// ErrIDMismatch is returned when a reply does not carry the id of the query.
var ErrIDMismatch = errors.New("reply id does not match query id")

// DefaultTimeout bounds one exchange when Options.Timeout is not set.
const DefaultTimeout = 5 * time.Second

// Large enough for any UDP reply; without EDNS servers truncate at 512.
const readBufferSize = 4096

// Error message constants for consistent error handling
const (
	errCodecRequired   = "DNS codec is required"
	errQueryTimeout    = "query to %s timed out after %v: %w"
	errFailedToConnect = "failed to connect to %s: %w"
	errSetDeadline     = "set deadline: %w"
	errEncodeFailed    = "encode failed: %w"
	errWriteFailed     = "write failed: %w"
	errReadFailed      = "read failed: %w"
	errDecodeFailed    = "decode reply from %s: %w"
	errIDMismatch      = "%w: sent %d, got %d"
)

// DialFunc defines a function type for establishing a network connection.
// It takes a context for cancellation, the network type (e.g., "tcp", "udp"),
// and the address to connect to, returning a net.Conn and an error if any occurs.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Client sends one query to one server and returns the decoded reply.
// It keeps no state between exchanges and is safe for concurrent use.
type Client struct {
	timeout time.Duration
	codec   wire.DNSCodec
	dial    DialFunc
	newID   func() uint16
	clock   clock.Clock
	logger  log.Logger
}

// Options configures a Client. Only Codec is required.
type Options struct {
	Timeout time.Duration
	Codec   wire.DNSCodec
	Logger  log.Logger
	// options to inject for testing purposes
	Dial  DialFunc
	NewID func() uint16
	Clock clock.Clock
}

// NewClient creates a Client, applying defaults for unset options:
// a 5 second timeout, a net.Dialer, random ids from miekg/dns and the
// system clock.
func NewClient(opts Options) (*Client, error) {
	if opts.Codec == nil {
		return nil, errors.New(errCodecRequired)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Dial == nil {
		opts.Dial = (&net.Dialer{}).DialContext
	}
	if opts.NewID == nil {
		opts.NewID = dns.Id
	}
	if opts.Clock == nil {
		opts.Clock = &clock.RealClock{}
	}
	return &Client{
		timeout: opts.Timeout,
		codec:   opts.Codec,
		dial:    opts.Dial,
		newID:   opts.NewID,
		clock:   opts.Clock,
		logger:  log.OrNoop(opts.Logger),
	}, nil
}

// Lookup queries server (host:port) for name and qtype with recursion
// desired, and returns the decoded reply.
//
// Each call uses a fresh UDP socket that is closed before returning, and is
// bounded by the client timeout as well as by ctx. Failures are returned
// as-is; Lookup never retries.
func (c *Client) Lookup(ctx context.Context, name string, qtype domain.QueryType, server string) (domain.Packet, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := c.clock.Now()
	query := domain.NewQueryPacket(c.newID(), name, qtype)

	reply, err := c.exchange(ctx, query, server)
	fields := map[string]any{
		"server":  server,
		"name":    query.Questions[0].Name,
		"type":    qtype.String(),
		"id":      query.Header.ID,
		"elapsed": clock.Elapsed(c.clock, start).String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		c.logger.Debug(fields, "Upstream exchange failed")
		return domain.Packet{}, err
	}
	fields["rcode"] = reply.Header.ResultCode.String()
	fields["answers"] = len(reply.Answers)
	c.logger.Debug(fields, "Upstream exchange complete")
	return reply, nil
}

func (c *Client) exchange(ctx context.Context, query domain.Packet, server string) (domain.Packet, error) {
	queryBytes, err := c.codec.Encode(query)
	if err != nil {
		return domain.Packet{}, fmt.Errorf(errEncodeFailed, err)
	}

	conn, err := c.dial(ctx, "udp", server)
	if err != nil {
		return domain.Packet{}, fmt.Errorf(errFailedToConnect, server, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return domain.Packet{}, fmt.Errorf(errSetDeadline, err)
		}
	}

	type result struct {
		data []byte
		err  error
	}
	resultChan := make(chan result, 1)

	go func() {
		if _, err := conn.Write(queryBytes); err != nil {
			resultChan <- result{err: fmt.Errorf(errWriteFailed, err)}
			return
		}
		buffer := make([]byte, readBufferSize)
		n, err := conn.Read(buffer)
		if err != nil {
			resultChan <- result{err: fmt.Errorf(errReadFailed, err)}
			return
		}
		resultChan <- result{data: buffer[:n]}
	}()

	var res result
	select {
	case res = <-resultChan:
	case <-ctx.Done():
		return domain.Packet{}, fmt.Errorf(errQueryTimeout, server, c.timeout, ctx.Err())
	}
	if res.err != nil {
		return domain.Packet{}, res.err
	}

	reply, err := c.codec.Decode(res.data)
	if err != nil {
		return domain.Packet{}, fmt.Errorf(errDecodeFailed, server, err)
	}
	if reply.Header.ID != query.Header.ID {
		return domain.Packet{}, fmt.Errorf(errIDMismatch, ErrIDMismatch, query.Header.ID, reply.Header.ID)
	}
	return reply, nil
}

var _ resolver.Exchanger = (*Client)(nil)
