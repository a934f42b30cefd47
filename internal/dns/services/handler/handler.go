// Package handler turns one inbound DNS datagram into one reply datagram.
//
// It validates the request, consults the blocklist, delegates to the
// recursive resolver and maps every failure to a result code. It never
// returns an empty reply.
package handler

import (
	"context"
	"errors"
	"net"

	"github.com/haukened/rr-recursor/internal/dns/common/clock"
	"github.com/haukened/rr-recursor/internal/dns/common/log"
	"github.com/haukened/rr-recursor/internal/dns/domain"
	"github.com/haukened/rr-recursor/internal/dns/gateways/transport"
	"github.com/haukened/rr-recursor/internal/dns/gateways/wire"
)

const errResolverRequired = "resolver is required"

// Options configures a Handler. Only Resolver is required.
type Options struct {
	Resolver  Resolver
	Blocklist Blocklist
	Stats     Stats
	Codec     wire.DNSCodec
	Logger    log.Logger
	Clock     clock.Clock
}

// Handler implements transport.DatagramHandler.
type Handler struct {
	resolver  Resolver
	blocklist Blocklist
	stats     Stats
	codec     wire.DNSCodec
	logger    log.Logger
	clock     clock.Clock
}

type allowAll struct{}

func (allowAll) Decide(string) domain.BlockDecision { return domain.AllowDecision() }

// NewHandler builds a Handler, filling optional collaborators with defaults.
func NewHandler(opts Options) (*Handler, error) {
	if opts.Resolver == nil {
		return nil, errors.New(errResolverRequired)
	}
	h := &Handler{
		resolver:  opts.Resolver,
		blocklist: opts.Blocklist,
		stats:     opts.Stats,
		codec:     opts.Codec,
		logger:    log.OrNoop(opts.Logger),
		clock:     opts.Clock,
	}
	if h.blocklist == nil {
		h.blocklist = allowAll{}
	}
	if h.codec == nil {
		h.codec = wire.NewUDPCodec(h.logger)
	}
	if h.clock == nil {
		h.clock = &clock.RealClock{}
	}
	return h, nil
}

// ServeDatagram decodes data, answers it and returns the encoded reply.
func (h *Handler) ServeDatagram(ctx context.Context, data []byte, clientAddr net.Addr) []byte {
	start := h.clock.Now()
	client := ""
	if clientAddr != nil {
		client = clientAddr.String()
	}

	resp, q := h.respond(ctx, data, client)

	out, err := h.codec.Encode(resp)
	if err != nil {
		h.logger.Error(map[string]any{
			"client": client,
			"id":     resp.Header.ID,
			"error":  err.Error(),
		}, "Failed to encode response, sending SERVFAIL")
		resp = domain.NewErrorResponse(resp.Header.ID, resp.Header.RecursionDesired, domain.SERVFAIL)
		out = headerOnly(resp.Header)
	}

	if h.stats != nil {
		h.stats.Record(q, resp.Header.ResultCode, clock.Elapsed(h.clock, start))
	}
	return out
}

// respond builds the reply packet and returns the question it answered,
// which is zero for malformed requests.
func (h *Handler) respond(ctx context.Context, data []byte, client string) (domain.Packet, domain.Question) {
	req, err := h.codec.Decode(data)
	if err != nil {
		h.logger.Warn(map[string]any{"client": client, "size": len(data), "error": err.Error()}, "Failed to decode DNS query")
		id, rd := peekHeader(data)
		return domain.NewErrorResponse(id, rd, domain.FORMERR), domain.Question{}
	}
	if len(req.Questions) != 1 {
		h.logger.Warn(map[string]any{"client": client, "id": req.Header.ID, "questions": len(req.Questions)}, "Query must carry exactly one question")
		return domain.NewErrorResponse(req.Header.ID, req.Header.RecursionDesired, domain.FORMERR), domain.Question{}
	}

	q := req.Questions[0]
	logger := log.With(h.logger, map[string]any{
		"client": client,
		"id":     req.Header.ID,
		"name":   q.Name,
		"type":   q.Type.String(),
	})
	logger.Debug(nil, "Received DNS query")

	if d := h.blocklist.Decide(q.Name); d.Blocked {
		logger.Info(map[string]any{"rule": d.MatchedRule, "source": d.Source, "kind": d.Kind.String()}, "Query blocked")
		return withQuestion(domain.NewErrorResponse(req.Header.ID, req.Header.RecursionDesired, domain.REFUSED), q), q
	}

	upstream, err := h.resolver.RecursiveLookup(ctx, q.Name, q.Type)
	if err != nil {
		logger.Error(map[string]any{"error": err.Error()}, "Recursive lookup failed")
		return withQuestion(domain.NewErrorResponse(req.Header.ID, req.Header.RecursionDesired, domain.SERVFAIL), q), q
	}

	resp := domain.Packet{
		Header: domain.Header{
			ID:                 req.Header.ID,
			Response:           true,
			RecursionDesired:   true,
			RecursionAvailable: true,
			ResultCode:         upstream.Header.ResultCode,
		},
		Questions:   []domain.Question{q},
		Answers:     encodable(upstream.Answers),
		Authorities: encodable(upstream.Authorities),
		Resources:   encodable(upstream.Resources),
	}
	logger.Debug(map[string]any{
		"rcode":   resp.Header.ResultCode.String(),
		"answers": len(resp.Answers),
	}, "Resolved DNS query")
	return resp, q
}

func withQuestion(p domain.Packet, q domain.Question) domain.Packet {
	p.Questions = []domain.Question{q}
	return p
}

// encodable drops UnknownRecords: they encode to zero bytes, which would
// leave the section counts wrong.
func encodable(rrs []domain.Record) []domain.Record {
	if len(rrs) == 0 {
		return nil
	}
	out := make([]domain.Record, 0, len(rrs))
	for _, rr := range rrs {
		if _, ok := rr.(domain.UnknownRecord); ok {
			continue
		}
		out = append(out, rr)
	}
	return out
}

// peekHeader salvages the id and RD bit from a request too broken to decode.
func peekHeader(data []byte) (id uint16, rd bool) {
	if len(data) >= 2 {
		id = uint16(data[0])<<8 | uint16(data[1])
	}
	if len(data) >= 3 {
		rd = data[2]&0x01 != 0
	}
	return id, rd
}

// headerOnly encodes a bare header with zero counts. It cannot fail.
func headerOnly(h domain.Header) []byte {
	b := wire.NewBuffer(make([]byte, 0, wire.HeaderLen))
	h.Questions, h.Answers, h.AuthoritativeEntries, h.ResourceEntries = 0, 0, 0, 0
	wire.WriteHeader(b, h)
	return b.Bytes()
}

var _ transport.DatagramHandler = (*Handler)(nil)
