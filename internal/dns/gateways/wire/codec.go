package wire

import (
	"github.com/haukened/rr-recursor/internal/dns/common/log"
	"github.com/haukened/rr-recursor/internal/dns/domain"
)

// DNSCodec converts between datagrams and packets.
type DNSCodec interface {
	Decode(data []byte) (domain.Packet, error)
	Encode(p domain.Packet) ([]byte, error)
}

// UDPCodec implements DNSCodec for plain DNS over UDP. It adds debug
// tracing around DecodePacket and EncodePacket; the result never depends on
// the logger.
type UDPCodec struct {
	logger log.Logger
}

// NewUDPCodec creates a UDPCodec. A nil logger disables tracing.
func NewUDPCodec(logger log.Logger) *UDPCodec {
	return &UDPCodec{
		logger: log.OrNoop(logger),
	}
}

// Decode decodes one datagram.
func (c *UDPCodec) Decode(data []byte) (domain.Packet, error) {
	p, err := DecodePacket(data)
	if err != nil {
		c.logger.Debug(map[string]any{
			"size":  len(data),
			"error": err.Error(),
		}, "Failed to decode DNS packet")
		return domain.Packet{}, err
	}
	c.logger.Debug(map[string]any{
		"id":    p.Header.ID,
		"size":  len(data),
		"rcode": p.Header.ResultCode.String(),
		"qd":    p.Header.Questions,
		"an":    p.Header.Answers,
		"ns":    p.Header.AuthoritativeEntries,
		"ar":    p.Header.ResourceEntries,
	}, "Decoded DNS packet")
	return p, nil
}

// Encode encodes p into one datagram.
func (c *UDPCodec) Encode(p domain.Packet) ([]byte, error) {
	data, err := EncodePacket(p)
	if err != nil {
		c.logger.Debug(map[string]any{
			"id":    p.Header.ID,
			"error": err.Error(),
		}, "Failed to encode DNS packet")
		return nil, err
	}
	c.logger.Debug(map[string]any{
		"id":   p.Header.ID,
		"size": len(data),
	}, "Encoded DNS packet")
	return data, nil
}

var _ DNSCodec = (*UDPCodec)(nil)
