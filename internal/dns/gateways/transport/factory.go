package transport

import (
	"fmt"
	"strings"

	"github.com/haukened/rr-recursor/internal/dns/common/log"
)

// ParseTransportType maps a case-insensitive name such as "UDP" to a
// TransportType this package can serve.
func ParseTransportType(s string) (TransportType, error) {
	t := TransportType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TransportUDP:
		return t, nil
	default:
		return "", fmt.Errorf("unsupported transport type: %s", s)
	}
}

// NewTransport creates a listener of the given type bound to addr.
func NewTransport(transportType TransportType, addr string, maxInflight int, logger log.Logger) (ServerTransport, error) {
	switch transportType {
	case TransportUDP:
		return NewUDPTransport(addr, maxInflight, logger), nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", transportType)
	}
}
