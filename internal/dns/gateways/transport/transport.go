// Package transport runs the network side of the DNS server: it receives
// datagrams, hands their bytes to a DatagramHandler and sends back the
// reply the handler produces.
package transport

import (
	"context"
	"net"
)

// ServerTransport defines the interface for DNS server transport implementations.
type ServerTransport interface {
	// Start begins listening for requests and handling them via the provided handler.
	Start(ctx context.Context, handler DatagramHandler) error

	// Stop shuts down the transport and waits for in-flight datagrams to finish.
	Stop() error

	// Address returns the network address the transport is bound to.
	Address() string
}

// DatagramHandler turns one inbound DNS message into exactly one reply.
// The transport owns data; the handler may keep it only for the duration
// of the call.
type DatagramHandler interface {
	ServeDatagram(ctx context.Context, data []byte, clientAddr net.Addr) []byte
}

// TransportType represents the different types of DNS transport protocols supported.
type TransportType string

const (
	// TransportUDP represents standard DNS over UDP (RFC 1035)
	TransportUDP TransportType = "udp"
)
