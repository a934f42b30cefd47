package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/haukened/rr-recursor/internal/dns/common/log"
)

// Inbound read size. Queries are far smaller; anything longer is cut and
// answered with FORMERR by the handler.
const maxDatagramSize = 4096

// UDPTransport implements ServerTransport for standard DNS over UDP (RFC 1035).
//
// With maxInflight <= 1 datagrams are handled one at a time, each to
// completion before the next is read. Larger values handle each datagram on
// its own goroutine, at most maxInflight at once.
type UDPTransport struct {
	addr        string
	conn        *net.UDPConn
	logger      log.Logger
	maxInflight int

	// Synchronization for graceful shutdown
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	sem      chan struct{}
	inflight sync.WaitGroup
}

// NewUDPTransport creates a new UDP transport instance.
func NewUDPTransport(addr string, maxInflight int, logger log.Logger) *UDPTransport {
	if maxInflight < 1 {
		maxInflight = 1
	}
	return &UDPTransport{
		addr:        addr,
		logger:      log.OrNoop(logger),
		maxInflight: maxInflight,
		stopCh:      make(chan struct{}),
		sem:         make(chan struct{}, maxInflight),
	}
}

// Start binds the UDP socket and starts the receive loop in the background.
func (t *UDPTransport) Start(ctx context.Context, handler DatagramHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("UDP transport already running")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", t.addr, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to bind UDP socket on %s: %w", t.addr, err)
	}

	t.conn = conn
	t.running = true
	t.stopCh = make(chan struct{})

	t.logger.Info(map[string]any{
		"transport":    "udp",
		"address":      conn.LocalAddr().String(),
		"max_inflight": t.maxInflight,
	}, "DNS transport started")

	// The loop holds its own count so handler goroutines are only ever
	// added while the group is non-zero.
	t.inflight.Add(1)
	go func(stopCh <-chan struct{}) {
		defer t.inflight.Done()
		t.listenLoop(ctx, conn, stopCh, handler)
	}(t.stopCh)

	return nil
}

// Stop closes the socket and waits for datagrams already being handled.
func (t *UDPTransport) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}

	close(t.stopCh)

	var closeErr error
	if t.conn != nil {
		closeErr = t.conn.Close()
		if closeErr != nil {
			t.logger.Warn(map[string]any{
				"error": closeErr.Error(),
			}, "Error closing UDP connection")
		}
	}
	t.running = false
	t.mu.Unlock()

	t.inflight.Wait()

	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   t.addr,
	}, "DNS transport stopped")

	return closeErr
}

// Address returns the bound address while running, otherwise the
// configured one.
func (t *UDPTransport) Address() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.running && t.conn != nil {
		return t.conn.LocalAddr().String()
	}
	return t.addr
}

// listenLoop continuously listens for UDP packets and handles them.
func (t *UDPTransport) listenLoop(ctx context.Context, conn *net.UDPConn, stopCh <-chan struct{}, handler DatagramHandler) {
	buffer := make([]byte, maxDatagramSize)

	for {
		select {
		case <-ctx.Done():
			t.logger.Debug(nil, "UDP transport stopping due to context cancellation")
			return
		case <-stopCh:
			t.logger.Debug(nil, "UDP transport stopping due to stop signal")
			return
		default:
		}

		n, clientAddr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			t.mu.RLock()
			running := t.running
			t.mu.RUnlock()

			if !running {
				return // Normal shutdown
			}

			t.logger.Warn(map[string]any{
				"error": err.Error(),
			}, "Failed to read UDP packet")
			continue
		}

		packet := make([]byte, n)
		copy(packet, buffer[:n])

		if t.maxInflight == 1 {
			t.handlePacket(ctx, conn, packet, clientAddr, handler)
			continue
		}

		select {
		case t.sem <- struct{}{}:
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
		t.inflight.Add(1)
		go func() {
			defer func() {
				<-t.sem
				t.inflight.Done()
			}()
			t.handlePacket(ctx, conn, packet, clientAddr, handler)
		}()
	}
}

// handlePacket processes a single UDP DNS packet.
func (t *UDPTransport) handlePacket(ctx context.Context, conn *net.UDPConn, data []byte, clientAddr *net.UDPAddr, handler DatagramHandler) {
	t.logger.Debug(map[string]any{
		"client": clientAddr.String(),
		"size":   len(data),
		"raw":    fmt.Sprintf("%x", data),
	}, "Received raw DNS query data")

	response := handler.ServeDatagram(ctx, data, clientAddr)
	if len(response) == 0 {
		t.logger.Error(map[string]any{
			"client": clientAddr.String(),
		}, "Handler produced no response")
		return
	}

	if _, err := conn.WriteToUDP(response, clientAddr); err != nil {
		t.logger.Error(map[string]any{
			"client": clientAddr.String(),
			"error":  err.Error(),
		}, "Failed to send DNS response")
		return
	}

	t.logger.Debug(map[string]any{
		"client": clientAddr.String(),
		"size":   len(response),
		"raw":    fmt.Sprintf("%x", response),
	}, "Sent DNS response")
}

var _ ServerTransport = (*UDPTransport)(nil)
