package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockDatagramHandler implements DatagramHandler for testing
type MockDatagramHandler struct {
	mock.Mock
}

func (m *MockDatagramHandler) ServeDatagram(ctx context.Context, data []byte, clientAddr net.Addr) []byte {
	args := m.Called(ctx, data, clientAddr)
	if b := args.Get(0); b != nil {
		return b.([]byte)
	}
	return nil
}

// MockLogger implements log.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Info(fields map[string]any, msg string) {
	m.Called(fields, msg)
}

func (m *MockLogger) Error(fields map[string]any, msg string) {
	m.Called(fields, msg)
}

func (m *MockLogger) Debug(fields map[string]any, msg string) {
	m.Called(fields, msg)
}

func (m *MockLogger) Warn(fields map[string]any, msg string) {
	m.Called(fields, msg)
}

func (m *MockLogger) Panic(fields map[string]any, msg string) {
	m.Called(fields, msg)
}

func (m *MockLogger) Fatal(fields map[string]any, msg string) {
	m.Called(fields, msg)
}

// testLogger provides a no-op logger for tests that don't need to verify logging
type testLogger struct{}

func (t *testLogger) Info(map[string]any, string)  {}
func (t *testLogger) Error(map[string]any, string) {}
func (t *testLogger) Debug(map[string]any, string) {}
func (t *testLogger) Warn(map[string]any, string)  {}
func (t *testLogger) Panic(map[string]any, string) {}
func (t *testLogger) Fatal(map[string]any, string) {}

// gateHandler echoes each datagram after holding it until release is
// closed, and records the highest number of concurrent calls.
type gateHandler struct {
	release chan struct{}
	current atomic.Int32
	peak    atomic.Int32
	handled atomic.Int32
}

func (h *gateHandler) ServeDatagram(ctx context.Context, data []byte, clientAddr net.Addr) []byte {
	n := h.current.Add(1)
	for {
		p := h.peak.Load()
		if n <= p || h.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-h.release
	h.current.Add(-1)
	h.handled.Add(1)
	return append([]byte("re:"), data...)
}

// exchange sends payload to addr and waits for one reply.
func exchange(t *testing.T, addr string, payload []byte) ([]byte, error) {
	t.Helper()
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if _, err := conn.Write(payload); err != nil {
		return nil, err
	}
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		return nil, err
	}
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func TestNewUDPTransport(t *testing.T) {
	logger := &testLogger{}
	addr := "127.0.0.1:5053"

	transport := NewUDPTransport(addr, 4, logger)

	assert.NotNil(t, transport)
	assert.Equal(t, addr, transport.addr)
	assert.Equal(t, logger, transport.logger)
	assert.Equal(t, 4, transport.maxInflight)
	assert.Equal(t, 4, cap(transport.sem))
	assert.NotNil(t, transport.stopCh)
	assert.False(t, transport.running)

	assert.Equal(t, 1, NewUDPTransport(addr, 0, nil).maxInflight, "values below 1 mean sequential")
	assert.NotNil(t, NewUDPTransport(addr, 1, nil).logger)
}

func TestUDPTransport_Address(t *testing.T) {
	transport := NewUDPTransport("127.0.0.1:0", 1, &testLogger{})
	assert.Equal(t, "127.0.0.1:0", transport.Address())

	require.NoError(t, transport.Start(context.Background(), &MockDatagramHandler{}))
	defer transport.Stop()

	bound := transport.Address()
	assert.NotEqual(t, "127.0.0.1:0", bound, "running transport reports the bound port")
	_, port, err := net.SplitHostPort(bound)
	require.NoError(t, err)
	assert.NotEqual(t, "0", port)
}

func TestUDPTransport_StartStop(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid address",
			addr:    "127.0.0.1:0", // Let OS choose port
			wantErr: false,
		},
		{
			name:    "invalid address format",
			addr:    "invalid-address",
			wantErr: true,
			errMsg:  "failed to resolve UDP address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &MockDatagramHandler{}

			transport := NewUDPTransport(tt.addr, 1, &testLogger{})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := transport.Start(ctx, handler)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}

			require.NoError(t, err)
			assert.True(t, transport.running)
			assert.NotNil(t, transport.conn)

			// Test double start fails
			err = transport.Start(ctx, handler)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "already running")

			err = transport.Stop()
			assert.NoError(t, err)
			assert.False(t, transport.running)

			// Test double stop is safe
			err = transport.Stop()
			assert.NoError(t, err)
		})
	}
}

func TestUDPTransport_RestartAfterStop(t *testing.T) {
	handler := &MockDatagramHandler{}
	handler.On("ServeDatagram", mock.Anything, []byte("ping"), mock.Anything).Return([]byte("pong"))

	transport := NewUDPTransport("127.0.0.1:0", 1, &testLogger{})
	require.NoError(t, transport.Start(context.Background(), handler))
	require.NoError(t, transport.Stop())

	require.NoError(t, transport.Start(context.Background(), handler))
	defer transport.Stop()

	reply, err := exchange(t, transport.Address(), []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), reply)
}

func TestUDPTransport_QueryHandling(t *testing.T) {
	mockLogger := &MockLogger{}
	handler := &MockDatagramHandler{}

	queryData := []byte{0x01, 0x02, 0x03}
	responseData := []byte{0x04, 0x05, 0x06}

	handler.On("ServeDatagram", mock.AnythingOfType("*context.cancelCtx"), queryData, mock.AnythingOfType("*net.UDPAddr")).Return(responseData).Once()

	// Setup logger expectations to be flexible about what gets logged
	mockLogger.On("Info", mock.Anything, mock.Anything).Maybe()
	mockLogger.On("Debug", mock.Anything, mock.Anything).Maybe()
	mockLogger.On("Warn", mock.Anything, mock.Anything).Maybe()
	mockLogger.On("Error", mock.Anything, mock.Anything).Maybe()

	transport := NewUDPTransport("127.0.0.1:0", 1, mockLogger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, transport.Start(ctx, handler))

	reply, err := exchange(t, transport.Address(), queryData)
	require.NoError(t, err)
	assert.Equal(t, responseData, reply)

	require.NoError(t, transport.Stop())
	handler.AssertExpectations(t)
	mockLogger.AssertCalled(t, "Debug", mock.Anything, "Sent DNS response")
}

func TestUDPTransport_EmptyHandlerResponse(t *testing.T) {
	mockLogger := &MockLogger{}
	mockLogger.On("Info", mock.Anything, mock.Anything).Maybe()
	mockLogger.On("Debug", mock.Anything, mock.Anything).Maybe()
	mockLogger.On("Error", mock.Anything, "Handler produced no response").Once()

	handler := &MockDatagramHandler{}
	handler.On("ServeDatagram", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	transport := NewUDPTransport("127.0.0.1:0", 1, mockLogger)
	require.NoError(t, transport.Start(context.Background(), handler))

	_, err := exchange(t, transport.Address(), []byte{1})
	assert.Error(t, err, "nothing is sent back")

	require.NoError(t, transport.Stop())
	mockLogger.AssertExpectations(t)
}

func TestUDPTransport_SequentialByDefault(t *testing.T) {
	h := &gateHandler{release: make(chan struct{})}
	close(h.release)

	transport := NewUDPTransport("127.0.0.1:0", 1, &testLogger{})
	require.NoError(t, transport.Start(context.Background(), h))

	const numRequests = 8
	var wg sync.WaitGroup
	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reply, err := exchange(t, transport.Address(), []byte{byte(i)})
			if assert.NoError(t, err) {
				assert.Equal(t, []byte{'r', 'e', ':', byte(i)}, reply)
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, transport.Stop())
	assert.Equal(t, int32(1), h.peak.Load())
	assert.Equal(t, int32(numRequests), h.handled.Load())
}

func TestUDPTransport_ConcurrentBounded(t *testing.T) {
	const limit = 3
	h := &gateHandler{release: make(chan struct{})}

	transport := NewUDPTransport("127.0.0.1:0", limit, &testLogger{})
	require.NoError(t, transport.Start(context.Background(), h))

	const numRequests = 10
	var wg sync.WaitGroup
	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reply, err := exchange(t, transport.Address(), []byte{byte(i)})
			if assert.NoError(t, err) {
				assert.Equal(t, []byte{'r', 'e', ':', byte(i)}, reply)
			}
		}(i)
	}

	require.Eventually(t, func() bool { return h.current.Load() == limit }, 2*time.Second, 5*time.Millisecond)
	close(h.release)
	wg.Wait()

	require.NoError(t, transport.Stop())
	assert.Equal(t, int32(limit), h.peak.Load())
	assert.Equal(t, int32(numRequests), h.handled.Load())
}

func TestUDPTransport_StopWaitsForInflight(t *testing.T) {
	h := &gateHandler{release: make(chan struct{})}

	transport := NewUDPTransport("127.0.0.1:0", 2, &testLogger{})
	require.NoError(t, transport.Start(context.Background(), h))

	go func() { _, _ = exchange(t, transport.Address(), []byte{1}) }()
	require.Eventually(t, func() bool { return h.current.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- transport.Stop() }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a datagram was still being handled")
	case <-time.After(50 * time.Millisecond):
	}

	close(h.release)
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, int32(1), h.handled.Load())
}

func TestUDPTransport_InvalidPortBind(t *testing.T) {
	occupied, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	transport := NewUDPTransport(occupied.LocalAddr().String(), 1, &testLogger{})
	err = transport.Start(context.Background(), &MockDatagramHandler{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bind UDP socket")
}

// TestUDPTransport_StopWithNilConnection tests Stop() method when connection is nil
func TestUDPTransport_StopWithNilConnection(t *testing.T) {
	logger := &MockLogger{}
	logger.On("Info", mock.Anything, "DNS transport stopped").Once()

	transport := NewUDPTransport("127.0.0.1:0", 1, logger)

	// Simulate running state with nil connection
	transport.mu.Lock()
	transport.running = true
	transport.conn = nil
	transport.mu.Unlock()

	err := transport.Stop()
	assert.NoError(t, err)
	assert.False(t, transport.running)

	logger.AssertExpectations(t)
}

func TestUDPTransport_ContextCancellation(t *testing.T) {
	handler := &MockDatagramHandler{}
	handler.On("ServeDatagram", mock.Anything, mock.Anything, mock.Anything).Return([]byte("late")).Maybe()

	transport := NewUDPTransport("127.0.0.1:0", 1, &testLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, transport.Start(ctx, handler))

	cancel()
	// The loop notices cancellation after the next datagram wakes it.
	_, _ = exchange(t, transport.Address(), []byte{1})

	done := make(chan error, 1)
	go func() { done <- transport.Stop() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after cancellation")
	}
}
