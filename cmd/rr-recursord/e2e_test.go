package main

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-recursor/internal/dns/common/log"
	"github.com/haukened/rr-recursor/internal/dns/config"
)

// startUpstream runs a miekg/dns server on a loopback UDP port.
func startUpstream(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func aRecord(name, ip string) dns.RR {
	return &dns.A{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
		A:   net.ParseIP(ip),
	}
}

// authoritative answers every A query with addr.
func authoritative(addr string, hits *atomic.Int32) dns.HandlerFunc {
	return func(w dns.ResponseWriter, r *dns.Msg) {
		if hits != nil {
			hits.Add(1)
		}
		m := new(dns.Msg)
		m.SetReply(r)
		m.Authoritative = true
		if r.Question[0].Qtype == dns.TypeA {
			m.Answer = []dns.RR{aRecord(r.Question[0].Name, addr)}
		}
		_ = w.WriteMsg(m)
	}
}

func exchange(t *testing.T, addr string, m *dns.Msg) *dns.Msg {
	t.Helper()
	c := &dns.Client{Net: "udp", Timeout: 3 * time.Second}
	resp, _, err := c.Exchange(m, addr)
	require.NoError(t, err)
	return resp
}

func newE2EApp(t *testing.T, mutate func(cfg *config.AppConfig)) string {
	t.Helper()
	cfg := testConfig(t)
	cfg.ResolverTimeout = 2 * time.Second
	if mutate != nil {
		mutate(cfg)
	}
	app, err := buildApplication(cfg, log.NewNoopLogger())
	require.NoError(t, err)
	return startApp(t, app)
}

func TestE2E_DirectAnswer(t *testing.T) {
	root := startUpstream(t, authoritative("192.0.2.44", nil))
	addr := newE2EApp(t, func(cfg *config.AppConfig) { cfg.RootServers = []string{root} })

	q := new(dns.Msg)
	q.SetQuestion("www.example.test.", dns.TypeA)
	q.Id = 0x4242
	resp := exchange(t, addr, q)

	assert.Equal(t, uint16(0x4242), resp.Id)
	assert.True(t, resp.Response)
	assert.True(t, resp.RecursionAvailable)
	assert.True(t, resp.RecursionDesired)
	assert.Equal(t, dns.RcodeSuccess, resp.Rcode)
	require.Len(t, resp.Question, 1)
	assert.Equal(t, "www.example.test.", resp.Question[0].Name)
	require.Len(t, resp.Answer, 1)
	a, ok := resp.Answer[0].(*dns.A)
	require.True(t, ok)
	assert.Equal(t, "192.0.2.44", a.A.String())
}

func TestE2E_FollowsGluedDelegation(t *testing.T) {
	var authHits atomic.Int32
	auth := startUpstream(t, authoritative("192.0.2.80", &authHits))
	authPort := netip.MustParseAddrPort(auth).Port()

	root := startUpstream(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Ns = []dns.RR{&dns.NS{
			Hdr: dns.RR_Header{Name: "example.test.", Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: 3600},
			Ns:  "ns1.example.test.",
		}}
		m.Extra = []dns.RR{aRecord("ns1.example.test.", "127.0.0.1")}
		_ = w.WriteMsg(m)
	})

	addr := newE2EApp(t, func(cfg *config.AppConfig) {
		cfg.RootServers = []string{root}
		cfg.ResolverPort = int(authPort)
	})

	q := new(dns.Msg)
	q.SetQuestion("www.example.test.", dns.TypeA)
	resp := exchange(t, addr, q)

	assert.Equal(t, dns.RcodeSuccess, resp.Rcode)
	require.Len(t, resp.Answer, 1)
	assert.Equal(t, "192.0.2.80", resp.Answer[0].(*dns.A).A.String())
	assert.Equal(t, int32(1), authHits.Load())
}

func TestE2E_NXDomainPassedThrough(t *testing.T) {
	root := startUpstream(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(r, dns.RcodeNameError)
		_ = w.WriteMsg(m)
	})
	addr := newE2EApp(t, func(cfg *config.AppConfig) { cfg.RootServers = []string{root} })

	q := new(dns.Msg)
	q.SetQuestion("missing.example.test.", dns.TypeAAAA)
	resp := exchange(t, addr, q)

	assert.Equal(t, dns.RcodeNameError, resp.Rcode)
	assert.Empty(t, resp.Answer)
}

func TestE2E_BlockedNameRefused(t *testing.T) {
	var rootHits atomic.Int32
	root := startUpstream(t, authoritative("192.0.2.44", &rootHits))
	list := writeFile(t, "block.txt", "# ads\n*.ads.example.test\n")

	addr := newE2EApp(t, func(cfg *config.AppConfig) {
		cfg.RootServers = []string{root}
		cfg.BlocklistFile = list
	})

	blocked := new(dns.Msg)
	blocked.SetQuestion("tracker.ads.example.test.", dns.TypeA)
	resp := exchange(t, addr, blocked)
	assert.Equal(t, dns.RcodeRefused, resp.Rcode)
	require.Len(t, resp.Question, 1)
	assert.Equal(t, "tracker.ads.example.test.", resp.Question[0].Name)
	assert.Zero(t, rootHits.Load())

	allowed := new(dns.Msg)
	allowed.SetQuestion("www.example.test.", dns.TypeA)
	resp = exchange(t, addr, allowed)
	assert.Equal(t, dns.RcodeSuccess, resp.Rcode)
	assert.Equal(t, int32(1), rootHits.Load())
}

func TestE2E_UnreachableRootServFail(t *testing.T) {
	// Bind and release a port so nothing answers on it.
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := pc.LocalAddr().String()
	require.NoError(t, pc.Close())

	addr := newE2EApp(t, func(cfg *config.AppConfig) {
		cfg.RootServers = []string{dead}
		cfg.ResolverTimeout = 200 * time.Millisecond
	})

	q := new(dns.Msg)
	q.SetQuestion("www.example.test.", dns.TypeA)
	resp := exchange(t, addr, q)
	assert.Equal(t, dns.RcodeServerFailure, resp.Rcode)
}

func TestE2E_MalformedQueryFormErr(t *testing.T) {
	root := startUpstream(t, authoritative("192.0.2.44", nil))
	addr := newE2EApp(t, func(cfg *config.AppConfig) { cfg.RootServers = []string{root} })

	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer conn.Close()

	// header only, claims one question that never follows
	_, err = conn.Write([]byte{0x12, 0x34, 0x01, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	resp := new(dns.Msg)
	require.NoError(t, resp.Unpack(buf[:n]))
	assert.Equal(t, uint16(0x1234), resp.Id)
	assert.True(t, resp.Response)
	assert.True(t, resp.RecursionDesired)
	assert.Equal(t, dns.RcodeFormatError, resp.Rcode)
}

type logEntry struct {
	fields map[string]any
	msg    string
}

// captureLogger keeps Info entries for inspection.
type captureLogger struct {
	mu   sync.Mutex
	info []logEntry
}

func (l *captureLogger) Info(fields map[string]any, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.info = append(l.info, logEntry{fields: fields, msg: msg})
}
func (l *captureLogger) Debug(map[string]any, string) {}
func (l *captureLogger) Warn(map[string]any, string)  {}
func (l *captureLogger) Error(map[string]any, string) {}
func (l *captureLogger) Panic(map[string]any, string) {}
func (l *captureLogger) Fatal(map[string]any, string) {}

func (l *captureLogger) find(msg string) (map[string]any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.info {
		if e.msg == msg {
			return e.fields, true
		}
	}
	return nil, false
}

var _ log.Logger = (*captureLogger)(nil)

func TestE2E_ShutdownReportsBlocklistStats(t *testing.T) {
	root := startUpstream(t, authoritative("192.0.2.44", nil))
	cfg := testConfig(t)
	cfg.RootServers = []string{root}
	cfg.BlocklistFile = writeFile(t, "block.txt", "*.ads.example.test\nexact.example.test\n")

	logger := &captureLogger{}
	app, err := buildApplication(cfg, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(ctx) }()
	require.Eventually(t, func() bool {
		ap, err := netip.ParseAddrPort(app.transport.Address())
		return err == nil && ap.Port() != 0
	}, 2*time.Second, 10*time.Millisecond)
	addr := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), netip.MustParseAddrPort(app.transport.Address()).Port()).String()

	for i := 0; i < 2; i++ {
		q := new(dns.Msg)
		q.SetQuestion("tracker.ads.example.test.", dns.TypeA)
		assert.Equal(t, dns.RcodeRefused, exchange(t, addr, q).Rcode)
	}

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("application failed to shut down")
	}

	fields, ok := logger.find("Blocklist statistics")
	require.True(t, ok)
	assert.Equal(t, uint64(1), fields["cache_hits"])
	assert.Equal(t, uint64(1), fields["cache_misses"])
	assert.Equal(t, uint64(0), fields["cache_evictions"])
	assert.Equal(t, uint64(1), fields["exact_rules"])
	assert.Equal(t, uint64(1), fields["suffix_rules"])

	_, ok = logger.find("Query statistics")
	assert.True(t, ok)
}

func TestApplication_NoBlocklistStatsWhenDisabled(t *testing.T) {
	logger := &captureLogger{}
	app, err := buildApplication(testConfig(t), logger)
	require.NoError(t, err)

	app.logBlocklistStats()
	_, ok := logger.find("Blocklist statistics")
	assert.False(t, ok)
}
