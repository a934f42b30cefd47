package main

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, handler dns.HandlerFunc) string {
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

func writePacket(t *testing.T, m *dns.Msg) string {
	t.Helper()
	data, err := m.Pack()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "packet.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func referral() *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion("www.Example.test.", dns.TypeA)
	m.Id = 0x0A0B
	m.Response = true
	m.Compress = true
	m.Ns = []dns.RR{&dns.NS{
		Hdr: dns.RR_Header{Name: "example.test.", Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: 3600},
		Ns:  "ns1.example.test.",
	}}
	m.Extra = []dns.RR{&dns.A{
		Hdr: dns.RR_Header{Name: "ns1.example.test.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 3600},
		A:   net.ParseIP("192.0.2.53"),
	}}
	return m
}

func TestRun_File(t *testing.T) {
	path := writePacket(t, referral())

	var stdout, stderr bytes.Buffer
	code := run([]string{path}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	out := stdout.String()
	assert.Contains(t, out, ";; ->>HEADER<<- id: 2571, opcode: 0, status: NOERROR, flags: qr rd;")
	assert.Contains(t, out, ";; QUESTION SECTION:\n;www.example.test.\tIN\tA\n")
	assert.Contains(t, out, ";; AUTHORITY SECTION:\nexample.test.\t3600\tIN\tNS\tns1.example.test.\n")
	assert.Contains(t, out, ";; ADDITIONAL SECTION:\nns1.example.test.\t3600\tIN\tA\t192.0.2.53\n")
	assert.NotContains(t, out, "ANSWER SECTION")
}

func TestRun_FileErrors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run([]string{filepath.Join(t.TempDir(), "nope.bin")}, &stdout, &stderr)
		assert.Equal(t, 1, code)
		assert.Empty(t, stdout.String())
	})
	t.Run("truncated", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "short.bin")
		require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o600))

		var stdout, stderr bytes.Buffer
		code := run([]string{path}, &stdout, &stderr)
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr.String(), "decode")
	})
}

func TestRun_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no args", nil},
		{"two args", []string{"a", "b"}},
		{"unknown flag", []string{"-nope", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, 2, run(tt.args, &stdout, &stderr))
			assert.NotEmpty(t, stderr.String())
		})
	}
}

func TestRun_Query(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantName string
		wantType uint16
	}{
		{"unicode name", []string{"-type", "mx", "bücher.example.test"}, "xn--bcher-kva.example.test.", dns.TypeMX},
		{"service label", []string{"-type", "TYPE16", "_dmarc.example.test"}, "_dmarc.example.test.", dns.TypeTXT},
		{"nested service labels", []string{"-type", "TYPE33", "_sip._tcp.example.test"}, "_sip._tcp.example.test.", dns.TypeSRV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := make(chan dns.Question, 1)
			addr := startServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
				seen <- r.Question[0]
				m := new(dns.Msg)
				m.SetReply(r)
				m.Answer = []dns.RR{&dns.MX{
					Hdr:        dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeMX, Class: dns.ClassINET, Ttl: 300},
					Preference: 10,
					Mx:         "mail.example.test.",
				}}
				_ = w.WriteMsg(m)
			})

			var stdout, stderr bytes.Buffer
			code := run(append([]string{"-server", addr}, tt.args...), &stdout, &stderr)
			require.Equal(t, 0, code, stderr.String())

			q := <-seen
			assert.Equal(t, tt.wantName, q.Name)
			assert.Equal(t, tt.wantType, q.Qtype)
			assert.Contains(t, stdout.String(), tt.wantName+"\t300\tIN\tMX\t10 mail.example.test.")
		})
	}
}

func TestRun_QueryErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad type", []string{"-server", "127.0.0.1:53", "-type", "bogus", "example.test"}, "unsupported query type"},
		{"label too long", []string{"-server", "127.0.0.1:53", strings.Repeat("a", 64) + ".example.test"}, "invalid name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, 1, run(tt.args, &stdout, &stderr))
			assert.Contains(t, stderr.String(), tt.want)
		})
	}
}
