// Package roothints loads the root name server addresses the resolver starts from.
//
// A hints file maps server names to one or more addresses under a "servers"
// key and may be YAML, JSON or TOML:
//
//	servers:
//	  a.root-servers.net: 198.41.0.4
//	  b.root-servers.net: [170.247.170.2, "[2801:1b8:10::b]:53"]
//
// Addresses without a port use port 53. Hints are ordered by server name.
package roothints

import (
	"errors"
	"fmt"
	"net/netip"
	"path/filepath"
	"sort"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"

	"github.com/haukened/rr-recursor/internal/dns/common/utils"
)

// DefaultPort is used for addresses given without a port.
const DefaultPort = 53

const serversKey = "servers"

var (
	ErrUnsupportedFormat = errors.New("unsupported root hints format")
	ErrNoServers         = errors.New("root hints file lists no servers")
)

// Hint is one root server address.
type Hint struct {
	Name string
	Addr netip.AddrPort
}

// defaultHints are the IPv4 addresses of the thirteen root servers.
var defaultHints = []Hint{
	{"a.root-servers.net", netip.MustParseAddrPort("198.41.0.4:53")},
	{"b.root-servers.net", netip.MustParseAddrPort("170.247.170.2:53")},
	{"c.root-servers.net", netip.MustParseAddrPort("192.33.4.12:53")},
	{"d.root-servers.net", netip.MustParseAddrPort("199.7.91.13:53")},
	{"e.root-servers.net", netip.MustParseAddrPort("192.203.230.10:53")},
	{"f.root-servers.net", netip.MustParseAddrPort("192.5.5.241:53")},
	{"g.root-servers.net", netip.MustParseAddrPort("192.112.36.4:53")},
	{"h.root-servers.net", netip.MustParseAddrPort("198.97.190.53:53")},
	{"i.root-servers.net", netip.MustParseAddrPort("192.36.148.17:53")},
	{"j.root-servers.net", netip.MustParseAddrPort("192.58.128.30:53")},
	{"k.root-servers.net", netip.MustParseAddrPort("193.0.14.129:53")},
	{"l.root-servers.net", netip.MustParseAddrPort("199.7.83.42:53")},
	{"m.root-servers.net", netip.MustParseAddrPort("202.12.27.33:53")},
}

// Default returns a copy of the built-in root hints.
func Default() []Hint {
	return append([]Hint(nil), defaultHints...)
}

// Addrs extracts the addresses of hints, preserving order.
func Addrs(hints []Hint) []netip.AddrPort {
	out := make([]netip.AddrPort, 0, len(hints))
	for _, h := range hints {
		out = append(out, h.Addr)
	}
	return out
}

// ParseAddr accepts "ip" or "ip:port" ("[v6]:port" for IPv6).
func ParseAddr(s string) (netip.AddrPort, error) {
	s = strings.TrimSpace(s)
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap, nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid root server address %q", s)
	}
	return netip.AddrPortFrom(a, DefaultPort), nil
}

// Load reads a hints file, picking the parser from the file extension.
func Load(path string) ([]Hint, error) {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	case ".toml":
		parser = toml.Parser()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	// Server names contain dots, so keys are split on "/" instead.
	k := koanf.New("/")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("failed to load root hints %s: %w", path, err)
	}

	servers, ok := k.Get(serversKey).(map[string]any)
	if !ok || len(servers) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoServers, path)
	}

	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	var hints []Hint
	for _, name := range names {
		for _, v := range toStringValues(servers[name]) {
			ap, err := ParseAddr(v)
			if err != nil {
				return nil, fmt.Errorf("root hints %s, server %s: %w", path, name, err)
			}
			hints = append(hints, Hint{Name: utils.CanonicalDNSName(name), Addr: ap})
		}
	}
	if len(hints) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoServers, path)
	}
	return hints, nil
}

// toStringValues flattens a parsed value (string or list of strings) and
// drops blanks and non-strings.
func toStringValues(val any) []string {
	switch v := val.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			if s, ok := elem.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}
