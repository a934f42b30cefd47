package parsers

import (
	"bufio"
	"bytes"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haukened/rr-recursor/internal/dns/common/log"
	"github.com/haukened/rr-recursor/internal/dns/domain"
)

// Format identifies a blocklist file layout.
type Format int

const (
	FormatPlain Format = iota
	FormatHosts
)

func (f Format) String() string {
	if f == FormatHosts {
		return "hosts"
	}
	return "plain"
}

// DetectFormat inspects the first meaningful line: if its first field is an
// IP address the data is a hosts file, otherwise a plain list.
func DetectFormat(data []byte) Format {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		fields := strings.Fields(strings.TrimPrefix(line, "\uFEFF"))
		if len(fields) == 0 {
			continue
		}
		if _, err := netip.ParseAddr(fields[0]); err == nil {
			return FormatHosts
		}
		return FormatPlain
	}
	return FormatPlain
}

// ParseFile reads path, detects its format and parses it. Rules are
// attributed to the file's base name.
func ParseFile(path string, logger log.Logger, now time.Time) ([]domain.BlockRule, error) {
	logger = log.OrNoop(logger)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blocklist %s: %w", path, err)
	}
	source := filepath.Base(path)
	format := DetectFormat(data)
	logger.Info(map[string]any{"path": path, "format": format.String()}, "Loading blocklist")

	var rules []domain.BlockRule
	switch format {
	case FormatHosts:
		rules, err = ParseHostsFile(bytes.NewReader(data), source, logger, now)
	default:
		rules, err = ParsePlainList(bytes.NewReader(data), source, logger, now)
	}
	if err != nil {
		return nil, fmt.Errorf("parse blocklist %s: %w", path, err)
	}
	return rules, nil
}
