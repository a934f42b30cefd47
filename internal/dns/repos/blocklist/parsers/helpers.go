// Package parsers turns blocklist files into domain.BlockRule values.
//
// Two formats are understood: a plain list with one name per line, where a
// leading "*." or "." marks a suffix rule, and /etc/hosts style files whose
// host names become exact rules. Invalid entries are skipped, never fatal.
package parsers

import (
	"bufio"
	"io"
	"strings"

	"github.com/haukened/rr-recursor/internal/dns/common/log"
	"github.com/haukened/rr-recursor/internal/dns/common/utils"
	"github.com/haukened/rr-recursor/internal/dns/domain"
)

const (
	maxNameLen  = 253
	maxLabelLen = 63
)

// scanLines feeds every non-blank, non-comment line of r to fn with inline
// comments and a leading BOM removed.
func scanLines(r io.Reader, logger log.Logger, fn func(lineNum int, line string)) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimPrefix(scanner.Text(), "\uFEFF")
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			logger.Debug(map[string]any{"line": lineNum}, "Skipping blank or comment line")
			continue
		}
		fn(lineNum, line)
	}
	return scanner.Err()
}

// ruleKindFromRaw returns BlockRuleSuffix when raw starts with "*." or ".".
func ruleKindFromRaw(raw string) domain.BlockRuleKind {
	if strings.HasPrefix(raw, "*.") || strings.HasPrefix(raw, ".") {
		return domain.BlockRuleSuffix
	}
	return domain.BlockRuleExact
}

// normalizeDomainName strips a suffix marker and returns the canonical name.
func normalizeDomainName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "*.")
	name = strings.TrimPrefix(name, ".")
	return utils.CanonicalDNSName(name)
}

// isValidFQDN reports whether name has at least two labels of 1-63 bytes
// drawn from [a-z0-9_-], fits in 253 bytes and starts with a letter or digit.
func isValidFQDN(name string) bool {
	if len(name) == 0 || len(name) > maxNameLen {
		return false
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > maxLabelLen {
			return false
		}
		for i := 0; i < len(label); i++ {
			if !isHostByte(label[i]) {
				return false
			}
		}
	}
	return isAlphaNumeric(name[0])
}

func isAlphaNumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

func isHostByte(c byte) bool {
	return isAlphaNumeric(c) || c == '-' || c == '_'
}

// dedupe tracks emitted rules by name and kind, preserving first-seen order.
type dedupe map[string]struct{}

func (d dedupe) add(name string, kind domain.BlockRuleKind) bool {
	key := name + "|" + kind.String()
	if _, ok := d[key]; ok {
		return false
	}
	d[key] = struct{}{}
	return true
}
