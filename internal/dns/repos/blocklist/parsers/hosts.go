package parsers

import (
	"io"
	"strings"
	"time"

	"github.com/haukened/rr-recursor/internal/dns/common/log"
	"github.com/haukened/rr-recursor/internal/dns/common/utils"
	"github.com/haukened/rr-recursor/internal/dns/domain"
)

// ParseHostsFile parses /etc/hosts style lines ("address name [name...]")
// and returns an exact rule per valid host name. The address is ignored.
// Wildcards and names with a leading dot are not valid host names and are skipped.
func ParseHostsFile(r io.Reader, source string, logger log.Logger, now time.Time) ([]domain.BlockRule, error) {
	logger = log.OrNoop(logger)
	seen := dedupe{}
	out := make([]domain.BlockRule, 0, 256)

	err := scanLines(r, logger, func(lineNum int, line string) {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			logger.Debug(map[string]any{"line": lineNum}, "Skipping hosts line without names")
			return
		}
		for _, raw := range fields[1:] {
			if strings.HasPrefix(raw, ".") || strings.Contains(raw, "*") {
				logger.Debug(map[string]any{"line": lineNum, "raw": raw}, "Skipping wildcard host")
				continue
			}
			name := utils.CanonicalDNSName(raw)
			if !isValidFQDN(name) || !seen.add(name, domain.BlockRuleExact) {
				continue
			}
			rule, err := domain.NewBlockRule(name, domain.BlockRuleExact, source, now)
			if err != nil {
				continue
			}
			out = append(out, rule)
		}
	})
	if err != nil {
		return nil, err
	}
	logger.Debug(map[string]any{"source": source, "count": len(out)}, "Parsed hosts blocklist")
	return out, nil
}
