package parsers

import (
	"io"
	"time"

	"github.com/haukened/rr-recursor/internal/dns/common/log"
	"github.com/haukened/rr-recursor/internal/dns/domain"
)

// ParsePlainList parses a newline-delimited list of names. Names are exact
// rules by default; a leading "*." or "." makes a suffix rule that also
// matches the name itself. The same name may appear once per kind.
func ParsePlainList(r io.Reader, source string, logger log.Logger, now time.Time) ([]domain.BlockRule, error) {
	logger = log.OrNoop(logger)
	seen := dedupe{}
	out := make([]domain.BlockRule, 0, 256)

	err := scanLines(r, logger, func(lineNum int, line string) {
		kind := ruleKindFromRaw(line)
		name := normalizeDomainName(line)
		if !isValidFQDN(name) {
			logger.Debug(map[string]any{"line": lineNum, "raw": line}, "Skipping invalid name")
			return
		}
		if !seen.add(name, kind) {
			return
		}
		rule, err := domain.NewBlockRule(name, kind, source, now)
		if err != nil {
			logger.Debug(map[string]any{"line": lineNum, "name": name, "error": err.Error()}, "Skipping invalid rule")
			return
		}
		out = append(out, rule)
	})
	if err != nil {
		return nil, err
	}
	logger.Debug(map[string]any{"source": source, "count": len(out)}, "Parsed plain blocklist")
	return out, nil
}
