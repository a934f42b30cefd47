package domain

import (
	"fmt"
	"strings"
	"time"
)

// BlockRuleKind defines how a rule matches domains.
//
// exact  - matches the name only
// suffix - matches the name and any subdomain of it
type BlockRuleKind uint8

const (
	BlockRuleExact BlockRuleKind = iota
	BlockRuleSuffix
)

// String returns a stable string representation of the rule kind.
func (k BlockRuleKind) String() string {
	switch k {
	case BlockRuleExact:
		return "exact"
	case BlockRuleSuffix:
		return "suffix"
	default:
		return fmt.Sprintf("BlockRuleKind(%d)", k)
	}
}

// BlockRule is a single blocking rule read from a list file.
// Name is canonical: lowercase, no trailing dot.
type BlockRule struct {
	Name    string
	Kind    BlockRuleKind
	Source  string
	AddedAt time.Time
}

// NewBlockRule constructs a BlockRule and validates its fields.
func NewBlockRule(name string, kind BlockRuleKind, source string, addedAt time.Time) (BlockRule, error) {
	r := BlockRule{
		Name:    strings.TrimSpace(name),
		Kind:    kind,
		Source:  strings.TrimSpace(source),
		AddedAt: addedAt,
	}
	if err := r.Validate(); err != nil {
		return BlockRule{}, err
	}
	return r, nil
}

// Validate checks the BlockRule for required fields and supported values.
func (r BlockRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name must not be empty")
	}
	if r.Source == "" {
		return fmt.Errorf("rule source must not be empty")
	}
	if r.AddedAt.IsZero() {
		return fmt.Errorf("rule addedAt must be set")
	}
	switch r.Kind {
	case BlockRuleExact, BlockRuleSuffix:
	default:
		return fmt.Errorf("unsupported BlockRuleKind: %d", r.Kind)
	}
	return nil
}

// BlockDecision is the outcome of evaluating a name against the blocklist.
type BlockDecision struct {
	Blocked     bool
	MatchedRule string
	Source      string
	Kind        BlockRuleKind
}

// AllowDecision returns a not-blocked decision.
func AllowDecision() BlockDecision { return BlockDecision{} }
