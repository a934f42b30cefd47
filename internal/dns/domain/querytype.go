package domain

import (
	"fmt"
	"strings"
)

// QueryType is the 16-bit TYPE / QTYPE field.
// The named constants are the types whose rdata rr-recursor understands;
// any other value is carried through as-is and treated as Unknown.
type QueryType uint16

const (
	TypeUnknown QueryType = 0
	TypeA       QueryType = 1
	TypeNS      QueryType = 2
	TypeCNAME   QueryType = 5
	TypeMX      QueryType = 15
	TypeAAAA    QueryType = 28
)

// IsKnown reports whether t is one of the record types with a typed variant.
func (t QueryType) IsKnown() bool {
	switch t {
	case TypeA, TypeNS, TypeCNAME, TypeMX, TypeAAAA:
		return true
	default:
		return false
	}
}

// String returns the mnemonic for t, or UNKNOWN(<value>).
func (t QueryType) String() string {
	switch t {
	case TypeA:
		return "A"
	case TypeNS:
		return "NS"
	case TypeCNAME:
		return "CNAME"
	case TypeMX:
		return "MX"
	case TypeAAAA:
		return "AAAA"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint16(t))
	}
}

// ParseQueryType converts a mnemonic such as "aaaa" to a QueryType.
// It also accepts the generic TYPEnnn form for types without a mnemonic.
func ParseQueryType(s string) (QueryType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "A":
		return TypeA, nil
	case "NS":
		return TypeNS, nil
	case "CNAME":
		return TypeCNAME, nil
	case "MX":
		return TypeMX, nil
	case "AAAA":
		return TypeAAAA, nil
	}
	var n uint16
	if _, err := fmt.Sscanf(s, "TYPE%d", &n); err == nil {
		return QueryType(n), nil
	}
	return TypeUnknown, fmt.Errorf("unsupported query type: %q", s)
}
