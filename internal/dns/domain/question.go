package domain

import (
	"fmt"

	"github.com/haukened/rr-recursor/internal/dns/common/utils"
)

// Question is one entry of the question section. Class is always IN.
type Question struct {
	Name string
	Type QueryType
}

// NewQuestion constructs a Question with a canonical (lowercase, no trailing dot) name.
func NewQuestion(name string, qtype QueryType) Question {
	return Question{
		Name: utils.CanonicalDNSName(name),
		Type: qtype,
	}
}

func (q Question) String() string {
	return fmt.Sprintf("%s.\tIN\t%s", q.Name, q.Type)
}
