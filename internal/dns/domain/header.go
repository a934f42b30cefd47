package domain

import "fmt"

// Header is the fixed 12-byte DNS message header.
//
// The four counts reflect what was read off the wire. When a packet is
// encoded they are ignored and recomputed from the section lengths.
type Header struct {
	ID uint16

	RecursionDesired    bool
	TruncatedMessage    bool
	AuthoritativeAnswer bool
	Opcode              uint8 // 4 bits, 0 = QUERY
	Response            bool

	ResultCode         ResultCode
	CheckingDisabled   bool
	AuthedData         bool
	Z                  bool
	RecursionAvailable bool

	Questions            uint16
	Answers              uint16
	AuthoritativeEntries uint16
	ResourceEntries      uint16
}

// String renders the header on one line in a dig-like layout.
func (h Header) String() string {
	flags := ""
	for _, f := range []struct {
		set  bool
		name string
	}{
		{h.Response, "qr"},
		{h.AuthoritativeAnswer, "aa"},
		{h.TruncatedMessage, "tc"},
		{h.RecursionDesired, "rd"},
		{h.RecursionAvailable, "ra"},
		{h.Z, "z"},
		{h.AuthedData, "ad"},
		{h.CheckingDisabled, "cd"},
	} {
		if f.set {
			flags += " " + f.name
		}
	}
	return fmt.Sprintf("id: %d, opcode: %d, status: %s, flags:%s; QUERY: %d, ANSWER: %d, AUTHORITY: %d, ADDITIONAL: %d",
		h.ID, h.Opcode, h.ResultCode, flags, h.Questions, h.Answers, h.AuthoritativeEntries, h.ResourceEntries)
}
