package wire

import (
	"github.com/haukened/rr-recursor/internal/dns/domain"
)

// HeaderLen is the fixed size of the DNS header.
const HeaderLen = 12

// first flag byte
const (
	flagRD      = 1 << 0
	flagTC      = 1 << 1
	flagAA      = 1 << 2
	opcodeShift = 3
	opcodeMask  = 0x0F
	flagQR      = 1 << 7
)

// second flag byte
const (
	rcodeMask = 0x0F
	flagCD    = 1 << 4
	flagAD    = 1 << 5
	flagZ     = 1 << 6
	flagRA    = 1 << 7
)

// ReadHeader decodes the 12-byte header at the current position.
func ReadHeader(b *Buffer) (domain.Header, error) {
	var h domain.Header
	if err := b.need(HeaderLen); err != nil {
		return h, err
	}

	h.ID, _ = b.ReadU16()
	hi, _ := b.ReadU8()
	lo, _ := b.ReadU8()

	h.RecursionDesired = hi&flagRD != 0
	h.TruncatedMessage = hi&flagTC != 0
	h.AuthoritativeAnswer = hi&flagAA != 0
	h.Opcode = (hi >> opcodeShift) & opcodeMask
	h.Response = hi&flagQR != 0

	h.ResultCode = domain.ResultCodeFromNum(lo & rcodeMask)
	h.CheckingDisabled = lo&flagCD != 0
	h.AuthedData = lo&flagAD != 0
	h.Z = lo&flagZ != 0
	h.RecursionAvailable = lo&flagRA != 0

	h.Questions, _ = b.ReadU16()
	h.Answers, _ = b.ReadU16()
	h.AuthoritativeEntries, _ = b.ReadU16()
	h.ResourceEntries, _ = b.ReadU16()
	return h, nil
}

// WriteHeader appends h, including its count fields as given.
// EncodePacket sets the counts from the section lengths before calling it.
func WriteHeader(b *Buffer, h domain.Header) {
	var hi, lo uint8
	if h.RecursionDesired {
		hi |= flagRD
	}
	if h.TruncatedMessage {
		hi |= flagTC
	}
	if h.AuthoritativeAnswer {
		hi |= flagAA
	}
	hi |= (h.Opcode & opcodeMask) << opcodeShift
	if h.Response {
		hi |= flagQR
	}

	lo = uint8(h.ResultCode) & rcodeMask
	if h.CheckingDisabled {
		lo |= flagCD
	}
	if h.AuthedData {
		lo |= flagAD
	}
	if h.Z {
		lo |= flagZ
	}
	if h.RecursionAvailable {
		lo |= flagRA
	}

	b.WriteU16(h.ID)
	b.WriteU8(hi)
	b.WriteU8(lo)
	b.WriteU16(h.Questions)
	b.WriteU16(h.Answers)
	b.WriteU16(h.AuthoritativeEntries)
	b.WriteU16(h.ResourceEntries)
}
