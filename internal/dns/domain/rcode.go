package domain

import "fmt"

// ResultCode is the 4-bit RCODE carried in the DNS header.
type ResultCode uint8

// Result codes understood by rr-recursor (RFC 1035 §4.1.1).
const (
	NOERROR  ResultCode = 0
	FORMERR  ResultCode = 1
	SERVFAIL ResultCode = 2
	NXDOMAIN ResultCode = 3
	NOTIMP   ResultCode = 4
	REFUSED  ResultCode = 5
)

// ResultCodeFromNum maps a raw 4-bit RCODE to a ResultCode.
// Values outside NOERROR..REFUSED are fixed up to NOERROR.
func ResultCodeFromNum(n uint8) ResultCode {
	switch rc := ResultCode(n & 0x0F); rc {
	case NOERROR, FORMERR, SERVFAIL, NXDOMAIN, NOTIMP, REFUSED:
		return rc
	default:
		return NOERROR
	}
}

// String returns the textual representation of the ResultCode.
func (r ResultCode) String() string {
	switch r {
	case NOERROR:
		return "NOERROR"
	case FORMERR:
		return "FORMERR"
	case SERVFAIL:
		return "SERVFAIL"
	case NXDOMAIN:
		return "NXDOMAIN"
	case NOTIMP:
		return "NOTIMP"
	case REFUSED:
		return "REFUSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(r))
	}
}
