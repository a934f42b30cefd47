package wire

import (
	"fmt"
	"math"
	"net/netip"

	"github.com/haukened/rr-recursor/internal/dns/domain"
)

const classIN = 1

// ReadRecord decodes one resource record at the current position.
//
// The class is read and discarded. Typed rdata must consume exactly
// RDLENGTH bytes. Types without a variant decode as UnknownRecord and the
// cursor is moved past their rdata without interpreting it.
func ReadRecord(b *Buffer) (domain.Record, error) {
	name, err := ReadName(b)
	if err != nil {
		return nil, fmt.Errorf("record name: %w", err)
	}
	if err := b.need(10); err != nil {
		return nil, fmt.Errorf("record %q fixed fields: %w", name, err)
	}
	rawType, _ := b.ReadU16()
	_, _ = b.ReadU16() // class
	ttl, _ := b.ReadU32()
	rdlen, _ := b.ReadU16()

	hdr := domain.RecordHeader{Name: name, TTLValue: ttl}
	qtype := domain.QueryType(rawType)

	if !qtype.IsKnown() {
		if err := b.Skip(int(rdlen)); err != nil {
			return nil, fmt.Errorf("record %q type %d rdata: %w", name, rawType, err)
		}
		return domain.UnknownRecord{RecordHeader: hdr, RawType: rawType, DataLen: rdlen}, nil
	}

	if err := b.need(int(rdlen)); err != nil {
		return nil, fmt.Errorf("record %q %s rdata: %w", name, qtype, err)
	}
	start := b.Tell()

	rr, err := readRData(b, hdr, qtype, rdlen)
	if err != nil {
		return nil, fmt.Errorf("record %q %s rdata: %w", name, qtype, err)
	}
	if used := b.Tell() - start; used != int(rdlen) {
		return nil, fmt.Errorf("%w: record %q %s rdata used %d of %d bytes", ErrMalformed, name, qtype, used, rdlen)
	}
	return rr, nil
}

func readRData(b *Buffer, hdr domain.RecordHeader, qtype domain.QueryType, rdlen uint16) (domain.Record, error) {
	switch qtype {
	case domain.TypeA:
		// Address records must carry exactly their address; any other
		// RDLENGTH fails the whole message rather than being read leniently.
		if rdlen != 4 {
			return nil, fmt.Errorf("%w: A rdata length %d", ErrMalformed, rdlen)
		}
		raw, _ := b.ReadBytes(4)
		return domain.ARecord{RecordHeader: hdr, Addr: netip.AddrFrom4([4]byte(raw))}, nil
	case domain.TypeAAAA:
		if rdlen != 16 {
			return nil, fmt.Errorf("%w: AAAA rdata length %d", ErrMalformed, rdlen)
		}
		raw, _ := b.ReadBytes(16)
		return domain.AAAARecord{RecordHeader: hdr, Addr: netip.AddrFrom16([16]byte(raw))}, nil
	case domain.TypeNS:
		host, err := ReadName(b)
		if err != nil {
			return nil, err
		}
		return domain.NSRecord{RecordHeader: hdr, Host: host}, nil
	case domain.TypeCNAME:
		host, err := ReadName(b)
		if err != nil {
			return nil, err
		}
		return domain.CNAMERecord{RecordHeader: hdr, Host: host}, nil
	case domain.TypeMX:
		prio, err := b.ReadU16()
		if err != nil {
			return nil, err
		}
		host, err := ReadName(b)
		if err != nil {
			return nil, err
		}
		return domain.MXRecord{RecordHeader: hdr, Priority: prio, Host: host}, nil
	default:
		return nil, fmt.Errorf("%w: no rdata decoder for %s", ErrMalformed, qtype)
	}
}

// WriteRecord appends rr and returns the number of bytes written.
//
// RDLENGTH is patched in after the rdata is written, so it always equals the
// encoded size. An UnknownRecord has no payload to write: it writes nothing
// and returns 0.
func WriteRecord(b *Buffer, rr domain.Record) (int, error) {
	if _, ok := rr.(domain.UnknownRecord); ok {
		return 0, nil
	}

	// Encode into a scratch buffer so a failure leaves b untouched.
	scratch := &Buffer{}
	if err := WriteName(scratch, rr.Domain()); err != nil {
		return 0, fmt.Errorf("record name: %w", err)
	}
	scratch.WriteU16(uint16(rr.Type()))
	scratch.WriteU16(classIN)
	scratch.WriteU32(rr.TTL())
	lenAt := scratch.Len()
	scratch.WriteU16(0)

	if err := writeRData(scratch, rr); err != nil {
		return 0, fmt.Errorf("record %q %s rdata: %w", rr.Domain(), rr.Type(), err)
	}

	rdlen := scratch.Len() - lenAt - 2
	if rdlen > math.MaxUint16 {
		return 0, fmt.Errorf("%w: record %q rdata is %d bytes", ErrMalformed, rr.Domain(), rdlen)
	}
	if err := scratch.SetU16(lenAt, uint16(rdlen)); err != nil {
		return 0, err
	}

	b.WriteBytes(scratch.Bytes())
	return scratch.Len(), nil
}

func writeRData(b *Buffer, rr domain.Record) error {
	switch r := rr.(type) {
	case domain.ARecord:
		if !r.Addr.Is4() {
			return fmt.Errorf("%w: %v is not an IPv4 address", ErrMalformed, r.Addr)
		}
		raw := r.Addr.As4()
		b.WriteBytes(raw[:])
	case domain.AAAARecord:
		if !r.Addr.IsValid() || r.Addr.Is4() {
			return fmt.Errorf("%w: %v is not an IPv6 address", ErrMalformed, r.Addr)
		}
		raw := r.Addr.As16()
		b.WriteBytes(raw[:])
	case domain.NSRecord:
		return WriteName(b, r.Host)
	case domain.CNAMERecord:
		return WriteName(b, r.Host)
	case domain.MXRecord:
		b.WriteU16(r.Priority)
		return WriteName(b, r.Host)
	default:
		return fmt.Errorf("%w: cannot encode %T", ErrMalformed, rr)
	}
	return nil
}
