package domain

import (
	"fmt"
	"net/netip"
)

// Record is a resource record. It is a closed set of variants:
// ARecord, AAAARecord, NSRecord, CNAMERecord, MXRecord and UnknownRecord.
// Code that needs variant data type-switches over these.
type Record interface {
	// Domain is the owner name of the record.
	Domain() string
	// TTL is the time to live in seconds.
	TTL() uint32
	// Type is the on-wire TYPE value.
	Type() QueryType

	record()
}

// RecordHeader holds the fields every variant carries.
type RecordHeader struct {
	Name     string
	TTLValue uint32
}

func (h RecordHeader) Domain() string { return h.Name }
func (h RecordHeader) TTL() uint32    { return h.TTLValue }
func (RecordHeader) record()          {}

// ARecord maps a name to an IPv4 address.
type ARecord struct {
	RecordHeader
	Addr netip.Addr
}

func (ARecord) Type() QueryType { return TypeA }

func (r ARecord) String() string {
	return fmt.Sprintf("%s.\t%d\tIN\tA\t%s", r.Name, r.TTLValue, r.Addr)
}

// AAAARecord maps a name to an IPv6 address.
type AAAARecord struct {
	RecordHeader
	Addr netip.Addr
}

func (AAAARecord) Type() QueryType { return TypeAAAA }

func (r AAAARecord) String() string {
	return fmt.Sprintf("%s.\t%d\tIN\tAAAA\t%s", r.Name, r.TTLValue, r.Addr)
}

// NSRecord delegates a zone to a name server host.
type NSRecord struct {
	RecordHeader
	Host string
}

func (NSRecord) Type() QueryType { return TypeNS }

func (r NSRecord) String() string {
	return fmt.Sprintf("%s.\t%d\tIN\tNS\t%s.", r.Name, r.TTLValue, r.Host)
}

// CNAMERecord aliases a name to its canonical name.
type CNAMERecord struct {
	RecordHeader
	Host string
}

func (CNAMERecord) Type() QueryType { return TypeCNAME }

func (r CNAMERecord) String() string {
	return fmt.Sprintf("%s.\t%d\tIN\tCNAME\t%s.", r.Name, r.TTLValue, r.Host)
}

// MXRecord names a mail exchange with its preference.
type MXRecord struct {
	RecordHeader
	Priority uint16
	Host     string
}

func (MXRecord) Type() QueryType { return TypeMX }

func (r MXRecord) String() string {
	return fmt.Sprintf("%s.\t%d\tIN\tMX\t%d %s.", r.Name, r.TTLValue, r.Priority, r.Host)
}

// UnknownRecord stands in for any type without a typed variant.
// Only the raw type and the declared rdata length are kept; the payload is
// skipped on decode and nothing is written on encode.
type UnknownRecord struct {
	RecordHeader
	RawType uint16
	DataLen uint16
}

func (r UnknownRecord) Type() QueryType { return QueryType(r.RawType) }

func (r UnknownRecord) String() string {
	return fmt.Sprintf("%s.\t%d\tIN\tTYPE%d\t; %d bytes skipped", r.Name, r.TTLValue, r.RawType, r.DataLen)
}

// NewARecord is a convenience constructor used by tests and tools.
func NewARecord(name string, ttl uint32, addr netip.Addr) ARecord {
	return ARecord{RecordHeader: RecordHeader{Name: name, TTLValue: ttl}, Addr: addr}
}

// NewAAAARecord is a convenience constructor used by tests and tools.
func NewAAAARecord(name string, ttl uint32, addr netip.Addr) AAAARecord {
	return AAAARecord{RecordHeader: RecordHeader{Name: name, TTLValue: ttl}, Addr: addr}
}

// NewNSRecord is a convenience constructor used by tests and tools.
func NewNSRecord(name string, ttl uint32, host string) NSRecord {
	return NSRecord{RecordHeader: RecordHeader{Name: name, TTLValue: ttl}, Host: host}
}

// NewCNAMERecord is a convenience constructor used by tests and tools.
func NewCNAMERecord(name string, ttl uint32, host string) CNAMERecord {
	return CNAMERecord{RecordHeader: RecordHeader{Name: name, TTLValue: ttl}, Host: host}
}

// NewMXRecord is a convenience constructor used by tests and tools.
func NewMXRecord(name string, ttl uint32, priority uint16, host string) MXRecord {
	return MXRecord{RecordHeader: RecordHeader{Name: name, TTLValue: ttl}, Priority: priority, Host: host}
}

var (
	_ Record = ARecord{}
	_ Record = AAAARecord{}
	_ Record = NSRecord{}
	_ Record = CNAMERecord{}
	_ Record = MXRecord{}
	_ Record = UnknownRecord{}
)
