package domain

import (
	"net/netip"

	"github.com/haukened/rr-recursor/internal/dns/common/utils"
)

// Packet is a complete DNS message: header, questions and the three record
// sections. A Packet is owned by the call that decoded or built it.
type Packet struct {
	Header      Header
	Questions   []Question
	Answers     []Record
	Authorities []Record
	Resources   []Record
}

// NewQueryPacket builds a standard query for a single question with RD set.
func NewQueryPacket(id uint16, name string, qtype QueryType) Packet {
	return Packet{
		Header: Header{
			ID:               id,
			RecursionDesired: true,
		},
		Questions: []Question{NewQuestion(name, qtype)},
	}
}

// NewErrorResponse builds a response carrying only a result code.
// The request's RD bit is echoed, RA is set.
func NewErrorResponse(id uint16, rd bool, rcode ResultCode) Packet {
	return Packet{
		Header: Header{
			ID:                 id,
			Response:           true,
			RecursionDesired:   rd,
			RecursionAvailable: true,
			ResultCode:         rcode,
		},
	}
}

// FirstA returns the address of the first A record in the answer section.
func (p Packet) FirstA() (netip.Addr, bool) {
	for _, rr := range p.Answers {
		if a, ok := rr.(ARecord); ok {
			return a.Addr, true
		}
	}
	return netip.Addr{}, false
}

// nameServers yields the NS records of the authority section whose zone
// encloses qname, in section order.
func (p Packet) nameServers(qname string) []NSRecord {
	var out []NSRecord
	for _, rr := range p.Authorities {
		ns, ok := rr.(NSRecord)
		if !ok {
			continue
		}
		if utils.IsSubdomain(qname, ns.Name) {
			out = append(out, ns)
		}
	}
	return out
}

// ResolvedNS returns the glue address of the first name server authoritative
// for qname whose A record is present in the additional section.
func (p Packet) ResolvedNS(qname string) (netip.Addr, bool) {
	for _, ns := range p.nameServers(qname) {
		host := utils.CanonicalDNSName(ns.Host)
		for _, rr := range p.Resources {
			a, ok := rr.(ARecord)
			if !ok {
				continue
			}
			if utils.CanonicalDNSName(a.Name) == host {
				return a.Addr, true
			}
		}
	}
	return netip.Addr{}, false
}

// UnresolvedNS returns the host name of the first name server authoritative
// for qname, regardless of glue.
func (p Packet) UnresolvedNS(qname string) (string, bool) {
	servers := p.nameServers(qname)
	if len(servers) == 0 {
		return "", false
	}
	return servers[0].Host, true
}
