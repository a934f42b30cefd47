package wire

import (
	"fmt"
	"math"

	"github.com/haukened/rr-recursor/internal/dns/domain"
)

// Smallest possible encodings, used to bound preallocation from
// attacker-controlled counts: root name + type + class, and root name +
// type + class + ttl + rdlength.
const (
	minQuestionLen = 5
	minRecordLen   = 11
)

// ReadQuestion decodes one question entry. The class is read and discarded;
// the type number is kept verbatim.
func ReadQuestion(b *Buffer) (domain.Question, error) {
	name, err := ReadName(b)
	if err != nil {
		return domain.Question{}, fmt.Errorf("question name: %w", err)
	}
	qtype, err := b.ReadU16()
	if err != nil {
		return domain.Question{}, fmt.Errorf("question %q type: %w", name, err)
	}
	if _, err := b.ReadU16(); err != nil {
		return domain.Question{}, fmt.Errorf("question %q class: %w", name, err)
	}
	return domain.Question{Name: name, Type: domain.QueryType(qtype)}, nil
}

// WriteQuestion appends q with class IN.
func WriteQuestion(b *Buffer, q domain.Question) error {
	if err := WriteName(b, q.Name); err != nil {
		return fmt.Errorf("question name: %w", err)
	}
	b.WriteU16(uint16(q.Type))
	b.WriteU16(classIN)
	return nil
}

// DecodePacket decodes a complete DNS message.
//
// The header counts drive how many entries are read from each section; a
// count larger than the data present fails on the first read that runs out.
// Trailing bytes after the last record are ignored.
func DecodePacket(data []byte) (domain.Packet, error) {
	b := NewBuffer(data)

	h, err := ReadHeader(b)
	if err != nil {
		return domain.Packet{}, fmt.Errorf("header: %w", err)
	}
	p := domain.Packet{Header: h}

	if h.Questions > 0 {
		p.Questions = make([]domain.Question, 0, prealloc(h.Questions, b.Remaining(), minQuestionLen))
	}
	for i := 0; i < int(h.Questions); i++ {
		q, err := ReadQuestion(b)
		if err != nil {
			return domain.Packet{}, fmt.Errorf("question %d: %w", i, err)
		}
		p.Questions = append(p.Questions, q)
	}

	sections := []struct {
		name  string
		count uint16
		dst   *[]domain.Record
	}{
		{"answer", h.Answers, &p.Answers},
		{"authority", h.AuthoritativeEntries, &p.Authorities},
		{"additional", h.ResourceEntries, &p.Resources},
	}
	for _, s := range sections {
		if s.count == 0 {
			continue
		}
		*s.dst = make([]domain.Record, 0, prealloc(s.count, b.Remaining(), minRecordLen))
		for i := 0; i < int(s.count); i++ {
			rr, err := ReadRecord(b)
			if err != nil {
				return domain.Packet{}, fmt.Errorf("%s %d: %w", s.name, i, err)
			}
			*s.dst = append(*s.dst, rr)
		}
	}

	return p, nil
}

// EncodePacket encodes p. The header counts are recomputed from the
// section lengths; whatever p.Header carries is ignored.
//
// UnknownRecords encode to zero bytes but are still counted, so callers
// that relay decoded records must filter them out first.
func EncodePacket(p domain.Packet) ([]byte, error) {
	for _, n := range []int{len(p.Questions), len(p.Answers), len(p.Authorities), len(p.Resources)} {
		if n > math.MaxUint16 {
			return nil, fmt.Errorf("%w: section with %d entries", ErrMalformed, n)
		}
	}

	h := p.Header
	h.Questions = uint16(len(p.Questions))
	h.Answers = uint16(len(p.Answers))
	h.AuthoritativeEntries = uint16(len(p.Authorities))
	h.ResourceEntries = uint16(len(p.Resources))

	b := &Buffer{data: make([]byte, 0, 512)}
	WriteHeader(b, h)

	for i, q := range p.Questions {
		if err := WriteQuestion(b, q); err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
	}

	sections := []struct {
		name    string
		records []domain.Record
	}{
		{"answer", p.Answers},
		{"authority", p.Authorities},
		{"additional", p.Resources},
	}
	for _, s := range sections {
		for i, rr := range s.records {
			if _, err := WriteRecord(b, rr); err != nil {
				return nil, fmt.Errorf("%s %d: %w", s.name, i, err)
			}
		}
	}

	return b.Bytes(), nil
}

func prealloc(count uint16, remaining, minLen int) int {
	return min(int(count), remaining/minLen)
}
