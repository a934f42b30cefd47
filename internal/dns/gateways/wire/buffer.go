// Package wire encodes and decodes DNS messages in the RFC 1035 wire format.
//
// Decoding understands name compression and is safe against hostile input:
// every read is bounds checked and pointer chains are capped at MaxJumps.
// Encoding never emits compression pointers.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Buffer is a seekable cursor over a DNS message. Reads advance the position;
// writes always append to the end of the underlying slice.
type Buffer struct {
	data []byte
	pos  int
}

// NewBuffer returns a Buffer positioned at the start of data.
// The slice is not copied; the caller must not modify it while decoding.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Len returns the total number of bytes in the buffer.
func (b *Buffer) Len() int { return len(b.data) }

// Tell returns the current read position.
func (b *Buffer) Tell() int { return b.pos }

// Remaining returns the number of unread bytes after the current position.
func (b *Buffer) Remaining() int { return len(b.data) - b.pos }

// Bytes returns the underlying slice.
func (b *Buffer) Bytes() []byte { return b.data }

// Seek moves the read position to an absolute offset. Seeking to Len() is
// allowed; any read from there fails.
func (b *Buffer) Seek(pos int) error {
	if pos < 0 || pos > len(b.data) {
		return fmt.Errorf("%w: seek to offset %d outside %d-byte buffer", ErrMalformed, pos, len(b.data))
	}
	b.pos = pos
	return nil
}

func (b *Buffer) need(n int) error {
	if n < 0 || b.pos+n > len(b.data) {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformed, n, b.pos, b.Remaining())
	}
	return nil
}

func (b *Buffer) ReadU8() (uint8, error) {
	if err := b.need(1); err != nil {
		return 0, err
	}
	v := b.data[b.pos]
	b.pos++
	return v, nil
}

func (b *Buffer) ReadU16() (uint16, error) {
	if err := b.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(b.data[b.pos:])
	b.pos += 2
	return v, nil
}

func (b *Buffer) ReadU32() (uint32, error) {
	if err := b.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(b.data[b.pos:])
	b.pos += 4
	return v, nil
}

// ReadBytes returns a copy of the next n bytes.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	if err := b.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b.data[b.pos:b.pos+n])
	b.pos += n
	return out, nil
}

// Skip advances the read position by n bytes.
func (b *Buffer) Skip(n int) error {
	if err := b.need(n); err != nil {
		return err
	}
	b.pos += n
	return nil
}

func (b *Buffer) WriteU8(v uint8) {
	b.data = append(b.data, v)
}

func (b *Buffer) WriteU16(v uint16) {
	b.data = binary.BigEndian.AppendUint16(b.data, v)
}

func (b *Buffer) WriteU32(v uint32) {
	b.data = binary.BigEndian.AppendUint32(b.data, v)
}

func (b *Buffer) WriteBytes(p []byte) {
	b.data = append(b.data, p...)
}

// SetU16 overwrites two already written bytes at off. It is used to patch
// length fields once the data they describe has been written.
func (b *Buffer) SetU16(off int, v uint16) error {
	if off < 0 || off+2 > len(b.data) {
		return fmt.Errorf("%w: patch at offset %d outside %d-byte buffer", ErrMalformed, off, len(b.data))
	}
	binary.BigEndian.PutUint16(b.data[off:], v)
	return nil
}
