package wire

import (
	"fmt"
	"strings"
)

// MaxJumps is the number of compression pointers a single name may follow.
// The next pointer after that fails the decode with ErrJumpLimit.
const MaxJumps = 5

const (
	maxLabelLen  = 63
	pointerMask  = 0xC0
	pointerShift = 8
)

// ReadName decodes a possibly compressed domain name at the current position.
//
// Labels are folded to lowercase ASCII and joined with dots; the root name
// decodes as "". When the name contains a pointer, the cursor is left just
// after the first pointer encountered, no matter how many follow.
func ReadName(b *Buffer) (string, error) {
	var (
		sb     strings.Builder
		resume = -1
		jumps  int
	)

	for {
		length, err := b.ReadU8()
		if err != nil {
			return "", fmt.Errorf("reading label length: %w", err)
		}

		switch length & pointerMask {
		case pointerMask:
			low, err := b.ReadU8()
			if err != nil {
				return "", fmt.Errorf("reading compression pointer: %w", err)
			}
			if jumps == MaxJumps {
				return "", fmt.Errorf("%w: pointer at offset %d", ErrJumpLimit, b.Tell()-2)
			}
			jumps++
			if resume < 0 {
				resume = b.Tell()
			}
			target := int(length&^pointerMask)<<pointerShift | int(low)
			if err := b.Seek(target); err != nil {
				return "", err
			}
			continue
		case 0:
		default:
			// 0x40 and 0x80 label types are reserved (RFC 6891 §5).
			return "", fmt.Errorf("%w: reserved label type 0x%02x at offset %d", ErrMalformed, length, b.Tell()-1)
		}

		if length == 0 {
			break
		}

		label, err := b.ReadBytes(int(length))
		if err != nil {
			return "", fmt.Errorf("reading label: %w", err)
		}
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		for _, c := range label {
			if 'A' <= c && c <= 'Z' {
				c += 'a' - 'A'
			}
			sb.WriteByte(c)
		}
	}

	if resume >= 0 {
		if err := b.Seek(resume); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

// WriteName appends name as a sequence of plain labels and a terminating
// zero byte. Empty labels are skipped, so "", "." and "example.test."
// encode the way their canonical forms do. Nothing is written on error.
func WriteName(b *Buffer, name string) error {
	labels := strings.Split(name, ".")
	for _, label := range labels {
		if len(label) > maxLabelLen {
			return fmt.Errorf("%w: %q is %d bytes", ErrLabelTooLong, label, len(label))
		}
	}
	for _, label := range labels {
		if label == "" {
			continue
		}
		b.WriteU8(uint8(len(label)))
		b.WriteBytes([]byte(label))
	}
	b.WriteU8(0)
	return nil
}
