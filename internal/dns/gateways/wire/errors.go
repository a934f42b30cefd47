package wire

import (
	"errors"
	"fmt"
)

// ErrMalformed is returned (wrapped) for any input that cannot be decoded or
// any packet that cannot be represented on the wire.
var ErrMalformed = errors.New("malformed packet")

var (
	// ErrJumpLimit reports a name that follows more than MaxJumps compression pointers.
	ErrJumpLimit = fmt.Errorf("%w: compression pointer limit exceeded", ErrMalformed)
	// ErrLabelTooLong reports a label longer than 63 bytes on encode.
	ErrLabelTooLong = fmt.Errorf("%w: label exceeds 63 bytes", ErrMalformed)
)
