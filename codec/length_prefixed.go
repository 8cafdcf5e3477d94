package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/nx-io/framed/arena"
)

// Width is the byte width of a length-prefixed codec's length field.
type Width int

const (
	Width1 Width = 1
	Width2 Width = 2
	Width4 Width = 4
)

// LengthPrefixed is the default codec: each frame begins with a Width-byte
// integer, in ByteOrder, giving the total frame length in bytes, the length
// field itself included. A declared length smaller than the field width is
// corrupt, since a frame can never be shorter than its own header.
type LengthPrefixed struct {
	Width     Width
	ByteOrder binary.ByteOrder
}

// NewLengthPrefixed builds a LengthPrefixed codec. It panics on an
// unsupported width; order defaults to binary.BigEndian if nil.
func NewLengthPrefixed(width Width, order binary.ByteOrder) *LengthPrefixed {
	switch width {
	case Width1, Width2, Width4:
	default:
		panic(fmt.Sprintf("codec: unsupported length-prefix width %d", width))
	}
	if order == nil {
		order = binary.BigEndian
	}
	return &LengthPrefixed{Width: width, ByteOrder: order}
}

var _ Codec = (*LengthPrefixed)(nil)

// SizeOf reads the length field at the start of view and returns the total
// frame size it declares.
func (c *LengthPrefixed) SizeOf(view arena.View) (int, error) {
	var n int
	switch c.Width {
	case Width1:
		b, err := view.Uint8(0)
		if err != nil {
			return 0, err
		}
		n = int(b)
	case Width2:
		v, err := view.Uint16(0, c.ByteOrder)
		if err != nil {
			return 0, err
		}
		n = int(v)
	case Width4:
		v, err := view.Uint32(0, c.ByteOrder)
		if err != nil {
			return 0, err
		}
		n = int(v)
	}
	if n < int(c.Width) {
		return 0, fmt.Errorf("codec: frame length %d shorter than header width %d: %w", n, c.Width, ErrCorrupted)
	}
	return n, nil
}

// Parse builds a Message spanning size bytes starting at view. It does not
// re-validate size; callers only pass a size previously returned by SizeOf
// for the same prefix.
func (c *LengthPrefixed) Parse(view arena.View, size int) (Message, error) {
	if _, err := view.Bytes(size); err != nil {
		return Message{}, err
	}
	return Message{View: view, Size: size}, nil
}

// HeaderLen returns the number of bytes a message's length field occupies,
// for callers that want Message.Payload without hardcoding the width.
func (c *LengthPrefixed) HeaderLen() int { return int(c.Width) }

// PadTo rounds size up to the nearest multiple, or returns size unchanged
// if multiple is zero. Used by callers that want fixed-alignment frames,
// e.g. to keep every frame a cache-line multiple for a downstream SIMD
// consumer; the default LengthPrefixed codec does not call this itself.
func PadTo(size, multiple int) int {
	if multiple == 0 {
		return size
	}
	return (size + multiple - 1) / multiple * multiple
}

// Encode writes a complete frame for payload into dst (which must be at
// least len(payload)+HeaderLen() bytes), returning the number of bytes
// written. It is the inverse of SizeOf+Parse, used by writers to build
// outgoing frames.
func (c *LengthPrefixed) Encode(dst []byte, payload []byte) (int, error) {
	total := len(payload) + int(c.Width)
	if len(dst) < total {
		return 0, ErrCorrupted
	}
	switch c.Width {
	case Width1:
		if total > 0xFF {
			return 0, fmt.Errorf("codec: frame of %d bytes overflows 1-byte length field", total)
		}
		dst[0] = byte(total)
	case Width2:
		if total > 0xFFFF {
			return 0, fmt.Errorf("codec: frame of %d bytes overflows 2-byte length field", total)
		}
		c.ByteOrder.PutUint16(dst, uint16(total))
	case Width4:
		c.ByteOrder.PutUint32(dst, uint32(total))
	}
	copy(dst[c.Width:], payload)
	return total, nil
}
