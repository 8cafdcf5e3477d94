// Package codec defines the framing contract channels use to peel whole
// messages out of the contiguous unconsumed prefix of an ingress arena, and
// ships the default length-prefixed implementation.
package codec

import (
	"errors"

	"github.com/nx-io/framed/arena"
)

// Errors specific to framing decisions. Views themselves raise
// arena.ErrNotEnoughData for out-of-range typed reads; a codec reuses that
// same sentinel to ask the read loop for more bytes, and raises Corrupted
// when a frame's declared size cannot be trusted.
var (
	ErrNotEnoughData = arena.ErrNotEnoughData
	ErrCorrupted     = arena.ErrCorrupted
)

// Message is a view paired with the codec-declared size of the frame it
// belongs to, in bytes, including whatever header the codec consumes.
type Message struct {
	View arena.View
	Size int
}

// Payload returns the message's bytes, excluding headerLen leading bytes.
// Callers who know their codec's header width use this directly; codecs
// that want to expose payload-only messages can wrap it.
func (m Message) Payload(headerLen int) ([]byte, error) {
	b, err := m.View.Bytes(m.Size)
	if err != nil {
		return nil, err
	}
	return b[headerLen:], nil
}

// Codec decodes framed messages from the contiguous unconsumed prefix of an
// arena. Implementations must be safe to call from a single reactor
// goroutine only; nothing in this package requires concurrent-call safety.
type Codec interface {
	// SizeOf declares how many bytes the next frame at view occupies,
	// including its header. It returns ErrNotEnoughData if view does not
	// yet hold enough bytes to know, or ErrCorrupted if the bytes present
	// can never form a valid frame.
	SizeOf(view arena.View) (int, error)

	// Parse builds a Message for the frame known (via a prior SizeOf) to
	// start at view and span size bytes.
	Parse(view arena.View, size int) (Message, error)
}

// EmitFunc receives each message a ReadBatch peels off, in order.
type EmitFunc func(Message)

// ReadBatch repeatedly calls SizeOf and Parse against the unconsumed prefix
// of view, invoking emit for every whole frame it finds, until either the
// prefix is exhausted, the next frame is incomplete, or emitting the next
// frame would exceed maxBytes. It returns the number of bytes consumed.
//
// An incomplete next frame is not an error: SizeOf's ErrNotEnoughData
// ends the batch and ReadBatch returns the bytes consumed so far with a nil
// error, so the caller keeps the rest unconsumed and retries once more data
// has arrived. ErrCorrupted is returned and must propagate as a fatal
// channel-level error.
func ReadBatch(c Codec, view arena.View, maxBytes int, emit EmitFunc) (int, error) {
	consumed := 0
	for consumed < maxBytes {
		cur, err := view.Consume(consumed)
		if err != nil {
			// fewer bytes remain in the arena than maxBytes claims;
			// treat as "no more data to offer" rather than an error
			break
		}
		size, err := c.SizeOf(cur)
		if err != nil {
			if errors.Is(err, ErrNotEnoughData) {
				break
			}
			return consumed, err
		}
		if consumed+size > maxBytes {
			break
		}
		msg, err := c.Parse(cur, size)
		if err != nil {
			return consumed, err
		}
		emit(msg)
		consumed += size
	}
	return consumed, nil
}
