package arena

import (
	"encoding/binary"
	"errors"
)

// Error kinds that originate at the arena/view layer. Corrupted is raised
// by codecs, not by View itself, but is defined here so codec packages can
// build on a single shared vocabulary.
var (
	ErrNotEnoughData  = errors.New("arena: not enough data")
	ErrNotEnoughSpace = errors.New("arena: not enough space")
	ErrCorrupted      = errors.New("arena: corrupted frame")
)

// View is a (arena, offset, end) cursor: cheap to copy, sharable across
// goroutines as long as the bytes it points at are not concurrently
// mutated. end is the logical end of the readable region and defaults to
// the whole arena; a channel narrows it to the ingress `written` boundary
// so a codec can never read past bytes that have actually arrived off the
// wire, even though the underlying arena has more physical capacity.
// Every typed accessor is bounds-checked against end, not the arena's
// physical size.
type View struct {
	a      *Arena
	offset int
	end    int
}

// NewView constructs a view at offset into a, with its logical end set to
// the whole arena. offset must satisfy 0 <= offset <= a.Size().
func NewView(a *Arena, offset int) View {
	if offset < 0 || offset > a.Size() {
		panic("arena: view offset out of range")
	}
	return View{a: a, offset: offset, end: a.Size()}
}

// NewBoundedView constructs a view at offset into a whose logical end is
// end rather than the arena's full size. 0 <= offset <= end <= a.Size().
func NewBoundedView(a *Arena, offset, end int) View {
	if offset < 0 || end < offset || end > a.Size() {
		panic("arena: bounded view range out of range")
	}
	return View{a: a, offset: offset, end: end}
}

// Arena returns the backing arena.
func (v View) Arena() *Arena { return v.a }

// Offset returns the view's current offset into its arena.
func (v View) Offset() int { return v.offset }

// End returns the view's logical end offset into its arena.
func (v View) End() int { return v.end }

// Remaining reports how many bytes lie between the view's offset and its
// logical end.
func (v View) Remaining() int { return v.end - v.offset }

func (v View) checkBounds(n int) error {
	if n < 0 || v.offset+n > v.end {
		return ErrNotEnoughData
	}
	return nil
}

// Bytes returns the n bytes starting at the view's offset, without
// copying. The returned slice aliases the arena and is only valid while
// the arena is referenced.
func (v View) Bytes(n int) ([]byte, error) {
	if err := v.checkBounds(n); err != nil {
		return nil, err
	}
	return v.a.buf[v.offset : v.offset+n], nil
}

// Uint8 reads a single byte at rel bytes past the view's offset.
func (v View) Uint8(rel int) (byte, error) {
	if err := v.checkBounds(rel + 1); err != nil {
		return 0, err
	}
	return v.a.buf[v.offset+rel], nil
}

// Uint16 reads a 2-byte integer at rel bytes past the view's offset, using
// order for byte interpretation.
func (v View) Uint16(rel int, order binary.ByteOrder) (uint16, error) {
	if err := v.checkBounds(rel + 2); err != nil {
		return 0, err
	}
	return order.Uint16(v.a.buf[v.offset+rel:]), nil
}

// Uint32 reads a 4-byte integer at rel bytes past the view's offset.
func (v View) Uint32(rel int, order binary.ByteOrder) (uint32, error) {
	if err := v.checkBounds(rel + 4); err != nil {
		return 0, err
	}
	return order.Uint32(v.a.buf[v.offset+rel:]), nil
}

// Uint64 reads an 8-byte integer at rel bytes past the view's offset.
func (v View) Uint64(rel int, order binary.ByteOrder) (uint64, error) {
	if err := v.checkBounds(rel + 8); err != nil {
		return 0, err
	}
	return order.Uint64(v.a.buf[v.offset+rel:]), nil
}

// PutUint16 writes val at rel bytes past the view's offset.
func (v View) PutUint16(rel int, val uint16, order binary.ByteOrder) error {
	if err := v.checkBounds(rel + 2); err != nil {
		return err
	}
	order.PutUint16(v.a.buf[v.offset+rel:], val)
	return nil
}

// PutUint32 writes val at rel bytes past the view's offset.
func (v View) PutUint32(rel int, val uint32, order binary.ByteOrder) error {
	if err := v.checkBounds(rel + 4); err != nil {
		return err
	}
	order.PutUint32(v.a.buf[v.offset+rel:], val)
	return nil
}

// Write copies src into the view starting at rel bytes past its offset.
// Source and destination may overlap within the same arena; Go's copy
// handles that correctly regardless of direction.
func (v View) Write(rel int, src []byte) error {
	if err := v.checkBounds(rel + len(src)); err != nil {
		return err
	}
	copy(v.a.buf[v.offset+rel:], src)
	return nil
}

// Consume returns a new view advanced by n bytes, failing with
// ErrNotEnoughData if that would run past the view's logical end.
func (v View) Consume(n int) (View, error) {
	if err := v.checkBounds(n); err != nil {
		return v, err
	}
	return View{a: v.a, offset: v.offset + n, end: v.end}, nil
}

// OpenGap shifts the bytes [offset, consumed) of the view's arena forward
// by gap bytes, in place, to make room for an insertion at offset. It is
// the only operation allowed to relocate bytes inside an arena.
//
// The arena is fixed-size: if the shifted tail would run past the arena's
// end, OpenGap fails with ErrNotEnoughSpace rather than growing the
// backing slice.
func (a *Arena) OpenGap(offset, gap, consumed int) error {
	if offset < 0 || consumed < offset || consumed > a.Size() {
		panic("arena: open gap: invalid range")
	}
	if gap == 0 {
		return nil
	}
	tail := consumed - offset
	if offset+gap+tail > a.Size() {
		return ErrNotEnoughSpace
	}
	copy(a.buf[offset+gap:offset+gap+tail], a.buf[offset:consumed])
	return nil
}
