package arena

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestViewTypedReadWriteRoundTrip(t *testing.T) {
	a := New(32, 0)
	v := NewView(a, 0)

	require.NoError(t, v.PutUint16(0, 0xBEEF, binary.BigEndian))
	require.NoError(t, v.PutUint32(2, 0xCAFEF00D, binary.LittleEndian))

	got16, err := v.Uint16(0, binary.BigEndian)
	require.NoError(t, err)
	require.EqualValues(t, 0xBEEF, got16)

	got32, err := v.Uint32(2, binary.LittleEndian)
	require.NoError(t, err)
	require.EqualValues(t, 0xCAFEF00D, got32)
}

func TestViewBoundsChecking(t *testing.T) {
	a := New(4, 0)
	v := NewView(a, 0)

	_, err := v.Uint32(2, binary.BigEndian)
	require.ErrorIs(t, err, ErrNotEnoughData)

	require.Panics(t, func() { NewView(a, 5) })
}

func TestViewConsumeAdvancesOffset(t *testing.T) {
	a := New(16, 0)
	v := NewView(a, 0)

	next, err := v.Consume(4)
	require.NoError(t, err)
	require.Equal(t, 4, next.Offset())

	_, err = next.Consume(100)
	require.ErrorIs(t, err, ErrNotEnoughData)
}

func TestOpenGapShiftsTailForward(t *testing.T) {
	a := New(16, 0)
	copy(a.Bytes(), []byte("HELLOWORLD"))

	// shift bytes [5, 10) forward by 2, to make room for a 2-byte header
	require.NoError(t, a.OpenGap(5, 2, 10))
	require.Equal(t, "WORLD", string(a.Bytes()[7:12]))
}

func TestOpenGapFailsWhenArenaCannotGrow(t *testing.T) {
	a := New(8, 0)
	err := a.OpenGap(4, 4, 8)
	require.ErrorIs(t, err, ErrNotEnoughSpace)
}

func TestOpenGapNoopWhenGapZero(t *testing.T) {
	a := New(8, 0)
	require.NoError(t, a.OpenGap(2, 0, 6))
}
