package codec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nx-io/framed/arena"
)

func TestLengthPrefixedRoundTrip(t *testing.T) {
	c := NewLengthPrefixed(Width2, binary.BigEndian)
	a := arena.New(64, 0)

	n, err := c.Encode(a.Bytes(), []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 7, n)

	v := arena.NewBoundedView(a, 0, n)
	size, err := c.SizeOf(v)
	require.NoError(t, err)
	require.Equal(t, 7, size)

	msg, err := c.Parse(v, size)
	require.NoError(t, err)
	payload, err := msg.Payload(c.HeaderLen())
	require.NoError(t, err)
	require.Equal(t, "hello", string(payload))
}

func TestLengthPrefixedNotEnoughData(t *testing.T) {
	c := NewLengthPrefixed(Width2, binary.BigEndian)
	a := arena.New(64, 0)
	a.Bytes()[0] = 0
	a.Bytes()[1] = 10 // declares 10 bytes but view only exposes 1

	v := arena.NewBoundedView(a, 0, 1)
	_, err := c.SizeOf(v)
	require.ErrorIs(t, err, ErrNotEnoughData)
}

func TestLengthPrefixedCorruptedShortLength(t *testing.T) {
	c := NewLengthPrefixed(Width2, binary.BigEndian)
	a := arena.New(64, 0)
	binary.BigEndian.PutUint16(a.Bytes(), 1) // shorter than the 2-byte header itself

	v := arena.NewBoundedView(a, 0, 2)
	_, err := c.SizeOf(v)
	require.ErrorIs(t, err, ErrCorrupted)
}

func TestReadBatchEmitsWholeFramesOnly(t *testing.T) {
	c := NewLengthPrefixed(Width2, binary.BigEndian)
	a := arena.New(64, 0)

	n1, _ := c.Encode(a.Bytes(), []byte("ab"))
	n2, _ := c.Encode(a.Bytes()[n1:], []byte("cde"))
	written := n1 + n2 - 1 // hold back the last byte of the second frame

	var got []string
	v := arena.NewBoundedView(a, 0, written)
	consumed, err := ReadBatch(c, v, written, func(m Message) {
		p, _ := m.Payload(c.HeaderLen())
		got = append(got, string(p))
	})
	require.NoError(t, err)
	require.Equal(t, n1, consumed)
	require.Equal(t, []string{"ab"}, got)
}

func TestReadBatchStopsAtMaxBytes(t *testing.T) {
	c := NewLengthPrefixed(Width2, binary.BigEndian)
	a := arena.New(64, 0)
	n1, _ := c.Encode(a.Bytes(), []byte("ab"))
	n2, _ := c.Encode(a.Bytes()[n1:], []byte("cd"))

	var got []string
	v := arena.NewBoundedView(a, 0, n1+n2)
	consumed, err := ReadBatch(c, v, n1, func(m Message) {
		p, _ := m.Payload(c.HeaderLen())
		got = append(got, string(p))
	})
	require.NoError(t, err)
	require.Equal(t, n1, consumed)
	require.Equal(t, []string{"ab"}, got)
}

func TestReadBatchPropagatesCorrupted(t *testing.T) {
	c := NewLengthPrefixed(Width2, binary.BigEndian)
	a := arena.New(64, 0)
	binary.BigEndian.PutUint16(a.Bytes(), 1)

	v := arena.NewBoundedView(a, 0, 2)
	_, err := ReadBatch(c, v, 2, func(Message) {
		t.Fatal("should not emit on corrupted frame")
	})
	require.ErrorIs(t, err, ErrCorrupted)
}

func TestPadTo(t *testing.T) {
	require.Equal(t, 16, PadTo(9, 16))
	require.Equal(t, 16, PadTo(16, 16))
	require.Equal(t, 0, PadTo(0, 16))
	require.Equal(t, 5, PadTo(5, 0))
}
