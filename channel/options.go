package channel

import (
	"encoding/binary"
	"runtime"

	"github.com/nx-io/framed/codec"
	"github.com/nx-io/framed/internal/logging"
)

type options struct {
	codec          codec.Codec
	logger         *logging.Logger
	arenaSize      int
	writeArenaSize int
	iovMax         int
	egressQueues   int
	egressCapacity int
}

func defaultOptions() *options {
	return &options{
		codec:          codec.NewLengthPrefixed(codec.Width4, binary.BigEndian),
		logger:         logging.Disabled(),
		arenaSize:      VectorSize,
		writeArenaSize: CopyThresh * 4,
		iovMax:         IOVMax,
		egressQueues:   runtime.NumCPU(),
		egressCapacity: OutBufSize,
	}
}

// Option configures a Channel at construction time.
type Option func(*options)

// WithCodec overrides the default length-prefixed codec.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithLogger installs a diagnostic logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithArenaSize overrides VectorSize for this channel's ingress arenas.
func WithArenaSize(n int) Option {
	return func(o *options) { o.arenaSize = n }
}

// WithIOVMax overrides the default scatter-entry limit for vectored
// writes.
func WithIOVMax(n int) Option {
	return func(o *options) { o.iovMax = n }
}

// WithEgressCapacity overrides the per-CPU egress queue capacity
// (OutBufSize by default, rounded up to a power of two).
func WithEgressCapacity(n int) Option {
	return func(o *options) { o.egressCapacity = n }
}

// WithEgressQueues overrides the number of per-CPU egress queues
// (runtime.NumCPU() by default). Tests use this to exercise the ring with
// a small, deterministic queue count.
func WithEgressQueues(n int) Option {
	return func(o *options) { o.egressQueues = n }
}
