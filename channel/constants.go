package channel

// Configuration defaults. VectorSize, OutBufSize and IOVMax are
// overridable per channel via Options (WithArenaSize, WithEgressCapacity,
// WithIOVMax); MaxReadSize, CopyThresh and Backlog are fixed.
const (
	// VectorSize is the ingress arena allocation size: chosen to fit a
	// 128 KiB block on common allocators once bookkeeping overhead is
	// subtracted.
	VectorSize = 128*1024 - 8

	// MaxReadSize bounds how many unconsumed bytes are handed to the
	// codec in one codec.ReadBatch call. runFramingLoop repeats the call
	// until the codec peels nothing more, so a single read callback can
	// hand the codec more than MaxReadSize bytes in total.
	MaxReadSize = 64 * 1024

	// CopyThresh is the tail-coalescing threshold: staging entries this
	// size or smaller are candidates for copying into one fresh arena
	// rather than being written as separate scatter entries.
	CopyThresh = 128

	// OutBufSize is the default per-CPU egress queue capacity, rounded up
	// to a power of two by ring.NewQueue.
	OutBufSize = 1 << 22

	// IOVMax bounds the number of scatter entries in a single vectored
	// write. 1024 matches the common Linux UIO_MAXIOV; the staging array
	// is not adapted to a lower platform limit, so WithIOVMax is the way to
	// set one.
	IOVMax = 1024

	// Backlog is the listener accept backlog.
	Backlog = 1024
)
