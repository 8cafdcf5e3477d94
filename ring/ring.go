// Package ring implements the bounded lock-free MPMC queue used as the
// per-CPU egress buffer: producers on arbitrary goroutines push write
// requests, the single reactor goroutine pops them in FIFO order per
// producer.
//
// Each queue is a fixed array of slots, each carrying its own sequence
// number rather than the four shared free/full counters the source
// material historically used. A shared "reservation window" scalar cannot
// track completion order once more than one producer is mid-reservation
// concurrently, so every slot instead publishes its own readiness. The
// result satisfies
// the same circular non-overlap invariant: a slot can only be claimed for
// writing once the reader has vacated it, and only be claimed for reading
// once the writer has published it.
package ring

import (
	"sync/atomic"
)

const cacheLine = 64

// Queue is a bounded, lock-free multi-producer multi-consumer ring. Push
// never blocks; when the queue is full it returns false and the caller
// decides whether to drop, retry, or back off.
type Queue[T any] struct {
	mask uint64
	buf  []slot[T]

	_    [cacheLine]byte
	head atomic.Uint64
	_    [cacheLine - 8]byte
	tail atomic.Uint64
	_    [cacheLine - 8]byte
}

type slot[T any] struct {
	seq atomic.Uint64
	val T
}

// NewQueue creates a queue whose capacity is capacity rounded up to the
// next power of two, so the index mask below is a cheap bitwise AND.
func NewQueue[T any](capacity int) *Queue[T] {
	capacity = nextPow2(capacity)
	q := &Queue[T]{
		mask: uint64(capacity - 1),
		buf:  make([]slot[T], capacity),
	}
	for i := range q.buf {
		q.buf[i].seq.Store(uint64(i))
	}
	return q
}

func nextPow2(n int) int {
	if n < 1 {
		n = 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Cap returns the queue's fixed capacity.
func (q *Queue[T]) Cap() int { return len(q.buf) }

// Len is a best-effort, relaxed size estimate: it may transiently exceed
// capacity by at most one in-flight reservation.
func (q *Queue[T]) Len() int {
	return int(int64(q.tail.Load()) - int64(q.head.Load()))
}

// Push reserves the next slot, writes val into it, and publishes it for a
// reader to claim. It fails (returns false) without blocking only if the
// queue is full; the caller retries or drops. Losing a race to another
// producer just reloads tail and tries the next slot.
func (q *Queue[T]) Push(val T) bool {
	for {
		tail := q.tail.Load()
		s := &q.buf[tail&q.mask]
		seq := s.seq.Load()
		diff := int64(seq) - int64(tail)
		switch {
		case diff == 0:
			if q.tail.CompareAndSwap(tail, tail+1) {
				s.val = val
				s.seq.Store(tail + 1) // release: publish to readers
				return true
			}
		case diff < 0:
			return false // full
		default:
			// another producer has already advanced tail; reload and retry
		}
	}
}

// Pop claims the oldest published slot, if any, and marks it free for
// reuse a full lap later.
func (q *Queue[T]) Pop() (T, bool) {
	for {
		head := q.head.Load()
		s := &q.buf[head&q.mask]
		seq := s.seq.Load()
		diff := int64(seq) - int64(head+1)
		switch {
		case diff == 0:
			if q.head.CompareAndSwap(head, head+1) {
				val := s.val
				var zero T
				s.val = zero
				s.seq.Store(head + q.mask + 1)
				return val, true
			}
		case diff < 0:
			var zero T
			return zero, false // empty
		default:
			// another consumer has already advanced head; reload and retry
		}
	}
}
