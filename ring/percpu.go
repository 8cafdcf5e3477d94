package ring

import "sync/atomic"

// PerCPU is a fixed array of Queue instances, one per logical CPU, sized at
// construction from runtime.NumCPU() (or an explicit override in tests). A
// producer picks its queue from a best-effort CPU id so that same-CPU producers
// serialize amongst themselves through the same cache lines a same-CPU
// consumer will later touch; the reactor goroutine, which has no fixed CPU
// affinity of its own, drains every queue in round-robin order so no
// producer starves.
type PerCPU[T any] struct {
	queues    []*Queue[T]
	drainNext atomic.Uint32
}

// NewPerCPU builds a PerCPU container with n queues, each of the given
// capacity (rounded up to a power of two by NewQueue).
func NewPerCPU[T any](n, capacity int) *PerCPU[T] {
	if n < 1 {
		n = 1
	}
	p := &PerCPU[T]{queues: make([]*Queue[T], n)}
	for i := range p.queues {
		p.queues[i] = NewQueue[T](capacity)
	}
	return p
}

// NumQueues reports how many per-CPU queues the container holds.
func (p *PerCPU[T]) NumQueues() int { return len(p.queues) }

// Push enqueues val onto the queue selected by cpu, wrapping cpu into
// range. It fails without blocking if that queue is momentarily full.
func (p *PerCPU[T]) Push(cpu int, val T) bool {
	if cpu < 0 {
		cpu = -cpu
	}
	return p.queues[cpu%len(p.queues)].Push(val)
}

// Drain pops up to max items across every queue, starting from the queue
// after the one it last made progress on, and appends them to dst. It
// empties each queue in turn before moving to the next and stops as soon
// as max items are taken, so a burst on one CPU's queue can use a whole
// call's budget; the next call then starts at the queue after it, so the
// others are not starved across calls.
func (p *PerCPU[T]) Drain(dst []T, max int) []T {
	n := len(p.queues)
	start := int(p.drainNext.Load()) % n
	taken := 0
	lastNonEmpty := -1
	for i := 0; i < n && taken < max; i++ {
		idx := (start + i) % n
		v, ok := p.queues[idx].Pop()
		if !ok {
			continue
		}
		dst = append(dst, v)
		taken++
		lastNonEmpty = idx
		// keep draining this queue while it has more and there is budget
		for taken < max {
			v, ok := p.queues[idx].Pop()
			if !ok {
				break
			}
			dst = append(dst, v)
			taken++
		}
	}
	if lastNonEmpty >= 0 {
		p.drainNext.Store(uint32((lastNonEmpty + 1) % n))
	}
	return dst
}

// Size sums the best-effort length of every queue.
func (p *PerCPU[T]) Size() int {
	total := 0
	for _, q := range p.queues {
		total += q.Len()
	}
	return total
}
