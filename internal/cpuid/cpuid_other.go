//go:build !linux

package cpuid

import "sync/atomic"

// counter provides a round-robin fallback placement on platforms without a
// cheap current-CPU syscall (e.g. darwin has no getcpu equivalent exposed
// by the runtime). It still spreads producers across queues; it just
// cannot track real CPU affinity.
var counter atomic.Uint64

// Current returns a monotonically rotating pseudo-CPU id.
func Current() int {
	return int(counter.Add(1))
}
