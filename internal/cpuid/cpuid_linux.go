//go:build linux

// Package cpuid gives producers a cheap, best-effort hint of which logical
// CPU they are currently running on, for selecting a per-CPU egress queue.
// Placement only needs to be good enough to reduce cross-CPU cache-line
// bouncing on the common path; correctness never depends on it, since a
// goroutine can be rescheduled to a different thread (and CPU) between one
// call and the next.
package cpuid

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Current returns the calling thread's current CPU, via the getcpu system
// call, queried afresh on every call. It falls back to 0 if the kernel call fails, which only degrades
// queue selection, never correctness.
func Current() int {
	var cpu, node uint32
	_, _, errno := unix.Syscall(unix.SYS_GETCPU, uintptr(unsafe.Pointer(&cpu)), uintptr(unsafe.Pointer(&node)), 0)
	if errno != 0 {
		return 0
	}
	return int(cpu)
}
