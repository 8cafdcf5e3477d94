//go:build linux || darwin

package reactor

import (
	"golang.org/x/sys/unix"
)

// CloseFD closes a raw file descriptor.
func CloseFD(fd int) error {
	return unix.Close(fd)
}

// ReadFD performs a single non-blocking read from fd.
func ReadFD(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

// WriteFD performs a single non-blocking write to fd.
func WriteFD(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

// WritevFD issues a single non-blocking vectored write, the mechanism the
// egress drain pass uses to flush coalesced descriptors in one syscall.
func WritevFD(fd int, iovs [][]byte) (int, error) {
	n, err := unix.Writev(fd, iovs)
	return int(n), err
}

// SetNonblock toggles O_NONBLOCK on fd.
func SetNonblock(fd int, nonblocking bool) error {
	return unix.SetNonblock(fd, nonblocking)
}
