package channel

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isWouldBlock reports whether err is the non-blocking "try again" signal
// from a read or write syscall, as opposed to a real I/O failure.
func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}
