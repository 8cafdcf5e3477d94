//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// createWakeFD creates an eventfd used for cross-thread wake-up
// notifications. The same descriptor serves as both read and write end.
func createWakeFD() (readFD, writeFD int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return 0, 0, err
	}
	return fd, fd, nil
}

func drainWakeFD(fd int) {
	var buf [8]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err != nil {
			return
		}
	}
}

func signalWakeFD(fd int) error {
	buf := [8]byte{0, 0, 0, 0, 0, 0, 0, 1}
	_, err := unix.Write(fd, buf[:])
	if err == unix.EAGAIN {
		// counter is already non-zero, poller will observe it
		return nil
	}
	return err
}
