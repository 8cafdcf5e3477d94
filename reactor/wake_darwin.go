//go:build darwin

package reactor

import (
	"syscall"
)

// createWakeFD creates a self-pipe for wake-up notifications. Darwin has no
// eventfd, so a non-blocking pipe stands in: writers push a single byte,
// the reactor drains and discards everything available.
func createWakeFD() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}
	cleanup := func() {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
	}
	syscall.CloseOnExec(fds[0])
	syscall.CloseOnExec(fds[1])
	if err := syscall.SetNonblock(fds[0], true); err != nil {
		cleanup()
		return 0, 0, err
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		cleanup()
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}

func drainWakeFD(fd int) {
	var buf [64]byte
	for {
		_, err := syscall.Read(fd, buf[:])
		if err != nil {
			return
		}
	}
}

func signalWakeFD(fd int) error {
	buf := [1]byte{1}
	_, err := syscall.Write(fd, buf[:])
	if err == syscall.EAGAIN {
		return nil
	}
	return err
}
