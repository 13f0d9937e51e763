//go:build linux

package netio

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenerControl returns the Control hook for the shared receive socket:
// SO_REUSEADDR and SO_RCVBUF = bufSize.
func listenerControl(bufSize int) func(network, address string, c syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		return control(c, func(fd int) error {
			if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
				return fmt.Errorf("set SO_REUSEADDR: %w", err)
			}
			if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, bufSize); err != nil {
				return fmt.Errorf("set SO_RCVBUF(%d): %w", bufSize, err)
			}
			return nil
		})
	}
}

// senderControl returns the Control hook for an ephemeral send socket:
// SO_SNDBUF = bufSize.
func senderControl(bufSize int) func(network, address string, c syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		return control(c, func(fd int) error {
			if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, bufSize); err != nil {
				return fmt.Errorf("set SO_SNDBUF(%d): %w", bufSize, err)
			}
			return nil
		})
	}
}

func control(c syscall.RawConn, apply func(fd int) error) error {
	var sockErr error

	err := c.Control(func(fd uintptr) {
		//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		sockErr = apply(int(fd))
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}

	return sockErr
}
