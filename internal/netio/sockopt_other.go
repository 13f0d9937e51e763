//go:build !linux

package netio

import "syscall"

// listenerControl is a no-op outside Linux; the kernel default buffers apply
// and the read buffer alone bounds the PDU size.
func listenerControl(int) func(network, address string, c syscall.RawConn) error {
	return nil
}

func senderControl(int) func(network, address string, c syscall.RawConn) error {
	return nil
}
