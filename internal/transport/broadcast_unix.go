//go:build !windows

package transport

import (
	"net"
	"syscall"
)

// setBroadcast enables SO_BROADCAST on conn's underlying socket, the way
// the original data diode's Python transport does before its first sendto.
func setBroadcast(conn *net.UDPConn) error {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var sockErr error
	if err := rawConn.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return sockErr
}
