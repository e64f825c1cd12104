//go:build windows

package transport

import "net"

// setBroadcast is a no-op on Windows; net.ListenUDP sockets there already
// permit sending to broadcast addresses without SO_BROADCAST.
func setBroadcast(conn *net.UDPConn) error {
	return nil
}
