//go:build !windows

// Copyright 2019 Lanikai Labs. All rights reserved.

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseControl is the net.ListenConfig.Control callback applying
// SO_REUSEADDR and SO_REUSEPORT.
func reuseControl(network, address string, c syscall.RawConn) error {
	var controlErr error
	err := c.Control(func(fd uintptr) {
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
			controlErr = e
			return
		}
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); e != nil {
			// Not fatal: some platforms/kernels lack SO_REUSEPORT.
			log.Debug("transport: SO_REUSEPORT unavailable: %v", e)
		}
	})
	if err != nil {
		return err
	}
	return controlErr
}

// BroadcastControl applies SO_BROADCAST, needed to send to the limited
// broadcast address 255.255.255.255. Exported for the discovery plane,
// which shares the same socket setup.
func BroadcastControl(network, address string, c syscall.RawConn) error {
	var controlErr error
	err := c.Control(func(fd uintptr) {
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); e != nil {
			controlErr = e
		}
	})
	if err != nil {
		return err
	}
	return controlErr
}
