//go:build windows

// Copyright 2019 Lanikai Labs. All rights reserved.

package transport

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// reuseControl is the net.ListenConfig.Control callback applying
// SO_REUSEADDR. Windows has no SO_REUSEPORT; SO_REUSEADDR alone already
// permits the rebinding semantics the receiver needs.
func reuseControl(network, address string, c syscall.RawConn) error {
	var controlErr error
	err := c.Control(func(fd uintptr) {
		controlErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
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
		controlErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return controlErr
}
