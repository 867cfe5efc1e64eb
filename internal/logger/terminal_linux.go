//go:build linux

package logger

import (
	"syscall"
	"unsafe"
)

// tcgets is the termios-fetch ioctl request on Linux.
const tcgets = 0x5401

// isTerminal reports whether fd is attached to a tty: the ioctl succeeds
// only on terminal devices.
func isTerminal(fd uintptr) bool {
	var t syscall.Termios
	_, _, errno := syscall.Syscall6(syscall.SYS_IOCTL, fd, tcgets,
		uintptr(unsafe.Pointer(&t)), 0, 0, 0)
	return errno == 0
}
