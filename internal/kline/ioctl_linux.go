package kline

import "golang.org/x/sys/unix"

// TIOCGSERIAL/TIOCSSERIAL aren't exposed by golang.org/x/sys/unix (they're
// legacy Linux-only serial_struct ioctls), so the two request numbers are
// kept here. Everything else goes through unix.IoctlGetInt/SetInt and
// friends. See Daedaluz-goserial's ioctl_linux.go, which carries the same
// pair alongside the rest of the tty ioctl table this was trimmed from.
const (
	tiocgserial = uintptr(0x541E)
	tiocsserial = uintptr(0x541F)
)

// TCGETS/TCSETS are exposed by golang.org/x/sys/unix as constants but not as
// a pointer-based ioctl helper, so they're routed through ioctlPointer too.
const (
	tcgets = unix.TCGETS
	tcsets = unix.TCSETS
)
