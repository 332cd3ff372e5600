package kline

import (
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// CFlag mirrors termios c_cflag, restricted to the bits the K-Line transport
// actually touches (character size, local/remote control, and the standard
// baud-rate encodings we negotiate at). Modeled on the Termios/CFlag layout
// in Daedaluz-goserial's port_linux.go, trimmed to what this driver needs.
type CFlag uint32

const (
	cbaud  = CFlag(0000017)
	csize  = CFlag(0000060)
	cs8    = CFlag(0000060)
	cread  = CFlag(0000200)
	clocal = CFlag(0004000)

	b1200  = CFlag(0000011)
	b2400  = CFlag(0000013)
	b4800  = CFlag(0000014)
	b9600  = CFlag(0000015)
	b19200 = CFlag(0000016)
)

var standardBaud = map[int]CFlag{
	1200:  b1200,
	2400:  b2400,
	4800:  b4800,
	9600:  b9600,
	19200: b19200,
}

// Termios is the subset of struct termios the transport reads/writes.
type Termios struct {
	Iflag uint32
	Oflag uint32
	Cflag CFlag
	Lflag uint32
	Line  byte
	Cc    [19]byte
}

func (t *Termios) makeRaw() {
	t.Iflag = 0
	t.Oflag = 0
	t.Lflag = 0
	t.Cflag &^= cbaud | csize
	t.Cflag |= cs8 | cread | clocal
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
}

// ModemLine identifies one of the RS-232 modem control signals.
type ModemLine int32

const (
	ModemLineDTR = ModemLine(unix.TIOCM_DTR)
	ModemLineRTS = ModemLine(unix.TIOCM_RTS)
)

// serialStruct mirrors struct serial_struct, used only for the
// ASYNC_SPD_CUST custom-divisor path (see baud_linux.go).
type serialStruct struct {
	Type          int32
	Line          int32
	Port          uint32
	Irq           int32
	Flags         int32
	XmitFifoSize  int32
	CustomDivisor int32
	BaudBase      int32
	CloseDelay    uint16
	IOType        byte
	pad           byte
	Hub6          int32
	ClosingWait   uint16
	ClosingWait2  uint16
	IOMemBase     uintptr
	IOMemRegShift uint16
	PortHigh      uint32
	IOMapBase     uint64
}

const (
	aSyncSPDCust = 1 << 4 // ASYNC_SPD_CUST: use CustomDivisor instead of the CBAUD table
)

// Port is a raw, opened K-Line serial device: 8-N-1, no flow control, with
// direct access to the modem control lines that drive the bus and to the
// low-level baud-rate escape hatch non-standard rates need.
type Port struct {
	fd     int
	closed atomic.Bool
}

// OpenPort opens name (e.g. "/dev/ttyUSB0") and puts it in raw 8-N-1 mode
// with both modem control lines cleared.
func OpenPort(name string) (*Port, error) {
	fd, err := unix.Open(name, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, newErr(KindIO, "open "+name, err)
	}
	p := &Port{fd: fd}

	// Clear O_NONBLOCK now that the open (which needed it to avoid blocking
	// on DCD) has succeeded; reads below go through poll-based timeouts.
	if err := unix.SetNonblock(fd, false); err != nil {
		p.Close()
		return nil, newErr(KindIO, "clear nonblock", err)
	}

	attrs, err := p.getAttr()
	if err != nil {
		p.Close()
		return nil, err
	}
	attrs.makeRaw()
	if err := p.setAttr(attrs); err != nil {
		p.Close()
		return nil, err
	}

	if err := p.clearModemLines(); err != nil {
		p.Close()
		return nil, err
	}
	if err := p.Flush(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Port) getAttr() (*Termios, error) {
	t := &Termios{}
	if err := ioctlPointer(p.fd, tcgets, unsafe.Pointer(t)); err != nil {
		return nil, newErr(KindIO, "TCGETS", err)
	}
	return t, nil
}

func (p *Port) setAttr(t *Termios) error {
	if err := ioctlPointer(p.fd, tcsets, unsafe.Pointer(t)); err != nil {
		return newErr(KindIO, "TCSETS", err)
	}
	return nil
}

func (p *Port) clearModemLines() error {
	return unix.IoctlSetInt(p.fd, unix.TIOCMSET, 0)
}

// EnableModemLines asserts exactly the given lines, leaving others alone.
func (p *Port) EnableModemLines(lines ModemLine) error {
	cur, err := unix.IoctlGetInt(p.fd, unix.TIOCMGET)
	if err != nil {
		return newErr(KindIO, "TIOCMGET", err)
	}
	if err := unix.IoctlSetInt(p.fd, unix.TIOCMSET, cur|int(lines)); err != nil {
		return newErr(KindIO, "TIOCMSET", err)
	}
	return nil
}

// DisableModemLines deasserts exactly the given lines, leaving others alone.
func (p *Port) DisableModemLines(lines ModemLine) error {
	cur, err := unix.IoctlGetInt(p.fd, unix.TIOCMGET)
	if err != nil {
		return newErr(KindIO, "TIOCMGET", err)
	}
	if err := unix.IoctlSetInt(p.fd, unix.TIOCMSET, cur&^int(lines)); err != nil {
		return newErr(KindIO, "TIOCMSET", err)
	}
	return nil
}

// Flush discards both the input and output buffers.
func (p *Port) Flush() error {
	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCIOFLUSH)
}

// Write writes data to the port.
func (p *Port) Write(data []byte) (int, error) {
	if p.closed.Load() {
		return 0, newErr(KindIO, "write", unix.EBADF)
	}
	n, err := unix.Write(p.fd, data)
	if err != nil {
		return n, newErr(KindIO, "write", err)
	}
	return n, nil
}

// ReadByte blocks for up to timeout waiting for a single byte.
func (p *Port) ReadByte(timeout time.Duration) (byte, error) {
	if p.closed.Load() {
		return 0, newErr(KindIO, "read", unix.EBADF)
	}
	fds := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		return 0, newErr(KindIO, "poll", err)
	}
	if n == 0 {
		return 0, newErr(KindTimeout, "read byte", nil)
	}
	var buf [1]byte
	rn, err := unix.Read(p.fd, buf[:])
	if err != nil {
		return 0, newErr(KindIO, "read", err)
	}
	if rn != 1 {
		return 0, newErr(KindTimeout, "read byte", nil)
	}
	return buf[0], nil
}

// SetBaudRaw applies the standard termios CBAUD encoding for baud, returning
// false (no error) if baud has no standard encoding so the caller can try
// the non-portable fallback.
func (p *Port) SetBaudRaw(baud int) (bool, error) {
	enc, ok := standardBaud[baud]
	if !ok {
		return false, nil
	}
	attrs, err := p.getAttr()
	if err != nil {
		return false, err
	}
	attrs.Cflag &^= cbaud
	attrs.Cflag |= enc
	if err := p.setAttr(attrs); err != nil {
		return false, err
	}
	return true, nil
}

// Fd returns the underlying file descriptor, or -1 if closed.
func (p *Port) Fd() int {
	if p.closed.Load() {
		return -1
	}
	return p.fd
}

// Close closes the device. Safe to call more than once.
func (p *Port) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return unix.Close(p.fd)
}

func ioctlPointer(fd int, req uintptr, p unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(p))
	if errno != 0 {
		return errno
	}
	return nil
}
