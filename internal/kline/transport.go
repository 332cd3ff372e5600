package kline

import "time"

// InterByteTimeout bounds every byte read outside of the 5-baud wake and the
// handshake sync wait.
const InterByteTimeout = 100 * time.Millisecond

// HandshakeSyncTimeout bounds the wait for the 0x55 sync byte after the
// baud-rate switch.
const HandshakeSyncTimeout = 1 * time.Second

// KeywordAckGap is the mandatory pause between receiving key word 2 and
// sending its complement; some ECUs ignore an earlier reply.
const KeywordAckGap = 30 * time.Millisecond

// Options configures polarity and retry-irrelevant knobs of a Transport.
// Inverted defaults to true to match the reference KKL/OBDPlot-style
// interface, where asserting the modem line electrically pulls K-Line low.
type Options struct {
	Inverted bool
}

// DefaultOptions returns the reference hardware's polarity.
func DefaultOptions() Options { return Options{Inverted: true} }

// device is the set of low-level operations Transport needs from a serial
// port. *Port satisfies it directly; tests substitute a scripted fake so
// the framing and timing logic above can be exercised without hardware.
type device interface {
	ReadByte(timeout time.Duration) (byte, error)
	Write(data []byte) (int, error)
	EnableModemLines(lines ModemLine) error
	DisableModemLines(lines ModemLine) error
	Flush() error
	SetBaudRaw(baud int) (bool, error)
	Close() error
}

// Transport owns one serial device and speaks the K-Line wire format on it:
// the 5-baud wake, the key-word handshake, and the per-byte inverted-echo
// exchange every block byte (but the terminator) rides on.
type Transport struct {
	port device
	opts Options
}

// Open opens devicePath in raw 8-N-1 mode with both modem lines cleared.
func Open(devicePath string, opts Options) (*Transport, error) {
	p, err := openPort(devicePath)
	if err != nil {
		return nil, err
	}
	return &Transport{port: p, opts: opts}, nil
}

// openPort is a package variable so tests can substitute a fake Port.
var openPort = OpenPort

// newTransport wraps an already-open device, used by tests.
func newTransport(d device, opts Options) *Transport {
	return &Transport{port: d, opts: opts}
}

func (t *Transport) Close() error {
	if t.port == nil {
		return nil
	}
	return t.port.Close()
}

// AssertKLine drives the K-Line to level (true = electrical high). With the
// default inverted polarity, "line HIGH" means the modem control line is
// deasserted.
func (t *Transport) AssertKLine(level bool) error {
	assert := level
	if t.opts.Inverted {
		assert = !level
	}
	if assert {
		return t.port.EnableModemLines(ModemLineRTS)
	}
	return t.port.DisableModemLines(ModemLineRTS)
}

// Send5Baud bit-bangs the 10-bit address frame directly on the modem
// control line: start bit low, 8 data bits LSB-first, stop bit high, each
// held for exactly BitTime5Baud. Total duration is exactly 10*BitTime5Baud
// (2.000 s), accumulated without drift via bitClock. Immediately after the
// stop bit both I/O buffers are flushed, discarding anything the ECU sent
// before the flush completed.
func (t *Transport) Send5Baud(address byte) error {
	clock := newBitClock()

	if err := t.AssertKLine(false); err != nil { // start bit: low
		return newErr(KindIO, "5-baud start bit", err)
	}
	clock.next()

	for i := 0; i < 8; i++ {
		bit := (address>>i)&1 != 0
		if err := t.AssertKLine(bit); err != nil {
			return newErr(KindIO, "5-baud data bit", err)
		}
		clock.next()
	}

	if err := t.AssertKLine(true); err != nil { // stop bit: high
		return newErr(KindIO, "5-baud stop bit", err)
	}
	clock.next()

	return t.port.Flush()
}

// Handshake switches the port to baud, waits for the sync byte, exchanges
// key words, and returns them. The 30 ms gap between receiving key word 2
// and sending its complement is mandatory.
func (t *Transport) Handshake(baud int) (kw1, kw2 byte, err error) {
	if err := setBaud(t.port, baud); err != nil {
		return 0, 0, err
	}

	sync, err := t.port.ReadByte(HandshakeSyncTimeout)
	if err != nil {
		return 0, 0, newErr(KindTimeout, "waiting for sync byte", err)
	}
	if sync != 0x55 {
		return 0, 0, newErr(KindBadSync, "unexpected sync byte", nil)
	}

	kw1, err = t.RecvWithEcho()
	if err != nil {
		return 0, 0, err
	}

	kw2, err = t.ReadByte(InterByteTimeout)
	if err != nil {
		return 0, 0, err
	}

	time.Sleep(KeywordAckGap)

	if err := t.WriteByte(^kw2); err != nil {
		return 0, 0, err
	}

	return kw1, kw2, nil
}

// ReadByte reads one byte within timeout.
func (t *Transport) ReadByte(timeout time.Duration) (byte, error) {
	return t.port.ReadByte(timeout)
}

// WriteByte writes one byte.
func (t *Transport) WriteByte(b byte) error {
	n, err := t.port.Write([]byte{b})
	if err != nil {
		return err
	}
	if n != 1 {
		return newErr(KindIO, "short write", nil)
	}
	return nil
}

// SendWithEcho writes b and fails unless the ECU echoes back its bitwise
// complement within InterByteTimeout.
func (t *Transport) SendWithEcho(b byte) error {
	if err := t.WriteByte(b); err != nil {
		return err
	}
	got, err := t.ReadByte(InterByteTimeout)
	if err != nil {
		return err
	}
	if got != ^b {
		return newErr(KindEchoMismatch, "send echo", nil)
	}
	return nil
}

// RecvWithEcho reads a byte within InterByteTimeout and echoes back its
// bitwise complement.
func (t *Transport) RecvWithEcho() (byte, error) {
	b, err := t.ReadByte(InterByteTimeout)
	if err != nil {
		return 0, err
	}
	if err := t.WriteByte(^b); err != nil {
		return 0, err
	}
	return b, nil
}
