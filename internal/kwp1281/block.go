package kwp1281

import (
	"time"
)

// wireTransport is the subset of *kline.Transport the block codec and
// driver need. Defined here, rather than importing the concrete type
// everywhere, so driver tests can run against a scripted fake.
type wireTransport interface {
	SendWithEcho(b byte) error
	RecvWithEcho() (byte, error)
	WriteByte(b byte) error
	ReadByte(timeout time.Duration) (byte, error)
	Send5Baud(address byte) error
	Handshake(baud int) (kw1, kw2 byte, err error)
	Close() error
}

// Block is one KWP1281 framing unit: [L, C, T, payload..., 0x03].
type Block struct {
	Counter byte
	Title   byte
	Payload []byte
}

// length returns L: payload length + 3 (L, C, T) + 1 (terminator).
func (b Block) length() byte {
	return byte(len(b.Payload) + 3 + 1)
}

// sendBlock transmits b over t. Every byte but the terminator rides the
// inverted-echo exchange; the terminator is a plain write.
func sendBlock(t wireTransport, b Block) error {
	if err := t.SendWithEcho(b.length()); err != nil {
		return err
	}
	if err := t.SendWithEcho(b.Counter); err != nil {
		return err
	}
	if err := t.SendWithEcho(b.Title); err != nil {
		return err
	}
	for _, d := range b.Payload {
		if err := t.SendWithEcho(d); err != nil {
			return err
		}
	}
	return t.WriteByte(terminator)
}

// recvBlock receives one block from t. The terminator is read without
// echoing it back — echoing here would desync the next block's counter.
// A non-0x03 terminator is tolerated (some ECUs emit one on certain
// errors): warnf, if non-nil, is called with a diagnostic and the block
// is still returned as usable.
func recvBlock(t wireTransport, timeout time.Duration, warnf func(format string, args ...any)) (Block, error) {
	length, err := t.RecvWithEcho()
	if err != nil {
		return Block{}, err
	}
	counter, err := t.RecvWithEcho()
	if err != nil {
		return Block{}, err
	}
	title, err := t.RecvWithEcho()
	if err != nil {
		return Block{}, err
	}

	payloadLen := int(length) - 3 - 1
	if payloadLen < 0 {
		payloadLen = 0
	}
	payload := make([]byte, 0, payloadLen)
	for i := 0; i < payloadLen; i++ {
		d, err := t.RecvWithEcho()
		if err != nil {
			return Block{}, err
		}
		payload = append(payload, d)
	}

	term, err := t.ReadByte(timeout)
	if err != nil {
		return Block{}, err
	}
	if term != terminator && warnf != nil {
		warnf("expected terminator 0x%02X, got 0x%02X", terminator, term)
	}

	return Block{Counter: counter, Title: title, Payload: payload}, nil
}

// ackBlock builds a minimum block with the ACK title and no payload.
func ackBlock(counter byte) Block {
	return Block{Counter: counter, Title: TitleACK}
}
