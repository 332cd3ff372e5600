package kwp1281

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWire is a scripted wireTransport: reads come off readQueue in
// order, every byte written (echoed or plain) lands in written.
type fakeWire struct {
	readQueue []byte
	readIdx   int
	written   []byte
	readErr   error // if set, returned once the scripted queue is exhausted
}

func (f *fakeWire) SendWithEcho(b byte) error {
	f.written = append(f.written, b)
	return nil
}

func (f *fakeWire) WriteByte(b byte) error {
	f.written = append(f.written, b)
	return nil
}

func (f *fakeWire) RecvWithEcho() (byte, error) {
	return f.next()
}

func (f *fakeWire) ReadByte(timeout time.Duration) (byte, error) {
	return f.next()
}

func (f *fakeWire) next() (byte, error) {
	if f.readIdx >= len(f.readQueue) {
		if f.readErr != nil {
			return 0, f.readErr
		}
		return 0, newErr(KindNotConnected, "no more scripted bytes", nil)
	}
	b := f.readQueue[f.readIdx]
	f.readIdx++
	return b, nil
}

func (f *fakeWire) Send5Baud(address byte) error          { return nil }
func (f *fakeWire) Handshake(baud int) (byte, byte, error) { return 0, 0, nil }
func (f *fakeWire) Close() error                          { return nil }

func TestSendBlockNoPayload(t *testing.T) {
	fake := &fakeWire{}
	err := sendBlock(fake, Block{Counter: 7, Title: TitleEndComm})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04, 0x07, TitleEndComm, terminator}, fake.written)
}

func TestSendBlockWithPayload(t *testing.T) {
	fake := &fakeWire{}
	err := sendBlock(fake, Block{Counter: 1, Title: TitleLogin, Payload: []byte{0x12, 0x34, 0x00}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x07, 0x01, TitleLogin, 0x12, 0x34, 0x00, terminator}, fake.written)
}

func TestRecvBlockNoPayload(t *testing.T) {
	fake := &fakeWire{readQueue: []byte{0x04, 0x02, TitleACK, terminator}}
	b, err := recvBlock(fake, time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, byte(0x02), b.Counter)
	assert.Equal(t, byte(TitleACK), b.Title)
	assert.Empty(t, b.Payload)
}

func TestRecvBlockWithPayload(t *testing.T) {
	fake := &fakeWire{readQueue: []byte{0x08, 0x02, TitleFaultCodes, 0x12, 0x83, 0x18, 0x81, terminator}}
	b, err := recvBlock(fake, time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x83, 0x18, 0x81}, b.Payload)
}

func TestRecvBlockTolerantOfNonETXTerminator(t *testing.T) {
	fake := &fakeWire{readQueue: []byte{0x04, 0x02, TitleACK, 0xFF}}
	var warned string
	b, err := recvBlock(fake, time.Second, func(format string, args ...any) {
		warned = fmt.Sprintf(format, args...)
	})
	require.NoError(t, err)
	assert.Equal(t, byte(TitleACK), b.Title)
	assert.Contains(t, warned, "0xFF")
}

func TestAckBlockIsMinimum(t *testing.T) {
	b := ackBlock(9)
	assert.Equal(t, byte(9), b.Counter)
	assert.Equal(t, byte(TitleACK), b.Title)
	assert.Empty(t, b.Payload)
}
