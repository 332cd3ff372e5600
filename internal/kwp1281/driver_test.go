package kwp1281

import (
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbn-b4e/911OT-KKL/internal/kline"
)

type fakeDict struct{}

func (fakeDict) Lookup(sections []string, code byte) string {
	return "fake description"
}

func readyDriver(fake *fakeWire, counter byte) *Driver {
	d := &Driver{
		state:     StateReady,
		counter:   counter,
		transport: fake,
		ecu:       ECU{Name: "CCU (Climate)", Address: 0x51, Baud: 4800, FaultSections: []string{"H00", "H03"}},
		model:     "965",
		dict:      fakeDict{},
		logger:    log.Default(),
		onLog:     func(string) {},
		onState:   func(string) {},
	}
	return d
}

func TestReadFaultsTwoStored(t *testing.T) {
	fake := &fakeWire{readQueue: []byte{
		0x08, 0x02, TitleFaultCodes, 0x12, 0x83, 0x18, 0x81, terminator, // response, counter 2
		0x04, 0x04, TitleACK, terminator, // tail ack, counter 4
	}}
	d := readyDriver(fake, 1)

	records, err := d.ReadFaults()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, byte(0x12), records[0].Code)
	assert.Equal(t, byte(0x83&0x3F), records[0].Count)
	assert.Equal(t, byte(0x18), records[1].Code)
	assert.Equal(t, byte(0x81&0x3F), records[1].Count)

	// request [04,01,07,03], ack [04,03,09,03]
	assert.Equal(t, []byte{0x04, 0x01, TitleReadFaults, terminator, 0x04, 0x03, TitleACK, terminator}, fake.written)
	assert.Equal(t, byte(5), d.counter)
}

func TestClearFaultsAcknowledged(t *testing.T) {
	fake := &fakeWire{readQueue: []byte{
		0x04, 0x02, TitleACK, terminator, // response, counter 2
	}}
	d := readyDriver(fake, 1)

	ok, err := d.ClearFaults()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, byte(3), d.counter)
}

func TestLoginNAKReturnsFalseNotError(t *testing.T) {
	fake := &fakeWire{readQueue: []byte{
		0x04, 0x02, TitleNAK, terminator, // response: NAK
	}}
	d := readyDriver(fake, 1)

	ok, err := d.Login(0x12, 0x34, 0x00)
	require.NoError(t, err)
	assert.False(t, ok)
	// session remains Ready on a NAK
	assert.Equal(t, StateReady, d.state)
}

func TestReadValueTimeoutIsNilNotError(t *testing.T) {
	fake := &fakeWire{readQueue: nil} // RecvWithEcho/ReadByte will fail immediately
	fake.readErr = &kline.Error{Kind: kline.KindTimeout}
	d := readyDriver(fake, 1)

	v, err := d.ReadValue(0x3A)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestUnexpectedTitleSendsAckAndFails(t *testing.T) {
	fake := &fakeWire{readQueue: []byte{
		0x04, 0x02, TitleBinaryData, terminator, // unexpected for ReadFaults
	}}
	d := readyDriver(fake, 1)

	_, err := d.ReadFaults()
	assert.True(t, IsKind(err, KindUnexpectedTitle))
	// driver still sent an ack to restore counter symmetry
	assert.Equal(t, []byte{0x04, 0x01, TitleReadFaults, terminator, 0x04, 0x03, TitleACK, terminator}, fake.written)
}

func TestDoCommandFailsWhenNotConnected(t *testing.T) {
	d := &Driver{state: StateClosed, onLog: func(string) {}, onState: func(string) {}}
	_, err := d.doCommand(TitleReadFaults, nil, BlockTimeout, TitleFaultCodes)
	assert.True(t, IsKind(err, KindNotConnected))
}

func TestIdentifyUnexpectedTitleLogsAndProceeds(t *testing.T) {
	fake := &fakeWire{readQueue: []byte{
		0x07, 0x00, TitleASCIIID, 'C', 'C', 'U', terminator, // ident block, counter 0
		0x04, 0x02, TitleBinaryData, terminator, // unexpected title, counter 2
	}}
	d := &Driver{transport: fake, logger: log.Default(), onLog: func(string) {}, onState: func(string) {}}

	ident, err := d.identify()
	require.NoError(t, err)
	assert.Equal(t, "CCU", ident)
}
