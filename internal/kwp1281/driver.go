package kwp1281

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rs/xid"

	"github.com/dbn-b4e/911OT-KKL/internal/kline"
	"github.com/dbn-b4e/911OT-KKL/internal/measure"
	"github.com/dbn-b4e/911OT-KKL/internal/metrics"
)

// BlockTimeout bounds the wait for a block's terminator byte, separately
// from the per-byte inter-byte timeout RecvWithEcho already enforces.
const BlockTimeout = 1 * time.Second

// InitRetryDelay is the pause between failed connect attempts.
const InitRetryDelay = 1 * time.Second

// AdaptationTimeout is the read timeout adaptation writes need: some
// ECUs delay their ACK while writing EEPROM.
const AdaptationTimeout = 60 * time.Second

// State is the driver's connection lifecycle, mirrored to on_state_change
// as "connecting" | "connected" | "disconnected".
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateIdentifying
	StateReady
)

func (s State) String() string {
	switch s {
	case StateConnecting, StateIdentifying:
		return "connecting"
	case StateReady:
		return "connected"
	default:
		return "disconnected"
	}
}

// LiveReading is one row of a read_live_values result.
type LiveReading struct {
	Name      string
	Value     float64
	Unit      string
	Formatted string
	Ratio     float64
}

// GroupValue is one entry of a ReadGroup response.
type GroupValue struct {
	FormulaID byte
	A         byte
	B         byte
	Name      string // empty if the connected ECU has no known group table
	Formatted string
}

// AdaptationValue is the (channel, value) pair ReadAdaptation returns.
type AdaptationValue struct {
	Channel byte
	Value   uint16
}

// Driver owns one KWP1281 session: the transport, the block counter, and
// the connect/ready/closed state machine. It is the "real" half of the
// ECU client capability (internal/client); internal/simulator is the other.
type Driver struct {
	// mu guards transport, counter, and state for the whole duration of a
	// command (request, response, trailing ACK exchange) — GUARDED_BY(mu).
	mu      sync.Mutex
	state   State
	counter byte
	ecu     ECU
	model   string
	ident   string

	transport wireTransport

	// commandActive lets the keep-alive scheduler cheaply skip a cycle
	// without contending mu against a long-running command.
	commandActive atomic.Bool

	dict FaultDictionary

	metrics *metrics.Metrics

	sessionID xid.ID
	logger    *log.Logger
	onLog     func(string)
	onState   func(string)

	keepaliveStop chan struct{}
	keepaliveDone chan struct{}
}

// openTransport is a package variable so driver tests can substitute a
// fake wireTransport instead of opening a real serial device.
var openTransport = func(device string, opts kline.Options) (wireTransport, error) {
	return kline.Open(device, opts)
}

// NewDriver constructs a Driver. onLog and onState may be nil (no-op).
func NewDriver(dict FaultDictionary, onLog func(string), onState func(string)) *Driver {
	if onLog == nil {
		onLog = func(string) {}
	}
	if onState == nil {
		onState = func(string) {}
	}
	id := xid.New()
	return &Driver{
		dict:      dict,
		sessionID: id,
		logger:    log.Default().With("session", id.String()),
		onLog:     onLog,
		onState:   onState,
	}
}

func (d *Driver) setState(s State) {
	d.state = s
	d.onState(s.String())
	d.logger.Info("state transition", "state", s.String())
}

func (d *Driver) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d.logger.Debug(msg)
	d.onLog(msg)
}

// SetMetrics attaches a metrics sink; m may be nil to disable reporting.
// Not safe to call concurrently with command dispatch.
func (d *Driver) SetMetrics(m *metrics.Metrics) {
	d.metrics = m
}

// Connected reports whether the session is Ready.
func (d *Driver) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == StateReady
}

// Connect performs up to MaxInitRetries attempts: open the port, 5-baud
// wake the ECU, run the key-word handshake, then read identification
// blocks until the ECU closes with an ACK.
func (d *Driver) Connect(device, model, ecuName string, opts kline.Options) (string, error) {
	ecu, ok := LookupECU(model, ecuName)
	if !ok {
		return "", fmt.Errorf("kwp1281: unknown ECU %q for model %q", ecuName, model)
	}

	d.mu.Lock()
	d.setState(StateConnecting)
	d.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= MaxInitRetries; attempt++ {
		ident, err := d.connectOnce(device, model, ecu, opts)
		if err == nil {
			return ident, nil
		}
		lastErr = err
		d.logf("connect attempt %d/%d failed: %v", attempt, MaxInitRetries, err)
		if attempt < MaxInitRetries {
			time.Sleep(InitRetryDelay)
		}
	}

	d.mu.Lock()
	d.setState(StateClosed)
	d.mu.Unlock()
	return "", fmt.Errorf("kwp1281: connect failed after %d attempts: %w", MaxInitRetries, lastErr)
}

func (d *Driver) connectOnce(device, model string, ecu ECU, opts kline.Options) (string, error) {
	t, err := openTransport(device, opts)
	if err != nil {
		return "", err
	}

	if err := t.Send5Baud(ecu.Address); err != nil {
		t.Close()
		return "", err
	}

	_, _, err = t.Handshake(ecu.Baud)
	if err != nil {
		t.Close()
		return "", err
	}

	d.mu.Lock()
	d.transport = t
	d.counter = 0
	d.setState(StateIdentifying)
	d.mu.Unlock()

	ident, err := d.identify()
	if err != nil {
		t.Close()
		d.mu.Lock()
		d.transport = nil
		d.mu.Unlock()
		return "", err
	}

	d.mu.Lock()
	d.ecu = ecu
	d.model = model
	d.ident = ident
	d.setState(StateReady)
	d.mu.Unlock()

	d.startKeepalive()
	return ident, nil
}

// identify drives the post-handshake identification loop, reading ASCII
// blocks until the ECU closes with an ACK. Caller holds no lock; it takes
// d.mu only around counter/transport access, matching the discipline the
// rest of the driver uses.
func (d *Driver) identify() (string, error) {
	var ident []byte
	for i := 0; i < MaxIdentBlocks; i++ {
		d.mu.Lock()
		block, err := recvBlock(d.transport, BlockTimeout, d.logf)
		if err != nil {
			d.mu.Unlock()
			return "", err
		}
		d.counter = block.Counter + 1

		switch block.Title {
		case TitleASCIIID:
			ident = append(ident, block.Payload...)
			ack := ackBlock(d.counter)
			if err := sendBlock(d.transport, ack); err != nil {
				d.mu.Unlock()
				return "", err
			}
			d.counter++
			d.mu.Unlock()
		case TitleACK:
			ack := ackBlock(d.counter)
			if err := sendBlock(d.transport, ack); err != nil {
				d.mu.Unlock()
				return "", err
			}
			d.counter++
			d.mu.Unlock()
			return string(ident), nil
		default:
			d.logf("unexpected title 0x%02X during identification, continuing", block.Title)
			ack := ackBlock(d.counter)
			sendErr := sendBlock(d.transport, ack)
			d.counter++
			d.mu.Unlock()
			if sendErr != nil {
				return "", sendErr
			}
			return string(ident), nil
		}
	}
	return "", newErr(KindUnexpectedTitle, "identification exceeded max blocks without ECU close", nil)
}

// Disconnect stops the keep-alive, sends a best-effort EndComm, and
// closes the transport.
func (d *Driver) Disconnect() error {
	d.stopKeepalive()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateReady {
		return nil
	}

	req := Block{Counter: d.counter, Title: TitleEndComm}
	if err := sendBlock(d.transport, req); err != nil {
		d.logf("EndComm send failed: %v", err)
	}
	d.counter++
	// Best-effort: don't fail disconnect if the ECU doesn't answer.
	recvBlock(d.transport, BlockTimeout, d.logf)

	err := d.transport.Close()
	d.transport = nil
	d.setState(StateClosed)
	return err
}

// doCommand delegates one full command exchange to doCommandLocked, then
// reports its outcome to the attached metrics sink (a no-op if none is
// set).
func (d *Driver) doCommand(title byte, payload []byte, timeout time.Duration, expected ...byte) (Block, error) {
	start := time.Now()
	resp, err := d.doCommandLocked(title, payload, timeout, expected...)
	d.metrics.ObserveCommand(fmt.Sprintf("0x%02X", title), commandResult(err), time.Since(start).Seconds())
	return resp, err
}

// commandResult labels an error for the command-outcome metric.
func commandResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsKind(err, KindECUNak):
		return "nak"
	case IsKind(err, KindUnexpectedTitle):
		return "unexpected_title"
	case kline.IsKind(err, kline.KindTimeout):
		return "timeout"
	default:
		return "error"
	}
}

// doCommandLocked runs one full command exchange: send request, receive
// response, and (for an expected data title) close with an ACK round-trip;
// an expected ACK response ends the exchange at once.
// Held under d.mu for its entire duration so nothing can intervene
// between a response and its tail ACK.
// timeout bounds the read of the response block's terminator byte; the
// response's other bytes are each read within kline.InterByteTimeout.
func (d *Driver) doCommandLocked(title byte, payload []byte, timeout time.Duration, expected ...byte) (Block, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateReady {
		return Block{}, newErr(KindNotConnected, "no active session", nil)
	}

	d.commandActive.Store(true)
	defer d.commandActive.Store(false)

	req := Block{Counter: d.counter, Title: title, Payload: payload}
	if err := sendBlock(d.transport, req); err != nil {
		d.sessionLost(err)
		return Block{}, err
	}
	d.counter++

	resp, err := recvBlock(d.transport, timeout, d.logf)
	if err != nil {
		d.handleTransportErr(err)
		return Block{}, err
	}
	if resp.Counter != d.counter {
		d.logf("counter drift: expected %d, got %d", d.counter, resp.Counter)
	}
	d.counter = resp.Counter + 1

	if resp.Title == TitleNAK {
		return resp, newErr(KindECUNak, "ECU returned NAK", nil)
	}

	if !containsTitle(expected, resp.Title) {
		ack := ackBlock(d.counter)
		sendErr := sendBlock(d.transport, ack)
		d.counter++
		if sendErr != nil {
			d.handleTransportErr(sendErr)
			return resp, sendErr
		}
		return resp, newErr(KindUnexpectedTitle, fmt.Sprintf("unexpected response title 0x%02X", resp.Title), nil)
	}

	// An ACK response is itself the close of the exchange (a two-block
	// round trip: request, ACK). Only a data response needs the driver to
	// send its own ACK and wait for the ECU's tail block.
	if resp.Title == TitleACK {
		return resp, nil
	}

	ack := ackBlock(d.counter)
	if err := sendBlock(d.transport, ack); err != nil {
		d.handleTransportErr(err)
		return resp, err
	}
	d.counter++

	tail, err := recvBlock(d.transport, BlockTimeout, d.logf)
	if err != nil {
		d.handleTransportErr(err)
		return resp, err
	}
	d.counter = tail.Counter + 1

	return resp, nil
}

// handleTransportErr applies the error-propagation policy: a plain timeout
// (no response, on either the main reply or the trailing ACK round-trip)
// leaves the session Ready since no byte-level desync occurred; anything
// else (echo mismatch, I/O failure, bad sync) forces a session loss
// because the block counter can no longer be trusted to match the ECU's.
// Caller holds d.mu.
func (d *Driver) handleTransportErr(err error) {
	if kline.IsKind(err, kline.KindTimeout) {
		d.logf("transport timeout: %v", err)
		return
	}
	d.sessionLost(err)
}

// sessionLost transitions to Closed on errors that would require
// resynchronizing the counter to recover from.
// Caller holds d.mu.
func (d *Driver) sessionLost(err error) {
	d.logf("session lost: %v", err)
	if d.transport != nil {
		d.transport.Close()
		d.transport = nil
	}
	d.state = StateClosed
	d.onState(StateClosed.String())
}

func containsTitle(set []byte, title byte) bool {
	for _, t := range set {
		if t == title {
			return true
		}
	}
	return false
}

// ReadFaults issues TitleReadFaults and decodes the response payload.
func (d *Driver) ReadFaults() ([]FaultRecord, error) {
	resp, err := d.doCommand(TitleReadFaults, nil, BlockTimeout, TitleFaultCodes)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	sections := d.ecu.FaultSections
	d.mu.Unlock()
	return parseFaults(resp.Payload, d.dict, sections), nil
}

// ClearFaults issues TitleClearFlts.
func (d *Driver) ClearFaults() (bool, error) {
	_, err := d.doCommand(TitleClearFlts, nil, BlockTimeout, TitleACK)
	if err != nil {
		if IsKind(err, KindECUNak) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReadValue issues a single value-request; a timeout is not a session
// failure, only a missed reading.
func (d *Driver) ReadValue(register byte) (*byte, error) {
	resp, err := d.doCommand(TitleValueReq, []byte{0x01, 0x00, register}, BlockTimeout, TitleBinaryData)
	if err != nil {
		if kline.IsKind(err, kline.KindTimeout) {
			return nil, nil
		}
		return nil, err
	}
	if len(resp.Payload) == 0 {
		return nil, nil
	}
	v := resp.Payload[0]
	return &v, nil
}

// ReadLiveValues polls every descriptor for the connected (model, ECU),
// skipping individual failed reads rather than failing the whole call.
func (d *Driver) ReadLiveValues() []LiveReading {
	d.mu.Lock()
	model, addr := d.model, d.ecu.Address
	d.mu.Unlock()

	var readings []LiveReading
	for _, desc := range measure.LiveParamsFor(model, addr) {
		raw, err := d.ReadValue(desc.Register)
		if err != nil || raw == nil {
			continue
		}
		v := desc.Scale(*raw)
		readings = append(readings, LiveReading{
			Name:      desc.Name,
			Value:     v,
			Unit:      desc.Unit,
			Formatted: fmt.Sprintf(desc.Format, v),
			Ratio:     measure.Ratio(v, desc.Min, desc.Max),
		})
	}
	return readings
}

// ReadADC issues TitleADCRead; the response payload is 2 bytes
// big-endian.
func (d *Driver) ReadADC(channel byte) (*uint16, error) {
	resp, err := d.doCommand(TitleADCRead, []byte{channel}, BlockTimeout, TitleADCResp)
	if err != nil {
		if kline.IsKind(err, kline.KindTimeout) {
			return nil, nil
		}
		return nil, err
	}
	if len(resp.Payload) < 2 {
		return nil, nil
	}
	v := uint16(resp.Payload[0])<<8 | uint16(resp.Payload[1])
	return &v, nil
}

// ActuatorTest issues TitleActuator for num; either TitleACK or
// TitleAdaptWrite counts as success.
func (d *Driver) ActuatorTest(num byte) (bool, error) {
	_, err := d.doCommand(TitleActuator, []byte{num}, BlockTimeout, TitleACK, TitleAdaptWrite)
	if err != nil {
		if IsKind(err, KindECUNak) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReadGroup issues TitleReadGroup and decodes up to 4 (fid, a, b) triples,
// naming and scaling each triple's A value against the connected ECU's
// CCU or ABS read-group table when one applies.
func (d *Driver) ReadGroup(group byte) ([]GroupValue, error) {
	resp, err := d.doCommand(TitleReadGroup, []byte{group}, BlockTimeout, TitleGroupData)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	ecuName := d.ecu.Name
	d.mu.Unlock()

	var values []GroupValue
	for i := 0; i+2 < len(resp.Payload) && len(values) < 4; i += 3 {
		gv := GroupValue{
			FormulaID: resp.Payload[i],
			A:         resp.Payload[i+1],
			B:         resp.Payload[i+2],
		}
		if reg, ok := measure.GroupRegister(ecuName, gv.FormulaID); ok {
			gv.Name = reg.Name
			gv.Formatted = fmt.Sprintf(reg.Format, reg.Scale(gv.A))
		}
		values = append(values, gv)
	}
	return values, nil
}

// Login issues TitleLogin with a PIN and optional workshop code.
func (d *Driver) Login(pinHi, pinLo, workshop byte) (bool, error) {
	_, err := d.doCommand(TitleLogin, []byte{pinHi, pinLo, workshop}, BlockTimeout, TitleACK)
	if err != nil {
		if IsKind(err, KindECUNak) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReadAdaptation issues TitleReadAdapt for channel.
func (d *Driver) ReadAdaptation(channel byte) (*AdaptationValue, error) {
	resp, err := d.doCommand(TitleReadAdapt, []byte{channel}, AdaptationTimeout, TitleAdaptResp)
	if err != nil {
		if kline.IsKind(err, kline.KindTimeout) {
			return nil, nil
		}
		return nil, err
	}
	if len(resp.Payload) < 3 {
		return nil, nil
	}
	return &AdaptationValue{
		Channel: resp.Payload[0],
		Value:   uint16(resp.Payload[1])<<8 | uint16(resp.Payload[2]),
	}, nil
}

// WriteAdaptation issues TitleWriteAdapt, passing AdaptationTimeout rather
// than BlockTimeout as the terminator-read timeout. The response's first
// byte is still read within kline.InterByteTimeout, so an ECU that delays
// its ACK longer than that makes the command time out.
func (d *Driver) WriteAdaptation(channel byte, value uint16) (bool, error) {
	payload := []byte{channel, byte(value >> 8), byte(value)}
	_, err := d.doCommand(TitleWriteAdapt, payload, AdaptationTimeout, TitleACK)
	if err != nil {
		if IsKind(err, KindECUNak) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Identification returns the cached ECU identification string.
func (d *Driver) Identification() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ident
}
