// Package simulator is the hardware-free stand-in for internal/kwp1281:
// same client capability surface, canned responses instead of a real
// K-Line exchange. It exists so kkltool's demo subcommand and UI work can
// proceed without a KKL cable plugged in, grounded on the reference
// tool's demo backend.
package simulator

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rs/xid"

	"github.com/dbn-b4e/911OT-KKL/internal/faultdict"
	"github.com/dbn-b4e/911OT-KKL/internal/kline"
	"github.com/dbn-b4e/911OT-KKL/internal/kwp1281"
	"github.com/dbn-b4e/911OT-KKL/internal/measure"
)

// connectDelay and friends stand in for the real handshake's timing so a
// demo session "feels" like it's talking to hardware.
const (
	connectDelay  = 500 * time.Millisecond
	initDelay     = 800 * time.Millisecond
	syncDelay     = 200 * time.Millisecond
	faultDelay    = 300 * time.Millisecond
	actuatorDelay = 500 * time.Millisecond
	loginDelay    = 300 * time.Millisecond
	adaptDelay    = 200 * time.Millisecond
	groupDelay    = 200 * time.Millisecond
)

// maxFaultsPerSection caps how many codes the simulator seeds per fault
// section, matching the reference tool's "good scrollable list" comment.
const maxFaultsPerSection = 8

// Simulator implements the same capability surface as *kwp1281.Driver
// without touching any transport.
type Simulator struct {
	mu sync.Mutex

	connected    bool
	model        string
	ecu          kwp1281.ECU
	ident        string
	sessionID    xid.ID
	rng          *rand.Rand
	storedFaults []kwp1281.FaultRecord
	faultsLoaded bool

	dict    *faultdict.Dictionary
	logger  *log.Logger
	onLog   func(string)
	onState func(string)
}

// New constructs a Simulator. onLog and onState may be nil (no-op).
func New(dict *faultdict.Dictionary, onLog func(string), onState func(string)) *Simulator {
	if onLog == nil {
		onLog = func(string) {}
	}
	if onState == nil {
		onState = func(string) {}
	}
	id := xid.New()
	return &Simulator{
		dict:      dict,
		sessionID: id,
		rng:       rand.New(rand.NewSource(seedFromID(id))),
		logger:    log.Default().With("session", id.String(), "demo", true),
		onLog:     onLog,
		onState:   onState,
	}
}

// seedFromID turns a session id into a reproducible-per-session PRNG
// seed: same session, same fault draw, without depending on xid's
// internal counter representation.
func seedFromID(id xid.ID) int64 {
	b := id.Bytes()
	var seed int64
	for _, c := range b {
		seed = seed*131 + int64(c)
	}
	if seed < 0 {
		seed = -seed
	}
	return seed
}

func (s *Simulator) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Debug(msg)
	s.onLog(msg)
}

func (s *Simulator) setState(state string) {
	s.onState(state)
	s.logger.Info("state transition", "state", state)
}

// Connected reports whether the simulated session is active.
func (s *Simulator) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Connect mimics the hardware handshake's pacing and returns a canned
// part-number identification string for (model, ecuName).
func (s *Simulator) Connect(device, model, ecuName string, opts kline.Options) (string, error) {
	ecu, ok := kwp1281.LookupECU(model, ecuName)
	if !ok {
		return "", fmt.Errorf("simulator: unknown ECU %q for model %q", ecuName, model)
	}

	s.logf("[DEMO] Connecting to %s (0x%02X)...", ecu.Name, ecu.Address)
	s.setState("connecting")
	time.Sleep(connectDelay)

	s.logf("[DEMO] Sending 5-baud init...")
	time.Sleep(initDelay)

	s.logf("[DEMO] Sync 0x55 received")
	s.logf("[DEMO] Keywords: 0x0B 0x02")
	time.Sleep(syncDelay)

	pn := kwp1281.DemoPartNumbers[model][ecu.Address]
	if pn == "" {
		pn = "XXX.XXX.XXX.XX"
	}
	s.logf("[DEMO] ECU ID: %s", pn)

	s.mu.Lock()
	s.connected = true
	s.model = model
	s.ecu = ecu
	s.ident = pn
	s.storedFaults = nil
	s.faultsLoaded = false
	s.mu.Unlock()

	s.setState("connected")
	s.logf("[DEMO] Connected to %s", ecu.Name)
	return pn, nil
}

// Disconnect ends the simulated session.
func (s *Simulator) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	s.logf("[DEMO] Sending EndComm...")
	time.Sleep(100 * time.Millisecond)
	s.connected = false
	s.setState("disconnected")
	s.logf("[DEMO] Disconnected")
	return nil
}

// Identification returns the cached demo part-number string.
func (s *Simulator) Identification() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ident
}

func (s *Simulator) generateFaults() []kwp1281.FaultRecord {
	var records []kwp1281.FaultRecord
	for _, section := range s.ecu.FaultSections {
		codes := s.dict.Section(section)
		if len(codes) == 0 {
			continue
		}
		type pair struct {
			code string
			desc string
		}
		pairs := make([]pair, 0, len(codes))
		for code, desc := range codes {
			pairs = append(pairs, pair{code, desc})
		}
		s.rng.Shuffle(len(pairs), func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })
		n := maxFaultsPerSection
		if n > len(pairs) {
			n = len(pairs)
		}
		for _, p := range pairs[:n] {
			var code int
			fmt.Sscanf(p.code, "%d", &code)
			records = append(records, kwp1281.FaultRecord{
				Code:        byte(code),
				Count:       byte(1 + s.rng.Intn(12)),
				Description: p.desc,
			})
		}
	}
	return records
}

// ReadFaults returns the simulated fault list, generated once per session
// and held stable until ClearFaults is called (demo.py's read_faults).
func (s *Simulator) ReadFaults() ([]kwp1281.FaultRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, nil
	}

	s.logf("[DEMO] Reading fault codes...")
	time.Sleep(faultDelay)

	if !s.faultsLoaded {
		s.storedFaults = s.generateFaults()
		s.faultsLoaded = true
	}

	s.logf("[DEMO] Found %d fault(s)", len(s.storedFaults))
	for _, f := range s.storedFaults {
		s.logf("  #%d: %s (x%d)", f.Code, f.Description, f.Count)
	}
	return append([]kwp1281.FaultRecord(nil), s.storedFaults...), nil
}

// ClearFaults empties the stored fault list; the next ReadFaults call
// returns an empty result instead of regenerating one.
func (s *Simulator) ClearFaults() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false, nil
	}
	s.logf("[DEMO] Clearing fault memory...")
	time.Sleep(faultDelay)
	s.storedFaults = []kwp1281.FaultRecord{}
	s.faultsLoaded = true
	s.logf("[DEMO] Fault memory cleared (ACK)")
	return true, nil
}

// demoBaseValues seeds plausible raw register bytes, grounded on the
// reference tool's base_values table.
var demoBaseValues = map[byte]byte{
	0x37: 140, 0x38: 180, 0x39: 21, 0x3A: 21,
	0x42: 64, 0x45: 92, 0x5D: 80, 0x36: 204,
	0x3D: 50, 0x47: 51,
}

// ReadValue synthesizes a raw register byte jittered +-5% around a
// plausible base value.
func (s *Simulator) ReadValue(register byte) (*byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, nil
	}

	base, ok := demoBaseValues[register]
	if !ok {
		base = 128
	}
	jitter := int(float64(base)*0.05 + 0.5)
	if jitter < 1 {
		jitter = 1
	}
	v := int(base) + s.rng.Intn(2*jitter+1) - jitter
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	raw := byte(v)
	return &raw, nil
}

// ReadLiveValues polls every live-value descriptor for the connected
// (model, ECU), same as the real driver but sourced from ReadValue's
// synthetic bytes.
func (s *Simulator) ReadLiveValues() []kwp1281.LiveReading {
	s.mu.Lock()
	model, addr, connected := s.model, s.ecu.Address, s.connected
	s.mu.Unlock()
	if !connected {
		return nil
	}

	var readings []kwp1281.LiveReading
	for _, desc := range measure.LiveParamsFor(model, addr) {
		raw, err := s.ReadValue(desc.Register)
		if err != nil || raw == nil {
			continue
		}
		v := desc.Scale(*raw)
		readings = append(readings, kwp1281.LiveReading{
			Name:      desc.Name,
			Value:     v,
			Unit:      desc.Unit,
			Formatted: fmt.Sprintf(desc.Format, v),
			Ratio:     measure.Ratio(v, desc.Min, desc.Max),
		})
	}
	return readings
}

// ReadADC returns a canned two-byte ADC reading.
func (s *Simulator) ReadADC(channel byte) (*uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, nil
	}
	v := uint16(s.rng.Intn(65536))
	return &v, nil
}

// ActuatorTest simulates one actuator exercise cycle.
func (s *Simulator) ActuatorTest(num byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false, nil
	}
	name := kwp1281.ActuatorName(int(num))
	s.logf("[DEMO] Actuator test #%02d: %s", num, name)
	time.Sleep(actuatorDelay)
	s.logf("[DEMO] Actuator #%02d responded OK", num)
	return true, nil
}

// ReadGroup returns 4 canned (formula, a, b) triples.
func (s *Simulator) ReadGroup(group byte) ([]kwp1281.GroupValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, nil
	}
	s.logf("[DEMO] ReadGroup %02X", group)
	time.Sleep(groupDelay)
	formulaIDs := []byte{0x02, 0x04, 0x06, 0x08}
	values := make([]kwp1281.GroupValue, 4)
	for i := range values {
		gv := kwp1281.GroupValue{
			FormulaID: formulaIDs[i],
			A:         byte(s.rng.Intn(256)),
			B:         byte(s.rng.Intn(256)),
		}
		if reg, ok := measure.GroupRegister(s.ecu.Name, gv.FormulaID); ok {
			gv.Name = reg.Name
			gv.Formatted = fmt.Sprintf(reg.Format, reg.Scale(gv.A))
		}
		values[i] = gv
	}
	return values, nil
}

// Login always succeeds once connected, matching the reference tool's
// unconditional demo-mode acceptance.
func (s *Simulator) Login(pinHi, pinLo, workshop byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false, nil
	}
	s.logf("[DEMO] Login PIN=%02X%02X WS=%02X", pinHi, pinLo, workshop)
	time.Sleep(loginDelay)
	s.logf("[DEMO] Login accepted (ACK)")
	return true, nil
}

// ReadAdaptation returns a canned 16-bit value for channel.
func (s *Simulator) ReadAdaptation(channel byte) (*kwp1281.AdaptationValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, nil
	}
	s.logf("[DEMO] ReadAdapt channel %02X", channel)
	time.Sleep(adaptDelay)
	return &kwp1281.AdaptationValue{
		Channel: channel,
		Value:   uint16(s.rng.Intn(65536)),
	}, nil
}

// WriteAdaptation always acknowledges once connected.
func (s *Simulator) WriteAdaptation(channel byte, value uint16) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false, nil
	}
	s.logf("[DEMO] WriteAdapt ch=%02X val=%d", channel, value)
	time.Sleep(faultDelay)
	s.logf("[DEMO] Adaptation written (ACK)")
	return true, nil
}
