// Package measure is the pure value-scaling table the protocol driver
// consults to turn raw register/ADC bytes into human units. It owns no
// transport and no protocol state; everything here is a total function
// over a byte.
package measure

import (
	"fmt"
	"strings"
)

// Scale converts a raw byte into a display value.
type Scale func(raw byte) float64

// Register describes one value-request register: its name, scaling
// function, unit, and printf-style format verb.
type Register struct {
	Name   string
	Scale  Scale
	Unit   string
	Format string
}

// Descriptor is one row of a live-value polling table: a register plus
// the display bounds used to compute a normalized ratio.
type Descriptor struct {
	Name     string
	Register byte
	Scale    Scale
	Min      float64
	Max      float64
	Unit     string
	Format   string
}

func tempC(n byte) float64 {
	f := (float64(n)*115)/100 - 26
	return (f - 32) * 5.0 / 9.0
}

func linear(factor float64) Scale {
	return func(n byte) float64 { return float64(n) * factor }
}

func ratio255(factor float64) Scale {
	return func(n byte) float64 { return (float64(n) * factor) / 255 }
}

func identity(n byte) float64 { return float64(n) }

// Motronic964 is the Motronic M2.1 (964, 8800 baud) value-request table.
var Motronic964 = map[byte]Register{
	0x37: {"Intake Air Temp", tempC, "°C", "%.0f"},
	0x38: {"Cylinder Head Temp", tempC, "°C", "%.0f"},
	0x3A: {"RPM", linear(40), "rpm", "%.0f"},
	0x42: {"Injector Time", linear(5), "ms", "%.1f"},
	0x45: {"AFM Voltage", ratio255(500), "V", "%.2f"},
	0x5D: {"Ignition Advance", func(n byte) float64 { return ((float64(n)-0x68)*2075/255) * -1 }, "°", "%.1f"},
}

// Motronic993 is the Motronic M5.2 (993, 9600 baud) value-request table.
var Motronic993 = map[byte]Register{
	0x36: {"Battery", linear(0.0682), "V", "%.1f"},
	0x37: {"Intake Air Temp", tempC, "°C", "%.0f"},
	0x38: {"Cylinder Head Temp", tempC, "°C", "%.0f"},
	0x39: {"RPM", linear(40), "rpm", "%.0f"},
	0x3A: {"Ignition Advance", linear(0.5), "°", "%.1f"},
	0x3D: {"O2 Sensor", linear(3), "mV", "%.0f"},
	0x3E: {"Base Inj 8-bit", linear(50), "ms", "%.1f"},
	0x47: {"MAF Voltage", ratio255(500), "V", "%.2f"},
}

// ADC964 is the 964 ADC-channel table.
var ADC964 = map[byte]Register{
	1: {"MAF Sensor", ratio255(500), "V", "%.2f"},
	2: {"Battery", linear(0.0682), "V", "%.1f"},
	3: {"NTC 1", identity, "raw", "%.0f"},
	4: {"NTC 2", identity, "raw", "%.0f"},
	6: {"O2 Sensor", identity, "raw", "%.0f"},
	7: {"FQS", ratio255(500), "V", "%.2f"},
	8: {"MAP Sensor", identity, "raw", "%.0f"},
}

// ADC993 is the 993 ADC-channel table.
var ADC993 = map[byte]Register{
	1: {"Throttle Angle", func(n byte) float64 { return (float64(n) - 0x1A) * 42 }, "°", "%.1f"},
	2: {"Battery", linear(0.0682), "V", "%.1f"},
	4: {"en-sen220-10", identity, "raw", "%.0f"},
	5: {"MAF Sensor", ratio255(500), "V", "%.2f"},
	7: {"tipIgTmChg", linear(1), "°", "%.1f"},
	8: {"O2sen 5-170", identity, "raw", "%.0f"},
}

// CCU993 is the CCU read-group register table for 993.
var CCU993 = map[byte]Register{
	0x02: {"Voltage Term X", identity, "V", "%.1f"},
	0x04: {"Inside Temperature", tempC, "°C", "%.0f"},
	0x06: {"Rear Blower Temp", tempC, "°C", "%.0f"},
	0x08: {"Lt Mixing Temp", tempC, "°C", "%.0f"},
	0x10: {"Rt Mixing Temp", tempC, "°C", "%.0f"},
	0x1B: {"Front Oil Cooler Temp", tempC, "°C", "%.0f"},
	0x1D: {"Evaporator Temp", tempC, "°C", "%.0f"},
}

// ABS993 is the ABS read-group register table for 993.
var ABS993 = map[byte]Register{
	0x02: {"Stop Light SW", identity, "", "%.0f"},
	0x04: {"Valve Relay", identity, "", "%.0f"},
	0x06: {"Return Pump", identity, "", "%.0f"},
	0x08: {"Speed Vehicle", identity, "km/h", "%.0f"},
	0x10: {"Front Left", identity, "km/h", "%.0f"},
	0x1B: {"Front Right", identity, "km/h", "%.0f"},
	0x1D: {"Rear Left", identity, "km/h", "%.0f"},
	0x1F: {"Rear Right", identity, "km/h", "%.0f"},
}

// liveParams is keyed by (model, ECU address); liveParamsGeneric is the
// fallback for any ECU without a specific table.
var liveParams = map[string]map[byte][]Descriptor{
	"964": {
		0x10: {
			{"RPM", 0x3A, linear(40), 0, 7000, "rpm", "%.0f"},
			{"Head Temp", 0x38, tempC, 0, 130, "°C", "%.0f"},
			{"Intake Temp", 0x37, tempC, 0, 100, "°C", "%.0f"},
			{"AFM Voltage", 0x45, ratio255(500), 0, 5.0, "V", "%.2f"},
			{"Injector Time", 0x42, linear(5), 0, 20.0, "ms", "%.1f"},
			{"Timing", 0x5D, func(n byte) float64 { return ((float64(n)-0x68)*2075/255) * -1 }, 0, 50, "°", "%.1f"},
		},
	},
	"993": {
		0x10: {
			{"RPM", 0x39, linear(40), 0, 7000, "rpm", "%.0f"},
			{"Head Temp", 0x38, tempC, 0, 130, "°C", "%.0f"},
			{"Intake Temp", 0x37, tempC, 0, 100, "°C", "%.0f"},
			{"Battery", 0x36, linear(0.0682), 10, 16, "V", "%.1f"},
			{"O2 Sensor", 0x3D, linear(3), 0, 1000, "mV", "%.0f"},
			{"MAF Voltage", 0x47, ratio255(500), 0, 5.0, "V", "%.2f"},
		},
	},
}

var liveParamsGeneric = []Descriptor{
	{"Value 1", 0x01, identity, 0, 255, "raw", "%.0f"},
	{"Value 2", 0x02, identity, 0, 255, "raw", "%.0f"},
}

// GroupRegister looks up a read-group formula ID against the CCU or ABS
// 993 table, chosen by which substring appears in ecuName. Reports
// ok=false when ecuName contains neither "CCU" nor "ABS", or when the
// formula ID has no entry. The model is not consulted: a 964 or 965 ECU
// whose name contains "CCU" or "ABS" is also looked up in the 993 tables.
func GroupRegister(ecuName string, formulaID byte) (Register, bool) {
	var table map[byte]Register
	switch {
	case strings.Contains(ecuName, "CCU"):
		table = CCU993
	case strings.Contains(ecuName, "ABS"):
		table = ABS993
	default:
		return Register{}, false
	}
	reg, ok := table[formulaID]
	return reg, ok
}

// LiveParamsFor returns the live-value descriptor list for (model,
// ecuAddress), falling back to a generic two-register table when no
// specific one is defined.
func LiveParamsFor(model string, ecuAddress byte) []Descriptor {
	if byAddr, ok := liveParams[model]; ok {
		if d, ok := byAddr[ecuAddress]; ok {
			return d
		}
	}
	return liveParamsGeneric
}

// ConvertValue scales a raw value-request register byte for model,
// returning ok=false if the register has no entry for that model.
func ConvertValue(model string, register, raw byte) (name string, value float64, unit, formatted string, ok bool) {
	var table map[byte]Register
	switch model {
	case "964":
		table = Motronic964
	case "993":
		table = Motronic993
	default:
		return "", 0, "", "", false
	}
	reg, found := table[register]
	if !found {
		return "", 0, "", "", false
	}
	v := reg.Scale(raw)
	return reg.Name, v, reg.Unit, fmt.Sprintf(reg.Format, v), true
}

// ConvertADC scales a raw ADC channel reading for model.
func ConvertADC(model string, channel byte, raw byte) (name string, value float64, unit, formatted string, ok bool) {
	table := ADC964
	if model == "993" {
		table = ADC993
	}
	reg, found := table[channel]
	if !found {
		return "", 0, "", "", false
	}
	v := reg.Scale(raw)
	return reg.Name, v, reg.Unit, fmt.Sprintf(reg.Format, v), true
}

// Ratio clamps the normalized position of v within [min, max] to [0, 1],
// returning 0 when max <= min.
func Ratio(v, min, max float64) float64 {
	if max <= min {
		return 0
	}
	r := (v - min) / (max - min)
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
