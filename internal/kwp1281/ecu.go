package kwp1281

// ECU describes one diagnosable control unit: its wire address, the post-
// init baud rate it expects, and the ordered fault-dictionary section
// keys consulted when decoding its fault memory.
type ECU struct {
	Name          string
	Address       byte
	Baud          int
	FaultSections []string
}

// ECUsByModel is the static 964/993/965 ECU database, grounded on the
// reference tool's ECUS/FAULT_SECTIONS tables.
var ECUsByModel = map[string][]ECU{
	"964": {
		{Name: "Motronic M2.1", Address: 0x10, Baud: 8800, FaultSections: []string{"M00"}},
		{Name: "ABS (C4 only)", Address: 0x3D, Baud: 4800, FaultSections: []string{"S00"}},
		{Name: "CCU (Climate)", Address: 0x51, Baud: 4800, FaultSections: []string{"H00", "H03"}},
		{Name: "SRS (Airbag)", Address: 0x57, Baud: 9600, FaultSections: []string{"B02"}},
		{Name: "Alarm", Address: 0x40, Baud: 9600, FaultSections: []string{"I00"}},
		{Name: "TIP (Tiptronic)", Address: 0x29, Baud: 4800, FaultSections: []string{"G00"}},
	},
	"993": {
		{Name: "Motronic M5.2", Address: 0x10, Baud: 9600, FaultSections: []string{"M04", "M06"}},
		{Name: "ABS", Address: 0x1F, Baud: 9600, FaultSections: []string{"ABS5"}},
		{Name: "CCU (Climate)", Address: 0x51, Baud: 4800, FaultSections: []string{"H05", "H06", "H08"}},
		{Name: "SRS (Airbag)", Address: 0x57, Baud: 9600, FaultSections: []string{"B02", "B03"}},
		{Name: "Alarm", Address: 0x40, Baud: 9600, FaultSections: []string{"I00", "I01"}},
		{Name: "TIP (Tiptronic)", Address: 0x29, Baud: 4800, FaultSections: []string{"G00"}},
	},
	"965": {
		{Name: "CCU (Climate)", Address: 0x51, Baud: 4800, FaultSections: []string{"H00", "H03"}},
		{Name: "SRS (Airbag)", Address: 0x57, Baud: 9600, FaultSections: []string{"B02"}},
		{Name: "Alarm", Address: 0x40, Baud: 9600, FaultSections: []string{"I00"}},
		{Name: "ABS", Address: 0x3D, Baud: 4800, FaultSections: []string{"S00"}},
	},
}

// CCUActuators names the CCU's 16 actuator-test targets.
var CCUActuators = map[int]string{
	1:  "Fresh Air Servo",
	2:  "Defrost Servo",
	3:  "Footwell Servo",
	4:  "Mixer Servo Left",
	5:  "Mixer Servo Right",
	6:  "Left Heater Blower",
	7:  "Right Heater Blower",
	8:  "Condenser Fan",
	9:  "Oil Cooler Fan",
	10: "Rear Blower Speed 1",
	11: "Rear Blower Speed 2",
	12: "Inside Sensor Blower",
	13: "Actuator 13 (?)",
	14: "Actuator 14 (?)",
	15: "Actuator 15 (?)",
	16: "Actuator 16 (?)",
}

// DemoPartNumbers gives the simulator a model-correct identification
// string per (model, ECU address), standing in for a real ECU's reply to
// TitleGetECUID.
var DemoPartNumbers = map[string]map[byte]string{
	"964": {
		0x10: "964.618.124.02", 0x3D: "964.355.755.02", 0x51: "964.624.911.00",
		0x57: "964.618.223.00", 0x40: "964.618.261.00", 0x29: "964.618.901.00",
	},
	"993": {
		0x10: "993.618.124.00", 0x1F: "993.355.755.00", 0x51: "993.624.911.00",
		0x57: "993.618.223.00", 0x40: "993.618.261.00", 0x29: "993.618.901.00",
	},
	"965": {
		0x51: "965.624.911.00", 0x57: "965.618.223.00",
		0x40: "965.618.261.00", 0x3D: "965.355.755.00",
	},
}

// LookupECU resolves a model and ECU name to its descriptor.
func LookupECU(model, name string) (ECU, bool) {
	for _, e := range ECUsByModel[model] {
		if e.Name == name {
			return e, true
		}
	}
	return ECU{}, false
}

// ActuatorName returns the CCU actuator label for num, or a generic
// fallback for numbers outside the known 1-16 range.
func ActuatorName(num int) string {
	if name, ok := CCUActuators[num]; ok {
		return name
	}
	return "Actuator"
}
