package kwp1281

// Block titles: commands (tool -> ECU).
const (
	TitleGetECUID   = 0x00
	TitleValueReq   = 0x01
	TitleClearFlts  = 0x05
	TitleEndComm    = 0x06
	TitleReadFaults = 0x07
	TitleADCRead    = 0x08
	TitleACK        = 0x09
	TitleActuator   = 0x10
	TitleBasicSet   = 0x28
	TitleReadGroup  = 0x29
	TitleLogin      = 0x2A
	TitleReadAdapt  = 0x2B
	TitleWriteAdapt = 0x2C
)

// Block titles: responses (ECU -> tool).
const (
	TitleNAK        = 0x0A
	TitleGroupData  = 0xE7
	TitleAdaptResp  = 0xF4
	TitleAdaptWrite = 0xF5
	TitleASCIIID    = 0xF6
	TitleADCResp    = 0xFB
	TitleFaultCodes = 0xFC
	TitleAdaptChan  = 0xFD
	TitleBinaryData = 0xFE
)

const terminator = 0x03

// MaxInitRetries bounds the number of connect attempts before reporting
// the last underlying error.
const MaxInitRetries = 3

// MaxIdentBlocks bounds the identification loop so a misbehaving ECU that
// never sends a closing ACK can't hang connect forever.
const MaxIdentBlocks = 8
