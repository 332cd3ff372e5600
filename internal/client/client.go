// Package client defines the ECU client capability both a real
// internal/kwp1281.Driver and the internal/simulator backend satisfy, so
// cmd/kkltool and any future UI can talk to either without a type switch.
package client

import (
	"github.com/dbn-b4e/911OT-KKL/internal/kline"
	"github.com/dbn-b4e/911OT-KKL/internal/kwp1281"
	"github.com/dbn-b4e/911OT-KKL/internal/simulator"
)

// Client is the full diagnostic session surface: connection lifecycle
// plus every command the protocol supports.
type Client interface {
	Connect(device, model, ecuName string, opts kline.Options) (string, error)
	Disconnect() error
	Connected() bool
	Identification() string

	ReadFaults() ([]kwp1281.FaultRecord, error)
	ClearFaults() (bool, error)

	ReadValue(register byte) (*byte, error)
	ReadLiveValues() []kwp1281.LiveReading
	ReadADC(channel byte) (*uint16, error)

	ActuatorTest(num byte) (bool, error)
	ReadGroup(group byte) ([]kwp1281.GroupValue, error)
	Login(pinHi, pinLo, workshop byte) (bool, error)
	ReadAdaptation(channel byte) (*kwp1281.AdaptationValue, error)
	WriteAdaptation(channel byte, value uint16) (bool, error)
}

var (
	_ Client = (*kwp1281.Driver)(nil)
	_ Client = (*simulator.Simulator)(nil)
)
