package simulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbn-b4e/911OT-KKL/internal/faultdict"
	"github.com/dbn-b4e/911OT-KKL/internal/kline"
)

func newDemo(t *testing.T) *Simulator {
	t.Helper()
	dict, err := faultdict.Load()
	require.NoError(t, err)
	return New(dict, nil, nil)
}

func TestConnectReturnsDemoPartNumber(t *testing.T) {
	s := newDemo(t)
	pn, err := s.Connect("/dev/null", "965", "CCU (Climate)", kline.Options{})
	require.NoError(t, err)
	assert.Equal(t, "965.624.911.00", pn)
	assert.True(t, s.Connected())
}

func TestConnectUnknownECU(t *testing.T) {
	s := newDemo(t)
	_, err := s.Connect("/dev/null", "965", "Nonexistent ECU", kline.Options{})
	assert.Error(t, err)
}

func TestReadFaultsStableUntilCleared(t *testing.T) {
	s := newDemo(t)
	_, err := s.Connect("/dev/null", "965", "CCU (Climate)", kline.Options{})
	require.NoError(t, err)

	first, err := s.ReadFaults()
	require.NoError(t, err)
	second, err := s.ReadFaults()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	ok, err := s.ClearFaults()
	require.NoError(t, err)
	assert.True(t, ok)

	cleared, err := s.ReadFaults()
	require.NoError(t, err)
	assert.Empty(t, cleared)
}

func TestReadFaultsCapsPerSection(t *testing.T) {
	s := newDemo(t)
	_, err := s.Connect("/dev/null", "965", "CCU (Climate)", kline.Options{})
	require.NoError(t, err)

	faults, err := s.ReadFaults()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(faults), maxFaultsPerSection*len(s.ecu.FaultSections))
}

func TestReadValueWhenNotConnectedReturnsNil(t *testing.T) {
	s := newDemo(t)
	v, err := s.ReadValue(0x3A)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestReadLiveValuesAfterConnect(t *testing.T) {
	s := newDemo(t)
	_, err := s.Connect("/dev/null", "965", "CCU (Climate)", kline.Options{})
	require.NoError(t, err)
	// 965 has no specific live table, so it falls back to the generic one.
	readings := s.ReadLiveValues()
	assert.NotEmpty(t, readings)
}

func TestLoginAcceptedOnceConnected(t *testing.T) {
	s := newDemo(t)
	_, err := s.Connect("/dev/null", "965", "CCU (Climate)", kline.Options{})
	require.NoError(t, err)

	ok, err := s.Login(0x12, 0x34, 0x00)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestActuatorTestRequiresConnection(t *testing.T) {
	s := newDemo(t)
	ok, err := s.ActuatorTest(1)
	require.NoError(t, err)
	assert.False(t, ok)
}
