package measure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertValueMotronic964RPM(t *testing.T) {
	name, value, unit, formatted, ok := ConvertValue("964", 0x3A, 21)
	require.True(t, ok)
	assert.Equal(t, "RPM", name)
	assert.Equal(t, float64(840), value)
	assert.Equal(t, "rpm", unit)
	assert.Equal(t, "840", formatted)
}

func TestConvertValueUnknownRegister(t *testing.T) {
	_, _, _, _, ok := ConvertValue("964", 0xFF, 0)
	assert.False(t, ok)
}

func TestConvertValueUnknownModel(t *testing.T) {
	_, _, _, _, ok := ConvertValue("965", 0x37, 0)
	assert.False(t, ok)
}

func TestConvertADC993Battery(t *testing.T) {
	name, value, unit, _, ok := ConvertADC("993", 2, 200)
	require.True(t, ok)
	assert.Equal(t, "Battery", name)
	assert.InDelta(t, 13.64, value, 0.001)
	assert.Equal(t, "V", unit)
}

func TestLiveParamsForUnknownECUFallsBackToGeneric(t *testing.T) {
	unknown := LiveParamsFor("993", 0x99)
	assert.Equal(t, liveParamsGeneric, unknown)

	known := LiveParamsFor("964", 0x10)
	assert.NotEmpty(t, known)
	assert.Equal(t, "RPM", known[0].Name)
}

func TestRatioClampsToUnitInterval(t *testing.T) {
	assert.Equal(t, 0.0, Ratio(-10, 0, 100))
	assert.Equal(t, 1.0, Ratio(200, 0, 100))
	assert.Equal(t, 0.5, Ratio(50, 0, 100))
	assert.Equal(t, 0.0, Ratio(50, 100, 0)) // max <= min
}
