package faultdict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadParsesEmbeddedSections(t *testing.T) {
	d, err := Load()
	require.NoError(t, err)
	assert.NotEmpty(t, d.Sections())
	assert.Contains(t, d.Sections(), "M00")
}

func TestLookupFindsKnownCode(t *testing.T) {
	d, err := Load()
	require.NoError(t, err)

	desc := d.Lookup([]string{"M00"}, 11)
	assert.Equal(t, "Oxygen sensor 1 open circuit", desc)
}

func TestLookupTriesSectionsInOrder(t *testing.T) {
	d, err := Load()
	require.NoError(t, err)

	// H03 doesn't have code 1, H00 does; H03 listed first must still fall
	// through to H00.
	desc := d.Lookup([]string{"H03", "H00"}, 1)
	assert.Equal(t, "Fresh air flap servo motor faulty", desc)
}

func TestLookupUnknownCodeSynthesizesDescription(t *testing.T) {
	d, err := Load()
	require.NoError(t, err)

	desc := d.Lookup([]string{"M00"}, 250)
	assert.Equal(t, "Unknown fault code 250", desc)
}

func TestLookupUnknownSection(t *testing.T) {
	d, err := Load()
	require.NoError(t, err)

	desc := d.Lookup([]string{"ZZZ"}, 11)
	assert.Equal(t, "Unknown fault code 11", desc)
}
