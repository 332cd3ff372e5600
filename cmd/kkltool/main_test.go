package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinWithCommas(t *testing.T) {
	assert.Equal(t, "", joinWithCommas(nil))
	assert.Equal(t, "a", joinWithCommas([]string{"a"}))
	assert.Equal(t, "a, b, c", joinWithCommas([]string{"a", "b", "c"}))
}

func writeProfileFile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestResolveWithoutProfileUsesFlagsVerbatim(t *testing.T) {
	fs := pflag.NewFlagSet("t", pflag.ContinueOnError)
	cf := registerConnFlags(fs)
	require.NoError(t, fs.Parse([]string{"--device=/dev/ttyUSB0", "--model=993", "--ecu=Motronic M5.2"}))

	p, err := cf.resolve(fs)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", p.Device)
	assert.Equal(t, "993", p.Model)
	assert.Equal(t, "Motronic M5.2", p.ECU)
}

func TestResolveProfileFillsUnsetFlagsOnly(t *testing.T) {
	path := writeProfileFile(t, `
profiles:
  track-car:
    device: /dev/ttyUSB1
    model: "964"
    ecu: "Motronic M2.1"
    inverted: true
    pin_hi: 0x12
    pin_lo: 0x34
`)

	fs := pflag.NewFlagSet("t", pflag.ContinueOnError)
	cf := registerConnFlags(fs)
	// --model is given explicitly and must win over the profile's value.
	require.NoError(t, fs.Parse([]string{"--profile=track-car", "--config=" + path, "--model=993"}))

	p, err := cf.resolve(fs)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB1", p.Device)
	assert.Equal(t, "993", p.Model)
	assert.Equal(t, "Motronic M2.1", p.ECU)
}

func TestResolveProfileWithoutConfigFails(t *testing.T) {
	fs := pflag.NewFlagSet("t", pflag.ContinueOnError)
	cf := registerConnFlags(fs)
	require.NoError(t, fs.Parse([]string{"--profile=track-car"}))

	_, err := cf.resolve(fs)
	require.Error(t, err)
}

func TestResolveUnknownProfileFails(t *testing.T) {
	path := writeProfileFile(t, "profiles:\n  other:\n    device: /dev/ttyUSB2\n")

	fs := pflag.NewFlagSet("t", pflag.ContinueOnError)
	cf := registerConnFlags(fs)
	require.NoError(t, fs.Parse([]string{"--profile=track-car", "--config=" + path}))

	_, err := cf.resolve(fs)
	require.Error(t, err)
}
