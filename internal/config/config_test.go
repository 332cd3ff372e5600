package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfileFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadResolvesNamedProfile(t *testing.T) {
	path := writeProfileFile(t, `
profiles:
  964-track-car:
    device: /dev/ttyUSB0
    model: "964"
    ecu: Motronic M2.1
    inverted: true
`)
	f, err := Load(path)
	require.NoError(t, err)

	p, err := f.Resolve("964-track-car")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", p.Device)
	assert.Equal(t, "964", p.Model)
	assert.Equal(t, "Motronic M2.1", p.ECU)
	assert.True(t, p.Inverted)
}

func TestResolveUnknownProfile(t *testing.T) {
	path := writeProfileFile(t, "profiles: {}\n")
	f, err := Load(path)
	require.NoError(t, err)

	_, err = f.Resolve("missing")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
