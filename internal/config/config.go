// Package config loads a named connection profile from YAML so kkltool
// invocations don't need every flag spelled out every time.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is a persisted bundle of connection parameters: everything
// Connect needs, plus an optional login PIN for workshop-level access.
// Not a protocol concept — pure CLI convenience.
type Profile struct {
	Device   string `yaml:"device"`
	Model    string `yaml:"model"`
	ECU      string `yaml:"ecu"`
	Inverted bool   `yaml:"inverted"`
	PINHi    byte   `yaml:"pin_hi"`
	PINLo    byte   `yaml:"pin_lo"`
	Workshop byte   `yaml:"workshop"`
}

// File is the on-disk shape: a name -> Profile map, so one file can hold
// a profile per vehicle.
type File struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// Load reads and parses a profile file from path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &f, nil
}

// Resolve returns the named profile, or an error if it isn't defined.
func (f *File) Resolve(name string) (Profile, error) {
	p, ok := f.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("config: no profile named %q", name)
	}
	return p, nil
}
