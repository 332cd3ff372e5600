// Package faultdict is the textual fault-code dictionary: a section ->
// code -> description mapping loaded once at construction time, not
// lazily at first lookup.
package faultdict

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
)

//go:embed data/trouble_codes.txt
var embeddedData embed.FS

var sectionHeader = regexp.MustCompile(`^\[([A-Z0-9]+)\]$`)
var codeLine = regexp.MustCompile(`^(\d+)\s*=\s*(.+)$`)

// Dictionary is an immutable section -> code -> description mapping.
type Dictionary struct {
	sections map[string]map[string]string
}

// Load parses the embedded trouble-code data into a Dictionary. It never
// fails on malformed input: unrecognized lines are skipped, matching the
// "lossy source data" posture the protocol driver takes elsewhere.
func Load() (*Dictionary, error) {
	data, err := embeddedData.ReadFile("data/trouble_codes.txt")
	if err != nil {
		return nil, fmt.Errorf("faultdict: read embedded data: %w", err)
	}
	return &Dictionary{sections: parse(data)}, nil
}

func parse(data []byte) map[string]map[string]string {
	sections := make(map[string]map[string]string)
	var current string

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if m := sectionHeader.FindStringSubmatch(line); m != nil {
			current = m[1]
			if _, ok := sections[current]; !ok {
				sections[current] = make(map[string]string)
			}
			continue
		}
		if current == "" {
			continue
		}
		if m := codeLine.FindStringSubmatch(line); m != nil {
			sections[current][m[1]] = m[2]
		}
	}
	return sections
}

// Lookup tries sections in order for code, returning the first match or
// a synthesized "Unknown fault code N" description.
func (d *Dictionary) Lookup(sections []string, code byte) string {
	codeStr := fmt.Sprintf("%d", code)
	for _, section := range sections {
		if byCode, ok := d.sections[section]; ok {
			if desc, ok := byCode[codeStr]; ok {
				return desc
			}
		}
	}
	return fmt.Sprintf("Unknown fault code %d", code)
}

// Section returns the code -> description mapping for one section,
// empty if the section doesn't exist.
func (d *Dictionary) Section(name string) map[string]string {
	out := make(map[string]string, len(d.sections[name]))
	for k, v := range d.sections[name] {
		out[k] = v
	}
	return out
}

// Sections returns the names of every loaded section.
func (d *Dictionary) Sections() []string {
	names := make([]string, 0, len(d.sections))
	for name := range d.sections {
		names = append(names, name)
	}
	return names
}
