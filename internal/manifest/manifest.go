// Package manifest parses and validates provider manifest JSON files and
// discovers them across a precedence-ordered set of directories.
package manifest

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	PriorityMin = -1000
	PriorityMax = 1000
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Manifest is a parsed declaration of a launchable UI provider (§3, §6.2).
type Manifest struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Kind         string            `json:"kind"`
	Priority     int               `json:"priority"`
	Exec         string            `json:"exec"`
	Args         []string          `json:"args,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
	Autostart    bool              `json:"autostart"`
	Capabilities []string          `json:"capabilities,omitempty"`

	// SourcePath is the file the manifest was parsed from; not part of
	// the wire format but needed for discovery's dedup-by-directory-order.
	SourcePath string `json:"-"`
}

// rawManifest lets Autostart default to true when the key is absent,
// mirroring the original's "json.contains(key) ? ... : true" pattern,
// which encoding/json's zero-value default can't express directly.
type rawManifest struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Kind         string          `json:"kind"`
	Priority     json.RawMessage `json:"priority"`
	Exec         string          `json:"exec"`
	Args         json.RawMessage `json:"args"`
	Env          json.RawMessage `json:"env"`
	Autostart    json.RawMessage `json:"autostart"`
	Capabilities json.RawMessage `json:"capabilities"`
}

// Parse parses and validates manifest JSON bytes, returning a specific
// rejection message on any failure rather than a generic decode error.
func Parse(data []byte, sourcePath string) (Manifest, error) {
	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return Manifest{}, fmt.Errorf("invalid JSON: %w", err)
	}

	m := Manifest{
		ID:         strings.TrimSpace(raw.ID),
		Name:       strings.TrimSpace(raw.Name),
		Kind:       strings.TrimSpace(raw.Kind),
		Exec:       strings.TrimSpace(raw.Exec),
		Autostart:  true,
		SourcePath: sourcePath,
	}

	if len(raw.Priority) > 0 {
		var p int
		if err := json.Unmarshal(raw.Priority, &p); err != nil {
			return Manifest{}, fmt.Errorf("priority must be an integer")
		}
		m.Priority = p
	}

	if len(raw.Autostart) > 0 {
		var b bool
		if err := json.Unmarshal(raw.Autostart, &b); err != nil {
			return Manifest{}, fmt.Errorf("autostart must be a boolean")
		}
		m.Autostart = b
	}

	if err := parseStringArray(raw.Args, &m.Args, "args"); err != nil {
		return Manifest{}, err
	}
	if err := parseEnvMap(raw.Env, &m.Env); err != nil {
		return Manifest{}, err
	}
	if err := parseStringArray(raw.Capabilities, &m.Capabilities, "capabilities"); err != nil {
		return Manifest{}, err
	}

	if m.ID == "" {
		return Manifest{}, fmt.Errorf("id is required")
	}
	if !idPattern.MatchString(m.ID) {
		return Manifest{}, fmt.Errorf("id must match [a-z0-9][a-z0-9._-]*")
	}
	if m.Name == "" {
		return Manifest{}, fmt.Errorf("name is required")
	}
	if m.Kind == "" {
		return Manifest{}, fmt.Errorf("kind is required")
	}
	if m.Priority < PriorityMin || m.Priority > PriorityMax {
		return Manifest{}, fmt.Errorf("priority must be within [-1000, 1000]")
	}
	if m.Exec == "" {
		return Manifest{}, fmt.Errorf("exec is required")
	}
	if !validExec(m.Exec) {
		return Manifest{}, fmt.Errorf("exec must be absolute path or basename")
	}

	return m, nil
}

func validExec(exec string) bool {
	if strings.Contains(exec, "/") {
		return filepath.IsAbs(exec)
	}
	return true
}

func parseStringArray(raw json.RawMessage, out *[]string, field string) error {
	if len(raw) == 0 {
		*out = nil
		return nil
	}
	var vals []string
	if err := json.Unmarshal(raw, &vals); err != nil {
		return fmt.Errorf("%s must be an array of strings", field)
	}
	*out = vals
	return nil
}

func parseEnvMap(raw json.RawMessage, out *map[string]string) error {
	if len(raw) == 0 {
		*out = nil
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("env must be an object of string values")
	}
	*out = m
	return nil
}

// Render serialises a manifest back to its JSON wire form; used by the
// parse(render(M)) = M round-trip property test.
func Render(m Manifest) ([]byte, error) {
	return json.Marshal(m)
}
