package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a single Envelope from a YAML file. Loaded
// envelopes are used to seed the envelope table at startup.
func LoadFromFile(path string) (*Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read envelope file %s: %w", path, err)
	}

	var e Envelope
	if err := yaml.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("parse envelope file %s: %w", path, err)
	}

	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("validate envelope file %s: %w", path, err)
	}

	return &e, nil
}

// LoadFromDirectory reads all .yaml/.yml files from a directory and
// returns the envelopes they define. A missing directory returns an
// empty slice, not an error.
func LoadFromDirectory(dir string) ([]Envelope, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read envelope directory %s: %w", dir, err)
	}

	var envelopes []Envelope
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		e, err := LoadFromFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, *e)
	}

	return envelopes, nil
}

// Validate checks that an Envelope is well-formed: named, bound to
// exactly one known scope kind, and using only known decision values.
func (e *Envelope) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("envelope: name is required")
	}
	switch e.ScopeKind {
	case ScopeVersion, ScopeProject, ScopeTenant:
	default:
		return fmt.Errorf("envelope: invalid scope kind %q", e.ScopeKind)
	}
	if e.ScopeID == "" {
		return fmt.Errorf("envelope: scope_id is required")
	}
	for tool, d := range e.ToolPolicies {
		if !ValidDecision(d) {
			return fmt.Errorf("envelope: tool policy %q has invalid decision %q", tool, d)
		}
	}
	if e.DefaultDecision != "" && !ValidDecision(e.DefaultDecision) {
		return fmt.Errorf("envelope: invalid default decision %q", e.DefaultDecision)
	}
	return nil
}
