package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

func LoadManifest(path string) (*SourceManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

func ParseManifest(data []byte) (*SourceManifest, error) {
	var m SourceManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse source manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that each category appears once and every definition carries
// the fields its kind needs.
func (m *SourceManifest) Validate() error {
	seen := make(map[string]bool, len(m.Sources))
	for i, s := range m.Sources {
		if s.Category == "" {
			return fmt.Errorf("sources[%d]: category is required", i)
		}
		if seen[s.Category] {
			return fmt.Errorf("sources[%d]: category %q bound twice", i, s.Category)
		}
		seen[s.Category] = true

		switch s.Kind {
		case KindHTTP:
			if s.BaseURL == "" {
				return fmt.Errorf("sources[%d]: baseUrl is required for http sources", i)
			}
		case KindElasticsearch:
		case KindPostgres:
		default:
			return fmt.Errorf("sources[%d]: unknown kind %q", i, s.Kind)
		}

		if s.Timeout != "" {
			if _, err := time.ParseDuration(s.Timeout); err != nil {
				return fmt.Errorf("sources[%d]: invalid timeout %q: %w", i, s.Timeout, err)
			}
		}
	}
	return nil
}

// TimeoutOr returns the definition's timeout, or fallback when unset.
func (d SourceDefinition) TimeoutOr(fallback time.Duration) time.Duration {
	if d.Timeout == "" {
		return fallback
	}
	t, err := time.ParseDuration(d.Timeout)
	if err != nil || t <= 0 {
		return fallback
	}
	return t
}

// SaveManifest validates m and writes it as indented JSON.
func SaveManifest(path string, m *SourceManifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	m.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode source manifest: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Upsert binds def to its category, replacing any existing binding. It
// reports whether a binding was replaced.
func (m *SourceManifest) Upsert(def SourceDefinition) bool {
	for i, s := range m.Sources {
		if s.Category == def.Category {
			m.Sources[i] = def
			return true
		}
	}
	m.Sources = append(m.Sources, def)
	return false
}

// Remove drops the binding for category and reports whether one existed.
func (m *SourceManifest) Remove(category string) bool {
	for i, s := range m.Sources {
		if s.Category == category {
			m.Sources = append(m.Sources[:i], m.Sources[i+1:]...)
			return true
		}
	}
	return false
}
