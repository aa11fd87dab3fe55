package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/fschwaiger/cubetracker/internal/action"
)

const defaultHeader = `# cubetracker configuration
#
# device_name is matched as a prefix of the tracker's advertised name.
# Placeholders in templates and template_target_file:
#   {{date}} {{time}} {{datetime}} {{weekday}} {{side}} {{set}}
# Sides: BF BL BB BR TF TL TB TR, and none for a lifted cube.
# An action may set template, command and action_set; they run in that order.

`

// Store persists Settings to a YAML file. It implements action.Persister so
// the registry can save set switches and edits. It holds the file-level
// settings from LoadFile; environment overrides and expanded paths never
// reach the file.
type Store struct {
	path string

	mu       sync.Mutex
	settings *Settings
}

// NewStore wraps file-level settings loaded from (or destined for) path. An
// empty path keeps changes in memory only.
func NewStore(path string, settings *Settings) *Store {
	return &Store{path: path, settings: settings.Clone()}
}

// Path returns the file the store writes to.
func (s *Store) Path() string { return s.path }

// Settings returns a copy of the file-level settings.
func (s *Store) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.settings.Clone()
}

// Update applies fn to the file-level settings, validates the resolved
// result and saves the file. It returns the resolved settings the program
// should now run with. On a validation or write error the previous settings
// are kept.
func (s *Store) Update(fn func(*Settings)) (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings.Clone()
	fn(next)
	resolved, err := next.Resolve()
	if err != nil {
		return nil, err
	}
	if err := resolved.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid update: %w", err)
	}
	if err := writeSettings(s.path, next); err != nil {
		return nil, err
	}
	s.settings = next
	return resolved, nil
}

// SaveActionSets records the registry state and writes the file.
func (s *Store) SaveActionSets(active string, sets map[string]action.Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings.Clone()
	next.ActiveActionSet = active
	next.ActionSets = cloneSets(sets)
	if err := writeSettings(s.path, next); err != nil {
		return err
	}
	s.settings = next
	return nil
}

var _ action.Persister = (*Store)(nil)

// writeSettings writes to a temp file first, then renames (atomic).
func writeSettings(path string, settings *Settings) error {
	if path == "" {
		return nil
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("config: rename: %w", err)
	}
	return nil
}

// WriteDefault writes a commented default config to DefaultConfigPath if no
// file exists there. It returns the path written, or "" if a file was
// already present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("config: marshal defaults: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("config: create dir: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(defaultHeader)
	buf.Write(data)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("config: write default: %w", err)
	}
	return path, nil
}

func cloneSets(sets map[string]action.Set) map[string]action.Set {
	out := make(map[string]action.Set, len(sets))
	for name, set := range sets {
		out[name] = set.Clone()
	}
	return out
}
