package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/fschwaiger/cubetracker/internal/action"
	"github.com/fschwaiger/cubetracker/internal/side"
)

// DefaultSetName is the action set active on a fresh install.
const DefaultSetName = "default"

// Settings holds all application configuration.
type Settings struct {
	DeviceName         string                `yaml:"device_name"`
	TemplateTargetFile string                `yaml:"template_target_file"`
	ActiveActionSet    string                `yaml:"active_action_set"`
	ActionSets         map[string]action.Set `yaml:"action_sets"`
	LogLevel           string                `yaml:"log_level"`
	Transport          string                `yaml:"transport"` // "tinygo" or "hci"
	Effect             EffectConfig          `yaml:"effect"`
	Journal            JournalConfig         `yaml:"journal"`
	Cue                CueConfig             `yaml:"cue"`
	Hotkey             HotkeyConfig          `yaml:"hotkey"`
	Status             StatusConfig          `yaml:"status"`
}

// EffectConfig controls how template and command effects are performed.
type EffectConfig struct {
	Method         string        `yaml:"method"` // "file", "type" or "paste"
	Shell          string        `yaml:"shell"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// JournalConfig holds the transition journal settings.
type JournalConfig struct {
	Path string `yaml:"path"` // empty disables the journal
}

// CueConfig holds the audible cue settings.
type CueConfig struct {
	Sound string `yaml:"sound"` // WAV file or "beep"; empty disables the cue
}

// HotkeyConfig holds the connect/disconnect hotkey.
type HotkeyConfig struct {
	Keys []string `yaml:"keys"` // empty disables the hotkey
}

// StatusConfig holds the websocket status feed settings.
type StatusConfig struct {
	Listen string `yaml:"listen"` // empty disables the feed
}

// envOverrides are applied on top of the file.
type envOverrides struct {
	DeviceName  string `env:"CUBETRACKER_DEVICE_NAME"`
	LogLevel    string `env:"CUBETRACKER_LOG_LEVEL"`
	Transport   string `env:"CUBETRACKER_TRANSPORT"`
	JournalPath string `env:"CUBETRACKER_JOURNAL_PATH"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "cubetracker")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDataDir returns the directory for the journal database.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "cubetracker")
}

// DefaultActionSet returns the built-in set: every face writes a timestamped
// line naming the face, lifting the cube does nothing.
func DefaultActionSet() action.Set {
	set := make(action.Set, len(side.All()))
	for _, s := range side.All() {
		if s == side.None {
			set[s] = action.Action{}
			continue
		}
		set[s] = action.Action{Template: "{{time}} " + string(s)}
	}
	return set
}

// Default returns Settings with sensible default values.
func Default() *Settings {
	return &Settings{
		DeviceName:         "Timeular",
		TemplateTargetFile: filepath.Join("~", "notes", "{{date}}.md"),
		ActiveActionSet:    DefaultSetName,
		ActionSets: map[string]action.Set{
			DefaultSetName: DefaultActionSet(),
		},
		LogLevel:  "info",
		Transport: "tinygo",
		Effect: EffectConfig{
			Method:         "file",
			Shell:          "/bin/sh",
			CommandTimeout: 30 * time.Second,
		},
		Journal: JournalConfig{
			Path: filepath.Join(DefaultDataDir(), "journal.db"),
		},
		Hotkey: HotkeyConfig{
			Keys: []string{"ctrl", "shift", "c"},
		},
	}
}

// LoadFile reads and parses a YAML config file over the defaults. Fields
// missing from the file keep their default; each set in action_sets replaces
// the default set of the same name and leaves the others. Sets are
// back-filled to cover every side. The result is what the file says: no
// environment overrides, paths as written.
func LoadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Clone returns a deep copy of c.
func (c *Settings) Clone() *Settings {
	cp := *c
	cp.ActionSets = cloneSets(c.ActionSets)
	cp.Hotkey.Keys = append([]string(nil), c.Hotkey.Keys...)
	return &cp
}

// Resolve returns the settings the program runs with: a copy of c with
// environment overrides applied and a leading ~ expanded in paths. c itself
// is left as the file holds it.
func (c *Settings) Resolve() (*Settings, error) {
	cfg := c.Clone()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.TemplateTargetFile = expandTilde(cfg.TemplateTargetFile)
	cfg.Journal.Path = expandTilde(cfg.Journal.Path)
	cfg.Cue.Sound = expandTilde(cfg.Cue.Sound)
	return cfg, nil
}

func (c *Settings) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.DeviceName != "" {
		c.DeviceName = o.DeviceName
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.Transport != "" {
		c.Transport = o.Transport
	}
	if o.JournalPath != "" {
		c.Journal.Path = o.JournalPath
	}
	return nil
}

func (c *Settings) normalize() error {
	for name, set := range c.ActionSets {
		n, err := action.Normalize(set)
		if err != nil {
			return fmt.Errorf("action_sets.%s: %w", name, err)
		}
		c.ActionSets[name] = n
	}
	return nil
}

// Validate checks the config for invalid values.
func (c *Settings) Validate() error {
	if strings.TrimSpace(c.DeviceName) == "" {
		return fmt.Errorf("device_name must not be empty")
	}

	if len(c.ActionSets) == 0 {
		return fmt.Errorf("action_sets must not be empty")
	}
	for name, set := range c.ActionSets {
		if name == "" {
			return fmt.Errorf("action_sets: empty set name")
		}
		if err := set.Validate(); err != nil {
			return fmt.Errorf("action_sets.%s: %w", name, err)
		}
	}
	if _, ok := c.ActionSets[c.ActiveActionSet]; !ok {
		return fmt.Errorf("active_action_set %q is not defined in action_sets", c.ActiveActionSet)
	}

	switch c.Transport {
	case "tinygo", "hci":
	default:
		return fmt.Errorf("transport must be \"tinygo\" or \"hci\", got %q", c.Transport)
	}

	switch c.Effect.Method {
	case "file", "type", "paste":
	default:
		return fmt.Errorf("effect.method must be \"file\", \"type\" or \"paste\", got %q", c.Effect.Method)
	}
	if c.Effect.Method == "file" && c.TemplateTargetFile == "" {
		return fmt.Errorf("template_target_file must not be empty when effect.method is \"file\"")
	}
	if c.Effect.CommandTimeout <= 0 {
		return fmt.Errorf("effect.command_timeout must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a log_level value to a slog level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
