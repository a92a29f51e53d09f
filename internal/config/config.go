// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for pawtui.
//
// Configuration is read from TOML with defaults for every field and
// environment variable overrides applied last.
//
// File locations:
//   - $PAWTUI_HOME/config.toml when PAWTUI_HOME is set
//   - ~/.pocketpaw/config.toml otherwise
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"

	"github.com/pocketpaw/pawtui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete pawtui configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	API     APIConfig     `toml:"api" json:"api"`
	Session SessionConfig `toml:"session" json:"session"`
	Chat    ChatConfig    `toml:"chat" json:"chat"`
	Memory  MemoryConfig  `toml:"memory" json:"memory"`
	UI      UIConfig      `toml:"ui" json:"ui"`
	Log     LogConfig     `toml:"log" json:"log"`
}

// APIConfig controls how the backend is reached.
type APIConfig struct {
	// BaseURL is the build-time layer of base URL resolution. It is only
	// consulted when no stored override exists. Empty means "use fallback".
	BaseURL string `toml:"base_url" json:"base_url"`

	// TimeoutSeconds bounds non-streaming requests. Streams are unbounded.
	TimeoutSeconds int `toml:"timeout_seconds" json:"timeout_seconds"`

	// RequestsPerSecond limits outgoing requests; 0 disables the limiter.
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `toml:"burst" json:"burst"`

	// SkipNgrokWarning sends ngrok-skip-browser-warning on every request so
	// tunnelled backends answer with JSON instead of an interstitial page.
	SkipNgrokWarning bool   `toml:"skip_ngrok_warning" json:"skip_ngrok_warning"`
	UserAgent        string `toml:"user_agent" json:"user_agent"`
}

// SessionConfig controls credential storage and recovery.
type SessionConfig struct {
	// ReauthAttempts is how many in-place guest re-logins a 401 may trigger
	// before the session is hard reset. 0 resets immediately.
	ReauthAttempts int `toml:"reauth_attempts" json:"reauth_attempts"`

	// StateFile is the SQLite key/value store. Relative paths resolve
	// against the config directory.
	StateFile string `toml:"state_file" json:"state_file"`

	// SealToken encrypts the stored credential at rest.
	SealToken bool `toml:"seal_token" json:"seal_token"`

	// Passphrase derives the sealing key. Empty uses a random key file.
	Passphrase string `toml:"passphrase" json:"passphrase,omitempty"`
}

// ChatConfig contains chat defaults.
type ChatConfig struct {
	// DefaultModel is preferred when the server lists it.
	DefaultModel string `toml:"default_model" json:"default_model"`

	// Markdown renders finished assistant replies with glamour.
	Markdown bool `toml:"markdown" json:"markdown"`

	// ErrorHint is appended to inline chat errors.
	ErrorHint string `toml:"error_hint" json:"error_hint"`
}

// MemoryConfig contains memory browser settings.
type MemoryConfig struct {
	SearchLimit int `toml:"search_limit" json:"search_limit"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	Theme          string `toml:"theme" json:"theme"`
	MaxFPS         int    `toml:"max_fps" json:"max_fps"`
	ShowTimestamps bool   `toml:"show_timestamps" json:"show_timestamps"`
	AltScreen      bool   `toml:"alt_screen" json:"alt_screen"`
}

// LogConfig controls the zerolog sink.
type LogConfig struct {
	Level string `toml:"level" json:"level"`

	// File is the log path. Relative paths resolve against the config
	// directory. "-" logs to stderr.
	File string `toml:"file" json:"file"`
}

// RequestTimeout returns the non-streaming request timeout.
func (a APIConfig) RequestTimeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// CurrentVersion is written to new config files.
const CurrentVersion = "1"

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		API: APIConfig{
			TimeoutSeconds:    30,
			RequestsPerSecond: 10,
			Burst:             20,
			SkipNgrokWarning:  true,
			UserAgent:         "pawtui",
		},
		Session: SessionConfig{
			ReauthAttempts: 2,
			StateFile:      "state.db",
			SealToken:      true,
		},
		Chat: ChatConfig{
			DefaultModel: "llama3",
			Markdown:     true,
			ErrorHint:    "Make sure Ollama is running.",
		},
		Memory: MemoryConfig{
			SearchLimit: 5,
		},
		UI: UIConfig{
			Theme:     "auto",
			MaxFPS:    30,
			AltScreen: true,
		},
		Log: LogConfig{
			Level: "info",
			File:  "pawtui.log",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the pawtui configuration directory.
func Dir() (string, error) {
	if dir := os.Getenv("PAWTUI_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".pocketpaw"), nil
}

// Path returns the path to config.toml.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureDir creates the configuration directory with owner-only access.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ResolvePath resolves a config-relative path such as session.state_file.
func ResolvePath(p string) (string, error) {
	if p == "" || filepath.IsAbs(p) || p == "-" {
		return p, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, p), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads config.toml from the configuration directory. A missing file is
// not an error. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads configuration from path on top of the defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, statErr := os.Stat(path); statErr == nil {
		if err := tightenPermissions(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("could not restrict config permissions")
		}
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to the default config path.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo writes cfg as TOML with 0600 permissions.
func SaveTo(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# pawtui configuration\n\n")
	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.WritePrivateFile(path, []byte(b.String()))
}

// tightenPermissions resets a config file to 0600 if it is readable by others.
func tightenPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("was %o: %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var (
	validThemes    = map[string]bool{"auto": true, "dark": true, "light": true}
	validLogLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "disabled": true}
)

// Validate checks field ranges and enumerations.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.API.BaseURL != "" {
		if err := ValidateBaseURL(c.API.BaseURL); err != nil {
			errs = append(errs, ValidationError{Field: "api.base_url", Message: err.Error()})
		}
	}
	if c.API.TimeoutSeconds < 1 || c.API.TimeoutSeconds > 600 {
		errs = append(errs, ValidationError{Field: "api.timeout_seconds", Message: "must be between 1 and 600"})
	}
	if c.API.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{Field: "api.requests_per_second", Message: "must not be negative"})
	}
	if c.Session.ReauthAttempts < 0 || c.Session.ReauthAttempts > 10 {
		errs = append(errs, ValidationError{Field: "session.reauth_attempts", Message: "must be between 0 and 10"})
	}
	if c.Memory.SearchLimit < 1 || c.Memory.SearchLimit > 100 {
		errs = append(errs, ValidationError{Field: "memory.search_limit", Message: "must be between 1 and 100"})
	}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: auto, dark, light", c.UI.Theme),
		})
	}
	if c.UI.MaxFPS < 1 || c.UI.MaxFPS > 120 {
		errs = append(errs, ValidationError{Field: "ui.max_fps", Message: "must be between 1 and 120"})
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s'", c.Log.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values that have no meaningful zero setting.
// Booleans and session.reauth_attempts are left alone since their zero
// values are valid choices.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.API.TimeoutSeconds == 0 {
		c.API.TimeoutSeconds = d.API.TimeoutSeconds
	}
	if c.API.Burst == 0 {
		c.API.Burst = d.API.Burst
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = d.API.UserAgent
	}
	if c.Session.StateFile == "" {
		c.Session.StateFile = d.Session.StateFile
	}
	if c.Chat.DefaultModel == "" {
		c.Chat.DefaultModel = d.Chat.DefaultModel
	}
	if c.Chat.ErrorHint == "" {
		c.Chat.ErrorHint = d.Chat.ErrorHint
	}
	if c.Memory.SearchLimit == 0 {
		c.Memory.SearchLimit = d.Memory.SearchLimit
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.UI.MaxFPS == 0 {
		c.UI.MaxFPS = d.UI.MaxFPS
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.File == "" {
		c.Log.File = d.Log.File
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - PAWTUI_API_URL: overrides api.base_url
//   - PAWTUI_MODEL: overrides chat.default_model
//   - PAWTUI_LOG_LEVEL: overrides log.level
//   - PAWTUI_REAUTH_ATTEMPTS: overrides session.reauth_attempts
//   - PAWTUI_PASSPHRASE: overrides session.passphrase
func (c *Config) ApplyEnvOverrides() {
	if u := os.Getenv("PAWTUI_API_URL"); u != "" {
		c.API.BaseURL = u
	}
	if model := os.Getenv("PAWTUI_MODEL"); model != "" {
		c.Chat.DefaultModel = model
	}
	if level := os.Getenv("PAWTUI_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if attempts := os.Getenv("PAWTUI_REAUTH_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			c.Session.ReauthAttempts = n
		}
	}
	if pass := os.Getenv("PAWTUI_PASSPHRASE"); pass != "" {
		c.Session.Passphrase = pass
	}
}

// =============================================================================
// DEBUG OUTPUT
// =============================================================================

// Clone returns a copy of the configuration. All fields are values, so a
// shallow struct copy is a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// String returns the config as indented JSON with the passphrase redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Session.Passphrase != "" {
		safe.Session.Passphrase = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// TOML returns the config encoded as TOML with the passphrase redacted.
func (c *Config) TOML() (string, error) {
	safe := c.Clone()
	if safe.Session.Passphrase != "" {
		safe.Session.Passphrase = "[REDACTED]"
	}
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(safe); err != nil {
		return "", err
	}
	return b.String(), nil
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the process configuration, loading it on first access.
// Load failures fall back to defaults with a warning.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			log.Warn().Err(err).Msg("using default configuration")
			cfg = Default()
			cfg.ApplyEnvOverrides()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk.
func ReloadGlobal() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	SetGlobal(cfg)
	return cfg, nil
}

// SetGlobal replaces the global configuration.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state between tests.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
