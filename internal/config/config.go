// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/medassist-tui/internal/util"
)

// =============================================================================
// DURATION
// =============================================================================

// Duration is a time.Duration written as a Go duration string ("12ms").
type Duration struct {
	time.Duration
}

// D wraps d.
func D(d time.Duration) Duration {
	return Duration{Duration: d}
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	d.Duration = v
	return nil
}

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete medassist configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Inference InferenceConfig `toml:"inference" json:"inference"`
	Storage   StorageConfig   `toml:"storage" json:"storage"`
	Scratch   ScratchConfig   `toml:"scratch" json:"scratch"`
	Chat      ChatConfig      `toml:"chat" json:"chat"`
	Logging   LoggingConfig   `toml:"logging" json:"logging"`
	Server    ServerConfig    `toml:"server" json:"server"`
	Auth      AuthConfig      `toml:"auth" json:"auth"`
}

// InferenceConfig describes the consultation endpoint.
type InferenceConfig struct {
	// URL is the base URL of the assistant service (empty = not configured)
	URL string `toml:"url" json:"url"`
	// APIKey is sent as a bearer token
	APIKey string `toml:"api_key" json:"api_key"`
	// Timeout bounds one call; a slow service fails visibly instead of hanging
	Timeout Duration `toml:"timeout" json:"timeout"`
	// RatePerSec limits outgoing calls (0 = unlimited)
	RatePerSec float64 `toml:"rate_per_sec" json:"rate_per_sec"`
	Burst      int     `toml:"burst" json:"burst"`
	// Offline answers from built-in canned replies without any network
	Offline bool `toml:"offline" json:"offline"`
}

// StorageConfig selects the durable conversation store.
type StorageConfig struct {
	// DatabaseURL is "sqlite://<path>", "postgres://..." or "memory://"
	DatabaseURL string `toml:"database_url" json:"database_url"`
}

// ScratchConfig locates crash-recovery snapshots.
type ScratchConfig struct {
	Dir string `toml:"dir" json:"dir"`
}

// ChatConfig tunes the chat session controller.
type ChatConfig struct {
	RevealInterval Duration `toml:"reveal_interval" json:"reveal_interval"`
	ScrollDebounce Duration `toml:"scroll_debounce" json:"scroll_debounce"`
	ScrollInterval Duration `toml:"scroll_interval" json:"scroll_interval"`
	TitleMaxLen    int      `toml:"title_max_len" json:"title_max_len"`
	PreviewMaxLen  int      `toml:"preview_max_len" json:"preview_max_len"`
	EmptyReplyText string   `toml:"empty_reply_text" json:"empty_reply_text"`
}

// LoggingConfig controls the rotated log file.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level      string `toml:"level" json:"level"`
	File       string `toml:"file" json:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days"`
}

// ServerConfig configures the local status server.
type ServerConfig struct {
	Addr string `toml:"addr" json:"addr"`
	// Token, when set, is required as a bearer token on all routes but /health
	Token string `toml:"token" json:"token"`
	// RatePerSec limits requests per client IP (0 = unlimited)
	RatePerSec float64 `toml:"rate_per_sec" json:"rate_per_sec"`
	Burst      int     `toml:"burst" json:"burst"`
}

// AuthConfig locates the local account registry and current session.
type AuthConfig struct {
	AccountsFile string   `toml:"accounts_file" json:"accounts_file"`
	SessionFile  string   `toml:"session_file" json:"session_file"`
	SessionTTL   Duration `toml:"session_ttl" json:"session_ttl"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	dir, err := ConfigDir()
	if err != nil {
		dir = ".medassist"
	}
	return &Config{
		Version: "1.0.0",

		Inference: InferenceConfig{
			URL:        "",
			Timeout:    D(30 * time.Second),
			RatePerSec: 2,
			Burst:      4,
		},

		Storage: StorageConfig{
			DatabaseURL: "sqlite://" + filepath.Join(dir, "conversations.db"),
		},

		Scratch: ScratchConfig{
			Dir: filepath.Join(dir, "scratch"),
		},

		Chat: ChatConfig{
			RevealInterval: D(12 * time.Millisecond),
			ScrollDebounce: D(100 * time.Millisecond),
			ScrollInterval: D(150 * time.Millisecond),
			TitleMaxLen:    40,
			PreviewMaxLen:  80,
			EmptyReplyText: "No response.",
		},

		Logging: LoggingConfig{
			Level:      "info",
			File:       filepath.Join(dir, "logs", "medassist.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},

		Server: ServerConfig{
			Addr:       "127.0.0.1:8787",
			RatePerSec: 10,
			Burst:      20,
		},

		Auth: AuthConfig{
			AccountsFile: filepath.Join(dir, "accounts.json"),
			SessionFile:  filepath.Join(dir, "session.json"),
			SessionTTL:   D(12 * time.Hour),
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the medassist configuration directory. MEDASSIST_HOME
// overrides the default ~/.medassist.
func ConfigDir() (string, error) {
	if dir := os.Getenv("MEDASSIST_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".medassist"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions tightens a config file holding an API key to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads the config file if present, then applies environment overrides,
// defaults and validation.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from path. A missing file yields defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, statErr := os.Stat(path); statErr == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, statErr)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes path over cfg. Unknown keys are rejected.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to the default config path.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg to path atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# medassist configuration file\n")
	buf.WriteString("# Durations use Go syntax, e.g. \"30s\" or \"12ms\".\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.WriteFileAtomic(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
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

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Inference
	if c.Inference.URL != "" {
		u, err := url.Parse(c.Inference.URL)
		switch {
		case err != nil:
			add("inference.url", "invalid URL: %v", err)
		case u.Scheme != "http" && u.Scheme != "https":
			add("inference.url", "scheme must be http or https, got %q", u.Scheme)
		case u.Host == "":
			add("inference.url", "missing host")
		}
	}
	if c.Inference.Timeout.Duration <= 0 || c.Inference.Timeout.Duration > 5*time.Minute {
		add("inference.timeout", "must be between 1ns and 5m, got %s", c.Inference.Timeout)
	}
	if c.Inference.RatePerSec < 0 {
		add("inference.rate_per_sec", "cannot be negative")
	}
	if c.Inference.RatePerSec > 0 && c.Inference.Burst < 1 {
		add("inference.burst", "must be at least 1 when rate_per_sec is set, got %d", c.Inference.Burst)
	}

	// Storage
	db := c.Storage.DatabaseURL
	switch {
	case db == "", db == "memory://":
	case strings.HasPrefix(db, "sqlite://"), strings.HasPrefix(db, "postgres://"), strings.HasPrefix(db, "postgresql://"):
	case strings.HasSuffix(db, ".db"), strings.HasSuffix(db, ".sqlite"):
	default:
		add("storage.database_url", "unsupported database url %q", db)
	}

	// Chat
	for field, d := range map[string]Duration{
		"chat.reveal_interval": c.Chat.RevealInterval,
		"chat.scroll_debounce": c.Chat.ScrollDebounce,
		"chat.scroll_interval": c.Chat.ScrollInterval,
	} {
		if d.Duration <= 0 || d.Duration > 10*time.Second {
			add(field, "must be between 1ns and 10s, got %s", d)
		}
	}
	if c.Chat.TitleMaxLen < 8 || c.Chat.TitleMaxLen > 200 {
		add("chat.title_max_len", "must be 8-200, got %d", c.Chat.TitleMaxLen)
	}
	if c.Chat.PreviewMaxLen < 8 || c.Chat.PreviewMaxLen > 500 {
		add("chat.preview_max_len", "must be 8-500, got %d", c.Chat.PreviewMaxLen)
	}
	if strings.TrimSpace(c.Chat.EmptyReplyText) == "" {
		add("chat.empty_reply_text", "cannot be blank")
	}

	// Logging
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		add("logging.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 1 {
		add("logging.max_size_mb", "must be at least 1, got %d", c.Logging.MaxSizeMB)
	}
	if c.Logging.MaxBackups < 0 {
		add("logging.max_backups", "cannot be negative")
	}

	// Server
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		add("server.addr", "invalid address %q: %v", c.Server.Addr, err)
	}
	if c.Server.RatePerSec < 0 {
		add("server.rate_per_sec", "cannot be negative")
	}

	// Auth
	if c.Auth.SessionTTL.Duration < time.Minute {
		add("auth.session_ttl", "must be at least 1m, got %s", c.Auth.SessionTTL)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero-value fields from Default.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}

	if c.Inference.Timeout.Duration == 0 {
		c.Inference.Timeout = defaults.Inference.Timeout
	}
	if c.Inference.RatePerSec > 0 && c.Inference.Burst == 0 {
		c.Inference.Burst = defaults.Inference.Burst
	}

	if c.Scratch.Dir == "" {
		c.Scratch.Dir = defaults.Scratch.Dir
	}

	if c.Chat.RevealInterval.Duration == 0 {
		c.Chat.RevealInterval = defaults.Chat.RevealInterval
	}
	if c.Chat.ScrollDebounce.Duration == 0 {
		c.Chat.ScrollDebounce = defaults.Chat.ScrollDebounce
	}
	if c.Chat.ScrollInterval.Duration == 0 {
		c.Chat.ScrollInterval = defaults.Chat.ScrollInterval
	}
	if c.Chat.TitleMaxLen == 0 {
		c.Chat.TitleMaxLen = defaults.Chat.TitleMaxLen
	}
	if c.Chat.PreviewMaxLen == 0 {
		c.Chat.PreviewMaxLen = defaults.Chat.PreviewMaxLen
	}
	if c.Chat.EmptyReplyText == "" {
		c.Chat.EmptyReplyText = defaults.Chat.EmptyReplyText
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.File == "" {
		c.Logging.File = defaults.Logging.File
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = defaults.Logging.MaxSizeMB
	}

	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Server.RatePerSec > 0 && c.Server.Burst == 0 {
		c.Server.Burst = defaults.Server.Burst
	}

	if c.Auth.AccountsFile == "" {
		c.Auth.AccountsFile = defaults.Auth.AccountsFile
	}
	if c.Auth.SessionFile == "" {
		c.Auth.SessionFile = defaults.Auth.SessionFile
	}
	if c.Auth.SessionTTL.Duration == 0 {
		c.Auth.SessionTTL = defaults.Auth.SessionTTL
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - MEDASSIST_INFERENCE_URL: overrides inference.url
//   - MEDASSIST_API_KEY: overrides inference.api_key
//   - MEDASSIST_OFFLINE: "1" or "true" answers with canned replies
//   - MEDASSIST_DATABASE_URL: overrides storage.database_url
//   - MEDASSIST_SCRATCH_DIR: overrides scratch.dir
//   - MEDASSIST_LOG_LEVEL: overrides logging.level
//   - MEDASSIST_LOG_FILE: overrides logging.file
//   - MEDASSIST_SERVER_ADDR: overrides server.addr
//   - MEDASSIST_SERVER_TOKEN: overrides server.token
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("MEDASSIST_INFERENCE_URL"); v != "" {
		c.Inference.URL = v
	}
	if v := os.Getenv("MEDASSIST_API_KEY"); v != "" {
		c.Inference.APIKey = v
	}
	if v := os.Getenv("MEDASSIST_OFFLINE"); v != "" {
		c.Inference.Offline = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("MEDASSIST_DATABASE_URL"); v != "" {
		c.Storage.DatabaseURL = v
	}
	if v := os.Getenv("MEDASSIST_SCRATCH_DIR"); v != "" {
		c.Scratch.Dir = v
	}
	if v := os.Getenv("MEDASSIST_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MEDASSIST_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("MEDASSIST_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("MEDASSIST_SERVER_TOKEN"); v != "" {
		c.Server.Token = v
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// fieldByKey walks a dotted toml key ("chat.title_max_len") to its field.
func (c *Config) fieldByKey(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct || field.Type() == reflect.TypeOf(Duration{}) {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("toml"), ",")[0]
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// Get returns the value at a dotted key (e.g. "inference.timeout").
func (c *Config) Get(key string) (any, error) {
	field, err := c.fieldByKey(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set parses value into the field at a dotted key.
func (c *Config) Set(key, value string) error {
	field, err := c.fieldByKey(key)
	if err != nil {
		return err
	}
	if u, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return u.UnmarshalText([]byte(value))
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value: %w", err)
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value: %w", err)
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %w", err)
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("cannot set %s of kind %s", key, field.Kind())
	}
	return nil
}

// GetAllKeys returns every configuration key in dot notation.
func GetAllKeys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := prefix + strings.Split(f.Tag.Get("toml"), ",")[0]
			if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(Duration{}) {
				walk(f.Type, name+".")
				continue
			}
			keys = append(keys, name)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the config as JSON with secrets redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Inference.APIKey != "" {
		safe.Inference.APIKey = "[REDACTED]"
	}
	if safe.Server.Token != "" {
		safe.Server.Token = "[REDACTED]"
	}
	if u, err := url.Parse(safe.Storage.DatabaseURL); err == nil && u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), "REDACTED")
			safe.Storage.DatabaseURL = u.String()
		}
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
