// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for rigchat.
//
// Supports TOML, JSON and YAML configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.rigchat/config.toml
//   - ~/.rigchat/config.json
//   - ~/.rigchat/config.yaml
//   - Built-in defaults
package config

import (
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
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigrun-chat/internal/util"
)

// CurrentVersion is the config file format version.
const CurrentVersion = "1"

// Model providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete rigchat configuration.
type Config struct {
	Version string `toml:"version" json:"version" yaml:"version"`

	Server    ServerConfig    `toml:"server" json:"server" yaml:"server"`
	Storage   StorageConfig   `toml:"storage" json:"storage" yaml:"storage"`
	Model     ModelConfig     `toml:"model" json:"model" yaml:"model"`
	Dispatch  DispatchConfig  `toml:"dispatch" json:"dispatch" yaml:"dispatch"`
	Broadcast BroadcastConfig `toml:"broadcast" json:"broadcast" yaml:"broadcast"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:8787".
	Addr string `toml:"addr" json:"addr" yaml:"addr"`

	// BearerToken, when set, is required on every request except /health.
	BearerToken string `toml:"bearer_token" json:"bearer_token" yaml:"bearer_token"`

	// AllowedOrigins lists browser origins allowed for CORS and websockets.
	// Empty allows same-origin only; "*" allows any.
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`

	// AllowedIPs restricts clients to these IPs or CIDR ranges. Empty allows all.
	AllowedIPs []string `toml:"allowed_ips" json:"allowed_ips" yaml:"allowed_ips"`

	// UserHeader names the header the fronting auth proxy sets to the user id.
	// Empty uses X-User-Id.
	UserHeader string `toml:"user_header" json:"user_header" yaml:"user_header"`

	// RateLimit is requests per second per client IP. Zero disables it.
	RateLimit float64 `toml:"rate_limit" json:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `toml:"rate_burst" json:"rate_burst" yaml:"rate_burst"`

	ShutdownTimeoutSecs int `toml:"shutdown_timeout_secs" json:"shutdown_timeout_secs" yaml:"shutdown_timeout_secs"`
}

// StorageConfig configures the conversation database.
type StorageConfig struct {
	Path string `toml:"path" json:"path" yaml:"path"`
}

// ModelConfig selects and configures the model provider.
type ModelConfig struct {
	// Provider is "ollama" or "openai" (any OpenAI-compatible endpoint).
	Provider     string `toml:"provider" json:"provider" yaml:"provider"`
	BaseURL      string `toml:"base_url" json:"base_url" yaml:"base_url"`
	APIKey       string `toml:"api_key" json:"api_key" yaml:"api_key"`
	Name         string `toml:"name" json:"name" yaml:"name"`
	SystemPrompt string `toml:"system_prompt" json:"system_prompt" yaml:"system_prompt"`
	TimeoutSecs  int    `toml:"timeout_secs" json:"timeout_secs" yaml:"timeout_secs"`
}

// DispatchConfig configures the completion worker pool.
type DispatchConfig struct {
	Workers        int `toml:"workers" json:"workers" yaml:"workers"`
	MaxQueued      int `toml:"max_queued" json:"max_queued" yaml:"max_queued"`
	MaxHistory     int `toml:"max_history" json:"max_history" yaml:"max_history"`
	RunTimeoutSecs int `toml:"run_timeout_secs" json:"run_timeout_secs" yaml:"run_timeout_secs"`

	// SaveIntervalMs bounds how often partial replies are written while
	// streaming. Zero writes every chunk.
	SaveIntervalMs int `toml:"save_interval_ms" json:"save_interval_ms" yaml:"save_interval_ms"`
}

// BroadcastConfig configures live update delivery.
type BroadcastConfig struct {
	// Buffer is the per-viewer event buffer. A viewer that falls this far
	// behind is disconnected and reloads.
	Buffer int `toml:"buffer" json:"buffer" yaml:"buffer"`
}

// RunTimeout returns the per-run timeout.
func (d DispatchConfig) RunTimeout() time.Duration {
	return time.Duration(d.RunTimeoutSecs) * time.Second
}

// SaveInterval returns the partial-save interval.
func (d DispatchConfig) SaveInterval() time.Duration {
	return time.Duration(d.SaveIntervalMs) * time.Millisecond
}

// Timeout returns the model connection timeout.
func (m ModelConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSecs) * time.Second
}

// ShutdownTimeout returns the graceful shutdown timeout.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSecs) * time.Second
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	dbPath := "rigchat.db"
	if dir, err := ConfigDir(); err == nil {
		dbPath = filepath.Join(dir, "chat.db")
	}

	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			Addr:                "127.0.0.1:8787",
			RateLimit:           10,
			RateBurst:           20,
			ShutdownTimeoutSecs: 15,
		},
		Storage: StorageConfig{
			Path: dbPath,
		},
		Model: ModelConfig{
			Provider:    ProviderOpenAI,
			BaseURL:     "http://localhost:4141/v1",
			Name:        "gpt-5",
			TimeoutSecs: 60,
		},
		Dispatch: DispatchConfig{
			Workers:        4,
			MaxQueued:      1000,
			MaxHistory:     100,
			RunTimeoutSecs: 300,
			SaveIntervalMs: 500,
		},
		Broadcast: BroadcastConfig{
			Buffer: 256,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the rigchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigchat"), nil
}

// ConfigPaths returns the candidate config files in load order.
func ConfigPaths() ([]string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return []string{
		filepath.Join(dir, "config.toml"),
		filepath.Join(dir, "config.json"),
		filepath.Join(dir, "config.yaml"),
	}, nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions restricts config files to the owner. They may
// hold API keys and the bearer token.
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

// Load loads configuration from the first config file that exists, falling
// back to defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	paths, err := ConfigPaths()
	if err == nil {
		for _, path := range paths {
			if _, statErr := os.Stat(path); statErr == nil {
				return LoadFromPath(path)
			}
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file with full
// validation. The format is chosen by extension; anything other than
// .json, .yaml or .yml is read as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}
	if err := decodeFile(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if err := fillDefaults(cfg); err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ReadFile loads path with defaults filled in but without environment
// overrides or validation, for editing and saving back.
func ReadFile(path string) (*Config, error) {
	cfg := &Config{}
	if err := decodeFile(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if err := fillDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read JSON file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode JSON file: %w", err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read YAML file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode YAML file: %w", err)
		}
	default:
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("failed to decode TOML file: %w", err)
		}
	}
	return nil
}

// fillDefaults fills in any missing values with defaults. Zero values that
// are meaningful (RateLimit, SaveIntervalMs) are left alone.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	// Server
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaults.Server.Addr
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = defaults.Server.RateBurst
	}
	if cfg.Server.ShutdownTimeoutSecs == 0 {
		cfg.Server.ShutdownTimeoutSecs = defaults.Server.ShutdownTimeoutSecs
	}

	// Storage
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = defaults.Storage.Path
	}

	// Model
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = defaults.Model.Provider
	}
	if cfg.Model.BaseURL == "" && cfg.Model.Provider == ProviderOpenAI {
		cfg.Model.BaseURL = defaults.Model.BaseURL
	}
	if cfg.Model.Name == "" && cfg.Model.Provider == ProviderOpenAI {
		cfg.Model.Name = defaults.Model.Name
	}
	if cfg.Model.TimeoutSecs == 0 {
		cfg.Model.TimeoutSecs = defaults.Model.TimeoutSecs
	}

	// Dispatch
	if cfg.Dispatch.Workers == 0 {
		cfg.Dispatch.Workers = defaults.Dispatch.Workers
	}
	if cfg.Dispatch.MaxQueued == 0 {
		cfg.Dispatch.MaxQueued = defaults.Dispatch.MaxQueued
	}
	if cfg.Dispatch.MaxHistory == 0 {
		cfg.Dispatch.MaxHistory = defaults.Dispatch.MaxHistory
	}
	if cfg.Dispatch.RunTimeoutSecs == 0 {
		cfg.Dispatch.RunTimeoutSecs = defaults.Dispatch.RunTimeoutSecs
	}

	// Broadcast
	if cfg.Broadcast.Buffer == 0 {
		cfg.Broadcast.Buffer = defaults.Broadcast.Buffer
	}

	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to path in the format chosen by its extension, with
// owner-only permissions.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		var b strings.Builder
		b.WriteString("# rigchat configuration file\n")
		b.WriteString("# Generated by rigchat - edit with care\n\n")
		err = toml.NewEncoder(&b).Encode(cfg)
		data = []byte(b.String())
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
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
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

func validIPOrCIDR(s string) bool {
	if strings.Contains(s, "/") {
		_, _, err := net.ParseCIDR(s)
		return err == nil
	}
	return net.ParseIP(s) != nil
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Server
	if c.Server.Addr == "" {
		add("server.addr", "must not be empty")
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "must not be negative, got %v", c.Server.RateLimit)
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		add("server.rate_burst", "must be at least 1 when rate_limit is set, got %d", c.Server.RateBurst)
	}
	if c.Server.ShutdownTimeoutSecs < 0 {
		add("server.shutdown_timeout_secs", "must not be negative, got %d", c.Server.ShutdownTimeoutSecs)
	}
	for _, entry := range c.Server.AllowedIPs {
		if !validIPOrCIDR(entry) {
			add("server.allowed_ips", "invalid IP or CIDR '%s'", entry)
		}
	}
	if strings.ContainsAny(c.Server.UserHeader, " \t:") {
		add("server.user_header", "invalid header name '%s'", c.Server.UserHeader)
	}

	// Storage
	if c.Storage.Path == "" {
		add("storage.path", "must not be empty")
	}

	// Model
	switch strings.ToLower(c.Model.Provider) {
	case ProviderOllama, ProviderOpenAI:
	default:
		add("model.provider", "invalid provider '%s', must be one of: ollama, openai", c.Model.Provider)
	}
	if c.Model.BaseURL != "" {
		u, err := url.Parse(c.Model.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("model.base_url", "invalid URL '%s', must be http(s)://host[:port]", c.Model.BaseURL)
		}
	}
	if c.Model.TimeoutSecs < 0 {
		add("model.timeout_secs", "must not be negative, got %d", c.Model.TimeoutSecs)
	}

	// Dispatch
	if c.Dispatch.Workers < 1 || c.Dispatch.Workers > 256 {
		add("dispatch.workers", "must be between 1 and 256, got %d", c.Dispatch.Workers)
	}
	if c.Dispatch.MaxQueued < 0 {
		add("dispatch.max_queued", "must not be negative, got %d", c.Dispatch.MaxQueued)
	}
	if c.Dispatch.MaxHistory < 0 {
		add("dispatch.max_history", "must not be negative, got %d", c.Dispatch.MaxHistory)
	}
	if c.Dispatch.RunTimeoutSecs < 1 {
		add("dispatch.run_timeout_secs", "must be at least 1, got %d", c.Dispatch.RunTimeoutSecs)
	}
	if c.Dispatch.SaveIntervalMs < 0 {
		add("dispatch.save_interval_ms", "must not be negative, got %d", c.Dispatch.SaveIntervalMs)
	}

	// Broadcast
	if c.Broadcast.Buffer < 1 {
		add("broadcast.buffer", "must be at least 1, got %d", c.Broadcast.Buffer)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - RIGCHAT_ADDR: overrides server.addr
//   - RIGCHAT_TOKEN: overrides server.bearer_token
//   - RIGCHAT_DB: overrides storage.path
//   - RIGCHAT_PROVIDER: overrides model.provider
//   - RIGCHAT_BASE_URL: overrides model.base_url
//   - RIGCHAT_API_KEY: overrides model.api_key
//   - RIGCHAT_MODEL: overrides model.name
//   - RIGCHAT_WORKERS: overrides dispatch.workers
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RIGCHAT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("RIGCHAT_TOKEN"); v != "" {
		c.Server.BearerToken = v
	}
	if v := os.Getenv("RIGCHAT_DB"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("RIGCHAT_PROVIDER"); v != "" {
		c.Model.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("RIGCHAT_BASE_URL"); v != "" {
		c.Model.BaseURL = v
	}
	if v := os.Getenv("RIGCHAT_API_KEY"); v != "" {
		c.Model.APIKey = v
	}
	if v := os.Getenv("RIGCHAT_MODEL"); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv("RIGCHAT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Dispatch.Workers = n
		}
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "model.name").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "dispatch.workers").
// String values are converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal := strVal == "1" || strings.EqualFold(strVal, "true") || strings.EqualFold(strVal, "yes")
			field.SetBool(boolVal)
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, s := range strings.Split(strVal, ",") {
					if s = strings.TrimSpace(s); s != "" {
						items = append(items, s)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		section := strings.Split(f.Tag.Get("toml"), ",")[0]
		if f.Type.Kind() != reflect.Struct {
			keys = append(keys, section)
			continue
		}
		for j := 0; j < f.Type.NumField(); j++ {
			name := strings.Split(f.Type.Field(j).Tag.Get("toml"), ",")[0]
			keys = append(keys, section+"."+name)
		}
	}
	return keys
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Server.AllowedOrigins != nil {
		clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	}
	if c.Server.AllowedIPs != nil {
		clone.Server.AllowedIPs = append([]string(nil), c.Server.AllowedIPs...)
	}
	return &clone
}

// String returns a string representation of the config for debugging.
// Secrets are redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Model.APIKey != "" {
		safe.Model.APIKey = "[REDACTED]"
	}
	if safe.Server.BearerToken != "" {
		safe.Server.BearerToken = "[REDACTED]"
	}

	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
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

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
