// Package config provides configuration management for the statestore server.
//
// Configuration is resolved in three layers: built-in defaults, an optional
// YAML file, and APP_* environment variables. Later layers win.
//
// Example file:
//
//	server_port: 8080
//	log_level: debug
//	overlap_policy: reject
//
//	persist:
//	  backend: sqlite
//	  path: ./data
//
//	simulator:
//	  list_latency: 500ms
//	  failure_rate: 0
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultServerPort       = 8080
	DefaultLogLevel         = "info"
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultMetricsEnabled   = true
	DefaultAuthMode         = "none"
	DefaultPersistBackend   = "memory"
	DefaultOverlapPolicy    = "allow"
	DefaultListLatency      = 1500 * time.Millisecond
	DefaultCreateLatency    = 1000 * time.Millisecond
	DefaultDeleteLatency    = 800 * time.Millisecond
	DefaultListFailureRate  = 0.2
	DefaultWebSocketEnabled = true
)

// DefaultCORSAllowedOrigins allows any origin.
var DefaultCORSAllowedOrigins = []string{"*"}

// Environment variable names.
const (
	EnvConfigFile       = "APP_CONFIG_FILE"
	EnvServerPort       = "APP_SERVER_PORT"
	EnvLogLevel         = "APP_LOG_LEVEL"
	EnvShutdownTimeout  = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled   = "APP_METRICS_ENABLED"
	EnvWebSocketEnabled = "APP_WEBSOCKET_ENABLED"
	EnvCORSOrigins      = "APP_CORS_ALLOWED_ORIGINS"
	EnvAuthMode         = "APP_AUTH_MODE"
	EnvBasicAuthUsers   = "APP_BASIC_AUTH_USERS"
	EnvAPIKeys          = "APP_API_KEYS" //nolint:gosec // env var name, not a credential
	EnvPersistBackend   = "APP_PERSIST_BACKEND"
	EnvPersistPath      = "APP_PERSIST_PATH"
	EnvOverlapPolicy    = "APP_OVERLAP_POLICY"
	EnvSimListLatency   = "APP_SIM_LIST_LATENCY"
	EnvSimCreateLatency = "APP_SIM_CREATE_LATENCY"
	EnvSimDeleteLatency = "APP_SIM_DELETE_LATENCY"
	EnvSimFailureRate   = "APP_SIM_FAILURE_RATE"
)

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort       int           `yaml:"server_port"`
	LogLevel         string        `yaml:"log_level"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	MetricsEnabled   bool          `yaml:"metrics_enabled"`
	WebSocketEnabled bool          `yaml:"websocket_enabled"`

	// CORSAllowedOrigins lists browser origins allowed to call the API.
	// "*" allows any origin without credentials.
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	// Authentication mode: none, basic, apikey, multi.
	AuthMode string `yaml:"auth_mode"`

	// Basic auth settings (format: "user1:bcrypt_hash,user2:bcrypt_hash").
	BasicAuthUsers string `yaml:"basic_auth_users"`

	// API key settings (format: "key1:name1,key2:name2").
	APIKeys string `yaml:"api_keys"`

	// OverlapPolicy is "allow" or "reject".
	OverlapPolicy string `yaml:"overlap_policy"`

	Persist   PersistConfig   `yaml:"persist"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

// PersistConfig selects the snapshot backend.
type PersistConfig struct {
	// Backend is one of: none, memory, file, sqlite.
	Backend string `yaml:"backend"`
	// Path is the data directory of the file and sqlite backends.
	Path string `yaml:"path"`
}

// SimulatorConfig tunes the simulated user data source.
type SimulatorConfig struct {
	ListLatency   time.Duration `yaml:"list_latency"`
	CreateLatency time.Duration `yaml:"create_latency"`
	DeleteLatency time.Duration `yaml:"delete_latency"`
	// FailureRate is the probability in [0, 1] that a list call fails.
	FailureRate float64 `yaml:"failure_rate"`
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidAuthMode        = errors.New(
		"auth mode must be one of: none, basic, apikey, multi",
	)
	ErrInvalidBasicAuthConfig = errors.New(
		"basic auth users must be set when auth mode is basic",
	)
	ErrInvalidAPIKeyConfig = errors.New(
		"API keys must be set when auth mode is apikey",
	)
	ErrInvalidMultiAuthConfig = errors.New(
		"at least one auth config must be provided when auth mode is multi",
	)
	ErrInvalidPersistBackend = errors.New(
		"persist backend must be one of: none, memory, file, sqlite",
	)
	ErrPersistPathRequired = errors.New(
		"persist path must be set when persist backend is file or sqlite",
	)
	ErrInvalidOverlapPolicy = errors.New("overlap policy must be one of: allow, reject")
	ErrInvalidLatency       = errors.New("simulator latencies must not be negative")
	ErrInvalidFailureRate   = errors.New("simulator failure rate must be between 0 and 1")
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServerPort:         DefaultServerPort,
		LogLevel:           DefaultLogLevel,
		ShutdownTimeout:    DefaultShutdownTimeout,
		MetricsEnabled:     DefaultMetricsEnabled,
		WebSocketEnabled:   DefaultWebSocketEnabled,
		CORSAllowedOrigins: append([]string(nil), DefaultCORSAllowedOrigins...),
		AuthMode:           DefaultAuthMode,
		OverlapPolicy:      DefaultOverlapPolicy,
		Persist: PersistConfig{
			Backend: DefaultPersistBackend,
		},
		Simulator: SimulatorConfig{
			ListLatency:   DefaultListLatency,
			CreateLatency: DefaultCreateLatency,
			DeleteLatency: DefaultDeleteLatency,
			FailureRate:   DefaultListFailureRate,
		},
	}
}

// Load reads configuration from the file named by APP_CONFIG_FILE, if set,
// and from environment variables.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv(EnvConfigFile))
}

// LoadFrom reads configuration from the YAML file at path and from
// environment variables. An empty path skips the file. Environment variables
// have priority over file values, which have priority over defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file at path. Keys absent from the file
// keep their current values.
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return nil
}

// loadFromEnv loads configuration values from environment variables.
func (c *Config) loadFromEnv() error {
	if err := c.loadServerEnv(); err != nil {
		return err
	}

	c.loadAuthEnv()
	c.loadStoreEnv()

	if err := c.loadSimulatorEnv(); err != nil {
		return err
	}

	return nil
}

// loadServerEnv loads server-related environment variables.
func (c *Config) loadServerEnv() error {
	if val := os.Getenv(EnvServerPort); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvServerPort, err)
		}
		c.ServerPort = port
	}

	if val := os.Getenv(EnvLogLevel); val != "" {
		c.LogLevel = val
	}

	if val := os.Getenv(EnvShutdownTimeout); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvShutdownTimeout, err)
		}
		c.ShutdownTimeout = timeout
	}

	if val := os.Getenv(EnvMetricsEnabled); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvMetricsEnabled, err)
		}
		c.MetricsEnabled = enabled
	}

	if val := os.Getenv(EnvWebSocketEnabled); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvWebSocketEnabled, err)
		}
		c.WebSocketEnabled = enabled
	}

	if val := os.Getenv(EnvCORSOrigins); val != "" {
		c.CORSAllowedOrigins = splitList(val)
	}

	return nil
}

// splitList splits a comma-separated list, dropping blank entries.
func splitList(val string) []string {
	var out []string
	for part := range strings.SplitSeq(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadAuthEnv loads authentication environment variables.
func (c *Config) loadAuthEnv() {
	if val := os.Getenv(EnvAuthMode); val != "" {
		c.AuthMode = val
	}

	if val := os.Getenv(EnvBasicAuthUsers); val != "" {
		c.BasicAuthUsers = val
	}

	if val := os.Getenv(EnvAPIKeys); val != "" {
		c.APIKeys = val
	}
}

// loadStoreEnv loads persistence and store behavior environment variables.
func (c *Config) loadStoreEnv() {
	if val := os.Getenv(EnvPersistBackend); val != "" {
		c.Persist.Backend = val
	}

	if val := os.Getenv(EnvPersistPath); val != "" {
		c.Persist.Path = val
	}

	if val := os.Getenv(EnvOverlapPolicy); val != "" {
		c.OverlapPolicy = val
	}
}

// loadSimulatorEnv loads simulated data source environment variables.
func (c *Config) loadSimulatorEnv() error {
	latencies := []struct {
		env string
		dst *time.Duration
	}{
		{EnvSimListLatency, &c.Simulator.ListLatency},
		{EnvSimCreateLatency, &c.Simulator.CreateLatency},
		{EnvSimDeleteLatency, &c.Simulator.DeleteLatency},
	}
	for _, l := range latencies {
		val := os.Getenv(l.env)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", l.env, err)
		}
		*l.dst = d
	}

	if val := os.Getenv(EnvSimFailureRate); val != "" {
		rate, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvSimFailureRate, err)
		}
		c.Simulator.FailureRate = rate
	}

	return nil
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateAuth(); err != nil {
		return err
	}

	if err := c.validateStores(); err != nil {
		return err
	}

	return nil
}

// validateServer validates server-related configuration.
func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	return nil
}

// validateAuth validates authentication configuration.
func (c *Config) validateAuth() error {
	authMode := c.authModeOrDefault()

	validAuthModes := map[string]bool{
		"none":   true,
		"basic":  true,
		"apikey": true,
		"multi":  true,
	}
	if !validAuthModes[authMode] {
		return ErrInvalidAuthMode
	}

	switch authMode {
	case "basic":
		if c.BasicAuthUsers == "" {
			return ErrInvalidBasicAuthConfig
		}
	case "apikey":
		if c.APIKeys == "" {
			return ErrInvalidAPIKeyConfig
		}
	case "multi":
		if c.BasicAuthUsers == "" && c.APIKeys == "" {
			return ErrInvalidMultiAuthConfig
		}
	}

	return nil
}

// validateStores validates persistence, overlap and simulator settings.
func (c *Config) validateStores() error {
	switch c.Persist.Backend {
	case "", "none", "memory":
	case "file", "sqlite":
		if c.Persist.Path == "" {
			return ErrPersistPathRequired
		}
	default:
		return ErrInvalidPersistBackend
	}

	if c.OverlapPolicy != "" && c.OverlapPolicy != "allow" && c.OverlapPolicy != "reject" {
		return ErrInvalidOverlapPolicy
	}

	if c.Simulator.ListLatency < 0 || c.Simulator.CreateLatency < 0 || c.Simulator.DeleteLatency < 0 {
		return ErrInvalidLatency
	}

	if c.Simulator.FailureRate < 0 || c.Simulator.FailureRate > 1 {
		return ErrInvalidFailureRate
	}

	return nil
}

// authModeOrDefault returns the auth mode, defaulting to "none" if empty.
func (c *Config) authModeOrDefault() string {
	if c.AuthMode == "" {
		return DefaultAuthMode
	}
	return c.AuthMode
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}
