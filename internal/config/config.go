// ABOUTME: Configuration loading for the chat client
// ABOUTME: Parses YAML or TOML with .env loading, env var expansion, durations and defaults

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config file location.
const EnvConfigPath = "COVEN_CHAT_CONFIG"

// Config is the top-level configuration for the chat client.
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Session  SessionConfig  `yaml:"session" toml:"session"`
	Realtime RealtimeConfig `yaml:"realtime" toml:"realtime"`
	History  HistoryConfig  `yaml:"history" toml:"history"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// ServerConfig locates the chat server. The push channel address is derived
// from BaseURL.
type ServerConfig struct {
	BaseURL   string `yaml:"base_url" toml:"base_url"`
	APIPrefix string `yaml:"api_prefix" toml:"api_prefix"`
}

// SessionConfig holds the bearer token of the signed-in user.
type SessionConfig struct {
	Token string `yaml:"token" toml:"token"`
}

// RealtimeConfig tunes the push channel and its reconnection policy.
type RealtimeConfig struct {
	MaxAttempts int   `yaml:"max_attempts" toml:"max_attempts"`
	ReadLimit   int64 `yaml:"read_limit" toml:"read_limit"`

	// Parsed durations (set by Load)
	BaseDelay    time.Duration `yaml:"-" toml:"-"`
	DialTimeout  time.Duration `yaml:"-" toml:"-"`
	WriteTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw duration strings from the file
	BaseDelayRaw    string `yaml:"base_delay" toml:"base_delay"`
	DialTimeoutRaw  string `yaml:"dial_timeout" toml:"dial_timeout"`
	WriteTimeoutRaw string `yaml:"write_timeout" toml:"write_timeout"`
}

// HistoryConfig controls history loads.
type HistoryConfig struct {
	Limit int `yaml:"limit" toml:"limit"`
}

// LoggingConfig selects log level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
	Path    string `yaml:"path" toml:"path"`
}

// Defaults
const (
	DefaultAPIPrefix    = "/api"
	DefaultMaxAttempts  = 5
	DefaultBaseDelay    = 3 * time.Second
	DefaultDialTimeout  = 10 * time.Second
	DefaultWriteTimeout = 5 * time.Second
	DefaultReadLimit    = 1 << 20
	DefaultHistoryLimit = 50
	DefaultMetricsAddr  = "127.0.0.1:9464"
	DefaultMetricsPath  = "/metrics"
)

// DefaultPath returns the config file location: $COVEN_CHAT_CONFIG, else
// $XDG_CONFIG_HOME/coven/chat.yaml, else ~/.config/coven/chat.yaml.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "coven", "chat.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "coven", "chat.yaml")
	}
	return filepath.Join(home, ".config", "coven", "chat.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, anything else as YAML.
// A .env file beside the config and one in the working directory are loaded
// first without overriding variables already set. Environment variables in
// the format ${VAR_NAME} are then expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env"); err != nil {
		return nil, err
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads each existing file once. Missing files are skipped.
func loadDotEnv(paths ...string) error {
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if err := godotenv.Load(abs); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.APIPrefix == "" {
		c.Server.APIPrefix = DefaultAPIPrefix
	}
	if c.Realtime.MaxAttempts == 0 {
		c.Realtime.MaxAttempts = DefaultMaxAttempts
	}
	if c.Realtime.BaseDelay == 0 {
		c.Realtime.BaseDelay = DefaultBaseDelay
	}
	if c.Realtime.DialTimeout == 0 {
		c.Realtime.DialTimeout = DefaultDialTimeout
	}
	if c.Realtime.WriteTimeout == 0 {
		c.Realtime.WriteTimeout = DefaultWriteTimeout
	}
	if c.Realtime.ReadLimit == 0 {
		c.Realtime.ReadLimit = DefaultReadLimit
	}
	if c.History.Limit == 0 {
		c.History.Limit = DefaultHistoryLimit
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("server.base_url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("server.base_url must be http or https, got %q", c.Server.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("server.base_url has no host")
	}

	if c.Realtime.MaxAttempts < 0 {
		return fmt.Errorf("realtime.max_attempts must not be negative")
	}
	if c.Realtime.BaseDelay < 0 || c.Realtime.DialTimeout < 0 || c.Realtime.WriteTimeout < 0 {
		return fmt.Errorf("realtime durations must not be negative")
	}
	if c.History.Limit < 0 {
		return fmt.Errorf("history.limit must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not text or json", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"base_delay", cfg.Realtime.BaseDelayRaw, &cfg.Realtime.BaseDelay},
		{"dial_timeout", cfg.Realtime.DialTimeoutRaw, &cfg.Realtime.DialTimeout},
		{"write_timeout", cfg.Realtime.WriteTimeoutRaw, &cfg.Realtime.WriteTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// Starter returns the YAML written by `coven-chat init`.
func Starter(baseURL string) string {
	if baseURL == "" {
		baseURL = "https://chat.example.com"
	}
	return fmt.Sprintf(`server:
  base_url: %q
  api_prefix: %q

session:
  # Set COVEN_CHAT_TOKEN in the environment or a .env file beside this config.
  token: "${COVEN_CHAT_TOKEN}"

realtime:
  max_attempts: %d
  base_delay: %q
  dial_timeout: %q
  write_timeout: %q
  read_limit: %d

history:
  limit: %d

logging:
  level: "info"
  format: "text"

metrics:
  enabled: false
  addr: %q
  path: %q
`, baseURL, DefaultAPIPrefix,
		DefaultMaxAttempts, DefaultBaseDelay, DefaultDialTimeout, DefaultWriteTimeout, DefaultReadLimit,
		DefaultHistoryLimit, DefaultMetricsAddr, DefaultMetricsPath)
}
