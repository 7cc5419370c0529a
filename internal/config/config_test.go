// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, .env files, env var expansion, durations and defaults

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, "chat.yaml", `
server:
  base_url: "https://chat.example.com"
  api_prefix: "/v1"

session:
  token: "tok"

realtime:
  max_attempts: 3
  base_delay: "2s"
  dial_timeout: "4s"
  write_timeout: "1s"
  read_limit: 4096

history:
  limit: 20

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  addr: ":9000"
  path: "/m"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.BaseURL != "https://chat.example.com" {
		t.Errorf("Server.BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Server.APIPrefix != "/v1" {
		t.Errorf("Server.APIPrefix = %q, want /v1", cfg.Server.APIPrefix)
	}
	if cfg.Session.Token != "tok" {
		t.Errorf("Session.Token = %q, want tok", cfg.Session.Token)
	}
	if cfg.Realtime.MaxAttempts != 3 {
		t.Errorf("Realtime.MaxAttempts = %d, want 3", cfg.Realtime.MaxAttempts)
	}
	if cfg.Realtime.BaseDelay != 2*time.Second {
		t.Errorf("Realtime.BaseDelay = %v, want 2s", cfg.Realtime.BaseDelay)
	}
	if cfg.Realtime.DialTimeout != 4*time.Second {
		t.Errorf("Realtime.DialTimeout = %v, want 4s", cfg.Realtime.DialTimeout)
	}
	if cfg.Realtime.WriteTimeout != time.Second {
		t.Errorf("Realtime.WriteTimeout = %v, want 1s", cfg.Realtime.WriteTimeout)
	}
	if cfg.Realtime.ReadLimit != 4096 {
		t.Errorf("Realtime.ReadLimit = %d, want 4096", cfg.Realtime.ReadLimit)
	}
	if cfg.History.Limit != 20 {
		t.Errorf("History.Limit = %d, want 20", cfg.History.Limit)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != ":9000" || cfg.Metrics.Path != "/m" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "chat.yaml", `
server:
  base_url: "http://localhost:8001"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.APIPrefix != DefaultAPIPrefix {
		t.Errorf("APIPrefix = %q, want %q", cfg.Server.APIPrefix, DefaultAPIPrefix)
	}
	if cfg.Realtime.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", cfg.Realtime.MaxAttempts, DefaultMaxAttempts)
	}
	if cfg.Realtime.BaseDelay != DefaultBaseDelay {
		t.Errorf("BaseDelay = %v, want %v", cfg.Realtime.BaseDelay, DefaultBaseDelay)
	}
	if cfg.Realtime.DialTimeout != DefaultDialTimeout {
		t.Errorf("DialTimeout = %v, want %v", cfg.Realtime.DialTimeout, DefaultDialTimeout)
	}
	if cfg.Realtime.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("WriteTimeout = %v, want %v", cfg.Realtime.WriteTimeout, DefaultWriteTimeout)
	}
	if cfg.History.Limit != DefaultHistoryLimit {
		t.Errorf("History.Limit = %d, want %d", cfg.History.Limit, DefaultHistoryLimit)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics should be disabled by default")
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "chat.toml", `
[server]
base_url = "https://chat.example.com"

[session]
token = "toml-token"

[realtime]
max_attempts = 2
base_delay = "500ms"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Session.Token != "toml-token" {
		t.Errorf("Session.Token = %q", cfg.Session.Token)
	}
	if cfg.Realtime.MaxAttempts != 2 {
		t.Errorf("MaxAttempts = %d, want 2", cfg.Realtime.MaxAttempts)
	}
	if cfg.Realtime.BaseDelay != 500*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 500ms", cfg.Realtime.BaseDelay)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_CHAT_TOKEN", "secret-token")
	t.Setenv("TEST_CHAT_HOST", "chat.internal")

	path := writeConfig(t, "chat.yaml", `
server:
  base_url: "https://${TEST_CHAT_HOST}"
session:
  token: "${TEST_CHAT_TOKEN}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.BaseURL != "https://chat.internal" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Session.Token != "secret-token" {
		t.Errorf("Token = %q, want secret-token", cfg.Session.Token)
	}
}

func TestLoad_DotEnvBesideConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DOTENV_CHAT_TOKEN=from-dotenv\nDOTENV_CHAT_SET=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "chat.yaml")
	if err := os.WriteFile(path, []byte(`
server:
  base_url: "https://chat.example.com"
session:
  token: "${DOTENV_CHAT_TOKEN}-${DOTENV_CHAT_SET}"
`), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DOTENV_CHAT_SET", "from-env")
	// godotenv sets variables with os.Setenv; register cleanup for the one it adds.
	t.Setenv("DOTENV_CHAT_TOKEN", "")
	os.Unsetenv("DOTENV_CHAT_TOKEN")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Session.Token != "from-dotenv-from-env" {
		t.Errorf("Token = %q, want from-dotenv-from-env", cfg.Session.Token)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "chat.yaml", "server: [unclosed")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("Load() error = %v, want parsing error", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "chat.yaml", `
server:
  base_url: "https://chat.example.com"
realtime:
  base_delay: "soon"
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "base_delay") {
		t.Errorf("Load() error = %v, want base_delay error", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{Server: ServerConfig{BaseURL: "https://chat.example.com"}}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing base url", func(c *Config) { c.Server.BaseURL = "" }, "server.base_url is required"},
		{"websocket scheme", func(c *Config) { c.Server.BaseURL = "wss://chat.example.com" }, "must be http or https"},
		{"no host", func(c *Config) { c.Server.BaseURL = "https://" }, "no host"},
		{"negative attempts", func(c *Config) { c.Realtime.MaxAttempts = -1 }, "max_attempts"},
		{"negative delay", func(c *Config) { c.Realtime.BaseDelay = -time.Second }, "durations"},
		{"negative history", func(c *Config) { c.History.Limit = -1 }, "history.limit"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad metrics path", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Path = "metrics" }, "metrics.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("EXPAND_A", "alpha")

	tests := []struct {
		in, want string
	}{
		{"${EXPAND_A}", "alpha"},
		{"x-${EXPAND_A}-y", "x-alpha-y"},
		{"${EXPAND_UNSET_VAR}", ""},
		{"$EXPAND_A", "$EXPAND_A"},
		{"no vars", "no vars"},
	}
	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/tmp/explicit.yaml")
	if got := DefaultPath(); got != "/tmp/explicit.yaml" {
		t.Errorf("DefaultPath() = %q with override", got)
	}

	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultPath(); got != filepath.Join("/xdg", "coven", "chat.yaml") {
		t.Errorf("DefaultPath() = %q with XDG_CONFIG_HOME", got)
	}
}

func TestStarter_LoadsCleanly(t *testing.T) {
	t.Setenv("COVEN_CHAT_TOKEN", "tok")
	path := writeConfig(t, "chat.yaml", Starter("http://localhost:8001"))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(Starter) error = %v", err)
	}
	if cfg.Server.BaseURL != "http://localhost:8001" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Session.Token != "tok" {
		t.Errorf("Token = %q", cfg.Session.Token)
	}
	if cfg.Realtime.BaseDelay != DefaultBaseDelay {
		t.Errorf("BaseDelay = %v", cfg.Realtime.BaseDelay)
	}
}
