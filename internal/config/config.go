// Package config handles configuration loading and validation.
//
// Values are layered, lowest precedence first: built-in defaults, an optional
// TOML or YAML file, an optional .env file, then process environment and CLI
// flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"responses-relay/internal/model"
)

// Environment variables the bridge settings are read from.
const (
	EnvBridgeURL   = "OPENAI_BRIDGE_URL"
	EnvDeployToken = "DEPLOY_TOKEN"
)

const defaultEnvFile = ".env"

// placeholderToken is the value shipped in the example config file.
const placeholderToken = "YOUR_DEPLOY_TOKEN_HERE"

var (
	// ErrBridgeURLMissing is returned by Bridge when no bridge URL is configured.
	ErrBridgeURLMissing = errors.New("bridge url is not configured")
	// ErrDeployTokenMissing is returned by Bridge when no deploy token is configured.
	ErrDeployTokenMissing = errors.New("deploy token is not configured")
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/responses-relay/config.toml",
	"configs/config.toml",
	"configs/config.yaml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config      string `kong:"short='c',help='Path to TOML or YAML config file.',env='CONFIG_PATH'"`
	EnvFile     string `kong:"help='Path to a .env file (default: ./.env when present).',env='ENV_FILE'"`
	Host        string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port        int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	BridgeURL   string `kong:"name='bridge-url',help='Bridge base URL (overrides config).',env='OPENAI_BRIDGE_URL'"`
	DeployToken string `kong:"help='Bearer token sent to the bridge (overrides config).',env='DEPLOY_TOKEN'"`
	LogLevel    string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	LogFormat   string `kong:"help='Log format: json|text (overrides config).',env='LOG_FORMAT'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server" yaml:"server"`
	Bridge   BridgeConfig   `toml:"bridge" yaml:"bridge"`
	Upstream UpstreamConfig `toml:"upstream" yaml:"upstream"`
	Log      LogConfig      `toml:"log" yaml:"log"`
	Metrics  MetricsConfig  `toml:"metrics" yaml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host" yaml:"host"`
	Port         int             `toml:"port" yaml:"port"` // 0 means "use default" (8000)
	BodyMaxBytes int64           `toml:"body_max_bytes" yaml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled" yaml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second" yaml:"requests_per_second"`
}

// BridgeConfig identifies the upstream bridge and the credential used against it.
// Both may be empty at startup; the relay reports that per request.
type BridgeConfig struct {
	URL         string `toml:"url" yaml:"url"`
	DeployToken string `toml:"deploy_token" yaml:"deploy_token"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	// TimeoutSeconds bounds each bridge call. Zero leaves the call unbounded
	// apart from the inbound request context.
	TimeoutSeconds  int `toml:"timeout_seconds" yaml:"timeout_seconds"`
	IdleConnections int `toml:"idle_connections" yaml:"idle_connections"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

// Load builds the configuration from the optional config file, the optional
// .env file, the environment and CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), the search
// paths are tried in order; finding none is not an error.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := decode(path, data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	if err := loadEnvFile(cli.EnvFile); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// decode picks the file format from the extension. TOML is the default.
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return toml.Unmarshal(data, cfg)
	}
}

// loadEnvFile loads variables from a .env file without overriding variables
// already present in the environment. An explicitly named file must exist;
// the default ./.env is only read when present.
func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(defaultEnvFile); err != nil {
			return nil
		}
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// applyEnv copies bridge settings from the environment, which by now includes
// anything the .env file added.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvBridgeURL); v != "" {
		c.Bridge.URL = v
	}
	if v := os.Getenv(EnvDeployToken); v != "" {
		c.Bridge.DeployToken = v
	}
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.BridgeURL != "" {
		c.Bridge.URL = cli.BridgeURL
	}
	if cli.DeployToken != "" {
		c.Bridge.DeployToken = cli.DeployToken
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		c.Log.Format = cli.LogFormat
	}
}

func (c *Config) validate() error {
	if c.Bridge.DeployToken == placeholderToken {
		return fmt.Errorf("bridge.deploy_token contains placeholder value; set a real token or leave it empty")
	}

	// Bridge URL is optional here, but when set it must be usable.
	if base := TrimTrailingSlashes(c.Bridge.URL); base != "" {
		u, err := url.Parse(base)
		if err != nil {
			return fmt.Errorf("bridge.url is not a valid URL: %w", err)
		}
		if u.Scheme != "https" && u.Scheme != "http" {
			return fmt.Errorf("bridge.url must use http or https; got %q", c.Bridge.URL)
		}
		if u.Host == "" {
			return fmt.Errorf("bridge.url must include a host; got %q", c.Bridge.URL)
		}
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/healthz", "/relay/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// Zero integers mean "unset": neither TOML nor YAML decoding distinguishes an
// explicit 0 from an omitted key here.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// BridgeSettings returns the bridge settings with trailing slashes stripped from the
// base URL. The URL is checked before the token.
func (c *Config) BridgeSettings() (model.BridgeSettings, error) {
	s := model.BridgeSettings{
		BaseURL:     TrimTrailingSlashes(c.Bridge.URL),
		DeployToken: c.Bridge.DeployToken,
	}
	if s.BaseURL == "" {
		return s, ErrBridgeURLMissing
	}
	if s.DeployToken == "" {
		return s, ErrDeployTokenMissing
	}
	return s, nil
}

// TrimTrailingSlashes removes every trailing '/' from u.
func TrimTrailingSlashes(u string) string {
	return strings.TrimRight(u, "/")
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or
// others. The file may carry the deploy token.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 && c.Bridge.DeployToken != "" {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
