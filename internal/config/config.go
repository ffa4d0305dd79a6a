package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration for the wavetaskd server.
// Precedence: environment variables > config file > defaults.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Transport TransportConfig `toml:"transport"`
	Log       LogConfig       `toml:"log"`
	Locks     LocksConfig     `toml:"locks"`
	Sync      SyncConfig      `toml:"sync"`
	Registry  RegistryConfig  `toml:"registry"`
}

// ServerConfig holds MCP server metadata.
type ServerConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// TransportConfig holds transport-related settings.
type TransportConfig struct {
	// Mode selects the transport: "stdio" (default) or "http".
	Mode string `toml:"mode"`
	// Port is the HTTP listen port (default: 21452). Only used when Mode is "http".
	Port string `toml:"port"`
	// Host is the HTTP listen address (default: "0.0.0.0"). Only used when Mode is "http".
	Host string `toml:"host"`
	// CORSOrigins is a comma-separated list of allowed CORS origins (default: "*").
	CORSOrigins string `toml:"cors_origins"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// LocksConfig holds the Concurrency Manager's timing parameters.
type LocksConfig struct {
	DefaultTimeoutMS int `toml:"default_timeout_ms"` // lock acquisition timeout when a caller omits one
	RetryIntervalMS  int `toml:"retry_interval_ms"`  // polling interval while waiting on a held lock
	MaxRetries       int `toml:"max_retries"`        // cap on acquisition retries before giving up
	StaleSweepSec    int `toml:"stale_sweep_sec"`    // interval between stale-lock sweeps
}

// SyncConfig holds Lazy Synchronizer settings.
type SyncConfig struct {
	FrontMatter bool `toml:"front_matter"` // emit an ETag front-matter block in rendered panels
}

// RegistryConfig holds Project Registry settings.
type RegistryConfig struct {
	GlobalPath string `toml:"global_path"` // path to the global projects.json; defaults to ~/.wave/projects.json
}

// Load creates a Config by reading from a TOML config file and environment
// variables. Precedence: environment variables > config file > defaults.
//
// Config file search order (first found wins):
//  1. Path passed via configPath parameter (from --config flag)
//  2. WAVETASK_CONFIG environment variable
//  3. ./wavetask.toml (current directory)
//  4. ~/.config/wavetask/wavetask.toml (XDG-style)
//
// All fields are optional in the config file. Environment variables always
// override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Name:    "wavetaskd",
			Version: "0.1.0",
		},
		Transport: TransportConfig{
			Mode:        "stdio",
			Port:        "21452",
			Host:        "0.0.0.0",
			CORSOrigins: "*",
		},
		Log: LogConfig{
			Level: "info",
		},
		Locks: LocksConfig{
			DefaultTimeoutMS: 5000,
			RetryIntervalMS:  100,
			MaxRetries:       50,
			StaleSweepSec:    60,
		},
		Sync: SyncConfig{
			FrontMatter: false,
		},
		Registry: RegistryConfig{
			GlobalPath: defaultGlobalRegistryPath(),
		},
	}

	if err := cfg.loadFile(configPath); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultGlobalRegistryPath returns ~/.wave/projects.json, falling back to
// a relative path if the home directory cannot be resolved.
func defaultGlobalRegistryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wave/projects.json"
	}
	return home + "/.wave/projects.json"
}

// loadFile finds and parses the TOML config file. If no file is found,
// this is a no-op (config file is optional).
func (c *Config) loadFile(configPath string) error {
	path := resolveConfigPath(configPath)
	if path == "" {
		return nil // no config file found; rely on defaults + env
	}

	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	return nil
}

// resolveConfigPath determines which config file to use. Returns empty string
// if no config file is found (config file is optional).
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit // caller wants this file; let DecodeFile report if missing
	}

	if p := os.Getenv("WAVETASK_CONFIG"); p != "" {
		return p
	}

	if _, err := os.Stat("wavetask.toml"); err == nil {
		return "wavetask.toml"
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := home + "/.config/wavetask/wavetask.toml"
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// applyEnv overlays environment variables on top of existing config values.
// An env var only takes effect if it is non-empty.
func (c *Config) applyEnv() {
	envOverride("WAVETASK_TRANSPORT", &c.Transport.Mode)
	envOverride("WAVETASK_PORT", &c.Transport.Port)
	envOverride("WAVETASK_HOST", &c.Transport.Host)
	envOverride("WAVETASK_CORS_ORIGINS", &c.Transport.CORSOrigins)

	envOverride("WAVETASK_LOG_LEVEL", &c.Log.Level)

	envOverride("WAVETASK_REGISTRY_PATH", &c.Registry.GlobalPath)

	if v := os.Getenv("WAVETASK_SYNC_FRONT_MATTER"); v != "" {
		c.Sync.FrontMatter = v == "true" || v == "1"
	}
	if v := os.Getenv("WAVETASK_LOCKS_DEFAULT_TIMEOUT_MS"); v != "" {
		var ms int
		if _, err := fmt.Sscanf(v, "%d", &ms); err == nil && ms >= 0 {
			c.Locks.DefaultTimeoutMS = ms
		}
	}
	if v := os.Getenv("WAVETASK_LOCKS_MAX_RETRIES"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			c.Locks.MaxRetries = n
		}
	}
}

// Validate checks that required fields are present and internally consistent.
func (c *Config) Validate() error {
	switch c.Transport.Mode {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid transport mode: %q (must be \"stdio\" or \"http\")", c.Transport.Mode)
	}

	if c.Locks.DefaultTimeoutMS < 0 {
		return fmt.Errorf("locks.default_timeout_ms must be >= 0")
	}
	if c.Locks.MaxRetries <= 0 {
		return fmt.Errorf("locks.max_retries must be > 0")
	}
	if c.Registry.GlobalPath == "" {
		return fmt.Errorf("registry.global_path must not be empty")
	}

	return nil
}

// envOverride sets *dst to the value of the named env var, if it is non-empty.
func envOverride(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
