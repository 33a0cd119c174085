// Package config loads consoledrive configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Environment variables (CONSOLEDRIVE_*)
//  2. Config file
//  3. Built-in defaults
//
// Config file search order:
//  1. .consoledrive.yaml in current directory
//  2. ~/.config/consoledrive/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all consoledrive configuration.
type Config struct {
	// Channels maps channel names to unix socket endpoints. A full session
	// uses console, serial, and monitor; reduced deployments may configure
	// a subset.
	Channels map[string]string `yaml:"channels"`
	// Console is the channel carrying the root shell.
	Console string `yaml:"console"`

	// Connection establishment
	ConnectDeadline string `yaml:"connect_deadline"` // Go duration string, e.g. "30s"
	ConnectInterval string `yaml:"connect_interval"` // Go duration string, e.g. "100ms"

	// Mirror is where raw channel output is copied for human inspection:
	// "stdout", "stderr", "off", or a file path.
	Mirror string `yaml:"mirror"`

	// Passphrases maps disk names to unlock passphrases.
	Passphrases map[string]string `yaml:"passphrases"`

	// Transcript settings
	TranscriptPath string `yaml:"transcript_path"` // empty: per-run default under the temp dir
	EventSocket    string `yaml:"event_socket"`    // live publish socket; empty: default path

	// Triage LLM settings
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	MaxTokens int64  `yaml:"max_tokens"`

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // Comma-separated key=value pairs

	// Parsed durations (not from YAML, set after loading)
	ConnectDeadlineDuration time.Duration `yaml:"-"`
	ConnectIntervalDuration time.Duration `yaml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Console:         "console",
		ConnectDeadline: "30s",
		ConnectInterval: "100ms",
		Mirror:          "stdout",
		Provider:        "anthropic",
		Model:           "claude-sonnet-4-5",
		MaxTokens:       4096,
	}
}

// Load reads configuration from file and environment variables.
// Environment variables always override file values.
func Load() (*Config, error) {
	cfg := Defaults()

	// Try to load config file
	if path, data, err := findConfigFile(); err == nil {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, &fileCfg)
	}

	// Environment variables override everything
	mergeEnv(cfg)

	// Parse durations
	var err error
	cfg.ConnectDeadlineDuration, err = parseDuration(cfg.ConnectDeadline, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid connect deadline %q: %w", cfg.ConnectDeadline, err)
	}
	cfg.ConnectIntervalDuration, err = parseDuration(cfg.ConnectInterval, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("invalid connect interval %q: %w", cfg.ConnectInterval, err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file and returns its path and contents.
func findConfigFile() (string, []byte, error) {
	// 1. Current directory
	if data, err := os.ReadFile(".consoledrive.yaml"); err == nil {
		return ".consoledrive.yaml", data, nil
	}

	// 2. XDG config dir / ~/.config
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "consoledrive", "config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, fmt.Errorf("no config file found")
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	if len(file.Channels) > 0 {
		cfg.Channels = file.Channels
	}
	if file.Console != "" {
		cfg.Console = file.Console
	}
	if file.ConnectDeadline != "" {
		cfg.ConnectDeadline = file.ConnectDeadline
	}
	if file.ConnectInterval != "" {
		cfg.ConnectInterval = file.ConnectInterval
	}
	if file.Mirror != "" {
		cfg.Mirror = file.Mirror
	}
	if len(file.Passphrases) > 0 {
		cfg.Passphrases = file.Passphrases
	}
	if file.TranscriptPath != "" {
		cfg.TranscriptPath = file.TranscriptPath
	}
	if file.EventSocket != "" {
		cfg.EventSocket = file.EventSocket
	}
	if file.Provider != "" {
		cfg.Provider = file.Provider
	}
	if file.Model != "" {
		cfg.Model = file.Model
	}
	if file.BaseURL != "" {
		cfg.BaseURL = file.BaseURL
	}
	if file.APIKey != "" {
		cfg.APIKey = file.APIKey
	}
	if file.MaxTokens > 0 {
		cfg.MaxTokens = file.MaxTokens
	}
	if file.OTELEndpoint != "" {
		cfg.OTELEndpoint = file.OTELEndpoint
	}
	if file.OTELHeaders != "" {
		cfg.OTELHeaders = file.OTELHeaders
	}
}

// mergeEnv applies environment variables onto cfg. Env always wins.
func mergeEnv(cfg *Config) {
	if v := os.Getenv("CONSOLEDRIVE_CONSOLE"); v != "" {
		cfg.Console = v
	}
	if v := os.Getenv("CONSOLEDRIVE_CONNECT_DEADLINE"); v != "" {
		cfg.ConnectDeadline = v
	}
	if v := os.Getenv("CONSOLEDRIVE_CONNECT_INTERVAL"); v != "" {
		cfg.ConnectInterval = v
	}
	if v := os.Getenv("CONSOLEDRIVE_MIRROR"); v != "" {
		cfg.Mirror = v
	}
	if v := os.Getenv("CONSOLEDRIVE_TRANSCRIPT"); v != "" {
		cfg.TranscriptPath = v
	}
	if v := os.Getenv("CONSOLEDRIVE_EVENT_SOCKET"); v != "" {
		cfg.EventSocket = v
	}
	if v := os.Getenv("CONSOLEDRIVE_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("CONSOLEDRIVE_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("CONSOLEDRIVE_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("CONSOLEDRIVE_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		cfg.OTELHeaders = v
	}

	// API key fallbacks
	if cfg.APIKey == "" {
		if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
			cfg.APIKey = v
		}
	}
	if cfg.APIKey == "" {
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.APIKey = v
		}
	}
}

// parseDuration parses a duration string. Empty string returns the fallback.
func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}

// Endpoints returns the configured channels as an ordered endpoint list,
// console first so session setup fails early when it is missing.
func (c *Config) Endpoints() []Endpoint {
	var eps []Endpoint
	if path, ok := c.Channels[c.Console]; ok {
		eps = append(eps, Endpoint{Name: c.Console, Path: path})
	}
	rest := make([]string, 0, len(c.Channels))
	for name := range c.Channels {
		if name != c.Console {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		eps = append(eps, Endpoint{Name: name, Path: c.Channels[name]})
	}
	return eps
}

// Endpoint pairs a channel name with its unix socket path.
type Endpoint struct {
	Name string
	Path string
}
