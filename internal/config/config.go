// ABOUTME: Configuration loading and parsing for the coven client
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete client configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Timing  TimingConfig  `yaml:"timing"`
	History HistoryConfig `yaml:"history"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds gateway connection configuration
type ServerConfig struct {
	BaseURL   string `yaml:"base_url"`
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
}

// TimingConfig holds client-side timer configuration
type TimingConfig struct {
	TitlePendingTimeout    time.Duration `yaml:"-"`
	MetadataPendingTimeout time.Duration `yaml:"-"`
	SearchDebounce         time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TitlePendingTimeoutRaw    string `yaml:"title_pending_timeout"`
	MetadataPendingTimeoutRaw string `yaml:"metadata_pending_timeout"`
	SearchDebounceRaw         string `yaml:"search_debounce"`
}

// HistoryConfig holds history pagination configuration
type HistoryConfig struct {
	PageSize int `yaml:"page_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultPath returns the standard config file location, honoring
// XDG_CONFIG_HOME when set.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "coven", "client.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "client.yaml"
	}
	return filepath.Join(home, ".config", "coven", "client.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.History.PageSize < 0 {
		return fmt.Errorf("history.page_size must not be negative")
	}
	return nil
}

// ResolveToken returns the bearer token for gateway requests. Precedence:
// the COVEN_TOKEN environment variable, then server.token, then the file
// named by server.token_file.
func (c *Config) ResolveToken() (string, error) {
	if tok := os.Getenv("COVEN_TOKEN"); tok != "" {
		return tok, nil
	}
	if c.Server.Token != "" {
		return c.Server.Token, nil
	}
	if c.Server.TokenFile != "" {
		data, err := os.ReadFile(c.Server.TokenFile)
		if err != nil {
			return "", fmt.Errorf("reading token file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return "", nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Timing.TitlePendingTimeoutRaw != "" {
		cfg.Timing.TitlePendingTimeout, err = time.ParseDuration(cfg.Timing.TitlePendingTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing title_pending_timeout %q: %w", cfg.Timing.TitlePendingTimeoutRaw, err)
		}
	}

	if cfg.Timing.MetadataPendingTimeoutRaw != "" {
		cfg.Timing.MetadataPendingTimeout, err = time.ParseDuration(cfg.Timing.MetadataPendingTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing metadata_pending_timeout %q: %w", cfg.Timing.MetadataPendingTimeoutRaw, err)
		}
	}

	if cfg.Timing.SearchDebounceRaw != "" {
		cfg.Timing.SearchDebounce, err = time.ParseDuration(cfg.Timing.SearchDebounceRaw)
		if err != nil {
			return fmt.Errorf("parsing search_debounce %q: %w", cfg.Timing.SearchDebounceRaw, err)
		}
	}

	return nil
}
