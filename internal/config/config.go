// ABOUTME: Configuration loading and parsing for the bothive host.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete host configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Modules  ModulesConfig  `yaml:"modules"`
	Settings SettingsConfig `yaml:"settings"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the control API address.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// ModulesConfig holds module discovery and lifecycle configuration.
type ModulesConfig struct {
	Dir      string `yaml:"dir"`
	Autoload bool   `yaml:"autoload"`

	SetupTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	SetupTimeoutRaw string `yaml:"setup_timeout"`
}

// SettingsConfig holds settings persistence configuration.
type SettingsConfig struct {
	Path string `yaml:"path"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	BufferLines int    `yaml:"buffer_lines"`
}

// Load reads a configuration file from the given path and returns a
// parsed Config. Environment variables in the format ${VAR_NAME} are
// expanded. Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
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

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// parseDurations converts raw duration strings into time.Duration fields.
func parseDurations(cfg *Config) error {
	if cfg.Modules.SetupTimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.Modules.SetupTimeoutRaw)
		if err != nil {
			return fmt.Errorf("invalid modules.setup_timeout %q: %w", cfg.Modules.SetupTimeoutRaw, err)
		}
		cfg.Modules.SetupTimeout = d
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "localhost:5566"
	}
	if c.Modules.Dir == "" {
		c.Modules.Dir = "modules"
	}
	if c.Modules.SetupTimeout == 0 {
		c.Modules.SetupTimeout = 30 * time.Second
	}
	if c.Settings.Path == "" {
		c.Settings.Path = "settings.json"
	}
	if c.Database.Path == "" {
		c.Database.Path = "bothive.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json; got %q", c.Logging.Format)
	}

	if c.Modules.SetupTimeout < 0 {
		return fmt.Errorf("modules.setup_timeout must not be negative")
	}
	if c.Logging.BufferLines < 0 {
		return fmt.Errorf("logging.buffer_lines must not be negative")
	}
	return nil
}
