package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.yaml.in/yaml/v3"

	"github.com/livinlefevreloca/sqlcron/internal/db"
	"github.com/livinlefevreloca/sqlcron/internal/logging"
	"github.com/livinlefevreloca/sqlcron/internal/scheduler"
	"github.com/livinlefevreloca/sqlcron/internal/stats"
)

// Config represents the application configuration
type Config struct {
	// Instance name attached to every log line
	Name string `toml:"name" yaml:"name"`

	Database  db.Config        `toml:"database" yaml:"database"`
	Scheduler scheduler.Config `toml:"scheduler" yaml:"scheduler"`
	Metrics   stats.Config     `toml:"metrics" yaml:"metrics"`
	Logging   logging.Config   `toml:"logging" yaml:"logging"`
	Events    EventsConfig     `toml:"events" yaml:"events"`
}

// EventsConfig holds events file settings
type EventsConfig struct {
	// Warn when the events file changes after it was loaded
	Watch bool `toml:"watch" yaml:"watch"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Name:      "sqlcron",
		Database:  db.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
		Metrics:   stats.DefaultConfig(),
		Logging:   logging.DefaultConfig(),
		Events: EventsConfig{
			Watch: true,
		},
	}
}

// LoadFromFile loads configuration from a TOML or YAML file. Values not
// present in the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		md, err := toml.Decode(string(data), config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown config keys: %v", undecoded)
		}
	}

	return config, nil
}

// LoadConfig loads configuration with the following precedence:
// 1. Default values
// 2. Config file (if specified)
// 3. Command-line flags (handled by caller)
func LoadConfig(configPath string) (*Config, error) {
	// If no config file specified, return defaults
	if configPath == "" {
		return DefaultConfig(), nil
	}

	return LoadFromFile(configPath)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
