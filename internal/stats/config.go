package stats

import (
	"fmt"
	"net"
	"strconv"
)

// Config defines where the metrics endpoint listens
type Config struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Address string `toml:"address" yaml:"address"`
	Port    int    `toml:"port" yaml:"port"`
}

// DefaultConfig returns default metrics endpoint configuration
func DefaultConfig() Config {
	return Config{
		Enabled: false,
		Address: "127.0.0.1",
		Port:    9464,
	}
}

// ListenAddr returns the host:port the endpoint binds to
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("metrics port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}
