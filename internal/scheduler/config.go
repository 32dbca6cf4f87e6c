package scheduler

import (
	"fmt"
	"time"
)

// Config defines configuration for the scheduler's tick loop and dispatch
type Config struct {
	// Route every execution through the single-consumer queue even when the
	// backend tolerates concurrent writers
	Serialize bool `toml:"serialize" yaml:"serialize"`

	// Added to the computed wait for the first tick so it never fires early
	AlignmentSkew time.Duration `toml:"alignment_skew" yaml:"alignment_skew"`
}

// DefaultConfig returns scheduler configuration defaults
func DefaultConfig() Config {
	return Config{
		Serialize:     false,
		AlignmentSkew: 10 * time.Millisecond,
	}
}

// Validate returns an error if the configuration is unusable
func (c Config) Validate() error {
	if c.AlignmentSkew <= 0 {
		return fmt.Errorf("AlignmentSkew must be positive, got %v", c.AlignmentSkew)
	}
	if c.AlignmentSkew >= time.Second {
		return fmt.Errorf("AlignmentSkew must be less than 1s, got %v", c.AlignmentSkew)
	}
	return nil
}
