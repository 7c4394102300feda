package arena

import (
	"fmt"
	"time"
)

const (
	DefaultRetentionTTL = 30 * time.Minute
	DefaultMaxRetained  = 1024
)

type Config struct {
	// RNG seed for deriving per-battle seeds (0 => time-based)
	Seed int64

	// Completed battles stay readable for RetentionTTL, bounded by MaxRetained.
	RetentionTTL time.Duration
	MaxRetained  int
}

func (c Config) withDefaults() Config {
	if c.RetentionTTL == 0 {
		c.RetentionTTL = DefaultRetentionTTL
	}
	if c.MaxRetained == 0 {
		c.MaxRetained = DefaultMaxRetained
	}
	return c
}

func (c Config) validate() error {
	if c.RetentionTTL < 0 {
		return fmt.Errorf("RetentionTTL must be >= 0")
	}
	if c.MaxRetained < 0 {
		return fmt.Errorf("MaxRetained must be >= 0")
	}
	return nil
}
