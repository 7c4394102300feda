// Package config loads the arena server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const defaultLocalDBName = "arena_local.db"

// Ledger modes.
const (
	LedgerMemory   = "memory"
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
)

type Config struct {
	Addr              string        `env:"ARENA_ADDR"                envDefault:":8080"`
	Seed              int64         `env:"ARENA_SEED"                envDefault:"0"`
	RetentionTTL      time.Duration `env:"ARENA_RETENTION_TTL"       envDefault:"30m"`
	MaxRetained       int           `env:"ARENA_MAX_RETAINED"        envDefault:"1024"`
	AutoplayInterval  time.Duration `env:"ARENA_AUTOPLAY_INTERVAL"   envDefault:"1s"`
	AutoplayMaxRounds int           `env:"ARENA_AUTOPLAY_MAX_ROUNDS" envDefault:"200"`
	RosterPath        string        `env:"ARENA_ROSTER_PATH"`
	AllowedOrigins    []string      `env:"ARENA_ALLOWED_ORIGINS"     envSeparator:","`
	ShutdownTimeout   time.Duration `env:"ARENA_SHUTDOWN_TIMEOUT"    envDefault:"5s"`

	Ledger Ledger
}

type Ledger struct {
	Mode              string `env:"LEDGER_MODE"                envDefault:"memory"`
	DatabaseDSN       string `env:"LEDGER_DATABASE_DSN"`
	DatabaseURL       string `env:"DATABASE_URL"`
	LocalDatabasePath string `env:"LEDGER_LOCAL_DATABASE_PATH"`
	RecentLimit       int    `env:"AUDIT_RECENT_LIMIT"         envDefault:"200"`
}

// DSN prefers LEDGER_DATABASE_DSN over DATABASE_URL.
func (l Ledger) DSN() string {
	if v := strings.TrimSpace(l.DatabaseDSN); v != "" {
		return v
	}
	return strings.TrimSpace(l.DatabaseURL)
}

// SQLitePath returns the configured local database path, or a file under the
// user config directory.
func (l Ledger) SQLitePath() (string, error) {
	if v := strings.TrimSpace(l.LocalDatabasePath); v != "" {
		if v == ":memory:" {
			return v, nil
		}
		return filepath.Clean(v), nil
	}
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userConfigDir, "AgentArena", defaultLocalDBName), nil
}

// Load reads configuration from the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads configuration from the given variables only.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Ledger.Mode = strings.ToLower(strings.TrimSpace(cfg.Ledger.Mode))
	cfg.AllowedOrigins = trimAll(cfg.AllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("ARENA_ADDR must not be empty")
	}
	if c.RetentionTTL < 0 {
		return fmt.Errorf("ARENA_RETENTION_TTL must be >= 0")
	}
	if c.MaxRetained < 0 {
		return fmt.Errorf("ARENA_MAX_RETAINED must be >= 0")
	}
	if c.AutoplayInterval <= 0 {
		return fmt.Errorf("ARENA_AUTOPLAY_INTERVAL must be > 0")
	}
	if c.AutoplayMaxRounds <= 0 {
		return fmt.Errorf("ARENA_AUTOPLAY_MAX_ROUNDS must be > 0")
	}
	switch c.Ledger.Mode {
	case LedgerMemory, LedgerSQLite:
	case LedgerPostgres:
		if c.Ledger.DSN() == "" {
			return fmt.Errorf("LEDGER_DATABASE_DSN or DATABASE_URL is required for postgres ledger")
		}
	default:
		return fmt.Errorf("unknown LEDGER_MODE %q", c.Ledger.Mode)
	}
	return nil
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
