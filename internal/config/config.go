// Package config bootstraps a simulated host from environment variables.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/hostsim/internal/host"
	"github.com/roach88/hostsim/internal/policy"
)

// Config is the environment-driven bootstrap configuration.
type Config struct {
	// PhaseChecks disables guard enforcement when set to exactly "false".
	// Any other value, including unset, leaves checks on.
	PhaseChecks string `env:"MC_PHASE_CHECKS"`

	// Policy is "default", "legacy", or a path to a .cue guard profile.
	Policy string `env:"MC_GUARD_POLICY" envDefault:"default"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `env:"MC_LOG_LEVEL" envDefault:"warn"`

	// Journal is an optional SQLite journal path.
	Journal string `env:"MC_JOURNAL"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads Config from the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if _, err := cfg.Level(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ChecksEnabled reports whether guards start enforced.
func (c Config) ChecksEnabled() bool {
	return c.PhaseChecks != "false"
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	return ParseLevel(c.LogLevel)
}

// Logger builds a text logger writing to w at the configured level.
func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := c.Level()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// Options turns the configuration into host options. The guard profile is
// resolved here, so a bad profile path is reported before any environment
// exists.
func (c Config) Options() ([]host.Option, error) {
	table, err := policy.Resolve(c.Policy)
	if err != nil {
		return nil, fmt.Errorf("guard policy %q: %w", c.Policy, err)
	}
	return []host.Option{
		host.WithPolicy(table),
		host.WithPhaseChecks(c.ChecksEnabled()),
	}, nil
}

// ParseLevel maps a level name to a slog.Level. Empty means warn.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q: want debug, info, warn or error", s)
	}
}
