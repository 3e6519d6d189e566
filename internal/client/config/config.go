package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the haulage client.
//
// Timeouts bound the boot sequence: SessionTimeout and ProfileTimeout limit
// the individual backend calls, FailsafeTimeout forces the bootstrapper out
// of any loading state. FocusDebounce suppresses redundant auth events that
// follow a focus change.
type Config struct {
	BackendURL  string
	AnonKey     string
	DatabaseDSN string
	LocalDBPath string
	LogFormat   string
	LogLevel    string

	SessionTimeout  time.Duration
	ProfileTimeout  time.Duration
	FailsafeTimeout time.Duration
	FocusDebounce   time.Duration

	ReloadRecovery          bool
	FocusRefresh            bool
	AssumeCompleteOnTimeout bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BackendURL = "http://127.0.0.1:54321"
	c.LocalDBPath = "haulage.db"
	c.LogFormat = "text"
	c.LogLevel = "info"
	c.SessionTimeout = 2 * time.Second
	c.ProfileTimeout = 2 * time.Second
	c.FailsafeTimeout = 3 * time.Second
	c.FocusDebounce = 2 * time.Second
	c.AssumeCompleteOnTimeout = true
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the environment, JSON (if present) and command-line flags (if present).
// Later sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg, os.Args[1:])
	parseFlags(cfg, os.Args[1:])
	return cfg
}
