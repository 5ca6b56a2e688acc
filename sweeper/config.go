package sweeper

import (
	"github.com/hazyhaar/feedsweep/sweeper/internal/config"
	"github.com/hazyhaar/feedsweep/sweeper/internal/locate"
	"github.com/hazyhaar/feedsweep/sweeper/internal/session"
)

// Config is the top-level feedsweep configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// PageConfig names the feed to clean.
type PageConfig = config.PageConfig

// StoreConfig selects the persistent store.
type StoreConfig = config.StoreConfig

// ControlConfig configures the command and notification transports.
type ControlConfig = config.ControlConfig

// PacingConfig adds limits on top of the timing policy.
type PacingConfig = config.PacingConfig

// Selectors maps feed roles to CSS selectors.
type Selectors = locate.Selectors

// SessionConfig is the mutable session configuration.
type SessionConfig = session.Config

// Counters are the running session counts.
type Counters = session.Counters

// Persisted is the state kept in the store across restarts.
type Persisted = session.Persisted

// Status is the externally visible engine state.
type Status = session.Status

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns the configuration used without a file.
func DefaultConfig() *Config {
	return config.Default()
}

// DefaultSession returns the built-in session defaults.
func DefaultSession() SessionConfig {
	return session.Defaults()
}
