// Package config handles feedsweep configuration from a YAML file.
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/feedsweep/netsafe"
	"github.com/hazyhaar/feedsweep/sweeper/internal/locate"
	"github.com/hazyhaar/feedsweep/sweeper/internal/netmon"
	"github.com/hazyhaar/feedsweep/sweeper/internal/session"
)

// Config is the top-level feedsweep configuration.
type Config struct {
	Browser   BrowserConfig    `yaml:"browser"`
	Page      PageConfig       `yaml:"page"`
	Selectors locate.Selectors `yaml:"selectors"`
	Store     StoreConfig      `yaml:"store"`
	Control   ControlConfig    `yaml:"control"`
	Pacing    PacingConfig     `yaml:"pacing"`
	Session   SessionConfig    `yaml:"session"`
	LogLevel  string           `yaml:"log_level"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`        // ws:// of an existing Chrome
	UserDataDir      string   `yaml:"user_data_dir"` // keeps the site login across runs
	Stealth          string   `yaml:"stealth"`       // headless | headful
	XvfbDisplay      string   `yaml:"xvfb_display"`
	ResourceBlocking []string `yaml:"resource_blocking"` // image | font | media | stylesheet
}

// PageConfig names the feed to clean.
type PageConfig struct {
	URL              string `yaml:"url"`
	NetworkErrorText string `yaml:"network_error_text"`
}

// StoreConfig selects the persistent store.
type StoreConfig struct {
	Driver      string `yaml:"driver"` // sqlite | redis | memory
	Path        string `yaml:"path"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
	RedisPrefix string `yaml:"redis_prefix"`
	TraceSQL    bool   `yaml:"trace_sql"`
}

// ControlConfig configures the command and notification transports.
type ControlConfig struct {
	Listen              string        `yaml:"listen"`     // empty disables the HTTP server
	RateLimit           int           `yaml:"rate_limit"` // /api requests per client and minute, 0 = unlimited
	Webhook             string        `yaml:"webhook"`
	WebhookSecret       string        `yaml:"webhook_secret"`        // HMAC-SHA256 signing key, >= 32 bytes
	WebhookAllowPrivate bool          `yaml:"webhook_allow_private"` // permit loopback and LAN targets
	Stdout              bool          `yaml:"stdout"`
	Inbox               string        `yaml:"inbox"` // SQLite path of the command queue and journal
	InboxInterval       time.Duration `yaml:"inbox_interval"`
	JournalRetention    time.Duration `yaml:"journal_retention"`
}

// PacingConfig adds limits on top of the timing policy.
type PacingConfig struct {
	MaxActionsPerMinute int           `yaml:"max_actions_per_minute"` // 0 = unlimited
	NewPostsInterval    time.Duration `yaml:"new_posts_interval"`
}

// SessionConfig seeds the session before the store is read. Unset fields
// keep the built-in defaults.
type SessionConfig struct {
	Running              *bool   `yaml:"running"`
	SuppressAds          *bool   `yaml:"suppress_ads"`
	SuppressSuggested    *bool   `yaml:"suppress_suggested"`
	ForeignScriptLock    *bool   `yaml:"foreign_script_lock"`
	ScrollDelaySeconds   *int    `yaml:"scroll_delay_seconds"`
	ActionsBeforeReload  *int    `yaml:"actions_before_reload"`
	KeywordFilterEnabled *bool   `yaml:"keyword_filter_enabled"`
	KeywordFilterText    *string `yaml:"keyword_filter_text"`
	HumanPacingEnabled   *bool   `yaml:"human_pacing_enabled"`
}

// Defaults overlays the set fields on session.Defaults, clamped.
func (s SessionConfig) Defaults() session.Config {
	c := session.Defaults()
	set(&c.Running, s.Running)
	set(&c.SuppressAds, s.SuppressAds)
	set(&c.SuppressSuggested, s.SuppressSuggested)
	set(&c.ForeignScriptLock, s.ForeignScriptLock)
	set(&c.ScrollDelaySeconds, s.ScrollDelaySeconds)
	set(&c.ActionsBeforeReload, s.ActionsBeforeReload)
	set(&c.KeywordFilterEnabled, s.KeywordFilterEnabled)
	set(&c.KeywordFilterText, s.KeywordFilterText)
	set(&c.HumanPacingEnabled, s.HumanPacingEnabled)
	c.Normalize()
	return c
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and checks URL shapes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) check() error {
	if _, err := netsafe.ParseHTTPURL(c.Page.URL); err != nil {
		return fmt.Errorf("config: page.url: %w", err)
	}
	if c.Control.Webhook != "" {
		if _, err := netsafe.ParseHTTPURL(c.Control.Webhook); err != nil {
			return fmt.Errorf("config: control.webhook: %w", err)
		}
	}
	if c.Control.WebhookSecret != "" {
		if err := netsafe.ValidateSecret([]byte(c.Control.WebhookSecret)); err != nil {
			return fmt.Errorf("config: control.webhook_secret: %w", err)
		}
	}
	return nil
}

// Validate runs the checks that need the network: the webhook must not
// resolve to a private address unless webhook_allow_private is set.
func (c *Config) Validate(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	if c.Control.Webhook != "" && !c.Control.WebhookAllowPrivate {
		if err := netsafe.ValidateTarget(ctx, c.Control.Webhook); err != nil {
			return fmt.Errorf("config: control.webhook: %w", err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Page.URL == "" {
		c.Page.URL = "https://www.linkedin.com/feed/"
	}
	if c.Page.NetworkErrorText == "" {
		c.Page.NetworkErrorText = netmon.DefaultBanner
	}
	c.Selectors.ApplyDefaults()
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Path == "" {
		c.Store.Path = "feedsweep.db"
	}
	if c.Store.RedisAddr == "" {
		c.Store.RedisAddr = "localhost:6379"
	}
	if c.Store.RedisPrefix == "" {
		c.Store.RedisPrefix = "feedsweep"
	}
	if c.Control.Inbox == "" {
		c.Control.Inbox = c.Store.Path
		if c.Store.Driver != "sqlite" {
			c.Control.Inbox = "feedsweep-inbox.db"
		}
	}
	if c.Control.InboxInterval <= 0 {
		c.Control.InboxInterval = 250 * time.Millisecond
	}
	if c.Control.JournalRetention <= 0 {
		c.Control.JournalRetention = 30 * 24 * time.Hour
	}
	if c.Pacing.NewPostsInterval <= 0 {
		c.Pacing.NewPostsInterval = 2500 * time.Millisecond
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
