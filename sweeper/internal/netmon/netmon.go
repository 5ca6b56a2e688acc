// Package netmon watches the page for the site's network error banner and
// raises the warning on its rising edge.
package netmon

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hazyhaar/feedsweep/sweeper/feed"
	"github.com/hazyhaar/feedsweep/sweeper/internal/notify"
	"github.com/hazyhaar/feedsweep/sweeper/message"
)

// DefaultBanner is the text the site shows when it loses connectivity.
const DefaultBanner = "Error due to network issue. Please check your connection."

// Warning holds the persisted warning flag. SetWarning reports whether the
// state changed.
type Warning interface {
	SetWarning(ctx context.Context, on bool) bool
}

// Config configures a Monitor.
type Config struct {
	Banner string
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Banner == "" {
		c.Banner = DefaultBanner
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Monitor is edge-triggered: one notification per appearance of the banner.
type Monitor struct {
	page  feed.Page
	state Warning
	sink  notify.Sink
	cfg   Config
}

// New creates a Monitor. sink may be nil.
func New(page feed.Page, state Warning, sink notify.Sink, cfg Config) *Monitor {
	cfg.defaults()
	return &Monitor{page: page, state: state, sink: sink, cfg: cfg}
}

// Check reads the page once. A read failure counts as "no change".
func (m *Monitor) Check(ctx context.Context) {
	text, err := m.page.Text(ctx)
	if err != nil {
		m.cfg.Logger.Debug("netmon: read page text", "error", err)
		return
	}

	present := strings.Contains(text, m.cfg.Banner)
	if !m.state.SetWarning(ctx, present) {
		return
	}
	if !present {
		m.cfg.Logger.Info("netmon: network warning cleared")
		return
	}

	m.cfg.Logger.Warn("netmon: network warning raised")
	if m.sink != nil {
		_ = m.sink.Notify(ctx, message.NetworkWarning())
	}
}
