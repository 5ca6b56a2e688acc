package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/feedsweep/kit"
	"github.com/hazyhaar/feedsweep/sweeper/feed"
	"github.com/hazyhaar/feedsweep/sweeper/internal/session"
	"github.com/hazyhaar/feedsweep/sweeper/message"
)

// Dispatch applies one command and returns the resulting configuration.
// Every change is persisted. The loop picks changes up at its next cycle;
// toggle and filter changes also start a filter pass in the background.
// Accepted and rejected commands alike go to the journal when one is set.
func (e *Engine) Dispatch(ctx context.Context, c message.Command) (SessionConfig, error) {
	start := time.Now()
	cfg, err := e.dispatch(ctx, c)
	if e.opts.Journal != nil && c != nil {
		e.opts.Journal.Command(ctx, c, err, time.Since(start))
	}
	return cfg, err
}

func (e *Engine) dispatch(ctx context.Context, c message.Command) (SessionConfig, error) {
	var (
		cfg      session.Config
		keys     []string
		refilter bool
		reset    bool
	)

	switch c := c.(type) {
	case message.Start:
		cfg, keys = e.state.SetRunning(true), []string{session.KeyRunning}
	case message.Stop:
		cfg, keys = e.state.SetRunning(false), []string{session.KeyRunning}
	case message.SetToggle:
		switch c.Key {
		case message.ToggleSuppressAds:
			cfg, keys = e.state.SetSuppressAds(c.Value), []string{session.KeySuppressAds}
		case message.ToggleSuppressSuggested:
			cfg, keys = e.state.SetSuppressSuggested(c.Value), []string{session.KeySuppressSuggested}
		case message.ToggleForeignScriptLock:
			cfg, keys = e.state.SetForeignScriptLock(c.Value), []string{session.KeyForeignScriptLock}
		default:
			return e.state.Snapshot(), fmt.Errorf("%w: toggle %q", message.ErrUnknownCommand, c.Key)
		}
		refilter = true
	case message.SetScrollDelay:
		cfg, keys = e.state.SetScrollDelay(c.Value), []string{session.KeyScrollDelaySeconds}
	case message.SetRefreshThreshold:
		cfg, keys = e.state.SetActionsBeforeReload(c.Value), []string{session.KeyActionsBeforeReload}
	case message.SetFilter:
		cfg = e.state.SetFilter(c.Enabled, c.Keyword)
		keys = []string{session.KeyKeywordFilterEnabled, session.KeyKeywordFilterText}
		e.filterMatches.Store(0)
		refilter, reset = true, true
	case message.SetHumanPacing:
		cfg, keys = e.state.SetHumanPacing(c.Enabled), []string{session.KeyHumanPacingEnabled}
	default:
		return e.state.Snapshot(), fmt.Errorf("%w: %T", message.ErrUnknownCommand, c)
	}

	all := session.ConfigValues(cfg)
	values := make(map[string]string, len(keys))
	for _, k := range keys {
		values[k] = all[k]
	}
	session.Persist(ctx, e.store, e.logger, values)

	e.logger.Info("sweeper: command applied",
		"type", c.Type(),
		"transport", kit.GetTransport(ctx),
		"request_id", kit.GetRequestID(ctx),
	)

	if refilter {
		e.refilter(reset)
	}
	return cfg, nil
}

// clearFiltered resets the filter phase of every current item. The auto
// and unfollow phases are left alone.
func (e *Engine) clearFiltered(ctx context.Context) {
	for _, it := range e.scan.Snapshot(ctx) {
		if err := it.Clear(ctx, feed.FlagFiltered); err != nil {
			e.logger.Debug("sweeper: clear filter flag", "item", it.Key(), "error", err)
		}
	}
}
