// Package action performs the two irreversible actions on feed items:
// suppression and relationship removal. Each runs at most once per item.
package action

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/feedsweep/sweeper/feed"
	"github.com/hazyhaar/feedsweep/sweeper/internal/classify"
	"github.com/hazyhaar/feedsweep/sweeper/internal/pacing"
)

// ReasonUnfollowFallback is the suppression reason used when an unfollow
// cannot complete.
const ReasonUnfollowFallback = "unfollow_fallback"

const unfollowPrefix = "unfollow "

// Recorder receives one call per completed action.
type Recorder interface {
	RecordSuppression(ctx context.Context, reason string)
	RecordRelationshipRemoval(ctx context.Context)
}

// Config configures an Executor.
type Config struct {
	// Limiter caps irreversible clicks. Nil means unlimited.
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

// Executor drives item controls through a feed.Page.
type Executor struct {
	page   feed.Page
	pace   *pacing.Policy
	rec    Recorder
	limit  *rate.Limiter
	logger *slog.Logger
}

// New creates an Executor.
func New(page feed.Page, pace *pacing.Policy, rec Recorder, cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{page: page, pace: pace, rec: rec, limit: cfg.Limiter, logger: cfg.Logger}
}

// PerMinute builds a limiter allowing n actions per minute (burst 1).
// n <= 0 returns nil.
func PerMinute(n int) *rate.Limiter {
	if n <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(n)/60), 1)
}

// Hide suppresses it at most once. It clicks the item's dismiss control and
// falls back to hiding the item visually. It reports whether this call
// performed the suppression.
func (e *Executor) Hide(ctx context.Context, it feed.Item, reason string) bool {
	won, err := it.Claim(ctx, feed.FlagHidden)
	if err != nil {
		e.logger.Debug("action: claim hidden", "item", it.Key(), "error", err)
		return false
	}
	if !won {
		return false
	}

	if err := e.clickItemControl(ctx, it, feed.RoleHideControl, true); err != nil {
		if !errors.Is(err, feed.ErrNotFound) {
			e.logger.Debug("action: hide click failed", "item", it.Key(), "error", err)
		}
		if err := e.page.Suppress(ctx, it); err != nil {
			e.logger.Warn("action: suppress failed", "item", it.Key(), "error", err)
		}
	}

	e.rec.RecordSuppression(ctx, reason)
	e.logger.Info("action: suppressed", "item", it.Key(), "reason", reason)
	return true
}

// Unfollow removes the relationship with the author of it at most once. When the
// menu or its unfollow entry is missing, the item is hidden instead and
// Unfollow reports false. Unfollow is never retried on the same item.
func (e *Executor) Unfollow(ctx context.Context, it feed.Item) bool {
	won, err := it.Claim(ctx, feed.FlagUnfollow)
	if err != nil || !won {
		return false
	}

	if err := e.clickItemControl(ctx, it, feed.RoleMenuTrigger, false); err != nil {
		e.logger.Debug("action: menu trigger unavailable", "item", it.Key(), "error", err)
		e.Hide(ctx, it, ReasonUnfollowFallback)
		return false
	}
	if err := e.pace.Wait(ctx, pacing.MenuSettle); err != nil {
		return false
	}

	entries, err := e.page.MenuEntries(ctx)
	if err != nil {
		e.logger.Debug("action: list menu entries", "item", it.Key(), "error", err)
	}
	entry := pickUnfollow(entries)
	if entry == nil {
		e.logger.Info("action: no unfollow entry, hiding instead", "item", it.Key())
		e.Hide(ctx, it, ReasonUnfollowFallback)
		return false
	}

	if err := e.click(ctx, entry, true); err != nil {
		e.logger.Debug("action: unfollow click failed", "item", it.Key(), "error", err)
		e.Hide(ctx, it, ReasonUnfollowFallback)
		return false
	}

	e.rec.RecordRelationshipRemoval(ctx)
	e.logger.Info("action: unfollowed", "item", it.Key(), "entry", entry.Label())
	return true
}

// pickUnfollow prefers the dedicated affordance, then any entry labelled
// "Unfollow <name>".
func pickUnfollow(entries []feed.Control) feed.Control {
	for _, c := range entries {
		if c.Role() == feed.RoleUnfollow {
			return c
		}
	}
	for _, c := range entries {
		if classify.HasPrefix(c.Label(), unfollowPrefix) {
			return c
		}
	}
	return nil
}

func (e *Executor) clickItemControl(ctx context.Context, it feed.Item, role feed.Role, irreversible bool) error {
	c, err := e.page.Control(ctx, it, role)
	if err != nil {
		return err
	}
	return e.click(ctx, c, irreversible)
}

func (e *Executor) click(ctx context.Context, c feed.Control, irreversible bool) error {
	r, err := c.Bounds(ctx)
	if err != nil {
		return err
	}
	if irreversible && e.limit != nil {
		if err := e.limit.Wait(ctx); err != nil {
			return err
		}
	}
	return e.page.Click(ctx, c, e.pace.Jitter(r))
}
