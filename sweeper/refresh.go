package sweeper

import (
	"context"
	"time"

	"github.com/hazyhaar/feedsweep/sweeper/feed"
	"github.com/hazyhaar/feedsweep/sweeper/internal/classify"
	"github.com/hazyhaar/feedsweep/sweeper/internal/pacing"
)

const newPostsLabel = "see new posts"

// scheduleReload is the counters' reload hook: the counters have already
// reset ActionsSinceReload, so a reload cannot trigger twice.
func (e *Engine) scheduleReload() {
	d := e.pace.Delay(pacing.ReloadDelay)
	e.logger.Info("sweeper: reload scheduled", "in", d)
	e.opts.After(d, func() {
		if err := e.page.Reload(e.context()); err != nil {
			e.logger.Warn("sweeper: reload failed", "error", err)
		}
	})
}

// RefreshNewPosts clicks the "see new posts" banner when it is shown and
// reports whether it did.
func (e *Engine) RefreshNewPosts(ctx context.Context) bool {
	c, err := e.page.PageControl(ctx, feed.RoleNewPosts)
	if err != nil {
		return false
	}
	if !classify.Contains(c.Label(), newPostsLabel) {
		return false
	}
	r, err := c.Bounds(ctx)
	if err != nil {
		return false
	}
	if err := e.page.Click(ctx, c, e.pace.Jitter(r)); err != nil {
		e.logger.Debug("sweeper: new posts click", "error", err)
		return false
	}
	e.logger.Info("sweeper: loaded new posts")
	return true
}

func (e *Engine) freshen(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.RefreshNewPosts(ctx)
		}
	}
}
