package sweeper

import (
	"context"
	"time"

	"github.com/hazyhaar/feedsweep/sweeper/internal/session"
)

// ScrollFraction is the share of the viewport scrolled per step.
const ScrollFraction = 0.9

// scrollStep is the only scroll driver. It waits out the remainder of the
// scroll delay (paced), scrolls, and records the time. Init starts the
// clock, so the first scroll also waits a full delay.
func (e *Engine) scrollStep(ctx context.Context, cfg session.Config) {
	delay := time.Duration(cfg.ScrollDelaySeconds) * time.Second
	if elapsed := e.pace.Now().Sub(e.lastScroll); elapsed < delay {
		if err := e.pace.Wait(ctx, delay-elapsed); err != nil {
			return
		}
	}
	if err := e.page.Scroll(ctx, ScrollFraction); err != nil {
		e.logger.Debug("sweeper: scroll", "error", err)
	}
	e.lastScroll = e.pace.Now()
}
