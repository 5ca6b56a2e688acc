package sweeper

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/hazyhaar/feedsweep/sweeper/feed"
	"github.com/hazyhaar/feedsweep/sweeper/internal/classify"
	"github.com/hazyhaar/feedsweep/sweeper/internal/counters"
	"github.com/hazyhaar/feedsweep/sweeper/internal/pacing"
	"github.com/hazyhaar/feedsweep/sweeper/internal/session"
)

// Mode is the loop state, recomputed every cycle.
type Mode string

const (
	ModeIdle   Mode = "IDLE"
	ModeFilter Mode = "FILTER_MODE"
	ModeAuto   Mode = "AUTO_MODE"
)

// MatchCap stops scrolling in filter mode once this many keyword matches
// are on the page.
const MatchCap = 10

// SelectMode picks the mode for cfg.
func SelectMode(cfg session.Config) Mode {
	switch {
	case cfg.FilterActive():
		return ModeFilter
	case cfg.Running:
		return ModeAuto
	default:
		return ModeIdle
	}
}

// Run initializes the engine and runs cycles until ctx is done. A panic
// inside a cycle ends Run with an error; the loop is not restarted.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Init(ctx); err != nil {
		return err
	}
	if e.opts.NewPostsInterval > 0 {
		go e.freshen(ctx, e.opts.NewPostsInterval)
	}

	e.logger.Info("sweeper: loop started")
	for ctx.Err() == nil {
		if err := e.safeCycle(ctx); err != nil {
			return err
		}
	}
	e.logger.Info("sweeper: loop stopped")
	return nil
}

func (e *Engine) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("sweeper: cycle panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("sweeper: cycle panicked: %v", r)
		}
	}()
	e.Cycle(ctx)
	return nil
}

// Cycle runs one unit of work and returns the mode it ran in.
func (e *Engine) Cycle(ctx context.Context) Mode {
	e.net.Check(ctx)

	cfg := e.state.Snapshot()
	mode := SelectMode(cfg)
	e.mode.Store(mode)
	counters.ObserveCycle(string(mode))

	switch mode {
	case ModeFilter:
		e.filterCycle(ctx, cfg)
	case ModeAuto:
		e.autoCycle(ctx, cfg)
	default:
		_ = e.pace.Wait(ctx, pacing.Idle)
	}
	return mode
}

func (e *Engine) filterCycle(ctx context.Context, cfg session.Config) {
	for _, it := range e.scan.Snapshot(ctx) {
		if !it.Flagged(ctx, feed.FlagFiltered) {
			e.applyFilter(ctx, it, cfg)
		}
	}
	if e.filterMatches.Load() < MatchCap {
		e.scrollStep(ctx, cfg)
		return
	}
	_ = e.pace.Wait(ctx, pacing.Backoff)
}

// autoCycle acts on the first item whose auto phase has not run: suggested
// posts are hidden, other authors are unfollowed. Items already hidden are
// marked and skipped.
func (e *Engine) autoCycle(ctx context.Context, cfg session.Config) {
	for _, it := range e.scan.Snapshot(ctx) {
		if it.Flagged(ctx, feed.FlagAuto) {
			continue
		}
		won, err := it.Claim(ctx, feed.FlagAuto)
		if err != nil || !won {
			continue
		}
		if it.Flagged(ctx, feed.FlagHidden) {
			continue
		}

		content, err := it.Content(ctx)
		if err != nil {
			e.logger.Debug("sweeper: read item", "item", it.Key(), "error", err)
			continue
		}
		if classify.IsSuggested(content.Header) {
			e.exec.Hide(ctx, it, string(classify.CategorySuggested))
		} else {
			e.exec.Unfollow(ctx, it)
		}
		_ = e.pace.Wait(ctx, pacing.AfterAction)
		return
	}
	e.scrollStep(ctx, cfg)
}
