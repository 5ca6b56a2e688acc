package sweeper

import (
	"context"

	"github.com/hazyhaar/feedsweep/sweeper/feed"
	"github.com/hazyhaar/feedsweep/sweeper/internal/classify"
	"github.com/hazyhaar/feedsweep/sweeper/internal/session"
)

// applyFilter runs the filter phase on it once. It is shared by the loop,
// the mutation callback and commands; the FlagFiltered claim makes
// concurrent calls safe.
func (e *Engine) applyFilter(ctx context.Context, it feed.Item, cfg session.Config) {
	won, err := it.Claim(ctx, feed.FlagFiltered)
	if err != nil || !won {
		return
	}
	content, err := it.Content(ctx)
	if err != nil {
		e.logger.Debug("sweeper: read item", "item", it.Key(), "error", err)
		// Release the claim so a later pass classifies the item.
		if err := it.Clear(context.WithoutCancel(ctx), feed.FlagFiltered); err != nil {
			e.logger.Debug("sweeper: release filter flag", "item", it.Key(), "error", err)
		}
		return
	}

	v := classify.Classify(content, cfg.Rules())
	switch v.Action {
	case classify.Suppress:
		e.exec.Hide(ctx, it, string(v.Category))
	case classify.Keep:
		e.counts.RecordKeywordMatch(ctx)
		e.filterMatches.Add(1)
	}
}

// refilter runs a filter pass in the background on the run context, so a
// command returns before a rate-limited pass finishes and a caller that
// goes away does not cut the pass short. reset first clears every item's
// filter phase.
func (e *Engine) refilter(reset bool) {
	ctx := e.context()
	e.bg.Go(func() {
		if reset {
			e.clearFiltered(ctx)
		}
		e.applyFilters(ctx)
	})
}

// applyFilters filters every item whose filter phase has not run.
func (e *Engine) applyFilters(ctx context.Context) {
	cfg := e.state.Snapshot()
	for _, it := range e.scan.Snapshot(ctx) {
		if ctx.Err() != nil {
			return
		}
		if !it.Flagged(ctx, feed.FlagFiltered) {
			e.applyFilter(ctx, it, cfg)
		}
	}
}
