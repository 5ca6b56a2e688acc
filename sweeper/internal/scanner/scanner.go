// Package scanner enumerates feed items and subscribes to feed mutations.
package scanner

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hazyhaar/feedsweep/sweeper/feed"
)

// Scanner wraps a page's item enumeration. Errors from the page are treated
// as transient: they are logged and produce an empty snapshot.
type Scanner struct {
	page   feed.Page
	logger *slog.Logger

	mu        sync.Mutex
	installed bool
}

// New creates a Scanner. logger may be nil.
func New(page feed.Page, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{page: page, logger: logger}
}

// Snapshot returns the currently attached items in document order.
func (s *Scanner) Snapshot(ctx context.Context) []feed.Item {
	items, err := s.page.Items(ctx)
	if err != nil {
		s.logger.Warn("scanner: snapshot failed", "error", err)
		return nil
	}
	return items
}

// Watch installs the mutation subscription. Only the first call subscribes;
// later calls are no-ops. On every mutation, onItem is called for each item
// whose filter phase has not run yet.
func (s *Scanner) Watch(ctx context.Context, onItem func(feed.Item)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.installed {
		return nil
	}
	err := s.page.Watch(ctx, func() {
		for _, it := range s.Snapshot(ctx) {
			if !it.Flagged(ctx, feed.FlagFiltered) {
				onItem(it)
			}
		}
	})
	if err != nil {
		return err
	}
	s.installed = true
	return nil
}
