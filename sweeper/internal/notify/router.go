package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hazyhaar/feedsweep/sweeper/message"
)

// Router fans notifications out to every sink. One sink error does not
// block the others: errors are logged and the first one is returned.
type Router struct {
	mu     sync.RWMutex
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Add registers another sink.
func (r *Router) Add(s Sink) {
	r.mu.Lock()
	r.sinks = append(r.sinks, s)
	r.mu.Unlock()
}

func (r *Router) Notify(ctx context.Context, n message.Notification) error {
	r.mu.RLock()
	sinks := r.sinks
	r.mu.RUnlock()

	var firstErr error
	for _, s := range sinks {
		if err := s.Notify(ctx, n); err != nil {
			r.logger.Warn("notify: delivery failed", "type", n.Type, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
