// Package counters owns the session counts: it applies every counted action
// under one lock, persists the result, tells control surfaces, and decides
// when the action threshold asks for a page reload.
package counters

import (
	"context"
	"log/slog"
	"maps"
	"strconv"
	"sync"

	"github.com/hazyhaar/feedsweep/sweeper/internal/notify"
	"github.com/hazyhaar/feedsweep/sweeper/internal/session"
	"github.com/hazyhaar/feedsweep/sweeper/internal/store"
	"github.com/hazyhaar/feedsweep/sweeper/message"
)

// Action kinds, used as the metrics "kind" label.
const (
	KindSuppression  = "suppression"
	KindRelationship = "relationship"
)

// Config wires a Sync to its collaborators. Only Store is required.
type Config struct {
	Store store.Store
	Sink  notify.Sink
	// Threshold returns the current ActionsBeforeReload (0 disables).
	Threshold func() int
	// Reload is invoked once each time the threshold is reached.
	Reload func()
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Threshold == nil {
		c.Threshold = func() int { return 0 }
	}
}

// Sync is the single writer of session.Counters.
type Sync struct {
	cfg Config

	mu      sync.Mutex
	n       session.Counters
	warning bool
	tally   map[string]int
}

// New creates a Sync with zeroed counters.
func New(cfg Config) *Sync {
	cfg.defaults()
	return &Sync{cfg: cfg, tally: make(map[string]int)}
}

// Restore installs counters and warning loaded from the store.
// ActionsSinceReload always restarts at 0.
func (s *Sync) Restore(n session.Counters, warning bool) {
	n.TotalActions = n.Suppressed + n.RelationshipsRemoved
	n.ActionsSinceReload = 0
	s.mu.Lock()
	s.n = n
	s.warning = warning
	s.mu.Unlock()
	networkWarningGauge.Set(boolGauge(warning))
}

// SetReload replaces the reload hook. It must be called before the first
// counted action.
func (s *Sync) SetReload(fn func()) {
	s.mu.Lock()
	s.cfg.Reload = fn
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters.
func (s *Sync) Snapshot() session.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Tally returns the suppression breakdown by reason since start.
func (s *Sync) Tally() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.tally)
}

// Warning reports the current network warning state.
func (s *Sync) Warning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warning
}

// RecordSuppression counts one suppression performed for reason.
func (s *Sync) RecordSuppression(ctx context.Context, reason string) {
	s.record(ctx, KindSuppression, reason, func(n *session.Counters) {
		n.Suppressed++
		s.tally[reason]++
	})
}

// RecordRelationshipRemoval counts one unfollow.
func (s *Sync) RecordRelationshipRemoval(ctx context.Context) {
	s.record(ctx, KindRelationship, "unfollow", func(n *session.Counters) {
		n.RelationshipsRemoved++
	})
}

// RecordKeywordMatch counts one keyword match. It is not an action: it does
// not move the reload threshold and emits no notification.
func (s *Sync) RecordKeywordMatch(ctx context.Context) {
	s.mu.Lock()
	s.n.KeywordMatches++
	v := s.n.KeywordMatches
	s.mu.Unlock()

	keywordMatchesTotal.Inc()
	session.Persist(ctx, s.cfg.Store, s.cfg.Logger, map[string]string{
		session.KeyKeywordMatchCount: strconv.Itoa(v),
	})
}

// SetWarning records the network warning state and reports whether it
// changed. Changes are persisted; steady state is a no-op.
func (s *Sync) SetWarning(ctx context.Context, on bool) bool {
	s.mu.Lock()
	if s.warning == on {
		s.mu.Unlock()
		return false
	}
	s.warning = on
	s.mu.Unlock()

	networkWarningGauge.Set(boolGauge(on))
	session.Persist(ctx, s.cfg.Store, s.cfg.Logger, map[string]string{
		session.KeyNetworkWarning: strconv.FormatBool(on),
	})
	return true
}

func (s *Sync) record(ctx context.Context, kind, reason string, apply func(*session.Counters)) {
	threshold := s.cfg.Threshold()

	s.mu.Lock()
	apply(&s.n)
	s.n.TotalActions = s.n.Suppressed + s.n.RelationshipsRemoved
	s.n.ActionsSinceReload++
	reload := threshold > 0 && s.n.ActionsSinceReload >= threshold
	if reload {
		s.n.ActionsSinceReload = 0
	}
	snap := s.n
	reloadFn := s.cfg.Reload
	s.mu.Unlock()

	actionsTotal.WithLabelValues(kind, reason).Inc()
	session.Persist(ctx, s.cfg.Store, s.cfg.Logger, session.CounterValues(snap))
	s.emit(ctx, snap)

	if reload {
		reloadsTotal.Inc()
		s.cfg.Logger.Info("counters: reload threshold reached", "threshold", threshold, "total", snap.TotalActions)
		if reloadFn != nil {
			reloadFn()
		}
	}
}

func (s *Sync) emit(ctx context.Context, n session.Counters) {
	if s.cfg.Sink == nil {
		return
	}
	// Delivery errors are already logged by the router.
	_ = s.cfg.Sink.Notify(ctx, message.CountersUpdate(message.Counts{
		SuppressedCount:          n.Suppressed,
		RelationshipRemovedCount: n.RelationshipsRemoved,
		TotalActionCount:         n.TotalActions,
	}))
	_ = s.cfg.Sink.Notify(ctx, message.LegacyCount(n.RelationshipsRemoved))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
