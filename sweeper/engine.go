// Package sweeper is the feed-cleaning engine. An Engine drives a feed.Page
// through repeated cycles: it filters items against the session rules,
// removes suggested posts and unfollows authors one item at a time when
// running, scrolls at the configured pace, and reloads the page after a
// configured number of actions. Commands reconfigure it while it runs;
// notifications report counters and network trouble.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/feedsweep/sweeper/feed"
	"github.com/hazyhaar/feedsweep/sweeper/internal/action"
	"github.com/hazyhaar/feedsweep/sweeper/internal/counters"
	"github.com/hazyhaar/feedsweep/sweeper/internal/netmon"
	"github.com/hazyhaar/feedsweep/sweeper/internal/notify"
	"github.com/hazyhaar/feedsweep/sweeper/internal/pacing"
	"github.com/hazyhaar/feedsweep/sweeper/internal/scanner"
	"github.com/hazyhaar/feedsweep/sweeper/internal/session"
	"github.com/hazyhaar/feedsweep/sweeper/internal/store"
	"github.com/hazyhaar/feedsweep/sweeper/message"
)

// Options wires an Engine. Page is required; everything else has a default.
type Options struct {
	Page  feed.Page
	Store Store // default: in-memory
	Sinks []Sink

	// Session seeds the configuration before the store is read.
	Session SessionConfig
	// NetworkBanner overrides the network error text.
	NetworkBanner string
	// MaxActionsPerMinute caps irreversible clicks (0 = unlimited).
	MaxActionsPerMinute int
	// NewPostsInterval is the period of the "see new posts" check.
	// Default 2.5s; negative disables it.
	NewPostsInterval time.Duration

	// Journal records every dispatched command.
	Journal Journal

	// Sleep replaces the timing policy's sleep (tests).
	Sleep func(ctx context.Context, d time.Duration) error
	// Now replaces the clock (tests).
	Now func() time.Time
	// After schedules fn after d. Default time.AfterFunc.
	After func(d time.Duration, fn func())
	// Seed fixes the pacing random source (tests).
	Seed uint64

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Store == nil {
		o.Store = store.NewMemory()
	}
	if o.Session == (SessionConfig{}) {
		o.Session = session.Defaults()
	}
	if o.NewPostsInterval == 0 {
		o.NewPostsInterval = 2500 * time.Millisecond
	}
	if o.After == nil {
		o.After = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Journal receives each command with the outcome of applying it.
type Journal interface {
	Command(ctx context.Context, c message.Command, err error, took time.Duration)
}

// Engine is the main control loop. Cycles never overlap; the mutation
// callback, the new-posts check and Dispatch run on other goroutines and
// share state with the loop only through session.State, counters.Sync and
// the per-item ledger.
type Engine struct {
	opts   Options
	page   feed.Page
	store  Store
	router *notify.Router
	state  *session.State
	pace   *pacing.Policy
	counts *counters.Sync
	exec   *action.Executor
	scan   *scanner.Scanner
	net    *netmon.Monitor
	logger *slog.Logger

	filterMatches atomic.Int64
	lastScroll    time.Time // loop goroutine only
	mode          atomic.Value

	runMu  sync.Mutex
	runCtx context.Context
	bg     sync.WaitGroup // refilter passes started by Dispatch
}

// New creates an Engine. It does not touch the page or the store until
// Init or Run.
func New(opts Options) (*Engine, error) {
	if opts.Page == nil {
		return nil, fmt.Errorf("sweeper: page is required")
	}
	opts.defaults()

	e := &Engine{
		opts:   opts,
		page:   opts.Page,
		store:  opts.Store,
		router: notify.NewRouter(opts.Logger, opts.Sinks...),
		state:  session.NewState(opts.Session),
		logger: opts.Logger,
		runCtx: context.Background(),
	}
	e.mode.Store(ModeIdle)
	e.pace = pacing.New(pacing.Config{
		Human: e.state.HumanPacing,
		Sleep: opts.Sleep,
		Now:   opts.Now,
		Seed:  opts.Seed,
	})
	e.counts = counters.New(counters.Config{
		Store:     e.store,
		Sink:      e.router,
		Threshold: e.state.ActionsBeforeReload,
		Reload:    e.scheduleReload,
		Logger:    e.logger,
	})
	e.exec = action.New(e.page, e.pace, e.counts, action.Config{
		Limiter: action.PerMinute(opts.MaxActionsPerMinute),
		Logger:  e.logger,
	})
	e.scan = scanner.New(e.page, e.logger)
	e.net = netmon.New(e.page, e.counts, e.router, netmon.Config{
		Banner: opts.NetworkBanner,
		Logger: e.logger,
	})
	return e, nil
}

// Version is reported by the control surfaces.
var Version = "dev"

// Close waits for background filter passes and closes every notification
// sink.
func (e *Engine) Close() error {
	e.bg.Wait()
	return e.router.Close()
}

// AddSink registers another notification sink.
func (e *Engine) AddSink(s Sink) { e.router.Add(s) }

// Init restores the persisted session, filters the items already on the
// page and subscribes to feed mutations.
func (e *Engine) Init(ctx context.Context) error {
	e.runMu.Lock()
	e.runCtx = ctx
	e.runMu.Unlock()

	p, err := session.Load(ctx, e.store, e.opts.Session)
	if err != nil {
		e.logger.Warn("sweeper: load persisted state", "error", err)
	}
	cfg := e.state.Replace(p.Config)
	e.counts.Restore(p.Counters, p.NetworkWarning)
	e.logger.Info("sweeper: session restored",
		"running", cfg.Running,
		"filter", cfg.FilterActive(),
		"total_actions", p.Counters.TotalActions,
	)

	e.applyFilters(ctx)
	e.lastScroll = e.pace.Now()

	if err := e.scan.Watch(ctx, func(it feed.Item) {
		e.applyFilter(ctx, it, e.state.Snapshot())
	}); err != nil {
		return fmt.Errorf("sweeper: watch feed: %w", err)
	}
	return nil
}

// Status reports configuration, counters, warning and the current mode.
func (e *Engine) Status() Status {
	return Status{
		Config:         e.state.Snapshot(),
		Counters:       e.counts.Snapshot(),
		NetworkWarning: e.counts.Warning(),
		Mode:           string(e.mode.Load().(Mode)),
		Suppressions:   e.counts.Tally(),
	}
}

// FilterMatches is the number of keyword matches since the filter was last
// set.
func (e *Engine) FilterMatches() int { return int(e.filterMatches.Load()) }

func (e *Engine) context() context.Context {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.runCtx
}
