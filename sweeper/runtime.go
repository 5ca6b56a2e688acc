package sweeper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/feedsweep/kit"
	"github.com/hazyhaar/feedsweep/sweeper/internal/browser"
	"github.com/hazyhaar/feedsweep/sweeper/internal/classify"
	"github.com/hazyhaar/feedsweep/sweeper/internal/control"
	"github.com/hazyhaar/feedsweep/sweeper/internal/htmlfeed"
	"github.com/hazyhaar/feedsweep/sweeper/internal/inbox"
	"github.com/hazyhaar/feedsweep/sweeper/internal/journal"
	"github.com/hazyhaar/feedsweep/sweeper/internal/notify"
	"github.com/hazyhaar/feedsweep/sweeper/internal/rodfeed"
	"github.com/hazyhaar/feedsweep/sweeper/internal/session"
	"github.com/hazyhaar/feedsweep/sweeper/message"
)

// Launch runs the engine against a live Chrome tab until ctx is done. It
// opens the store, the command journal, the browser, the command inbox
// and, when configured, the HTTP control surface.
func Launch(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(ctx); err != nil {
		return err
	}

	st, err := OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	jrn, err := journal.Open(cfg.Control.Inbox, logger)
	if err != nil {
		return err
	}
	defer jrn.Close()
	if n, err := jrn.Cleanup(ctx, cfg.Control.JournalRetention); err != nil {
		logger.Warn("sweeper: journal cleanup", "error", err)
	} else if n > 0 {
		logger.Info("sweeper: journal cleanup", "deleted", n)
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		UserDataDir:      cfg.Browser.UserDataDir,
		Mode:             browser.ParseMode(cfg.Browser.Stealth),
		XvfbDisplay:      cfg.Browser.XvfbDisplay,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Logger:           logger,
	})
	defer mgr.Close()
	if _, err := mgr.Start(ctx); err != nil {
		return err
	}
	tab, err := mgr.OpenPage(ctx, cfg.Page.URL)
	if err != nil {
		return err
	}
	page := rodfeed.New(tab, rodfeed.Config{Selectors: cfg.Selectors, Logger: logger})
	defer page.Close()

	hub := notify.NewHub(logger)
	sinks := []Sink{hub}
	if cfg.Control.Stdout {
		sinks = append(sinks, NewStdoutSink(nil))
	}
	if cfg.Control.Webhook != "" {
		sinks = append(sinks, NewWebhookSink(cfg.Control.Webhook, cfg.Control.WebhookSecret, logger))
	}

	eng, err := New(Options{
		Page:                page,
		Store:               st,
		Sinks:               sinks,
		Session:             cfg.Session.Defaults(),
		NetworkBanner:       cfg.Page.NetworkErrorText,
		MaxActionsPerMinute: cfg.Pacing.MaxActionsPerMinute,
		NewPostsInterval:    cfg.Pacing.NewPostsInterval,
		Journal:             jrn,
		Logger:              logger,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	in, err := inbox.Open(cfg.Control.Inbox, logger)
	if err != nil {
		return err
	}
	defer in.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Go(func() {
		in.Run(ctx, func(ctx context.Context, c message.Command) error {
			_, err := eng.Dispatch(kit.WithTransport(ctx, "inbox"), c)
			return err
		}, cfg.Control.InboxInterval)
	})
	if cfg.Control.Listen != "" {
		h := control.NewHandler(eng, control.Config{
			Notifications: hub,
			Journal:       jrn,
			RateLimit:     cfg.Control.RateLimit,
			Version:       Version,
			Logger:        logger,
		})
		wg.Go(func() {
			if err := control.Serve(ctx, cfg.Control.Listen, h, logger); err != nil {
				logger.Error("sweeper: control server", "error", err)
				cancel()
			}
		})
	}

	err = eng.Run(ctx)
	cancel()
	wg.Wait()
	return err
}

// Verdict is the classification of one item in a replay.
type Verdict struct {
	Key      string `json:"key"`
	Header   string `json:"header,omitempty"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// Report is the outcome of a replay.
type Report struct {
	Items        []Verdict      `json:"items"`
	Status       Status         `json:"status"`
	Interactions map[string]int `json:"interactions"`
	// Reloads counts reloads the engine asked for; a replay never reloads.
	Reloads int `json:"reloads"`
}

// Replay runs the engine against a saved feed document without a browser:
// it classifies every item, runs the filter phase and then cycles rounds
// of the main loop. Nothing leaves the process.
func Replay(ctx context.Context, r io.Reader, cfg *Config, cycles int, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	page, err := htmlfeed.Load(r, cfg.Selectors)
	if err != nil {
		return nil, err
	}
	sc := cfg.Session.Defaults()

	rep := &Report{Interactions: make(map[string]int)}
	items, err := page.Items(ctx)
	if err != nil {
		return nil, err
	}
	rules := sc.Rules()
	for _, it := range items {
		c, err := it.Content(ctx)
		if err != nil {
			return nil, fmt.Errorf("sweeper: replay: %w", err)
		}
		v := classify.Classify(c, rules)
		rep.Items = append(rep.Items, Verdict{
			Key:      it.Key(),
			Header:   c.Header,
			Category: string(v.Category),
			Action:   v.Action.String(),
		})
	}

	eng, err := New(Options{
		Page:             page,
		Session:          sc,
		NetworkBanner:    cfg.Page.NetworkErrorText,
		NewPostsInterval: -1,
		Sleep:            func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
		After:            func(time.Duration, func()) { rep.Reloads++ },
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	if err := eng.Init(ctx); err != nil {
		return nil, err
	}
	for range cycles {
		if ctx.Err() != nil {
			break
		}
		eng.Cycle(ctx)
	}

	rep.Status = eng.Status()
	for _, in := range page.Interactions() {
		rep.Interactions[in.Kind]++
	}
	return rep, nil
}

// EnqueueCommand validates a JSON command and queues it for a running
// engine. It returns the queue id.
func EnqueueCommand(ctx context.Context, inboxPath string, data []byte, logger *slog.Logger) (string, error) {
	c, err := message.Decode(data)
	if err != nil {
		return "", err
	}
	in, err := inbox.Open(inboxPath, logger)
	if err != nil {
		return "", err
	}
	defer in.Close()
	return in.Enqueue(ctx, c)
}

// ReadState reads the persisted session from the configured store.
func ReadState(ctx context.Context, cfg *Config, logger *slog.Logger) (Persisted, error) {
	st, err := OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return Persisted{}, err
	}
	defer st.Close()
	return session.Load(ctx, st, cfg.Session.Defaults())
}

// JournalEntry is one recorded command.
type JournalEntry = journal.Entry

// ReadJournal returns the newest recorded commands, newest first.
func ReadJournal(ctx context.Context, path string, limit int, logger *slog.Logger) ([]JournalEntry, error) {
	j, err := journal.Open(path, logger)
	if err != nil {
		return nil, err
	}
	defer j.Close()
	return j.Recent(ctx, journal.Filter{Limit: limit})
}
