package sweeper

import (
	"context"
	"io"
	"log/slog"

	"github.com/hazyhaar/feedsweep/sweeper/internal/notify"
	"github.com/hazyhaar/feedsweep/sweeper/internal/store"
	"github.com/hazyhaar/feedsweep/sweeper/message"
)

// Sink is an outbound notification backend.
type Sink = notify.Sink

// Hub streams notifications to websocket clients.
type Hub = notify.Hub

// Store is the persistent key-value bag behind the session.
type Store = store.Store

// NewStdoutSink writes notifications as JSON lines to w (nil = os.Stdout).
func NewStdoutSink(w io.Writer) Sink {
	return notify.NewStdout(w)
}

// NewWebhookSink POSTs notifications to url, retrying with backoff. A
// non-empty secret signs every body.
func NewWebhookSink(url, secret string, logger *slog.Logger) Sink {
	var opts []notify.WebhookOption
	if secret != "" {
		opts = append(opts, notify.WithWebhookSecret([]byte(secret)))
	}
	if logger != nil {
		opts = append(opts, notify.WithWebhookLogger(logger))
	}
	return notify.NewWebhook(url, opts...)
}

// NewCallbackSink delivers notifications to fn in-process.
func NewCallbackSink(fn func(ctx context.Context, n message.Notification) error) Sink {
	return notify.NewCallback(fn)
}

// NewHub creates an empty websocket hub.
func NewHub(logger *slog.Logger) *Hub {
	return notify.NewHub(logger)
}

// NewMemoryStore returns a process-local Store.
func NewMemoryStore() Store {
	return store.NewMemory()
}

// OpenStore opens the configured Store.
func OpenStore(ctx context.Context, cfg StoreConfig, logger *slog.Logger) (Store, error) {
	return store.Open(ctx, store.Config{
		Driver:      store.Driver(cfg.Driver),
		Path:        cfg.Path,
		RedisAddr:   cfg.RedisAddr,
		RedisDB:     cfg.RedisDB,
		RedisPrefix: cfg.RedisPrefix,
		TraceSQL:    cfg.TraceSQL,
		Logger:      logger,
	})
}
