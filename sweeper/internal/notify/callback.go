package notify

import (
	"context"

	"github.com/hazyhaar/feedsweep/sweeper/message"
)

// Func is called for each notification, in-process.
type Func func(ctx context.Context, n message.Notification) error

// Callback delivers notifications as plain function calls, for embedders
// running the engine in the same binary as their panel.
type Callback struct {
	fn Func
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn Func) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Notify(ctx context.Context, n message.Notification) error {
	if c.fn == nil {
		return nil
	}
	return c.fn(ctx, n)
}

func (c *Callback) Close() error { return nil }
