// Package notify delivers engine notifications to control surfaces.
package notify

import (
	"context"

	"github.com/hazyhaar/feedsweep/sweeper/message"
)

// Sink is an outbound notification backend (stdout, webhook, websocket hub,
// in-process callback).
type Sink interface {
	Notify(ctx context.Context, n message.Notification) error
	Close() error
}
