package notify

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/feedsweep/sweeper/message"
)

// Stdout writes notifications as JSON lines (default os.Stdout).
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) Notify(_ context.Context, n message.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(n)
}

func (s *Stdout) Close() error { return nil }
