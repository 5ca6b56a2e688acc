package rodfeed

import (
	"sync"
	"time"
)

// debouncer runs fn once per burst of triggers, window after the last one.
type debouncer struct {
	window time.Duration
	fn     func()

	mu    sync.Mutex
	timer *time.Timer
}

func newDebouncer(window time.Duration, fn func()) *debouncer {
	if window <= 0 {
		window = 250 * time.Millisecond
	}
	return &debouncer{window: window, fn: fn}
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
