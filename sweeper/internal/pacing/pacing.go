// Package pacing computes human-looking delays and click points. Delays are
// lengthened by random jitter only while human pacing is enabled.
package pacing

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hazyhaar/feedsweep/sweeper/feed"
)

// Named base durations used by the engine.
const (
	MenuSettle  = 600 * time.Millisecond
	Idle        = 600 * time.Millisecond
	AfterAction = 800 * time.Millisecond
	Backoff     = 800 * time.Millisecond
	ReloadDelay = 800 * time.Millisecond
)

const (
	extraMin   = 500 * time.Millisecond
	extraRange = 3000 * time.Millisecond
	jitterPx   = 3.0
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config configures a Policy.
type Config struct {
	// Human reports whether human pacing is currently enabled. Read on every
	// call so configuration changes apply immediately.
	Human func() bool
	// Sleep defaults to a timer-based sleep honouring ctx.
	Sleep SleepFunc
	// Now defaults to time.Now.
	Now func() time.Time
	// Seed fixes the random source (tests). Zero means random.
	Seed uint64
}

// Policy is the timing policy.
type Policy struct {
	human func() bool
	sleep SleepFunc
	now   func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// New creates a Policy.
func New(cfg Config) *Policy {
	if cfg.Human == nil {
		cfg.Human = func() bool { return false }
	}
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Policy{
		human: cfg.Human,
		sleep: cfg.Sleep,
		now:   cfg.Now,
		rnd:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Delay returns base, plus U[500ms, 3500ms) when human pacing is on.
func (p *Policy) Delay(base time.Duration) time.Duration {
	if !p.human() {
		return base
	}
	p.mu.Lock()
	extra := extraMin + time.Duration(p.rnd.Int64N(int64(extraRange)))
	p.mu.Unlock()
	return base + extra
}

// Jitter returns the center of r offset by U[-3, 3] px on each axis. It only
// varies where the click lands, never which element is targeted.
func (p *Policy) Jitter(r feed.Rect) feed.Point {
	p.mu.Lock()
	dx := p.rnd.Float64()*2*jitterPx - jitterPx
	dy := p.rnd.Float64()*2*jitterPx - jitterPx
	p.mu.Unlock()
	return feed.Point{
		X: r.X + r.Width/2 + dx,
		Y: r.Y + r.Height/2 + dy,
	}
}

// Wait sleeps for Delay(base).
func (p *Policy) Wait(ctx context.Context, base time.Duration) error {
	return p.sleep(ctx, p.Delay(base))
}

// WaitExact sleeps for d without pacing.
func (p *Policy) WaitExact(ctx context.Context, d time.Duration) error {
	return p.sleep(ctx, d)
}

// Now returns the policy clock.
func (p *Policy) Now() time.Time { return p.now() }

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
