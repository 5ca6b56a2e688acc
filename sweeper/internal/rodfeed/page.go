// Package rodfeed implements feed.Page over a live Chrome tab driven by rod.
// The per-item ledger lives in data-fs-* attributes on the item elements, so
// a compare-and-set runs as one JavaScript call and an element replaced by
// the site takes its flags with it.
package rodfeed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/feedsweep/sweeper/feed"
	"github.com/hazyhaar/feedsweep/sweeper/internal/locate"
)

//go:embed watch.js
var watchJS string

const bindingName = "__feedsweep_mutation"

// Config configures a Page.
type Config struct {
	Selectors locate.Selectors
	// Debounce is the quiet period before watchers run. Default 250ms.
	Debounce time.Duration
	// LoadTimeout bounds a reload. Default 30s.
	LoadTimeout time.Duration
	Logger      *slog.Logger
}

// Page is a feed.Page over one rod tab.
type Page struct {
	page   *rod.Page
	sel    locate.Selectors
	cfg    Config
	logger *slog.Logger

	wmu       sync.Mutex
	watchers  []func()
	installed bool
	deb       *debouncer
}

// New wraps page.
func New(page *rod.Page, cfg Config) *Page {
	cfg.Selectors.ApplyDefaults()
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	p := &Page{page: page, sel: cfg.Selectors, cfg: cfg, logger: cfg.Logger}
	p.deb = newDebouncer(cfg.Debounce, p.fire)
	return p
}

// Close stops the watchers and closes the tab.
func (p *Page) Close() error {
	p.deb.stop()
	return p.page.Close()
}

func (p *Page) with(ctx context.Context) *rod.Page { return p.page.Context(ctx) }

const keyJS = `(attr) => {
	let k = this.getAttribute(attr);
	if (!k) {
		window.__feedsweepSeq = (window.__feedsweepSeq || 0) + 1;
		k = 'item-' + window.__feedsweepSeq;
		this.setAttribute(attr, k);
	}
	return k;
}`

func (p *Page) Items(ctx context.Context) ([]feed.Item, error) {
	els, err := p.with(ctx).Elements(p.sel.Item)
	if err != nil {
		return nil, fmt.Errorf("rodfeed: items: %w", err)
	}
	out := make([]feed.Item, 0, len(els))
	for _, el := range els {
		res, err := el.Eval(keyJS, attrPrefix+"key")
		if err != nil {
			continue // detached between query and eval
		}
		out = append(out, &item{p: p, el: el, key: res.Value.Str()})
	}
	return out, nil
}

// container resolves the element holding the item's controls.
func (p *Page) container(ctx context.Context, it *item) (*rod.Element, error) {
	obj, err := it.el.Context(ctx).Evaluate(rod.Eval(`(c) => this.closest(c) || this`, p.sel.Container).ByObject())
	if err != nil {
		return nil, err
	}
	return p.with(ctx).ElementFromObject(obj)
}

func (p *Page) Control(ctx context.Context, it feed.Item, role feed.Role) (feed.Control, error) {
	i, ok := it.(*item)
	if !ok || i.p != p {
		return nil, fmt.Errorf("rodfeed: foreign item %T", it)
	}
	selector, ok := p.sel.ItemControl(role)
	if !ok {
		return nil, feed.ErrNotFound
	}
	owner, err := p.container(ctx, i)
	if err != nil {
		return nil, feed.ErrNotFound
	}
	els, err := owner.Elements(selector)
	if err != nil || len(els) == 0 {
		return nil, feed.ErrNotFound
	}
	return newControl(role, els[0]), nil
}

func (p *Page) PageControl(ctx context.Context, role feed.Role) (feed.Control, error) {
	selector, ok := p.sel.PageControl(role)
	if !ok {
		return nil, feed.ErrNotFound
	}
	els, err := p.with(ctx).Elements(selector)
	if err != nil || len(els) == 0 {
		return nil, feed.ErrNotFound
	}
	return newControl(role, els[0]), nil
}

// MenuEntries lists the visible dropdown entries in document order.
func (p *Page) MenuEntries(ctx context.Context) ([]feed.Control, error) {
	els, err := p.with(ctx).ElementsByJS(rod.Eval(`(sel) =>
		Array.from(document.querySelectorAll(sel)).filter((el) => el.offsetParent !== null)`,
		p.sel.UnfollowEntry+", "+p.sel.MenuEntry))
	if err != nil {
		return nil, fmt.Errorf("rodfeed: menu entries: %w", err)
	}
	out := make([]feed.Control, 0, len(els))
	for _, el := range els {
		role := feed.RoleMenuEntry
		if ok, err := el.Matches(p.sel.UnfollowEntry); err == nil && ok {
			role = feed.RoleUnfollow
		}
		out = append(out, newControl(role, el))
	}
	return out, nil
}

func (p *Page) Text(ctx context.Context) (string, error) {
	res, err := p.with(ctx).Eval(`() => document.body ? document.body.innerText : ''`)
	if err != nil {
		return "", fmt.Errorf("rodfeed: text: %w", err)
	}
	return res.Value.Str(), nil
}

// Click moves the mouse to at and clicks there, like a person would.
func (p *Page) Click(ctx context.Context, c feed.Control, at feed.Point) error {
	if _, ok := c.(*control); !ok {
		return fmt.Errorf("rodfeed: click: foreign control %T", c)
	}
	pg := p.with(ctx)
	if err := pg.Mouse.MoveTo(proto.Point{X: at.X, Y: at.Y}); err != nil {
		return fmt.Errorf("rodfeed: move: %w", err)
	}
	if err := pg.Mouse.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("rodfeed: click: %w", err)
	}
	return nil
}

func (p *Page) Suppress(ctx context.Context, it feed.Item) error {
	i, ok := it.(*item)
	if !ok {
		return fmt.Errorf("rodfeed: foreign item %T", it)
	}
	_, err := i.el.Context(ctx).Eval(`(c) => { (this.closest(c) || this).style.display = 'none'; }`, p.sel.Container)
	if err != nil {
		return fmt.Errorf("rodfeed: suppress: %w", err)
	}
	return nil
}

func (p *Page) Scroll(ctx context.Context, fraction float64) error {
	_, err := p.with(ctx).Eval(`(f) => window.scrollBy({ top: window.innerHeight * f, behavior: 'smooth' })`, fraction)
	if err != nil {
		return fmt.Errorf("rodfeed: scroll: %w", err)
	}
	return nil
}

// Reload reloads the tab and waits for the load event. The mutation
// observer is reinstalled by the new-document script; watchers run once the
// new feed has rendered.
func (p *Page) Reload(ctx context.Context) error {
	lctx, cancel := context.WithTimeout(ctx, p.cfg.LoadTimeout)
	defer cancel()
	pg := p.with(lctx)
	if err := pg.Reload(); err != nil {
		return fmt.Errorf("rodfeed: reload: %w", err)
	}
	if err := pg.WaitLoad(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("rodfeed: reload: %w", err)
	}
	p.deb.trigger()
	return nil
}

// Watch subscribes fn to feed insertions. The first call installs the
// binding and the observer script.
func (p *Page) Watch(ctx context.Context, fn func()) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	p.watchers = append(p.watchers, fn)
	if p.installed {
		return nil
	}

	pg := p.with(ctx)
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(pg); err != nil {
		return fmt.Errorf("rodfeed: add binding: %w", err)
	}
	go pg.EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name == bindingName {
			p.deb.trigger()
		}
	})()

	if _, err := (proto.PageAddScriptToEvaluateOnNewDocument{Source: watchJS}).Call(pg); err != nil {
		return fmt.Errorf("rodfeed: install observer: %w", err)
	}
	if _, err := (proto.RuntimeEvaluate{Expression: watchJS}).Call(pg); err != nil {
		return fmt.Errorf("rodfeed: inject observer: %w", err)
	}
	p.installed = true
	p.logger.Debug("rodfeed: mutation observer installed")
	return nil
}

func (p *Page) fire() {
	p.wmu.Lock()
	fns := append([]func(){}, p.watchers...)
	p.wmu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
