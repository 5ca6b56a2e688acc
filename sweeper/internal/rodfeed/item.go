package rodfeed

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/feedsweep/sweeper/feed"
)

const attrPrefix = "data-fs-"

type item struct {
	p   *Page
	el  *rod.Element
	key string
}

func (i *item) Key() string { return i.key }

func (i *item) Attached(ctx context.Context) bool {
	res, err := i.el.Context(ctx).Eval(`() => this.isConnected`)
	return err == nil && res.Value.Bool()
}

const contentJS = `(header, lock) => {
	const h = this.querySelector(header);
	return {
		text: (this.innerText || '').replace(/\s+/g, ' ').trim(),
		header: h ? (h.innerText || '').replace(/\s+/g, ' ').trim() : '',
		locked: this.querySelector(lock) !== null,
	};
}`

func (i *item) Content(ctx context.Context) (feed.Content, error) {
	res, err := i.el.Context(ctx).Eval(contentJS, i.p.sel.Header, i.p.sel.Lock)
	if err != nil {
		return feed.Content{}, fmt.Errorf("rodfeed: content: %w", err)
	}
	v := res.Value
	return feed.Content{
		Text:   v.Get("text").Str(),
		Header: v.Get("header").Str(),
		Locked: v.Get("locked").Bool(),
	}, nil
}

func (i *item) Flagged(ctx context.Context, f feed.Flag) bool {
	res, err := i.el.Context(ctx).Eval(`(a) => this.hasAttribute(a)`, attrPrefix+string(f))
	return err == nil && res.Value.Bool()
}

// Claim is one script call, so it cannot interleave with another Claim.
func (i *item) Claim(ctx context.Context, f feed.Flag) (bool, error) {
	res, err := i.el.Context(ctx).Eval(`(a) => {
		if (this.hasAttribute(a)) return false;
		this.setAttribute(a, '1');
		return true;
	}`, attrPrefix+string(f))
	if err != nil {
		return false, fmt.Errorf("rodfeed: claim %s: %w", f, err)
	}
	return res.Value.Bool(), nil
}

func (i *item) Clear(ctx context.Context, f feed.Flag) error {
	if _, err := i.el.Context(ctx).Eval(`(a) => this.removeAttribute(a)`, attrPrefix+string(f)); err != nil {
		return fmt.Errorf("rodfeed: clear %s: %w", f, err)
	}
	return nil
}
