package htmlfeed

import (
	"context"

	"golang.org/x/net/html"

	"github.com/hazyhaar/feedsweep/sweeper/feed"
)

// item keeps its ledger as data-fs-* attributes on the item element.
type item struct {
	p   *Page
	n   *html.Node
	key string
}

func (i *item) Key() string { return i.key }

func (i *item) Attached(_ context.Context) bool {
	i.p.mu.Lock()
	defer i.p.mu.Unlock()
	return i.p.attachedLocked(i.n)
}

func (i *item) Content(_ context.Context) (feed.Content, error) {
	i.p.mu.Lock()
	defer i.p.mu.Unlock()
	if !i.p.attachedLocked(i.n) {
		return feed.Content{}, errDetached
	}
	s := i.p.doc.FindNodes(i.n)
	return feed.Content{
		Text:   collapse(s.Text()),
		Header: collapse(s.Find(i.p.sel.Header).First().Text()),
		Locked: s.Find(i.p.sel.Lock).Length() > 0,
	}, nil
}

func (i *item) Flagged(_ context.Context, f feed.Flag) bool {
	i.p.mu.Lock()
	defer i.p.mu.Unlock()
	_, ok := attr(i.n, attrPrefix+string(f))
	return ok
}

func (i *item) Claim(_ context.Context, f feed.Flag) (bool, error) {
	i.p.mu.Lock()
	defer i.p.mu.Unlock()
	if _, ok := attr(i.n, attrPrefix+string(f)); ok {
		return false, nil
	}
	setAttr(i.n, attrPrefix+string(f), "1")
	return true, nil
}

func (i *item) Clear(_ context.Context, f feed.Flag) error {
	i.p.mu.Lock()
	defer i.p.mu.Unlock()
	removeAttr(i.n, attrPrefix+string(f))
	return nil
}
