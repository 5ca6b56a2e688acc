// Package htmlfeed implements feed.Page over a static HTML document parsed
// with goquery. It backs the replay command and the engine tests: clicks
// mutate the document the way the live site would (hide removes the post,
// the menu trigger opens the item's menu) and every interaction is logged.
package htmlfeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/feedsweep/netsafe"
	"github.com/hazyhaar/feedsweep/sweeper/feed"
	"github.com/hazyhaar/feedsweep/sweeper/internal/locate"
)

const attrPrefix = "data-fs-"

// Interaction kinds.
const (
	KindClick    = "click"
	KindSuppress = "suppress"
	KindScroll   = "scroll"
	KindReload   = "reload"
)

// Interaction is one logged page operation.
type Interaction struct {
	Kind     string
	Role     feed.Role
	Label    string
	Item     string
	At       feed.Point
	Fraction float64
}

var errDetached = errors.New("htmlfeed: item detached")

// Page is a static document. All DOM access is serialized by one mutex;
// watchers run on the caller's goroutine after the mutex is released.
type Page struct {
	sel    locate.Selectors
	source string

	mu       sync.Mutex
	doc      *goquery.Document
	nextKey  int
	openMenu *html.Node
	failing  map[feed.Role]error
	log      []Interaction

	wmu      sync.Mutex
	watchers []func()
}

// New parses source. Empty selector fields take the defaults.
func New(source string, sel locate.Selectors) (*Page, error) {
	sel.ApplyDefaults()
	p := &Page{sel: sel, source: source, failing: make(map[feed.Role]error)}
	doc, err := parse(source)
	if err != nil {
		return nil, err
	}
	p.doc = doc
	return p, nil
}

// MaxDocument bounds what Load reads.
const MaxDocument int64 = 32 << 20

// Load reads a whole document from r, at most MaxDocument bytes.
func Load(r io.Reader, sel locate.Selectors) (*Page, error) {
	data, err := netsafe.LimitedReadAll(r, MaxDocument)
	if err != nil {
		return nil, fmt.Errorf("htmlfeed: read: %w", err)
	}
	return New(string(data), sel)
}

func parse(source string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("htmlfeed: parse: %w", err)
	}
	return doc, nil
}

func (p *Page) Items(_ context.Context) ([]feed.Item, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []feed.Item
	p.doc.Find(p.sel.Item).Each(func(_ int, s *goquery.Selection) {
		n := s.Nodes[0]
		key, ok := attr(n, attrPrefix+"key")
		if !ok {
			p.nextKey++
			key = "item-" + strconv.Itoa(p.nextKey)
			setAttr(n, attrPrefix+"key", key)
		}
		out = append(out, &item{p: p, n: n, key: key})
	})
	return out, nil
}

func (p *Page) Control(_ context.Context, it feed.Item, role feed.Role) (feed.Control, error) {
	i, err := p.own(it)
	if err != nil {
		return nil, err
	}
	selector, ok := p.sel.ItemControl(role)
	if !ok {
		return nil, feed.ErrNotFound
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.attachedLocked(i.n) {
		return nil, feed.ErrNotFound
	}
	owner := p.containerLocked(i.n)
	found := p.doc.FindNodes(owner).Find(selector).First()
	if found.Length() == 0 {
		return nil, feed.ErrNotFound
	}
	return &control{role: role, label: label(found), n: found.Nodes[0], owner: owner, item: i.key}, nil
}

func (p *Page) PageControl(_ context.Context, role feed.Role) (feed.Control, error) {
	selector, ok := p.sel.PageControl(role)
	if !ok {
		return nil, feed.ErrNotFound
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	found := p.doc.Find(selector).First()
	if found.Length() == 0 {
		return nil, feed.ErrNotFound
	}
	return &control{role: role, label: label(found), n: found.Nodes[0]}, nil
}

func (p *Page) MenuEntries(_ context.Context) ([]feed.Control, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.openMenu == nil || !p.attachedLocked(p.openMenu) {
		return nil, nil
	}

	menu := p.doc.FindNodes(p.openMenu)
	unfollow := make(map[*html.Node]bool)
	for _, n := range menu.Find(p.sel.UnfollowEntry).Nodes {
		unfollow[n] = true
	}

	var out []feed.Control
	menu.Find(p.sel.UnfollowEntry + ", " + p.sel.MenuEntry).Each(func(_ int, s *goquery.Selection) {
		role := feed.RoleMenuEntry
		if unfollow[s.Nodes[0]] {
			role = feed.RoleUnfollow
		}
		out = append(out, &control{role: role, label: label(s), n: s.Nodes[0], owner: p.openMenu})
	})
	return out, nil
}

func (p *Page) Text(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return collapse(p.doc.Text()), nil
}

// Click applies the effect the live site gives the control's role.
func (p *Page) Click(_ context.Context, c feed.Control, at feed.Point) error {
	ctl, ok := c.(*control)
	if !ok {
		return fmt.Errorf("htmlfeed: click: foreign control %T", c)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failing[ctl.role]; err != nil {
		return err
	}
	if !p.attachedLocked(ctl.n) {
		return feed.ErrNotFound
	}

	item := ctl.item
	if item == "" && ctl.owner != nil {
		item, _ = p.keyLocked(ctl.owner)
	}
	p.log = append(p.log, Interaction{Kind: KindClick, Role: ctl.role, Label: ctl.label, Item: item, At: at})

	switch ctl.role {
	case feed.RoleHideControl:
		detach(ctl.owner)
	case feed.RoleMenuTrigger:
		p.openMenu = ctl.owner
	case feed.RoleUnfollow, feed.RoleMenuEntry:
		p.openMenu = nil
	case feed.RoleNewPosts:
		detach(ctl.n)
	}
	return nil
}

func (p *Page) Suppress(_ context.Context, it feed.Item) error {
	i, err := p.own(it)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.attachedLocked(i.n) {
		return errDetached
	}
	setAttr(p.containerLocked(i.n), "style", "display: none;")
	p.log = append(p.log, Interaction{Kind: KindSuppress, Item: i.key})
	return nil
}

func (p *Page) Scroll(_ context.Context, fraction float64) error {
	p.mu.Lock()
	p.log = append(p.log, Interaction{Kind: KindScroll, Fraction: fraction})
	p.mu.Unlock()
	return nil
}

// Reload re-parses the original source: every ledger flag is lost and every
// previously returned item becomes detached.
func (p *Page) Reload(_ context.Context) error {
	doc, err := parse(p.source)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.doc = doc
	p.openMenu = nil
	p.log = append(p.log, Interaction{Kind: KindReload})
	p.mu.Unlock()

	p.notify()
	return nil
}

func (p *Page) Watch(_ context.Context, fn func()) error {
	p.wmu.Lock()
	p.watchers = append(p.watchers, fn)
	p.wmu.Unlock()
	return nil
}

// Append parses fragment and appends its top-level nodes to the feed (the
// parent of the last item's container, or body), then notifies watchers.
func (p *Page) Append(fragment string) error {
	frag, err := parse(fragment)
	if err != nil {
		return err
	}

	p.mu.Lock()
	root := p.feedRootLocked()
	body := frag.Find("body").Nodes
	if len(body) > 0 {
		var kids []*html.Node
		for c := body[0].FirstChild; c != nil; c = c.NextSibling {
			kids = append(kids, c)
		}
		for _, c := range kids {
			body[0].RemoveChild(c)
			root.AppendChild(c)
		}
	}
	p.mu.Unlock()

	p.notify()
	return nil
}

// Remove detaches every node matching selector and notifies watchers when
// anything was removed.
func (p *Page) Remove(selector string) int {
	p.mu.Lock()
	nodes := p.doc.Find(selector).Nodes
	for _, n := range nodes {
		detach(n)
	}
	p.mu.Unlock()

	if len(nodes) > 0 {
		p.notify()
	}
	return len(nodes)
}

// FailClicks makes every click on role return err (nil restores).
func (p *Page) FailClicks(role feed.Role, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failing, role)
		return
	}
	p.failing[role] = err
}

// Interactions returns a copy of the interaction log.
func (p *Page) Interactions() []Interaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Interaction(nil), p.log...)
}

// Count returns how many logged interactions have kind and, when role is
// non-empty, role.
func (p *Page) Count(kind string, role feed.Role) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, in := range p.log {
		if in.Kind == kind && (role == "" || in.Role == role) {
			n++
		}
	}
	return n
}

// HTML renders the current document.
func (p *Page) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Html()
}

func (p *Page) notify() {
	p.wmu.Lock()
	ws := append([]func(){}, p.watchers...)
	p.wmu.Unlock()
	for _, fn := range ws {
		fn()
	}
}

func (p *Page) own(it feed.Item) (*item, error) {
	i, ok := it.(*item)
	if !ok || i.p != p {
		return nil, fmt.Errorf("htmlfeed: foreign item %T", it)
	}
	return i, nil
}

func (p *Page) attachedLocked(n *html.Node) bool {
	root := p.doc.Nodes[0]
	for x := n; x != nil; x = x.Parent {
		if x == root {
			return true
		}
	}
	return false
}

// containerLocked returns the closest container of n, or n itself.
func (p *Page) containerLocked(n *html.Node) *html.Node {
	if p.sel.Container != "" {
		if c := p.doc.FindNodes(n).Closest(p.sel.Container); c.Length() > 0 {
			return c.Nodes[0]
		}
	}
	return n
}

func (p *Page) keyLocked(owner *html.Node) (string, bool) {
	if k, ok := attr(owner, attrPrefix+"key"); ok {
		return k, true
	}
	found := p.doc.FindNodes(owner).Find(p.sel.Item).First()
	if found.Length() == 0 {
		return "", false
	}
	return attr(found.Nodes[0], attrPrefix+"key")
}

func (p *Page) feedRootLocked() *html.Node {
	items := p.doc.Find(p.sel.Item)
	if items.Length() > 0 {
		last := p.containerLocked(items.Nodes[items.Length()-1])
		if last.Parent != nil {
			return last.Parent
		}
	}
	return p.doc.Find("body").Nodes[0]
}

func detach(n *html.Node) {
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

func label(s *goquery.Selection) string {
	if t := collapse(s.Text()); t != "" {
		return t
	}
	v, _ := s.Attr("aria-label")
	return strings.TrimSpace(v)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}
