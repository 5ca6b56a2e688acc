package htmlfeed

import (
	"context"

	"golang.org/x/net/html"

	"github.com/hazyhaar/feedsweep/sweeper/feed"
)

// staticBounds is the box reported for every control: a parsed document has
// no layout.
var staticBounds = feed.Rect{X: 0, Y: 0, Width: 120, Height: 32}

type control struct {
	role  feed.Role
	label string
	n     *html.Node
	owner *html.Node // item container, nil for page-level controls
	item  string
}

func (c *control) Role() feed.Role { return c.role }
func (c *control) Label() string   { return c.label }

func (c *control) Bounds(_ context.Context) (feed.Rect, error) {
	return staticBounds, nil
}
