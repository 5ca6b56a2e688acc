package rodfeed

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/feedsweep/sweeper/feed"
)

type control struct {
	role  feed.Role
	label string
	el    *rod.Element
}

func newControl(role feed.Role, el *rod.Element) *control {
	c := &control{role: role, el: el}
	if res, err := el.Eval(`() => (this.getAttribute('aria-label') || this.innerText || '').replace(/\s+/g, ' ').trim()`); err == nil {
		c.label = res.Value.Str()
	}
	return c
}

func (c *control) Role() feed.Role { return c.role }
func (c *control) Label() string   { return c.label }

// Bounds scrolls the control into view first so the box is clickable.
func (c *control) Bounds(ctx context.Context) (feed.Rect, error) {
	el := c.el.Context(ctx)
	if err := el.ScrollIntoView(); err != nil {
		return feed.Rect{}, fmt.Errorf("rodfeed: scroll into view: %w", err)
	}
	shape, err := el.Shape()
	if err != nil {
		return feed.Rect{}, fmt.Errorf("rodfeed: shape: %w", err)
	}
	box := shape.Box()
	if box == nil {
		return feed.Rect{}, feed.ErrNotFound
	}
	return feed.Rect{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height}, nil
}
