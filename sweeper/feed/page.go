// Package feed defines the capability the engine needs from a rendered feed:
// locating items and their controls, reading item content, tracking a
// per-item processing ledger, and performing interactions. The engine never
// sees selectors or the browser; implementations live in rodfeed (live
// Chrome page) and htmlfeed (static parsed document).
package feed

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a control or affordance is absent. It is a
// locator-miss, never a failure: callers always have a fallback path.
var ErrNotFound = errors.New("feed: not found")

// Flag is one entry of an item's processing ledger.
type Flag string

const (
	FlagFiltered Flag = "filtered" // filter phase applied
	FlagAuto     Flag = "auto"     // auto-clean phase applied
	FlagUnfollow Flag = "unfollow" // unfollow attempted (success or not)
	FlagHidden   Flag = "hidden"   // suppression performed
)

// Role is the semantic role of a control the engine asks a Page for.
type Role string

const (
	RoleHideControl Role = "hide_control" // per-item dismiss control
	RoleMenuTrigger Role = "menu_trigger" // per-item action menu button
	RoleUnfollow    Role = "unfollow"     // dedicated unfollow menu entry
	RoleMenuEntry   Role = "menu_entry"   // generic dropdown entry
	RoleNewPosts    Role = "new_posts"    // page-level "see new posts" banner
)

// Content is what the classifier reads from an item.
type Content struct {
	Text   string // visible text
	Header string // header line ("Suggested", "X reposted this", ...)
	Locked bool   // carries a lock icon
}

// Rect is an element's bounding box in viewport pixels.
type Rect struct {
	X, Y, Width, Height float64
}

// Point is a viewport coordinate.
type Point struct {
	X, Y float64
}

// Item is a transient handle to one feed entry. The ledger lives on the
// entry itself, so a detached entry takes its flags with it.
type Item interface {
	// Key is a stable identity for logs; it does not survive a reload.
	Key() string
	Attached(ctx context.Context) bool
	Content(ctx context.Context) (Content, error)
	Flagged(ctx context.Context, f Flag) bool
	// Claim sets f if it was unset and reports whether this call set it.
	// It is the only false→true transition of a flag.
	Claim(ctx context.Context, f Flag) (bool, error)
	Clear(ctx context.Context, f Flag) error
}

// Control is a clickable element located by role.
type Control interface {
	Role() Role
	Label() string
	Bounds(ctx context.Context) (Rect, error)
}

// Page is the locator + interaction capability over one document.
type Page interface {
	// Items returns the attached feed items in document order.
	Items(ctx context.Context) ([]Item, error)
	// Control locates a control of the given role inside it. ErrNotFound on miss.
	Control(ctx context.Context, it Item, role Role) (Control, error)
	// PageControl locates a page-level control. ErrNotFound on miss.
	PageControl(ctx context.Context, role Role) (Control, error)
	// MenuEntries lists the entries of the currently open action menu.
	MenuEntries(ctx context.Context) ([]Control, error)
	// Text returns the full visible text of the document.
	Text(ctx context.Context) (string, error)

	Click(ctx context.Context, c Control, at Point) error
	// Suppress hides it visually without touching any relationship.
	Suppress(ctx context.Context, it Item) error
	// Scroll scrolls by fraction of the viewport height.
	Scroll(ctx context.Context, fraction float64) error
	Reload(ctx context.Context) error

	// Watch subscribes fn to structural changes of the feed. fn runs on the
	// page's own goroutine, concurrently with the caller.
	Watch(ctx context.Context, fn func()) error
}
