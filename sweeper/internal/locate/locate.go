// Package locate holds the page-specific CSS selectors behind each feed role.
package locate

import "github.com/hazyhaar/feedsweep/sweeper/feed"

// Selectors maps feed roles to CSS selectors. Empty fields take the
// defaults for the LinkedIn feed.
type Selectors struct {
	Item          string `yaml:"item" json:"item"`
	Container     string `yaml:"container" json:"container"`
	Header        string `yaml:"header" json:"header"`
	Lock          string `yaml:"lock" json:"lock"`
	HideControl   string `yaml:"hide_control" json:"hide_control"`
	MenuTrigger   string `yaml:"menu_trigger" json:"menu_trigger"`
	UnfollowEntry string `yaml:"unfollow_entry" json:"unfollow_entry"`
	MenuEntry     string `yaml:"menu_entry" json:"menu_entry"`
	NewPosts      string `yaml:"new_posts" json:"new_posts"`
}

// Default returns the LinkedIn feed selectors.
func Default() Selectors {
	return Selectors{
		Item:          ".feed-shared-update-v2",
		Container:     ".ember-view",
		Header:        ".update-components-header__text-view",
		Lock:          `svg[data-test-icon="lock-small"], svg[data-test-icon="lock-medium"]`,
		HideControl:   ".feed-shared-control-menu__hide-post-button",
		MenuTrigger:   ".feed-shared-update-v2__control-menu button.feed-shared-control-menu__trigger",
		UnfollowEntry: `li.feed-shared-control-menu__item.option-unfollow-member [role="button"], li.feed-shared-control-menu__item.option-unfollow-member .tap-target`,
		MenuEntry:     ".feed-shared-control-menu__dropdown-item, .artdeco-dropdown__item",
		NewPosts:      "div.text-align-center button.artdeco-button--secondary",
	}
}

// ApplyDefaults fills empty fields from Default.
func (s *Selectors) ApplyDefaults() {
	d := Default()
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&s.Item, d.Item)
	fill(&s.Container, d.Container)
	fill(&s.Header, d.Header)
	fill(&s.Lock, d.Lock)
	fill(&s.HideControl, d.HideControl)
	fill(&s.MenuTrigger, d.MenuTrigger)
	fill(&s.UnfollowEntry, d.UnfollowEntry)
	fill(&s.MenuEntry, d.MenuEntry)
	fill(&s.NewPosts, d.NewPosts)
}

// ItemControl returns the selector for an item-scoped role.
func (s Selectors) ItemControl(r feed.Role) (string, bool) {
	switch r {
	case feed.RoleHideControl:
		return s.HideControl, true
	case feed.RoleMenuTrigger:
		return s.MenuTrigger, true
	}
	return "", false
}

// PageControl returns the selector for a page-level role.
func (s Selectors) PageControl(r feed.Role) (string, bool) {
	if r == feed.RoleNewPosts {
		return s.NewPosts, true
	}
	return "", false
}
