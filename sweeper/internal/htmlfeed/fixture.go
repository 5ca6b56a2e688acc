package htmlfeed

import (
	_ "embed"

	"github.com/hazyhaar/feedsweep/sweeper/internal/locate"
)

//go:embed testdata/feed.html
var sampleFeed string

// Sample returns a fresh page over the bundled six-post sample feed: an
// ordinary repost (#golang), a suggested post, a promoted post, an Arabic
// post, a post whose menu only has a generic "Unfollow <name>" entry, and a
// locked post with no controls at all.
func Sample() *Page {
	p, err := New(sampleFeed, locate.Default())
	if err != nil {
		panic(err)
	}
	return p
}

// SampleHTML returns the bundled sample feed markup.
func SampleHTML() string { return sampleFeed }
