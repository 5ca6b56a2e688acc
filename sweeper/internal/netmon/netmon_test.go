package netmon

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hazyhaar/feedsweep/sweeper/feed"
	"github.com/hazyhaar/feedsweep/sweeper/internal/counters"
	"github.com/hazyhaar/feedsweep/sweeper/internal/htmlfeed"
	"github.com/hazyhaar/feedsweep/sweeper/internal/notify"
	"github.com/hazyhaar/feedsweep/sweeper/internal/session"
	"github.com/hazyhaar/feedsweep/sweeper/internal/store"
	"github.com/hazyhaar/feedsweep/sweeper/message"
)

const banner = `<div class="artdeco-toast">` + DefaultBanner + `</div>`

func TestCheckIsEdgeTriggered(t *testing.T) {
	ctx := context.Background()
	page := htmlfeed.Sample()
	st := store.NewMemory()
	sync := counters.New(counters.Config{Store: st})

	var warnings int
	sink := notify.NewCallback(func(_ context.Context, n message.Notification) error {
		if n.Type == message.TypeNetworkWarning {
			warnings++
		}
		return nil
	})
	m := New(page, sync, sink, Config{})

	m.Check(ctx)
	assert.Equal(t, 0, warnings)
	assert.False(t, sync.Warning())

	assert.NoError(t, page.Append(banner))
	m.Check(ctx)
	m.Check(ctx)
	m.Check(ctx)
	assert.Equal(t, 1, warnings)
	assert.True(t, sync.Warning())

	v, _, _ := st.Get(ctx, session.KeyNetworkWarning)
	assert.Equal(t, "true", v)

	page.Remove(".artdeco-toast")
	m.Check(ctx)
	assert.Equal(t, 1, warnings)
	assert.False(t, sync.Warning())
	v, _, _ = st.Get(ctx, session.KeyNetworkWarning)
	assert.Equal(t, "false", v)

	assert.NoError(t, page.Append(banner))
	m.Check(ctx)
	assert.Equal(t, 2, warnings)
}

type unreadable struct{ feed.Page }

func (unreadable) Text(context.Context) (string, error) { return "", errors.New("navigating") }

func TestReadErrorIsNoChange(t *testing.T) {
	ctx := context.Background()
	sync := counters.New(counters.Config{Store: store.NewMemory()})
	sync.Restore(session.Counters{}, true)

	New(unreadable{}, sync, nil, Config{}).Check(ctx)
	assert.True(t, sync.Warning())
}

func TestCustomBanner(t *testing.T) {
	ctx := context.Background()
	page := htmlfeed.Sample()
	sync := counters.New(counters.Config{Store: store.NewMemory()})
	m := New(page, sync, nil, Config{Banner: "Hiking photos"})

	m.Check(ctx)
	assert.False(t, sync.Warning())

	m = New(page, sync, nil, Config{Banner: "Weekend hiking photos"})
	m.Check(ctx)
	assert.True(t, sync.Warning())
}
