package scanner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/feedsweep/sweeper/feed"
	"github.com/hazyhaar/feedsweep/sweeper/internal/htmlfeed"
)

type brokenPage struct{ feed.Page }

func (brokenPage) Items(context.Context) ([]feed.Item, error) {
	return nil, errors.New("document gone")
}

func TestSnapshotInDocumentOrder(t *testing.T) {
	s := New(htmlfeed.Sample(), nil)
	its := s.Snapshot(context.Background())
	require.Len(t, its, 6)
	assert.Equal(t, "item-1", its[0].Key())
	assert.Equal(t, "item-6", its[5].Key())
}

func TestSnapshotSwallowsErrors(t *testing.T) {
	s := New(brokenPage{}, nil)
	assert.Empty(t, s.Snapshot(context.Background()))
}

func TestWatchInstallsOnceAndSkipsFiltered(t *testing.T) {
	ctx := context.Background()
	p := htmlfeed.Sample()
	s := New(p, nil)

	for _, it := range s.Snapshot(ctx) {
		_, err := it.Claim(ctx, feed.FlagFiltered)
		require.NoError(t, err)
	}

	var seen []string
	onItem := func(it feed.Item) { seen = append(seen, it.Key()) }
	require.NoError(t, s.Watch(ctx, onItem))
	require.NoError(t, s.Watch(ctx, onItem))

	require.NoError(t, p.Append(`<div class="ember-view"><div class="feed-shared-update-v2">Fresh</div></div>`))
	assert.Equal(t, []string{"item-7"}, seen)
}
