package counters

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/feedsweep/sweeper/internal/notify"
	"github.com/hazyhaar/feedsweep/sweeper/internal/session"
	"github.com/hazyhaar/feedsweep/sweeper/internal/store"
	"github.com/hazyhaar/feedsweep/sweeper/message"
)

type recorder struct {
	mu  sync.Mutex
	got []message.Notification
}

func (r *recorder) sink() notify.Sink {
	return notify.NewCallback(func(_ context.Context, n message.Notification) error {
		r.mu.Lock()
		r.got = append(r.got, n)
		r.mu.Unlock()
		return nil
	})
}

func (r *recorder) types() []message.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []message.Type
	for _, n := range r.got {
		out = append(out, n.Type)
	}
	return out
}

func TestRecordKeepsTotalInvariant(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	rec := &recorder{}
	s := New(Config{Store: st, Sink: rec.sink()})

	s.RecordSuppression(ctx, "suggested")
	s.RecordSuppression(ctx, "advertisement")
	s.RecordRelationshipRemoval(ctx)

	n := s.Snapshot()
	assert.Equal(t, 2, n.Suppressed)
	assert.Equal(t, 1, n.RelationshipsRemoved)
	assert.Equal(t, n.Suppressed+n.RelationshipsRemoved, n.TotalActions)
	assert.Equal(t, map[string]int{"suggested": 1, "advertisement": 1}, s.Tally())

	v, ok, err := st.Get(ctx, session.KeyTotalActionCount)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3", v)

	assert.Equal(t, []message.Type{
		message.TypeCountersUpdate, message.TypeLegacyCount,
		message.TypeCountersUpdate, message.TypeLegacyCount,
		message.TypeCountersUpdate, message.TypeLegacyCount,
	}, rec.types())

	last := rec.got[len(rec.got)-2]
	require.NotNil(t, last.Counts)
	assert.Equal(t, 3, last.Counts.TotalActionCount)
	require.NotNil(t, rec.got[len(rec.got)-1].Count)
	assert.Equal(t, 1, *rec.got[len(rec.got)-1].Count)
}

func TestReloadThreshold(t *testing.T) {
	ctx := context.Background()
	reloads := 0
	s := New(Config{
		Store:     store.NewMemory(),
		Threshold: func() int { return 3 },
		Reload:    func() { reloads++ },
	})

	for range 2 {
		s.RecordSuppression(ctx, "suggested")
	}
	assert.Equal(t, 0, reloads)
	assert.Equal(t, 2, s.Snapshot().ActionsSinceReload)

	s.RecordRelationshipRemoval(ctx)
	assert.Equal(t, 1, reloads)
	assert.Equal(t, 0, s.Snapshot().ActionsSinceReload)

	for range 3 {
		s.RecordSuppression(ctx, "advertisement")
	}
	assert.Equal(t, 2, reloads)
}

func TestThresholdZeroNeverReloads(t *testing.T) {
	ctx := context.Background()
	reloads := 0
	s := New(Config{Store: store.NewMemory(), Reload: func() { reloads++ }})
	for range 60 {
		s.RecordSuppression(ctx, "suggested")
	}
	assert.Equal(t, 0, reloads)
	assert.Equal(t, 60, s.Snapshot().ActionsSinceReload)
}

func TestKeywordMatchIsNotAnAction(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s := New(Config{Store: store.NewMemory(), Sink: rec.sink(), Threshold: func() int { return 1 }})

	s.RecordKeywordMatch(ctx)
	s.RecordKeywordMatch(ctx)

	n := s.Snapshot()
	assert.Equal(t, 2, n.KeywordMatches)
	assert.Equal(t, 0, n.TotalActions)
	assert.Equal(t, 0, n.ActionsSinceReload)
	assert.Empty(t, rec.types())
}

func TestSetWarningEdges(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	s := New(Config{Store: st})

	assert.True(t, s.SetWarning(ctx, true))
	assert.False(t, s.SetWarning(ctx, true))
	v, _, _ := st.Get(ctx, session.KeyNetworkWarning)
	assert.Equal(t, "true", v)

	assert.True(t, s.SetWarning(ctx, false))
	v, _, _ = st.Get(ctx, session.KeyNetworkWarning)
	assert.Equal(t, "false", v)
}

func TestRestoreResetsSinceReload(t *testing.T) {
	s := New(Config{Store: store.NewMemory()})
	s.Restore(session.Counters{Suppressed: 4, RelationshipsRemoved: 2, ActionsSinceReload: 9, KeywordMatches: 1}, true)

	n := s.Snapshot()
	assert.Equal(t, 6, n.TotalActions)
	assert.Equal(t, 0, n.ActionsSinceReload)
	assert.Equal(t, 1, n.KeywordMatches)
	assert.True(t, s.Warning())
}

func TestConcurrentRecords(t *testing.T) {
	ctx := context.Background()
	s := New(Config{Store: store.NewMemory()})

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				s.RecordSuppression(ctx, "suggested")
			} else {
				s.RecordRelationshipRemoval(ctx)
			}
		}()
	}
	wg.Wait()

	n := s.Snapshot()
	assert.Equal(t, 20, n.TotalActions)
	assert.Equal(t, n.Suppressed+n.RelationshipsRemoved, n.TotalActions)
}
