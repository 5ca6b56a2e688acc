package sweeper

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/feedsweep/kit"
	"github.com/hazyhaar/feedsweep/sweeper/feed"
	"github.com/hazyhaar/feedsweep/sweeper/internal/htmlfeed"
	"github.com/hazyhaar/feedsweep/sweeper/internal/session"
	"github.com/hazyhaar/feedsweep/sweeper/message"
)

type harness struct {
	page  *htmlfeed.Page
	store Store
	eng   *Engine

	mu      sync.Mutex
	notes   []message.Notification
	pending []func()
	delays  []time.Duration
	sleeps  []time.Duration
	clock   time.Time
}

func newHarness(t *testing.T, cfg SessionConfig) *harness {
	t.Helper()
	h := &harness{
		page:  htmlfeed.Sample(),
		store: NewMemoryStore(),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	eng, err := New(Options{
		Page:    h.page,
		Store:   h.store,
		Session: cfg,
		Sinks: []Sink{NewCallbackSink(func(_ context.Context, n message.Notification) error {
			h.mu.Lock()
			h.notes = append(h.notes, n)
			h.mu.Unlock()
			return nil
		})},
		NewPostsInterval: -1,
		Sleep: func(ctx context.Context, d time.Duration) error {
			h.mu.Lock()
			h.sleeps = append(h.sleeps, d)
			h.clock = h.clock.Add(d)
			h.mu.Unlock()
			return ctx.Err()
		},
		Now: func() time.Time {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.clock
		},
		After: func(d time.Duration, fn func()) {
			h.mu.Lock()
			h.delays = append(h.delays, d)
			h.pending = append(h.pending, fn)
			h.mu.Unlock()
		},
		Seed: 7,
	})
	require.NoError(t, err)
	h.eng = eng
	return h
}

func (h *harness) init(t *testing.T) {
	t.Helper()
	require.NoError(t, h.eng.Init(t.Context()))
}

// settle waits for filter passes started by Dispatch.
func (h *harness) settle() { h.eng.bg.Wait() }

func (h *harness) runPending() {
	h.mu.Lock()
	fns := h.pending
	h.pending = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (h *harness) types() []message.Type {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []message.Type
	for _, n := range h.notes {
		out = append(out, n.Type)
	}
	return out
}

func (h *harness) lastCounts() *message.Counts {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.notes) - 1; i >= 0; i-- {
		if h.notes[i].Type == message.TypeCountersUpdate {
			return h.notes[i].Counts
		}
	}
	return nil
}

func TestNewRequiresPage(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestInitFiltersExistingItems(t *testing.T) {
	h := newHarness(t, session.Defaults())
	h.init(t)

	st := h.eng.Status()
	assert.Equal(t, 2, st.Counters.Suppressed)
	assert.Equal(t, 2, st.Counters.TotalActions)
	assert.Equal(t, map[string]int{"suggested": 1, "advertisement": 1}, st.Suppressions)
	assert.Equal(t, string(ModeIdle), st.Mode)
	assert.Equal(t, 2, h.page.Count(htmlfeed.KindClick, feed.RoleHideControl))

	assert.Equal(t, []message.Type{
		message.TypeCountersUpdate, message.TypeLegacyCount,
		message.TypeCountersUpdate, message.TypeLegacyCount,
	}, h.types())
	require.NotNil(t, h.lastCounts())
	assert.Equal(t, 2, h.lastCounts().SuppressedCount)
}

func TestInitRestoresPersistedState(t *testing.T) {
	h := newHarness(t, session.Defaults())
	ctx := t.Context()
	require.NoError(t, h.store.Set(ctx, session.KeyScrollDelaySeconds, "30"))
	require.NoError(t, h.store.Set(ctx, session.KeySuppressAds, "false"))
	require.NoError(t, h.store.Set(ctx, session.KeyRelationshipRemovedCount, "4"))
	h.init(t)

	st := h.eng.Status()
	assert.Equal(t, 30, st.Config.ScrollDelaySeconds)
	assert.False(t, st.Config.SuppressAds)
	assert.Equal(t, 4, st.Counters.RelationshipsRemoved)
	// Only the suggested post is suppressed with ads allowed.
	assert.Equal(t, 1, st.Counters.Suppressed)
	assert.Equal(t, 5, st.Counters.TotalActions)
}

func TestAutoModeWorksThroughTheFeed(t *testing.T) {
	cfg := session.Defaults()
	cfg.Running = true
	cfg.SuppressSuggested = false
	h := newHarness(t, cfg)
	h.init(t)
	ctx := t.Context()

	for range 6 {
		assert.Equal(t, ModeAuto, h.eng.Cycle(ctx))
	}

	st := h.eng.Status()
	assert.Equal(t, 3, st.Counters.RelationshipsRemoved)
	assert.Equal(t, 3, st.Counters.Suppressed)
	assert.Equal(t, 6, st.Counters.TotalActions)
	assert.Equal(t, map[string]int{
		"advertisement":     1,
		"suggested":         1,
		"unfollow_fallback": 1,
	}, st.Suppressions)
	assert.Equal(t, 3, h.page.Count(htmlfeed.KindClick, feed.RoleUnfollow)+h.page.Count(htmlfeed.KindClick, feed.RoleMenuEntry))
	assert.Equal(t, 1, h.page.Count(htmlfeed.KindSuppress, ""))
	assert.Equal(t, 1, h.page.Count(htmlfeed.KindScroll, ""))
	assert.Equal(t, string(ModeAuto), st.Mode)

	counts := h.lastCounts()
	require.NotNil(t, counts)
	assert.Equal(t, 6, counts.TotalActionCount)
}

func TestReloadAfterThreshold(t *testing.T) {
	cfg := session.Defaults()
	cfg.Running = true
	cfg.SuppressSuggested = false
	cfg.ActionsBeforeReload = 3
	h := newHarness(t, cfg)
	h.init(t) // hides the promoted post: 1
	ctx := t.Context()

	h.eng.Cycle(ctx) // unfollow: 2
	assert.Empty(t, h.pending)
	h.eng.Cycle(ctx) // hide suggested: 3

	require.Len(t, h.pending, 1)
	assert.Equal(t, []time.Duration{800 * time.Millisecond}, h.delays)
	assert.Equal(t, 0, h.eng.Status().Counters.ActionsSinceReload)

	h.runPending()
	assert.Equal(t, 1, h.page.Count(htmlfeed.KindReload, ""))
	// The reloaded feed is filtered again by the mutation watcher.
	assert.Equal(t, 1, h.eng.Status().Counters.ActionsSinceReload)
	assert.Empty(t, h.pending)
}

func TestDispatchClampsAndPersists(t *testing.T) {
	h := newHarness(t, session.Defaults())
	h.init(t)
	ctx := t.Context()

	cfg, err := h.eng.Dispatch(ctx, message.SetScrollDelay{Value: 500})
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.ScrollDelaySeconds)
	v, _, err := h.store.Get(ctx, session.KeyScrollDelaySeconds)
	require.NoError(t, err)
	assert.Equal(t, "120", v)

	cfg, err = h.eng.Dispatch(ctx, message.SetScrollDelay{Value: -5})
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.ScrollDelaySeconds)

	cfg, err = h.eng.Dispatch(ctx, message.SetRefreshThreshold{Value: 99})
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.ActionsBeforeReload)

	cfg, err = h.eng.Dispatch(ctx, message.Start{})
	require.NoError(t, err)
	assert.True(t, cfg.Running)
	v, _, err = h.store.Get(ctx, session.KeyRunning)
	require.NoError(t, err)
	assert.Equal(t, "true", v)

	cfg, err = h.eng.Dispatch(ctx, message.SetHumanPacing{Enabled: true})
	require.NoError(t, err)
	assert.True(t, cfg.HumanPacingEnabled)

	cfg, err = h.eng.Dispatch(ctx, message.SetScrollDelay{Value: math.MaxInt32})
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.ScrollDelaySeconds)

	c, err := message.Decode([]byte(`{"type":"SET_SCROLL_DELAY","value":1e20}`))
	require.NoError(t, err)
	cfg, err = h.eng.Dispatch(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.ScrollDelaySeconds, "huge values clamp to the upper bound")

	c, err = message.Decode([]byte(`{"type":"SET_SCROLL_DELAY","value":"99999999999999999999"}`))
	require.NoError(t, err)
	cfg, err = h.eng.Dispatch(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.ScrollDelaySeconds)

	c, err = message.Decode([]byte(`{"type":"SET_SCROLL_DELAY","value":-1e20}`))
	require.NoError(t, err)
	cfg, err = h.eng.Dispatch(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.ScrollDelaySeconds)
}

func TestDispatchUnknownToggle(t *testing.T) {
	h := newHarness(t, session.Defaults())
	h.init(t)
	_, err := h.eng.Dispatch(t.Context(), message.SetToggle{Key: "bogus", Value: true})
	require.ErrorIs(t, err, message.ErrUnknownCommand)
}

type recordedCommand struct {
	c         message.Command
	err       error
	transport string
}

type fakeJournal struct {
	mu  sync.Mutex
	got []recordedCommand
}

func (f *fakeJournal) Command(ctx context.Context, c message.Command, err error, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, recordedCommand{c: c, err: err, transport: kit.GetTransport(ctx)})
}

func TestDispatchRecordsJournal(t *testing.T) {
	j := &fakeJournal{}
	eng, err := New(Options{Page: htmlfeed.Sample(), Journal: j, NewPostsInterval: -1})
	require.NoError(t, err)

	ctx := kit.WithTransport(t.Context(), "inbox")
	_, err = eng.Dispatch(ctx, message.Start{})
	require.NoError(t, err)
	_, err = eng.Dispatch(ctx, message.SetToggle{Key: "bogus"})
	require.Error(t, err)

	require.Len(t, j.got, 2)
	assert.Equal(t, message.Start{}, j.got[0].c)
	assert.NoError(t, j.got[0].err)
	assert.Equal(t, "inbox", j.got[0].transport)
	assert.ErrorIs(t, j.got[1].err, message.ErrUnknownCommand)
}

func TestToggleReappliesFilters(t *testing.T) {
	h := newHarness(t, session.Defaults())
	h.init(t)
	require.Equal(t, 2, h.eng.Status().Counters.Suppressed)

	_, err := h.eng.Dispatch(t.Context(), message.SetToggle{Key: message.ToggleForeignScriptLock, Value: true})
	require.NoError(t, err)
	h.settle()

	// Only items whose filter phase has not run are re-examined; the Arabic
	// post was already filtered under the old rules.
	assert.Equal(t, 2, h.eng.Status().Counters.Suppressed)
}

func TestSetFilterRefiltersCurrentItems(t *testing.T) {
	h := newHarness(t, session.Defaults())
	h.init(t)
	ctx := t.Context()

	cfg, err := h.eng.Dispatch(ctx, message.SetFilter{Enabled: true, Keyword: "  golang "})
	require.NoError(t, err)
	assert.Equal(t, "golang", cfg.KeywordFilterText)
	h.settle()

	st := h.eng.Status()
	assert.Equal(t, 1, h.eng.FilterMatches())
	assert.Equal(t, 1, st.Counters.KeywordMatches)
	assert.Equal(t, 3, st.Suppressions["keyword_mismatch"])
	assert.Equal(t, 5, st.Counters.Suppressed)

	_, err = h.eng.Dispatch(ctx, message.SetFilter{Enabled: true, Keyword: "golang"})
	require.NoError(t, err)
	h.settle()
	assert.Equal(t, 1, h.eng.FilterMatches(), "matches restart from zero on every SET_FILTER")
	assert.Equal(t, 2, h.eng.Status().Counters.KeywordMatches)
}

func TestKeywordFilterTakesPriority(t *testing.T) {
	cfg := session.Defaults()
	cfg.KeywordFilterEnabled = true
	cfg.KeywordFilterText = "rust"
	h := newHarness(t, cfg)
	h.init(t)

	st := h.eng.Status()
	// The suggested post mentions Rust and is kept; the promoted post is
	// suppressed as a mismatch, not as an advertisement.
	assert.Equal(t, map[string]int{"keyword_mismatch": 5}, st.Suppressions)
	assert.Equal(t, 1, h.eng.FilterMatches())
	assert.Equal(t, ModeFilter, h.eng.Cycle(t.Context()))
}

func TestSelectMode(t *testing.T) {
	cfg := session.Defaults()
	assert.Equal(t, ModeIdle, SelectMode(cfg))
	cfg.Running = true
	assert.Equal(t, ModeAuto, SelectMode(cfg))
	cfg.KeywordFilterEnabled = true
	assert.Equal(t, ModeAuto, SelectMode(cfg), "an empty keyword does not enable filter mode")
	cfg.KeywordFilterText = "go"
	assert.Equal(t, ModeFilter, SelectMode(cfg))
}

func TestFilterModeScrollPacing(t *testing.T) {
	cfg := session.Defaults()
	cfg.KeywordFilterEnabled = true
	cfg.KeywordFilterText = "nothing-matches-this"
	h := newHarness(t, cfg)
	h.init(t)
	ctx := t.Context()

	h.eng.Cycle(ctx)
	assert.Equal(t, 1, h.page.Count(htmlfeed.KindScroll, ""))
	assert.Equal(t, []time.Duration{10 * time.Second}, h.sleeps, "the first scroll waits a full delay after start")

	h.eng.Cycle(ctx)
	assert.Equal(t, 2, h.page.Count(htmlfeed.KindScroll, ""))
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, h.sleeps)
}

type unreadableItem struct{ feed.Item }

func (unreadableItem) Content(context.Context) (feed.Content, error) {
	return feed.Content{}, errors.New("target closed")
}

func TestFilterReleasesClaimWhenItemUnreadable(t *testing.T) {
	h := newHarness(t, session.Defaults())
	ctx := t.Context()
	items, err := h.page.Items(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, items)
	it := items[0]

	h.eng.applyFilter(ctx, unreadableItem{it}, h.eng.state.Snapshot())
	assert.False(t, it.Flagged(ctx, feed.FlagFiltered), "a failed read leaves the item for the next pass")

	h.eng.applyFilter(ctx, it, h.eng.state.Snapshot())
	assert.True(t, it.Flagged(ctx, feed.FlagFiltered))
}

func TestRefilterOutlivesCallerContext(t *testing.T) {
	h := newHarness(t, session.Defaults())
	h.init(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := h.eng.Dispatch(ctx, message.SetFilter{Enabled: true, Keyword: "golang"})
	require.NoError(t, err)
	h.settle()

	st := h.eng.Status()
	assert.Equal(t, 1, st.Counters.KeywordMatches)
	assert.Equal(t, 3, st.Suppressions["keyword_mismatch"])
}

func TestNetworkWarningIsEdgeTriggered(t *testing.T) {
	h := newHarness(t, session.Defaults())
	h.init(t)
	ctx := t.Context()
	before := len(h.types())

	require.NoError(t, h.page.Append(`<div class="artdeco-toast">Error due to network issue. Please check your connection.</div>`))
	h.eng.Cycle(ctx)
	h.eng.Cycle(ctx)

	types := h.types()[before:]
	assert.Equal(t, []message.Type{message.TypeNetworkWarning}, types)
	assert.True(t, h.eng.Status().NetworkWarning)

	v, _, err := h.store.Get(ctx, session.KeyNetworkWarning)
	require.NoError(t, err)
	assert.Equal(t, "true", v)

	h.page.Remove(".artdeco-toast")
	h.eng.Cycle(ctx)
	assert.False(t, h.eng.Status().NetworkWarning)
}

func TestRefreshNewPosts(t *testing.T) {
	h := newHarness(t, session.Defaults())
	h.init(t)
	ctx := t.Context()

	assert.True(t, h.eng.RefreshNewPosts(ctx))
	assert.False(t, h.eng.RefreshNewPosts(ctx), "banner is gone after the click")
	assert.Equal(t, 1, h.page.Count(htmlfeed.KindClick, feed.RoleNewPosts))
}

type panickyPage struct{ *htmlfeed.Page }

func (panickyPage) Text(context.Context) (string, error) { panic("boom") }

func TestRunStopsOnPanic(t *testing.T) {
	e, err := New(Options{
		Page:             panickyPage{htmlfeed.Sample()},
		NewPostsInterval: -1,
		Sleep:            func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	})
	require.NoError(t, err)

	err = e.Run(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestRunReturnsOnCancel(t *testing.T) {
	h := newHarness(t, session.Defaults())
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.NoError(t, h.eng.Run(ctx))
}

func mcpSession(t *testing.T, e *Engine) *mcp.ClientSession {
	t.Helper()
	impl := &mcp.Implementation{Name: "feedsweep-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	e.RegisterMCP(srv)

	ctx := t.Context()
	serverT, clientT := mcp.NewInMemoryTransports()
	_, err := srv.Connect(ctx, serverT, nil)
	require.NoError(t, err)
	cs, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func toolText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestMCPTools(t *testing.T) {
	h := newHarness(t, session.Defaults())
	h.init(t)
	cs := mcpSession(t, h.eng)
	ctx := t.Context()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "feedsweep_command",
		Arguments: map[string]any{"type": "SET_SCROLL_DELAY", "value": 500},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	var st Status
	require.NoError(t, json.Unmarshal([]byte(toolText(t, res)), &st))
	assert.Equal(t, 120, st.Config.ScrollDelaySeconds)

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "feedsweep_command",
		Arguments: map[string]any{"type": "REBOOT"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, toolText(t, res), "unknown command")

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "feedsweep_state",
		Arguments: map[string]any{"suppressions": true},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	st = Status{}
	require.NoError(t, json.Unmarshal([]byte(toolText(t, res)), &st))
	assert.Equal(t, string(ModeIdle), st.Mode)
	assert.Equal(t, 2, st.Suppressions["suggested"]+st.Suppressions["advertisement"])
}
