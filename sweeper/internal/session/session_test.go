package session

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/feedsweep/sweeper/internal/store"
)

func TestSettersClamp(t *testing.T) {
	s := NewState(Defaults())

	assert.Equal(t, 120, s.SetScrollDelay(500).ScrollDelaySeconds)
	assert.Equal(t, 1, s.SetScrollDelay(-5).ScrollDelaySeconds)
	assert.Equal(t, 50, s.SetActionsBeforeReload(99).ActionsBeforeReload)
	assert.Equal(t, 0, s.SetActionsBeforeReload(-1).ActionsBeforeReload)

	c := s.SetFilter(true, "  rust ")
	assert.Equal(t, "rust", c.KeywordFilterText)
	assert.True(t, c.FilterActive())

	c = s.SetFilter(true, "   ")
	assert.False(t, c.FilterActive())
}

func TestRulesProjection(t *testing.T) {
	c := Defaults()
	c.KeywordFilterEnabled = true
	c.KeywordFilterText = "go"
	c.ForeignScriptLock = true

	r := c.Rules()
	assert.True(t, r.KeywordMode())
	assert.True(t, r.ForeignScriptLock)
	assert.True(t, r.SuppressAds)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewState(Defaults())
	snap := s.Snapshot()
	s.SetRunning(true)
	assert.False(t, snap.Running)
	assert.True(t, s.Snapshot().Running)
}

func TestLoadDefaultsWhenEmpty(t *testing.T) {
	p, err := Load(context.Background(), store.NewMemory(), Defaults())
	require.NoError(t, err)
	assert.Equal(t, Defaults(), p.Config)
	assert.Equal(t, Counters{}, p.Counters)
	assert.False(t, p.NetworkWarning)
}

func TestLoadClampsAndRecomputes(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	for k, v := range map[string]string{
		KeyRunning:                  "true",
		KeySuppressAds:              "false",
		KeyScrollDelaySeconds:       "900",
		KeyActionsBeforeReload:      "-3",
		KeyKeywordFilterText:        " rust ",
		KeyHumanPacingEnabled:       "garbage",
		KeySuppressedCount:          "4",
		KeyRelationshipRemovedCount: "2",
		KeyTotalActionCount:         "99",
		KeyActionsSinceReload:       "7",
		KeyNetworkWarning:           "true",
	} {
		require.NoError(t, st.Set(ctx, k, v))
	}

	p, err := Load(ctx, st, Defaults())
	require.NoError(t, err)

	assert.True(t, p.Config.Running)
	assert.False(t, p.Config.SuppressAds)
	assert.True(t, p.Config.SuppressSuggested)
	assert.Equal(t, 120, p.Config.ScrollDelaySeconds)
	assert.Equal(t, 0, p.Config.ActionsBeforeReload)
	assert.Equal(t, "rust", p.Config.KeywordFilterText)
	assert.False(t, p.Config.HumanPacingEnabled)

	assert.Equal(t, 6, p.Counters.TotalActions)
	assert.Equal(t, 0, p.Counters.ActionsSinceReload)
	assert.True(t, p.NetworkWarning)
}

type failingStore struct{ store.Store }

func (failingStore) All(context.Context) (map[string]string, error) {
	return nil, errors.New("down")
}

func (failingStore) Set(context.Context, string, string) error { return errors.New("down") }

func TestLoadErrorKeepsDefaults(t *testing.T) {
	p, err := Load(context.Background(), failingStore{}, Defaults())
	assert.Error(t, err)
	assert.Equal(t, Defaults(), p.Config)
}

func TestPersistSwallowsErrors(t *testing.T) {
	Persist(context.Background(), failingStore{}, slog.Default(), ConfigValues(Defaults()))
}

func TestConfigValuesRoundTripThroughLoad(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	want := Config{
		Running: true, SuppressAds: false, SuppressSuggested: true, ForeignScriptLock: true,
		ScrollDelaySeconds: 30, ActionsBeforeReload: 5,
		KeywordFilterEnabled: true, KeywordFilterText: "golang", HumanPacingEnabled: true,
	}
	Persist(ctx, st, slog.Default(), ConfigValues(want))

	p, err := Load(ctx, st, Defaults())
	require.NoError(t, err)
	assert.Equal(t, want, p.Config)
}
