package pacing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/feedsweep/sweeper/feed"
)

func TestDelay_HumanOff(t *testing.T) {
	p := New(Config{Seed: 1})
	for i := 0; i < 100; i++ {
		assert.Equal(t, 600*time.Millisecond, p.Delay(600*time.Millisecond))
	}
}

func TestDelay_HumanOn(t *testing.T) {
	p := New(Config{Human: func() bool { return true }, Seed: 7})
	for i := 0; i < 1000; i++ {
		d := p.Delay(800 * time.Millisecond)
		require.GreaterOrEqual(t, d, 1300*time.Millisecond)
		require.Less(t, d, 4300*time.Millisecond)
	}
}

func TestDelay_FollowsToggle(t *testing.T) {
	human := false
	p := New(Config{Human: func() bool { return human }, Seed: 3})
	assert.Equal(t, time.Second, p.Delay(time.Second))
	human = true
	assert.Greater(t, p.Delay(time.Second), time.Second)
}

func TestJitter_StaysNearCenter(t *testing.T) {
	p := New(Config{Seed: 42})
	r := feed.Rect{X: 100, Y: 200, Width: 40, Height: 20}
	for i := 0; i < 1000; i++ {
		pt := p.Jitter(r)
		require.InDelta(t, 120, pt.X, 3)
		require.InDelta(t, 210, pt.Y, 3)
	}
}

func TestWait_UsesInjectedSleep(t *testing.T) {
	var got []time.Duration
	p := New(Config{
		Seed: 1,
		Sleep: func(_ context.Context, d time.Duration) error {
			got = append(got, d)
			return nil
		},
	})
	require.NoError(t, p.Wait(context.Background(), Idle))
	require.NoError(t, p.WaitExact(context.Background(), 5*time.Second))
	assert.Equal(t, []time.Duration{Idle, 5 * time.Second}, got)
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
