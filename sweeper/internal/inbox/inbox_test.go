package inbox

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/feedsweep/dbopen"
	"github.com/hazyhaar/feedsweep/sweeper/message"
)

func newInbox(t *testing.T) *Inbox {
	t.Helper()
	return New(dbopen.OpenMemory(t, dbopen.WithSchema(Schema)), nil)
}

func TestDrainInOrderOnce(t *testing.T) {
	ctx := context.Background()
	in := newInbox(t)

	cmds := []message.Command{
		message.Start{},
		message.SetScrollDelay{Value: 30},
		message.SetFilter{Enabled: true, Keyword: "golang"},
	}
	for _, c := range cmds {
		id, err := in.Enqueue(ctx, c)
		require.NoError(t, err)
		assert.Contains(t, id, "cmd_")
	}
	n, err := in.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var got []message.Command
	applied, err := in.Drain(ctx, func(_ context.Context, c message.Command) error {
		got = append(got, c)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, applied)
	assert.Equal(t, cmds, got)

	applied, err = in.Drain(ctx, func(context.Context, message.Command) error {
		t.Fatal("drained twice")
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, applied)
}

func TestDrainSkipsBadRows(t *testing.T) {
	ctx := context.Background()
	in := newInbox(t)

	_, err := in.db.Exec(`INSERT INTO command_inbox (id, body, created_at) VALUES ('cmd_bad', '{"type":"EXPLODE"}', 0)`)
	require.NoError(t, err)
	_, err = in.Enqueue(ctx, message.Stop{})
	require.NoError(t, err)
	_, err = in.Enqueue(ctx, message.Start{})
	require.NoError(t, err)

	var got []message.Type
	applied, err := in.Drain(ctx, func(_ context.Context, c message.Command) error {
		got = append(got, c.Type())
		if c.Type() == message.TypeStop {
			return errors.New("rejected")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, []message.Type{message.TypeStop, message.TypeStart}, got)

	n, _ := in.Pending(ctx)
	assert.Zero(t, n)
}

func TestRunPicksUpQueuedAndNewCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inbox.db")
	engine, err := Open(path, nil)
	require.NoError(t, err)
	defer engine.Close()
	ctl, err := Open(path, nil)
	require.NoError(t, err)
	defer ctl.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err = ctl.Enqueue(ctx, message.Start{})
	require.NoError(t, err)

	var mu sync.Mutex
	var got []message.Type
	go engine.Run(ctx, func(_ context.Context, c message.Command) error {
		mu.Lock()
		got = append(got, c.Type())
		mu.Unlock()
		return nil
	}, 10*time.Millisecond)

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(got)
	}
	require.Eventually(t, func() bool { return count() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = ctl.Enqueue(ctx, message.SetHumanPacing{Enabled: true})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return count() == 2 }, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []message.Type{message.TypeStart, message.TypeSetHumanPacing}, got)
	mu.Unlock()
}
