package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/feedsweep/sweeper/message"
)

func TestRouterFanOutContinuesPastErrors(t *testing.T) {
	boom := errors.New("boom")
	var a, b int
	r := NewRouter(nil,
		NewCallback(func(context.Context, message.Notification) error { a++; return boom }),
		NewCallback(func(context.Context, message.Notification) error { b++; return nil }),
	)

	err := r.Notify(context.Background(), message.NetworkWarning())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}

func TestRouterAdd(t *testing.T) {
	r := NewRouter(nil)
	var got []message.Type
	r.Add(NewCallback(func(_ context.Context, n message.Notification) error {
		got = append(got, n.Type)
		return nil
	}))
	require.NoError(t, r.Notify(context.Background(), message.LegacyCount(2)))
	assert.Equal(t, []message.Type{message.TypeLegacyCount}, got)
	require.NoError(t, r.Close())
}

func TestStdoutWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	require.NoError(t, s.Notify(context.Background(), message.CountersUpdate(message.Counts{SuppressedCount: 1, TotalActionCount: 1})))
	require.NoError(t, s.Notify(context.Background(), message.NetworkWarning()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var n message.Notification
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &n))
	assert.Equal(t, message.TypeCountersUpdate, n.Type)
	require.NotNil(t, n.Counts)
	assert.Equal(t, 1, n.Counts.SuppressedCount)
}

func TestNilCallbackIsNoop(t *testing.T) {
	assert.NoError(t, NewCallback(nil).Notify(context.Background(), message.NetworkWarning()))
}

func TestWebhookRetriesThenDelivers(t *testing.T) {
	var calls atomic.Int32
	var got message.Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond, 5*time.Millisecond))
	defer w.Close()

	require.NoError(t, w.Notify(context.Background(), message.NetworkWarning()))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, message.TypeNetworkWarning, got.Type)
}

func TestWebhookRejectsClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookRetries(0))
	err := w.Notify(context.Background(), message.NetworkWarning())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestWebhookSignsBody(t *testing.T) {
	secret := bytes.Repeat([]byte("k"), 32)
	var sig string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get(SignatureHeader)
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookSecret(secret))
	require.NoError(t, w.Notify(context.Background(), message.NetworkWarning()))
	assert.True(t, strings.HasPrefix(sig, "sha256="))
	assert.Equal(t, Sign(secret, body), sig)

	unsigned := NewWebhook(srv.URL)
	require.NoError(t, unsigned.Notify(context.Background(), message.NetworkWarning()))
	assert.Empty(t, sig)
}

func TestHubBroadcasts(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Notify(context.Background(), message.LegacyCount(7)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var n message.Notification
	require.NoError(t, json.Unmarshal(data, &n))
	assert.Equal(t, message.TypeLegacyCount, n.Type)
	require.NotNil(t, n.Count)
	assert.Equal(t, 7, *n.Count)

	require.NoError(t, hub.Close())
	assert.Equal(t, 0, hub.Clients())
}
