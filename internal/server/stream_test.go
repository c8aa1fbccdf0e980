package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStreamDeliversPosts verifies that messages posted over HTTP reach a
// connected stream and that frames sent on the stream are posted.
func TestStreamDeliversPosts(t *testing.T) {
	srv := newTestServer(t, nil)

	conn, _, err := dialStream(t, srv.wsURL("/a/message/stream"), testOrigin)
	require.NoError(t, err)
	srv.waitParked(t, 1)

	srv.post(t, "over http")
	assert.Equal(t, []string{"over http"}, messageBodies(readUpdates(t, conn)))

	require.NoError(t, conn.WriteJSON(messageRequest{Body: "over websocket"}))
	assert.Equal(t, []string{"over websocket"}, messageBodies(readUpdates(t, conn)))

	msgs, err := srv.hub.Messages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"over http", "over websocket"}, messageBodies(msgs))
}

// TestStreamResumesFromCursor verifies the cursor query parameter.
func TestStreamResumesFromCursor(t *testing.T) {
	srv := newTestServer(t, nil)
	first := srv.post(t, "first")
	srv.post(t, "second")

	conn, _, err := dialStream(t, srv.wsURL("/a/message/stream?cursor="+first.ID), testOrigin)
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, messageBodies(readUpdates(t, conn)))

	fresh, _, err := dialStream(t, srv.wsURL("/a/message/stream"), testOrigin)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, messageBodies(readUpdates(t, fresh)))
}

// TestStreamOriginCheck verifies that upgrades need an allowed Origin.
func TestStreamOriginCheck(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, origin := range []string{"", "http://evil.example"} {
		conn, resp, err := dialStream(t, srv.wsURL("/a/message/stream"), origin)
		assert.Error(t, err, "origin %q", origin)
		assert.Nil(t, conn)
		if assert.NotNil(t, resp) {
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		}
	}
	assert.Equal(t, 0, srv.handler.clients.len())
}

// TestStreamRateLimit verifies that frames over the burst are dropped.
func TestStreamRateLimit(t *testing.T) {
	srv := newTestServer(t, func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{Burst: 1, RefillInterval: time.Hour}
	})

	conn, _, err := dialStream(t, srv.wsURL("/a/message/stream"), testOrigin)
	require.NoError(t, err)

	for _, body := range []string{"one", "two", "three"} {
		require.NoError(t, conn.WriteJSON(messageRequest{Body: body}))
	}
	assert.Equal(t, []string{"one"}, messageBodies(readUpdates(t, conn)))

	// Give the read pump time to process the remaining frames.
	time.Sleep(100 * time.Millisecond)
	msgs, err := srv.hub.Messages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, messageBodies(msgs))
}

// TestStreamDisconnectReleasesPoll verifies that closing the socket frees
// the client's parked poll and registration.
func TestStreamDisconnectReleasesPoll(t *testing.T) {
	srv := newTestServer(t, nil)

	conn, _, err := dialStream(t, srv.wsURL("/a/message/stream"), testOrigin)
	require.NoError(t, err)
	srv.waitParked(t, 1)
	require.Eventually(t, func() bool { return srv.handler.clients.len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())

	srv.waitParked(t, 0)
	require.Eventually(t, func() bool { return srv.handler.clients.len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

// TestStreamHubShutdown verifies that clients get a going-away close frame
// when the hub shuts down.
func TestStreamHubShutdown(t *testing.T) {
	srv := newTestServer(t, nil)

	conn, _, err := dialStream(t, srv.wsURL("/a/message/stream"), testOrigin)
	require.NoError(t, err)
	srv.waitParked(t, 1)

	require.NoError(t, srv.hub.Shutdown(time.Second))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	assert.NoError(t, srv.handler.Shutdown(time.Second))
	assert.Equal(t, 0, srv.handler.clients.len())
}

// TestStreamAfterShutdown verifies that an upgrade arriving after the stream
// clients were shut down is closed at once and never registered.
func TestStreamAfterShutdown(t *testing.T) {
	srv := newTestServer(t, nil)
	require.NoError(t, srv.handler.Shutdown(time.Second))

	conn, _, err := dialStream(t, srv.wsURL("/a/message/stream"), testOrigin)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	assert.Equal(t, 0, srv.handler.clients.len())
	assert.Equal(t, 0, srv.hub.Waiting())
}
