package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/pollchat/internal/chat"
)

const testOrigin = "http://localhost:8080"

// testServer is a running router over an in-memory hub.
type testServer struct {
	*httptest.Server
	hub     *chat.Hub
	handler *Handler
	cfg     *Config
}

func newTestServer(t *testing.T, customize func(cfg *Config)) *testServer {
	t.Helper()
	return newTestServerWithStore(t, chat.NewRing(0), customize)
}

func newTestServerWithStore(t *testing.T, store chat.Store, customize func(cfg *Config)) *testServer {
	t.Helper()

	cfg := NewConfig()
	cfg.Env = "test"
	cfg.RateLimit.Burst = 100
	if customize != nil {
		customize(cfg)
	}

	hub := chat.NewHub(store)
	handler := NewHandler(hub, cfg, zerolog.Nop())
	srv := httptest.NewServer(SetupRoutes(handler))

	t.Cleanup(func() {
		_ = hub.Shutdown(time.Second)
		_ = handler.Shutdown(time.Second)
		srv.Close()
	})

	return &testServer{Server: srv, hub: hub, handler: handler, cfg: cfg}
}

func (s *testServer) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + path
}

// noRedirectClient returns redirects to the caller instead of following
// them.
func noRedirectClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func postJSON(t *testing.T, target string, payload interface{}) *http.Response {
	t.Helper()
	return postJSONWithContext(t, context.Background(), target, payload)
}

func postJSONWithContext(t *testing.T, ctx context.Context, target string, payload interface{}) *http.Response {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(string(data)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	require.NoError(t, err)
	return resp
}

func postForm(t *testing.T, target string, values url.Values) *http.Response {
	t.Helper()
	resp, err := noRedirectClient().PostForm(target, values)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func (s *testServer) post(t *testing.T, body string) chat.Message {
	t.Helper()
	resp := postJSON(t, s.URL+"/a/message/new", messageRequest{Body: body})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var msg chat.Message
	decodeBody(t, resp, &msg)
	return msg
}

func (s *testServer) waitParked(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.hub.Waiting() == n },
		2*time.Second, 5*time.Millisecond, "expected %d parked pollers", n)
}

func dialStream(t *testing.T, target string, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial(target, header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func readUpdates(t *testing.T, conn *websocket.Conn) []chat.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var batch updatesResponse
	require.NoError(t, conn.ReadJSON(&batch))
	return batch.Messages
}

func messageBodies(msgs []chat.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Body)
	}
	return out
}
