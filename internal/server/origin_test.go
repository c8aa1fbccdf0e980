package server

import (
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeOrigins(t *testing.T) {
	normalized, allowAll := normalizeOrigins([]string{
		" HTTP://Example.COM ",
		"",
		"not an origin",
		"https://chat.example:8443/path",
	}, zerolog.Nop())

	assert.False(t, allowAll)
	assert.Equal(t, []string{"http://example.com", "https://chat.example:8443"}, normalized)

	_, allowAll = normalizeOrigins([]string{"*"}, zerolog.Nop())
	assert.True(t, allowAll)

	normalized, allowAll = normalizeOrigins(nil, zerolog.Nop())
	assert.Nil(t, normalized)
	assert.False(t, allowAll)
}

func TestOriginPolicy(t *testing.T) {
	p := newOriginPolicy([]string{"http://localhost:8080"}, zerolog.Nop())

	tests := []struct {
		origin    string
		request   bool
		websocket bool
	}{
		{origin: "", request: true, websocket: false},
		{origin: "http://localhost:8080", request: true, websocket: true},
		{origin: "HTTP://LOCALHOST:8080", request: true, websocket: true},
		{origin: "http://localhost:9090", request: false, websocket: false},
		{origin: "null", request: false, websocket: false},
	}

	for _, tt := range tests {
		r, err := http.NewRequest(http.MethodPost, "/a/message/new", http.NoBody)
		require.NoError(t, err)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}

		assert.Equal(t, tt.request, p.allowRequest(r), "allowRequest(%q)", tt.origin)
		assert.Equal(t, tt.websocket, p.checkWebSocket(r), "checkWebSocket(%q)", tt.origin)
	}

	assert.Equal(t, []string{"http://localhost:8080"}, p.corsOrigins())
}

func TestOriginPolicyAllowAll(t *testing.T) {
	p := newOriginPolicy([]string{"*"}, zerolog.Nop())

	assert.True(t, p.isAllowed("https://anything.example"))
	assert.False(t, p.isAllowed("garbage"))
	assert.Equal(t, []string{"*"}, p.corsOrigins())
}
