// Package server defines shared payload types and utility helpers that are
// reused across handler and client logic.
package server

import (
	"strings"

	"github.com/Tyrowin/pollchat/internal/chat"
)

// messageRequest is the JSON form of a new message, used by both the HTTP
// endpoint and WebSocket frames.
type messageRequest struct {
	Body string `json:"body"`
	Next string `json:"next,omitempty"`
}

// pollRequest is the JSON form of a long-poll request.
type pollRequest struct {
	Cursor string `json:"cursor"`
}

// updatesResponse carries the messages a poll delivers.
type updatesResponse struct {
	Messages []chat.Message `json:"messages"`
}

// errorResponse is the body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
