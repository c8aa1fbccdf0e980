// Package server implements the HTTP transport of the long-polling chat
// server.
//
// It exposes the chat.Hub through three operations: listing the buffer
// (GET /), submitting a message (POST /a/message/new) and polling for
// updates (POST /a/message/updates). A WebSocket endpoint
// (GET /a/message/stream) pushes the same updates over a single connection.
// Client disconnects cancel the request context, which releases any parked
// poll.
package server
