// Package server exposes HTTP handlers, including the long-poll endpoints,
// WebSocket upgrades, health checks, and the built-in chat page.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/pollchat/internal/chat"
	"github.com/Tyrowin/pollchat/internal/metrics"
)

const version = "0.1.0"

var (
	errMessageTooLarge = errors.New("message too large")
	errInvalidRequest  = errors.New("invalid request body")
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	hub      *chat.Hub
	cfg      Config
	logger   zerolog.Logger
	origins  *originPolicy
	limiters *limiterSet
	upgrader websocket.Upgrader
	clients  *clientSet
}

// NewHandler creates a Handler serving hub with the given configuration.
func NewHandler(hub *chat.Hub, cfg *Config, logger zerolog.Logger) *Handler {
	sanitized := sanitizeConfig(*cfg)
	origins := newOriginPolicy(sanitized.AllowedOrigins, logger)

	return &Handler{
		hub:      hub,
		cfg:      sanitized,
		logger:   logger,
		origins:  origins,
		limiters: newLimiterSet(sanitized.RateLimit),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkWebSocket,
		},
		clients: newClientSet(),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Debug().Err(err).Msg("failed to write JSON response")
	}
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, errorResponse{Error: message})
}

// writeError maps hub errors to HTTP responses. Cancelled polls get no
// response at all; the client is gone.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chat.ErrCancelled):
		h.logger.Debug().Str("path", r.URL.Path).Msg("client went away")
	case errors.Is(err, chat.ErrEmptyMessage):
		h.Error(w, http.StatusBadRequest, "message body is required")
	case errors.Is(err, errInvalidRequest):
		h.Error(w, http.StatusBadRequest, "invalid request body")
	case errors.Is(err, errMessageTooLarge):
		h.Error(w, http.StatusRequestEntityTooLarge, "message too large")
	case errors.Is(err, chat.ErrDuplicateMessage):
		h.Error(w, http.StatusConflict, "duplicate message id")
	case errors.Is(err, chat.ErrHubClosed):
		h.Error(w, http.StatusServiceUnavailable, "server shutting down")
	case errors.Is(err, chat.ErrStoreUnavailable):
		h.Error(w, http.StatusInternalServerError, "message store unavailable")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		h.Error(w, http.StatusInternalServerError, "internal server error")
	}
}

// Index renders the chat page with the current buffer.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.hub.Messages(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderIndex(w, msgs); err != nil {
		h.logger.Error().Err(err).Msg("error writing chat page")
	}
}

// ListMessages returns the current buffer as JSON.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.hub.Messages(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, updatesResponse{Messages: msgs})
}

// NewMessage appends a message to the buffer. When the request carries a
// local "next" path the client is redirected there; otherwise the stored
// message is returned as JSON.
func (h *Handler) NewMessage(w http.ResponseWriter, r *http.Request) {
	if !h.origins.allowRequest(r) {
		h.Error(w, http.StatusForbidden, "origin not allowed")
		return
	}

	if !h.limiters.allow(clientKey(r)) {
		metrics.RateLimitHits.WithLabelValues("http").Inc()
		h.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	req, err := h.decodeMessageRequest(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	msg, err := h.hub.Post(r.Context(), req.Body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if isLocalPath(req.Next) {
		http.Redirect(w, r, req.Next, http.StatusSeeOther)
		return
	}
	h.JSON(w, http.StatusOK, msg)
}

// Updates is the long-poll endpoint. It answers as soon as messages newer
// than the request cursor exist, with an empty list when the poll timeout
// passes first, and with nothing when the client disconnects.
func (h *Handler) Updates(w http.ResponseWriter, r *http.Request) {
	if !h.origins.allowRequest(r) {
		h.Error(w, http.StatusForbidden, "origin not allowed")
		return
	}

	cursor, err := h.decodeCursor(w, r)
	if err != nil {
		h.writeError(w, r, decodeError(err))
		return
	}

	ctx := r.Context()
	if h.cfg.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.PollTimeout)
		defer cancel()
	}

	msgs, err := h.hub.Poll(ctx, cursor)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && r.Context().Err() == nil:
		msgs = []chat.Message{}
	default:
		h.writeError(w, r, err)
		return
	}

	// The connection may have closed while the response was prepared.
	if r.Context().Err() != nil {
		h.logger.Debug().Str("cursor", cursor).Msg("client closed before delivery")
		return
	}
	h.JSON(w, http.StatusOK, updatesResponse{Messages: msgs})
}

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	Waiting   int              `json:"waiting"`
	Clients   int              `json:"clients"`
	Timestamp string           `json:"timestamp"`
}

// Health reports whether the message store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	status := "healthy"
	statusCode := http.StatusOK

	start := time.Now()
	if err := h.hub.Ping(ctx); err != nil {
		checks["store"] = Check{Status: "fail", Message: "connection failed"}
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["store"] = Check{Status: "pass", Latency: time.Since(start).String()}
	}

	h.JSON(w, statusCode, HealthResponse{
		Status:    status,
		Version:   version,
		Checks:    checks,
		Waiting:   h.hub.Waiting(),
		Clients:   h.clients.len(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Stream upgrades the request to a WebSocket that pushes every new message
// and accepts {"body": "..."} frames as posts. The optional "cursor" query
// parameter resumes from a known message.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.Error(w, http.StatusMethodNotAllowed, "WebSocket endpoint only accepts GET requests")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := NewClient(conn, h.hub, &h.cfg, h.logger, r.RemoteAddr, r.URL.Query().Get("cursor"))
	h.clients.start(client)
}

// Shutdown closes every WebSocket client and waits for their pumps to exit.
func (h *Handler) Shutdown(timeout time.Duration) error {
	return h.clients.shutdown(timeout)
}

func (h *Handler) bodyLimit() int64 {
	limit := 4 * h.cfg.MaxMessageSize
	if limit < 8*1024 {
		limit = 8 * 1024
	}
	return limit
}

func (h *Handler) decodeMessageRequest(w http.ResponseWriter, r *http.Request) (messageRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.bodyLimit())

	var req messageRequest
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, decodeError(err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return req, decodeError(err)
		}
		req.Body = r.Form.Get("body")
		req.Next = r.Form.Get("next")
	}

	if int64(len(req.Body)) > h.cfg.MaxMessageSize {
		return req, errMessageTooLarge
	}
	return req, nil
}

func (h *Handler) decodeCursor(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.bodyLimit())

	if isJSON(r) {
		var req pollRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return req.Cursor, nil
	}

	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return r.Form.Get("cursor"), nil
}

func decodeError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return errMessageTooLarge
	}
	return errInvalidRequest
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// isLocalPath accepts only same-site absolute paths, so "next" cannot be
// used as an open redirect.
func isLocalPath(next string) bool {
	return strings.HasPrefix(next, "/") &&
		!strings.HasPrefix(next, "//") &&
		!strings.HasPrefix(next, "/\\")
}

// clientKey identifies the client for rate limiting. RealIP middleware has
// already rewritten RemoteAddr from proxy headers.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
