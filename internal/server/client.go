// Package server manages individual WebSocket stream clients, handling
// read/write pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/pollchat/internal/chat"
	"github.com/Tyrowin/pollchat/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one WebSocket stream connection. The write pump runs a loop of
// long polls against the hub and pushes each batch to the socket; the read
// pump posts incoming frames and cancels the polls when the peer goes away.
type Client struct {
	conn           *websocket.Conn
	hub            *chat.Hub
	addr           string
	cursor         string
	logger         zerolog.Logger
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a Client for conn that starts streaming after cursor.
func NewClient(conn *websocket.Conn, hub *chat.Hub, cfg *Config, logger zerolog.Logger, addr, cursor string) *Client {
	if conn != nil {
		conn.SetReadLimit(frameLimit(cfg.MaxMessageSize))
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		conn:           conn,
		hub:            hub,
		addr:           addr,
		cursor:         cursor,
		logger:         logger.With().Str("client", addr).Logger(),
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// frameLimit leaves room for the JSON envelope around the message body.
func frameLimit(maxMessageSize int64) int64 {
	return maxMessageSize + 256
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn().Err(err).Msg("error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn().Err(err).Msg("error setting read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.logger.Warn().Int64("limit", frameLimit(c.maxMessageSize)).Msg("frame exceeded maximum size")
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.logger.Debug().Err(err).Msg("client disconnected")
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.logger.Debug().Err(err).Msg("client connection closed")
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.logger.Warn().Err(err).Msg("unexpected WebSocket error")
		return true
	}

	c.logger.Warn().Err(err).Msg("WebSocket read error")
	return true
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		metrics.RateLimitHits.WithLabelValues("websocket").Inc()
		c.logger.Warn().
			Int("burst", c.rateLimit.Burst).
			Dur("interval", c.rateLimit.RefillInterval).
			Msg("rate limit exceeded; discarding message")
		return false
	}
	return true
}

// processMessage decodes a frame and posts it to the hub. The resulting
// message reaches this client through its own poll loop.
func (c *Client) processMessage(rawMessage []byte) bool {
	var req messageRequest
	if err := json.Unmarshal(rawMessage, &req); err != nil {
		c.logger.Warn().Err(err).Msg("invalid message frame")
		return false
	}

	if int64(len(req.Body)) > c.maxMessageSize {
		c.logger.Warn().Int("size", len(req.Body)).Msg("message too large; discarding")
		return false
	}

	msg, err := c.hub.Post(c.ctx, req.Body)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to post message")
		return false
	}

	c.logger.Debug().Str("id", msg.ID).Msg("received message")
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if c.handleReadError(err) {
			break
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processMessage(rawMessage)
	}
}

func (c *Client) writePump() {
	defer func() {
		c.cancel()
		c.closeConnection()
	}()

	for c.processWriteEvent() {
	}
}

// processWriteEvent waits for the next batch of messages, or for the ping
// interval to pass, and returns false when the pump should stop.
func (c *Client) processWriteEvent() bool {
	ctx, cancel := context.WithTimeout(c.ctx, pingPeriod)
	msgs, err := c.hub.Poll(ctx, c.cursor)
	cancel()

	switch {
	case err == nil:
		return c.writeMessages(msgs)
	case errors.Is(err, context.DeadlineExceeded) && c.ctx.Err() == nil:
		return c.handlePing()
	case errors.Is(err, chat.ErrCancelled):
		return false
	case errors.Is(err, chat.ErrHubClosed):
		return c.writeCloseMessage(websocket.CloseGoingAway, "server shutting down")
	default:
		c.logger.Error().Err(err).Msg("poll failed")
		return c.writeCloseMessage(websocket.CloseInternalServerErr, "message store unavailable")
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn().Err(err).Msg("error closing connection")
		}
	}
}

// writeMessages pushes a batch and advances the cursor past it.
func (c *Client) writeMessages(msgs []chat.Message) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn().Err(err).Msg("error setting write deadline")
		return false
	}

	if err := c.conn.WriteJSON(updatesResponse{Messages: msgs}); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn().Err(err).Msg("error writing messages")
		}
		return false
	}

	c.cursor = msgs[len(msgs)-1].ID
	return true
}

// writeCloseMessage sends a close frame to the client. It always returns
// false so callers can stop the pump with it.
func (c *Client) writeCloseMessage(code int, text string) bool {
	deadline := time.Now().Add(writeWait)
	if err := c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn().Err(err).Msg("error writing close message")
		}
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn().Err(err).Msg("error setting write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn().Err(err).Msg("error writing ping message")
		return false
	}
	return true
}
