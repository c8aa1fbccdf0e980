// Package server tracks connected WebSocket clients so shutdown can close
// them and wait for their pumps.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/pollchat/internal/metrics"
)

type clientSet struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

func newClientSet() *clientSet {
	return &clientSet{clients: make(map[*Client]struct{})}
}

// start registers c and launches its pumps. Once shutdown has begun the
// client is closed instead and start returns false.
func (s *clientSet) start(c *Client) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.logger.Debug().Msg("rejecting client during shutdown")
		c.writeCloseMessage(websocket.CloseGoingAway, "server shutting down")
		c.cancel()
		c.closeConnection()
		return false
	}
	s.clients[c] = struct{}{}
	clientCount := len(s.clients)
	s.wg.Add(2)
	s.mu.Unlock()

	metrics.WebSocketClients.Inc()
	c.logger.Info().Int("clients", clientCount).Msg("client registered")

	go func() {
		defer s.wg.Done()
		c.writePump()
	}()
	go func() {
		defer s.wg.Done()
		c.readPump()
		s.remove(c)
	}()
	return true
}

func (s *clientSet) remove(c *Client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	clientCount := len(s.clients)
	s.mu.Unlock()

	if ok {
		metrics.WebSocketClients.Dec()
		c.logger.Info().Int("clients", clientCount).Msg("client unregistered")
	}
}

func (s *clientSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// shutdown cancels every client and waits for all pumps to finish or for
// timeout to pass.
func (s *clientSet) shutdown(timeout time.Duration) error {
	s.mu.Lock()
	s.closed = true
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.cancel()
		c.closeConnection()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}
