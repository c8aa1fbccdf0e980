package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/pollchat/internal/metrics"
)

// Hub couples a Store with a Registry of parked pollers. Appends and
// notifications happen under the write lock; a poller's check of the store
// and its registration happen under the read lock, so no append can slip in
// between an empty check and the poller parking.
type Hub struct {
	store    Store
	waiters  *Registry
	ids      IDGenerator
	renderer Renderer
	logger   zerolog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithIDGenerator sets the message id generator. The default issues UUIDs.
func WithIDGenerator(g IDGenerator) HubOption {
	return func(h *Hub) {
		if g != nil {
			h.ids = g
		}
	}
}

// WithRenderer sets the message renderer.
func WithRenderer(r Renderer) HubOption {
	return func(h *Hub) {
		if r != nil {
			h.renderer = r
		}
	}
}

// WithLogger sets the hub logger. The default discards everything.
func WithLogger(l zerolog.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// WithClock overrides the clock used to stamp messages.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHub creates a Hub over store.
func NewHub(store Store, opts ...HubOption) *Hub {
	h := &Hub{
		store:    store,
		waiters:  NewRegistry(),
		ids:      UUIDGenerator{},
		renderer: MustTemplateRenderer(""),
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Post creates a message from body, appends it to the store and wakes every
// parked poller. It returns the stored message.
func (h *Hub) Post(ctx context.Context, body string) (Message, error) {
	if strings.TrimSpace(body) == "" {
		return Message{}, ErrEmptyMessage
	}

	msg := Message{
		ID:        h.ids.NewID(),
		Body:      body,
		CreatedAt: h.now().UTC(),
	}
	html, err := h.renderer.Render(msg)
	if err != nil {
		return Message{}, fmt.Errorf("render message: %w", err)
	}
	msg.HTML = html

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return Message{}, ErrHubClosed
	}
	if err := h.store.Append(ctx, msg); err != nil {
		h.mu.Unlock()
		return Message{}, h.storeError(ctx, "append", err)
	}
	woken := h.waiters.NotifyAll()
	h.mu.Unlock()

	metrics.MessagesPosted.Inc()
	metrics.Wakeups.Add(float64(woken))
	h.logger.Debug().
		Str("id", msg.ID).
		Int("woken", woken).
		Msg("message posted")

	return msg, nil
}

// Messages returns the whole buffer, oldest first.
func (h *Hub) Messages(ctx context.Context) ([]Message, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	msgs, err := h.store.Since(ctx, "")
	if err != nil {
		return nil, h.storeError(ctx, "since", err)
	}
	return msgs, nil
}

// Poll returns the messages newer than cursor, blocking until at least one
// exists. It returns an error wrapping ErrCancelled (and the context error)
// when ctx ends first, and ErrHubClosed when the hub shuts down.
func (h *Hub) Poll(ctx context.Context, cursor string) (msgs []Message, err error) {
	if !h.enter() {
		return nil, ErrHubClosed
	}
	defer h.wg.Done()

	start := time.Now()
	defer func() {
		metrics.PollDuration.Observe(time.Since(start).Seconds())
		metrics.PollsTotal.WithLabelValues(pollOutcome(err)).Inc()
	}()

	for {
		msgs, w, err := h.check(ctx, cursor)
		if err != nil || w == nil {
			return msgs, err
		}

		if err := h.park(ctx, w); err != nil {
			return nil, err
		}
	}
}

func (h *Hub) enter() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return false
	}
	h.wg.Add(1)
	return true
}

// check queries the store and, when nothing is new, registers a waiter
// before the read lock is released.
func (h *Hub) check(ctx context.Context, cursor string) ([]Message, *Waiter, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil, nil, ErrHubClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	msgs, err := h.store.Since(ctx, cursor)
	if err != nil {
		return nil, nil, h.storeError(ctx, "since", err)
	}
	if len(msgs) > 0 {
		return msgs, nil, nil
	}
	return nil, h.waiters.Wait(), nil
}

func (h *Hub) park(ctx context.Context, w *Waiter) error {
	metrics.ParkedPollers.Inc()
	defer metrics.ParkedPollers.Dec()
	defer w.Cancel()

	select {
	case <-w.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
}

// Waiting returns the number of parked pollers.
func (h *Hub) Waiting() int {
	return h.waiters.Len()
}

// Ping checks the backing store.
func (h *Hub) Ping(ctx context.Context) error {
	return h.store.Ping(ctx)
}

func (h *Hub) storeError(ctx context.Context, op string, err error) error {
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	case errors.Is(err, ErrDuplicateMessage):
		return err
	}

	metrics.StoreErrors.WithLabelValues(op).Inc()
	h.logger.Error().Err(err).Str("op", op).Msg("message store failed")

	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func pollOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeDelivered
	case errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeTimeout
	case errors.Is(err, ErrCancelled):
		return metrics.OutcomeCancelled
	case errors.Is(err, ErrHubClosed):
		return metrics.OutcomeClosed
	default:
		return metrics.OutcomeError
	}
}

// Shutdown stops accepting posts and polls, wakes every parked poller with
// ErrHubClosed and waits for in-flight polls to return. It returns
// context.DeadlineExceeded if they do not finish within timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info().Msg("initiating hub shutdown")

	h.mu.Lock()
	h.closed = true
	woken := h.waiters.NotifyAll()
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info().Int("woken", woken).Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn().Msg("hub shutdown timeout reached, some polls may still be running")
		return context.DeadlineExceeded
	}
}

// Close shuts the hub down without waiting and closes the store.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	h.waiters.NotifyAll()
	h.mu.Unlock()
	return h.store.Close()
}
