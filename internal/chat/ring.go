package chat

import (
	"context"
	"sync"
)

// Ring is the in-memory Store: a fixed-capacity circular buffer that
// overwrites its oldest message once full.
type Ring struct {
	mu   sync.RWMutex
	buf  []Message
	head int // index of the oldest message
	n    int
	ids  map[string]struct{}
}

// NewRing creates a Ring holding at most capacity messages. A capacity of
// zero or less selects DefaultCapacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		buf: make([]Message, capacity),
		ids: make(map[string]struct{}, capacity),
	}
}

// Cap returns the capacity of the ring.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of messages currently held.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.n
}

// Append adds msg at the tail, evicting the oldest message when full.
func (r *Ring) Append(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[msg.ID]; ok {
		return ErrDuplicateMessage
	}

	if r.n == len(r.buf) {
		delete(r.ids, r.buf[r.head].ID)
		r.buf[r.head] = msg
		r.head = (r.head + 1) % len(r.buf)
	} else {
		r.buf[(r.head+r.n)%len(r.buf)] = msg
		r.n++
	}
	r.ids[msg.ID] = struct{}{}
	return nil
}

// Since returns the messages after cursor, oldest first. An empty or
// unknown cursor (including one already evicted) returns the whole buffer.
func (r *Ring) Since(_ context.Context, cursor string) ([]Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	start := 0
	if _, ok := r.ids[cursor]; ok {
		for i := r.n - 1; i >= 0; i-- {
			if r.at(i).ID == cursor {
				start = i + 1
				break
			}
		}
	}

	out := make([]Message, 0, r.n-start)
	for i := start; i < r.n; i++ {
		out = append(out, r.at(i))
	}
	return out, nil
}

func (r *Ring) at(i int) Message {
	return r.buf[(r.head+i)%len(r.buf)]
}

// Ping always succeeds.
func (r *Ring) Ping(context.Context) error { return nil }

// Close is a no-op.
func (r *Ring) Close() error { return nil }
