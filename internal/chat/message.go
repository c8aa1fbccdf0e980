package chat

import (
	"context"
	"time"
)

// DefaultCapacity is the number of messages a buffer retains when no
// capacity is configured.
const DefaultCapacity = 200

// Message is a single chat message. Messages are immutable once created.
type Message struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	HTML      string    `json:"html"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the ordered, bounded collection of messages a Hub reads and
// writes. Implementations keep append order, drop the oldest messages once
// their capacity is exceeded and reject duplicate ids with
// ErrDuplicateMessage.
type Store interface {
	// Append adds msg to the tail of the buffer.
	Append(ctx context.Context, msg Message) error
	// Since returns the messages appended after the message with the given
	// id, oldest first. An empty or unknown cursor yields the whole buffer.
	Since(ctx context.Context, cursor string) ([]Message, error)
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

// Since applies cursor semantics to an ordered slice of messages: it returns
// the messages after the one whose id equals cursor. When no message matches
// (including an empty cursor) the whole slice is returned. The result never
// aliases msgs.
func Since(msgs []Message, cursor string) []Message {
	start := 0
	if cursor != "" {
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	out := make([]Message, len(msgs)-start)
	copy(out, msgs[start:])
	return out
}
