package chat

import "errors"

var (
	// ErrStoreUnavailable wraps any failure of the backing store. Requests
	// that hit it fail and are not retried.
	ErrStoreUnavailable = errors.New("message store unavailable")

	// ErrDuplicateMessage is returned when a message id is already held by
	// the store.
	ErrDuplicateMessage = errors.New("duplicate message id")

	// ErrCancelled is returned by Poll when the caller's context ends before
	// any message arrives. It is not a failure: the client went away.
	ErrCancelled = errors.New("poll cancelled")

	// ErrHubClosed is returned to parked pollers when the hub shuts down.
	ErrHubClosed = errors.New("hub closed")

	// ErrEmptyMessage is returned by Post for a blank body.
	ErrEmptyMessage = errors.New("message body is empty")
)
