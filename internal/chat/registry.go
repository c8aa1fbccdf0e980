package chat

import "sync"

// Registry is a broadcast condition: any number of callers park a Waiter and
// NotifyAll wakes every one parked at the time of the call. Notifications are
// not sticky; a waiter registered after NotifyAll stays parked until the next
// one.
type Registry struct {
	mu      sync.Mutex
	nextID  uint64
	waiters map[uint64]*Waiter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{waiters: make(map[uint64]*Waiter)}
}

// Waiter is the handle of one parked caller. Done is closed exactly once,
// either by a notification or by Cancel.
type Waiter struct {
	id        uint64
	reg       *Registry
	done      chan struct{}
	cancelled bool
}

// Wait registers a new waiter.
func (r *Registry) Wait() *Waiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	w := &Waiter{id: r.nextID, reg: r, done: make(chan struct{})}
	r.waiters[w.id] = w
	return w
}

// NotifyAll wakes every registered waiter and empties the registry. It
// returns the number of waiters woken.
func (r *Registry) NotifyAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.waiters)
	for id, w := range r.waiters {
		delete(r.waiters, id)
		close(w.done)
	}
	return n
}

// Len returns the number of parked waiters.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}

// Done returns a channel closed when the waiter is notified or cancelled.
func (w *Waiter) Done() <-chan struct{} { return w.done }

// Cancel completes the waiter with a cancelled outcome and removes it from
// its registry. Cancelling a waiter that was already notified or cancelled
// does nothing. It never affects other waiters.
func (w *Waiter) Cancel() {
	w.reg.mu.Lock()
	defer w.reg.mu.Unlock()

	if _, ok := w.reg.waiters[w.id]; !ok {
		return
	}
	delete(w.reg.waiters, w.id)
	w.cancelled = true
	close(w.done)
}

// Cancelled reports whether the waiter completed through Cancel rather than
// a notification.
func (w *Waiter) Cancelled() bool {
	w.reg.mu.Lock()
	defer w.reg.mu.Unlock()
	return w.cancelled
}
