// Package chat implements the message buffer behind the long-polling chat
// server.
//
// A Hub owns a Store (the bounded, ordered message buffer) and a Registry of
// parked pollers. Posting a message appends it to the store and wakes every
// parked poller under the same lock, so a woken poller always observes the
// message that woke it. Pollers re-query the store with their cursor after
// each wake and either return the delta or park again.
package chat
