// Package mailbox hands decoded inbound messages from the listener goroutine
// to the main loop.
package mailbox

import (
	"context"
	"sync/atomic"

	"github.com/stestefe/reality-warpers/internal/network"
)

// DefaultCapacity is used when a non-positive capacity is requested
const DefaultCapacity = 256

// Mailbox is a bounded FIFO channel of complete inbound messages.
// Any number of producers may Push; a single consumer calls Drain.
type Mailbox struct {
	ch chan network.InboundMessage

	pushed  atomic.Uint64
	drained atomic.Uint64
}

// New creates a mailbox holding at most capacity undrained messages
func New(capacity int) *Mailbox {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Mailbox{ch: make(chan network.InboundMessage, capacity)}
}

// Push enqueues msg, blocking while the mailbox is full. It returns
// ctx.Err() if ctx is cancelled first, in which case msg is not enqueued.
func (m *Mailbox) Push(ctx context.Context, msg network.InboundMessage) error {
	select {
	case m.ch <- msg:
		m.pushed.Add(1)
		return nil
	default:
	}
	select {
	case m.ch <- msg:
		m.pushed.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPush enqueues msg without blocking and reports whether it was accepted
func (m *Mailbox) TryPush(msg network.InboundMessage) bool {
	select {
	case m.ch <- msg:
		m.pushed.Add(1)
		return true
	default:
		return false
	}
}

// Drain removes and returns every message queued at the time of the call,
// in arrival order. Messages pushed concurrently are left for the next Drain.
// It never blocks and returns nil when the mailbox is empty.
func (m *Mailbox) Drain() []network.InboundMessage {
	n := len(m.ch)
	if n == 0 {
		return nil
	}
	out := make([]network.InboundMessage, 0, n)
loop:
	for len(out) < n {
		select {
		case msg := <-m.ch:
			out = append(out, msg)
		default:
			// a concurrent Drain emptied the channel first
			break loop
		}
	}
	m.drained.Add(uint64(len(out)))
	return out
}

// Len reports the number of queued messages
func (m *Mailbox) Len() int {
	return len(m.ch)
}

// Cap reports the mailbox capacity
func (m *Mailbox) Cap() int {
	return cap(m.ch)
}

// Stats returns lifetime push and drain totals
func (m *Mailbox) Stats() (pushed, drained uint64) {
	return m.pushed.Load(), m.drained.Load()
}
