package rsp

import (
	"sync"
	"sync/atomic"
)

// interrupt is the consumer → producer wake line. A waiter takes the current
// channel, re-checks its condition, then blocks on the channel; Raise closes
// it. The channel is only allocated while somebody waits, so raising an
// interrupt nobody listens to costs one atomic load.
//
// The armed flag and the waited-on state are both atomics: either the waiter
// sees the new state, or Raise sees armed and closes the channel.
type interrupt struct {
	armed atomic.Bool

	mu sync.Mutex
	ch chan struct{}
}

// wait returns a channel closed by the next Raise.
func (i *interrupt) wait() <-chan struct{} {
	i.mu.Lock()
	if i.ch == nil {
		i.ch = make(chan struct{})
	}
	ch := i.ch
	i.armed.Store(true)
	i.mu.Unlock()
	return ch
}

// raise wakes every waiter.
func (i *interrupt) raise() {
	if !i.armed.Load() {
		return
	}
	i.mu.Lock()
	if i.ch != nil {
		close(i.ch)
		i.ch = nil
	}
	i.armed.Store(false)
	i.mu.Unlock()
}
