package bridge

import (
	"sort"
	"sync"
)

// Hub is an in-process event fanout used by bridge implementations. A single
// dispatch goroutine drains the queue, so handlers observe events in exactly
// the order they were published.
type Hub struct {
	mu       sync.Mutex
	seq      int
	handlers map[EventName]map[int]Handler

	queue     chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates a hub and starts its dispatch goroutine.
func NewHub() *Hub {
	h := &Hub{
		handlers: make(map[EventName]map[int]Handler),
		queue:    make(chan Event, 64),
		done:     make(chan struct{}),
	}
	go h.dispatch()
	return h
}

// Listen registers a handler for the given event name. Multiple handlers for
// the same name coexist; each receives every occurrence.
func (h *Hub) Listen(name EventName, fn Handler) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	id := h.seq
	if h.handlers[name] == nil {
		h.handlers[name] = make(map[int]Handler)
	}
	h.handlers[name][id] = fn

	return NewSubscription(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.handlers[name], id)
	})
}

// Publish enqueues an event for in-order delivery. Publishing after Close is
// a no-op.
func (h *Hub) Publish(ev Event) {
	select {
	case <-h.done:
	case h.queue <- ev:
	}
}

// Close stops the dispatch goroutine. Queued events that were not yet
// delivered are dropped.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
}

func (h *Hub) dispatch() {
	for {
		select {
		case <-h.done:
			return
		case ev := <-h.queue:
			for _, fn := range h.snapshot(ev.Event()) {
				fn(ev)
			}
		}
	}
}

// snapshot returns the handlers for an event name in registration order. The
// copy lets handlers register or cancel subscriptions without deadlocking.
func (h *Hub) snapshot(name EventName) []Handler {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]int, 0, len(h.handlers[name]))
	for id := range h.handlers[name] {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fns := make([]Handler, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.handlers[name][id])
	}
	return fns
}

// Subscription is a cancellable listener registration. Cancel is safe to call
// any number of times, from any goroutine, and before the registration has
// been observed by the dispatcher.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription wraps a deregistration function into a handle. Bridge
// implementations outside this package use it from their Listen methods.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Cancel deregisters the handler. An event already snapshotted by the
// dispatcher may still reach the handler once; nothing is delivered after
// that.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}
