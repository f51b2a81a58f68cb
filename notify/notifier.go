// Package notify wakes outbox readers when new events are appended.
package notify

import (
	"sync"
	"sync/atomic"

	"github.com/maxpert/kvstream/pattern"
)

// signalBufferSize bounds pending wakeups per subscriber. A full buffer drops
// the signal; readers catch up from the outbox anyway.
const signalBufferSize = 16

// Signal announces one appended outbox event
type Signal struct {
	Channel string
	Seq     uint64
}

// Filter selects signals by channel pattern. Empty matches every channel.
type Filter struct {
	Channels []string
}

type subscription struct {
	id     uint64
	filter Filter
	ch     chan Signal
	closed atomic.Bool
}

func (s *subscription) matches(channel string) bool {
	if len(s.filter.Channels) == 0 {
		return true
	}
	for _, p := range s.filter.Channels {
		if pattern.Match(p, channel) {
			return true
		}
	}
	return false
}

func (s *subscription) close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// Hub fans signals out to subscribers without blocking the publisher
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[uint64]*subscription
	nextID        atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[uint64]*subscription),
	}
}

// Signal notifies every matching subscriber; slow subscribers miss it
func (h *Hub) Signal(channel string, seq uint64) {
	sig := Signal{Channel: channel, Seq: seq}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscriptions {
		if !sub.matches(channel) {
			continue
		}
		select {
		case sub.ch <- sig:
		default:
		}
	}
}

// Subscribe returns a buffered signal channel and an idempotent cancel func.
// Cancelling closes the channel.
func (h *Hub) Subscribe(filter Filter) (<-chan Signal, func()) {
	sub := &subscription{
		id:     h.nextID.Add(1),
		filter: filter,
		ch:     make(chan Signal, signalBufferSize),
	}

	h.mu.Lock()
	h.subscriptions[sub.id] = sub
	h.mu.Unlock()

	return sub.ch, func() { h.unsubscribe(sub.id) }
}

// Len is the number of live subscriptions
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions)
}

// Close cancels every subscription
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subscriptions
	h.subscriptions = make(map[uint64]*subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	sub, ok := h.subscriptions[id]
	if ok {
		delete(h.subscriptions, id)
	}
	h.mu.Unlock()

	if ok {
		sub.close()
	}
}
