package events

import (
	"sync"
	"sync/atomic"
)

// Subscription receives live events until closed.
type Subscription struct {
	C      <-chan Event
	ch     chan Event
	broker *LiveBroker
	id     uint64
	once   sync.Once
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.remove(s.id)
	})
}

// LiveBroker is the in-process publish side of the live-update channel. Sends never
// block: a subscriber whose buffer is full misses the event (at-most-once).
type LiveBroker struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    map[uint64]*Subscription
	dropped atomic.Int64
}

// NewLiveBroker creates an empty broker.
func NewLiveBroker() *LiveBroker {
	return &LiveBroker{subs: make(map[uint64]*Subscription)}
}

// Subscribe registers a subscriber with the given buffer size.
func (b *LiveBroker) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	ch := make(chan Event, buffer)
	sub := &Subscription{C: ch, ch: ch, broker: b, id: b.nextID}
	b.subs[sub.id] = sub
	return sub
}

// Broadcast offers the event to every subscriber and returns how many accepted it.
func (b *LiveBroker) Broadcast(event Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	delivered := 0
	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
			delivered++
		default:
			b.dropped.Add(1)
		}
	}
	return delivered
}

// Subscribers returns the number of attached subscribers.
func (b *LiveBroker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many per-subscriber sends were skipped because a buffer was full.
func (b *LiveBroker) Dropped() int64 {
	return b.dropped.Load()
}

func (b *LiveBroker) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}
