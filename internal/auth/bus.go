package auth

import "sync"

// subscriberBufferSize is the default per-subscriber channel buffer.
const subscriberBufferSize = 16

// Bus distributes session lifecycle events to arbitrary subscribers.
// Publication never blocks the publisher; a subscriber that stops
// reading loses events once its buffer fills.
type Bus struct {
	mu      sync.RWMutex
	subs    []*BusSubscription
	bufSize int
	closed  bool
}

// BusOptions configures a Bus.
type BusOptions struct {
	SubscriberBufferSize int
}

func NewBus(options ...BusOptions) *Bus {
	bufSize := subscriberBufferSize
	if len(options) > 0 && options[0].SubscriberBufferSize > 0 {
		bufSize = options[0].SubscriberBufferSize
	}
	return &Bus{bufSize: bufSize}
}

// Publish sends an event to all current subscribers. Events published
// after Close are dropped.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		sub.send(event)
	}
}

// Subscribe registers a subscriber. The returned subscription must be
// closed when done.
func (b *Bus) Subscribe() *BusSubscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &BusSubscription{
		bus: b,
		ch:  make(chan Event, b.bufSize),
	}
	if b.closed {
		sub.close()
		return sub
	}
	b.subs = append(b.subs, sub)
	return sub
}

// Close shuts down the bus and all subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.closed = true
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

func (b *Bus) unsubscribe(sub *BusSubscription) {
	b.mu.Lock()
	for i, candidate := range b.subs {
		if candidate == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
}

// BusSubscription receives session events.
type BusSubscription struct {
	bus *Bus
	ch  chan Event

	mu     sync.Mutex
	closed bool
}

// Events returns the channel of events for this subscription.
func (s *BusSubscription) Events() <-chan Event {
	return s.ch
}

// Close unsubscribes and releases resources.
func (s *BusSubscription) Close() {
	s.bus.unsubscribe(s)
	s.close()
}

func (s *BusSubscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// send delivers an event, dropping it when the subscription is closed
// or its buffer is full.
func (s *BusSubscription) send(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.ch <- event:
	default:
	}
}
