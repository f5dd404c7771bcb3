package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

const DefaultBuffer = 64

// Subscription receives events in publish order until closed.
type Subscription struct {
	id      uint64
	ch      chan Event
	b       *Broadcaster
	dropped atomic.Uint64
	once    sync.Once
}

func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped returns how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription) Close() {
	s.b.remove(s)
}

// Broadcaster fans events out to subscribers without ever blocking the
// publisher.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	closed bool
	logger *slog.Logger
}

func NewBroadcaster(buffer int, logger *slog.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	return &Broadcaster{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new observer. After Close the returned subscription
// is already closed.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	s := &Subscription{id: b.nextID, ch: make(chan Event, b.buffer), b: b}
	if b.closed {
		s.once.Do(func() { close(s.ch) })

		return s
	}
	b.subs[s.id] = s

	return s
}

func (b *Broadcaster) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, s := range b.subs {
		select {
		case s.ch <- e:
		default:
			if s.dropped.Add(1) == 1 {
				b.logger.Warn("event subscriber is lagging, dropping events",
					slog.Uint64("subscriber", s.id),
					slog.String("type", string(e.Type)),
				)
			}
		}
	}
}

// Len returns the number of live subscriptions.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}

// Close closes every subscription; later publishes are ignored.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		s.once.Do(func() { close(s.ch) })
	}
}

func (b *Broadcaster) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subs, s.id)
	s.once.Do(func() { close(s.ch) })
}
