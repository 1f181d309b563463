// Package bus provides a bounded, multi-consumer fan-out channel.
//
// Publish never blocks. With no subscribers the value is discarded. When a
// subscriber's buffer is full its oldest buffered value is evicted to make
// room, so a slow reader sees the most recent values in emission order with
// gaps instead of stalling the producer.
package bus

import (
	"sync"
	"sync/atomic"

	"codeberg.org/mutker/vibesd/internal/errors"
)

const DefaultBuffer = 16

const (
	ErrSubscriberExists = errors.ErrorCode("bus_subscriber_exists")
	ErrBusClosed        = errors.ErrorCode("bus_closed")
)

// Stats is a point-in-time view of bus counters.
type Stats struct {
	Published   uint64
	Delivered   uint64
	Dropped     uint64
	Subscribers int
}

// Bus distributes values of type T to every live subscriber.
type Bus[T any] struct {
	buffer int

	mu     sync.RWMutex
	subs   map[string]*Subscription[T]
	closed bool

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// Subscription is a single consumer's view of a Bus.
type Subscription[T any] struct {
	id  string
	bus *Bus[T]
	ch  chan T

	// serializes evict+send between concurrent publishers
	sendMu  sync.Mutex
	dropped atomic.Uint64
	once    sync.Once
}

// New creates a bus whose subscribers each buffer up to buffer values.
func New[T any](buffer int) *Bus[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	return &Bus[T]{
		buffer: buffer,
		subs:   make(map[string]*Subscription[T]),
	}
}

// Subscribe registers a new consumer under id.
func (b *Bus[T]) Subscribe(id string) (*Subscription[T], error) {
	errFactory := errors.New()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errFactory.New(ErrBusClosed)
	}
	if _, exists := b.subs[id]; exists {
		return nil, errFactory.WithData(ErrSubscriberExists, id)
	}

	sub := &Subscription[T]{
		id:  id,
		bus: b,
		ch:  make(chan T, b.buffer),
	}
	b.subs[id] = sub

	return sub, nil
}

// Publish fans v out to all subscribers and returns how many received it.
// It never blocks.
func (b *Bus[T]) Publish(v T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}

	b.published.Add(1)

	n := 0
	for _, sub := range b.subs {
		if sub.offer(v) {
			n++
		}
	}
	b.delivered.Add(uint64(n))

	return n
}

// Len returns the number of live subscribers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}

// Stats returns the current counters.
func (b *Bus[T]) Stats() Stats {
	return Stats{
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Dropped:     b.dropped.Load(),
		Subscribers: b.Len(),
	}
}

// Close detaches every subscriber and closes their channels. Later
// Publish calls are no-ops.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.closeChan()
	}
}

func (b *Bus[T]) unsubscribe(sub *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cur, ok := b.subs[sub.id]; ok && cur == sub {
		delete(b.subs, sub.id)
	}
	sub.closeChan()
}

// C returns the receive side of the subscription. It is closed when the
// subscription or the bus is closed.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// ID returns the subscriber id.
func (s *Subscription[T]) ID() string {
	return s.id
}

// Dropped returns how many values were evicted from this subscriber.
func (s *Subscription[T]) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.bus.unsubscribe(s)
}

func (s *Subscription[T]) closeChan() {
	s.once.Do(func() { close(s.ch) })
}

// offer is called with the bus read lock held, so the channel is open.
func (s *Subscription[T]) offer(v T) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	select {
	case s.ch <- v:
		return true
	default:
	}

	// full: evict the oldest value, then retry once
	select {
	case <-s.ch:
		s.dropped.Add(1)
		s.bus.dropped.Add(1)
	default:
	}

	select {
	case s.ch <- v:
		return true
	default:
		s.dropped.Add(1)
		s.bus.dropped.Add(1)
		return false
	}
}
