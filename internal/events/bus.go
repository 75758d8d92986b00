package events

import (
	"sync"
)

// Bus is a lightweight pub/sub broker using channels.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Event][]chan any
	dropped map[Event]uint64
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		subs:    make(map[Event][]chan any),
		dropped: make(map[Event]uint64),
	}
}

// Subscribe registers a listener for an event and returns the channel and an unsubscribe function.
// Calling the unsubscribe function more than once is a no-op.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, buffer)
	b.subs[e] = append(b.subs[e], ch)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[e]
			for i, c := range subs {
				if c == ch {
					close(c)
					b.subs[e] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}

	return ch, unsub
}

// Publish fans the payload out without blocking; slow subscribers miss events.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	subs := b.subs[e]
	var missed uint64
	for _, ch := range subs {
		select {
		case ch <- payload:
		default:
			missed++
		}
	}
	b.mu.RUnlock()

	if missed > 0 {
		b.mu.Lock()
		b.dropped[e] += missed
		b.mu.Unlock()
	}
}

// Subscribers returns the number of live subscriptions for e.
func (b *Bus) Subscribers(e Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[e])
}

// Dropped returns how many deliveries for e were skipped because a subscriber was full.
func (b *Bus) Dropped(e Event) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped[e]
}
