package bus

import (
	"strings"
	"sync"
)

// Bus is the in-process pub/sub surface between the sync core and its
// observers. Topics are hierarchical strings ("conn.connected",
// "state.message_upserted") and subscribers filter by prefix, so one
// subscription can watch a whole namespace.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscriber
}

type subscriber struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]subscriber)}
}

// Publish fans the event out to every matching subscriber. Delivery is
// non-blocking: a subscriber that stopped draining its channel loses
// events rather than stalling the publisher.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
		}
	}
}

// Subscribe registers interest in every event whose kind starts with
// prefix. It returns the delivery channel and an unsubscribe function;
// the caller owns draining the channel.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscriber{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
