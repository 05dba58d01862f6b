// Package bus is an in-process publish/subscribe channel keyed by topic.
// Independent screen sessions use it to converge on the same order state
// without sharing a store.
package bus

import (
	"sync"
	"time"
)

// Disposer removes a subscription. Calling it more than once is a no-op.
type Disposer func()

// Message is one delivery on a topic.
type Message[T any] struct {
	Topic     string
	Timestamp time.Time
	Payload   T
}

type subscriber[T any] struct {
	id int
	fn func(Message[T])
}

// Bus fans a typed payload out to the subscribers of a topic.
type Bus[T any] struct {
	mu     sync.RWMutex
	topics map[string][]subscriber[T]
	nextID int
}

// New creates an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{topics: make(map[string][]subscriber[T])}
}

// Subscribe registers fn for topic and returns its disposer.
func (b *Bus[T]) Subscribe(topic string, fn func(Message[T])) Disposer {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.topics[topic] = append(b.topics[topic], subscriber[T]{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(topic, id) })
	}
}

func (b *Bus[T]) unsubscribe(topic string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[topic]
	for i, s := range subs {
		if s.id == id {
			b.topics[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.topics[topic]) == 0 {
		delete(b.topics, topic)
	}
}

// Publish delivers payload synchronously to every subscriber of topic.
// Handlers run outside the bus lock, so they may subscribe or dispose.
func (b *Bus[T]) Publish(topic string, payload T) {
	b.mu.RLock()
	subs := make([]subscriber[T], len(b.topics[topic]))
	copy(subs, b.topics[topic])
	b.mu.RUnlock()

	msg := Message[T]{Topic: topic, Timestamp: time.Now(), Payload: payload}
	for _, s := range subs {
		s.fn(msg)
	}
}

// Subscribers returns the number of live subscriptions on topic.
func (b *Bus[T]) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
