// Package broker implements the in-process topic fan-out registry between
// the pipeline and live subscribers.
package broker

import (
	"sync"

	domrepo "pairstream/internal/domain/repository"
)

// DropPolicy selects what to discard when a subscriber buffer is full.
type DropPolicy string

const (
	// DropNewest discards the message being published.
	DropNewest DropPolicy = "newest"
	// DropOldest evicts the oldest buffered message to make room.
	DropOldest DropPolicy = "oldest"
)

// ParseDropPolicy converts a config string to a DropPolicy, defaulting to newest.
func ParseDropPolicy(s string) DropPolicy {
	if DropPolicy(s) == DropOldest {
		return DropOldest
	}
	return DropNewest
}

// Message is one delivery to a topic subscriber.
type Message struct {
	Topic   string
	Payload interface{}
}

// Subscription is a live channel registered against one topic. The subscriber
// owns draining; the broker owns registration and closes the channel on
// Unsubscribe or broker Close.
type Subscription struct {
	topic string
	id    uint64
	ch    chan Message
}

// C returns the receive side of the subscription.
func (s *Subscription) C() <-chan Message { return s.ch }

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

// Option configures Broker.
type Option func(*Broker)

// WithBufferSize sets the default per-subscriber buffer size.
func WithBufferSize(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.bufSize = n
		}
	}
}

// WithDropPolicy sets the full-buffer drop policy.
func WithDropPolicy(p DropPolicy) Option {
	return func(b *Broker) { b.policy = p }
}

// WithMetrics attaches a drop/delivery counter sink.
func WithMetrics(m domrepo.Metrics) Option {
	return func(b *Broker) { b.metrics = m }
}

// Broker is a topic-keyed publish/subscribe registry. Publish is best-effort,
// at-most-once, and never blocks on a slow subscriber: a full buffer costs
// that subscriber one message (per the drop policy) and a counter increment,
// nothing more. Registry mutation takes the lock; delivery is a non-blocking
// per-subscriber send.
type Broker struct {
	mu      sync.RWMutex
	subs    map[string]map[uint64]*Subscription
	nextID  uint64
	bufSize int
	policy  DropPolicy
	metrics domrepo.Metrics
	closed  bool
}

// New creates a Broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		subs:    make(map[string]map[uint64]*Subscription),
		bufSize: 64,
		policy:  DropNewest,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a new subscription on topic. buf <= 0 uses the broker
// default. A subscription registered mid-publish is not guaranteed to receive
// the in-flight message.
func (b *Broker) Subscribe(topic string, buf int) *Subscription {
	if buf <= 0 {
		buf = b.bufSize
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s := &Subscription{topic: topic, ch: make(chan Message)}
		close(s.ch)
		return s
	}
	b.nextID++
	s := &Subscription{topic: topic, id: b.nextID, ch: make(chan Message, buf)}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]*Subscription)
	}
	b.subs[topic][s.id] = s
	return s
}

// Unsubscribe removes the subscription and closes its channel.
func (b *Broker) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[s.topic]
	if !ok {
		return
	}
	if _, ok := set[s.id]; !ok {
		return
	}
	delete(set, s.id)
	if len(set) == 0 {
		delete(b.subs, s.topic)
	}
	close(s.ch)
}

// Publish delivers payload to every subscriber currently registered on topic.
// Zero subscribers is a no-op. The caller never blocks and never sees an
// error; drops surface as counters only.
func (b *Broker) Publish(topic string, payload interface{}) {
	msg := Message{Topic: topic, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs[topic] {
		select {
		case s.ch <- msg:
			continue
		default:
		}
		if b.policy == DropOldest {
			// evict one, then retry once; a racing drain can still leave the
			// buffer full, in which case the message is dropped after all
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- msg:
				b.countDrop(topic)
				continue
			default:
			}
		}
		b.countDrop(topic)
	}
}

// SubscriberCount returns the number of live subscriptions on topic.
func (b *Broker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Close unregisters and closes every subscription; later publishes are no-ops.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, set := range b.subs {
		for _, s := range set {
			close(s.ch)
		}
		delete(b.subs, topic)
	}
}

func (b *Broker) countDrop(topic string) {
	if b.metrics != nil {
		b.metrics.RecordBrokerDrop(topic)
	}
}
