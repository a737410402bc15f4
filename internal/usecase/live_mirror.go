package usecase

import (
	"context"
	"time"

	"pairstream/internal/domain/models"
	domrepo "pairstream/internal/domain/repository"
	"pairstream/internal/service/broker"
	"pairstream/pkg/cache"
)

// LiveMirror subscribes to a set of broker topics and mirrors every message
// outward: the latest value per topic goes to the last-value cache (serving
// the HTTP latest endpoint) and to the external live channel. It is an
// ordinary broker subscriber: a slow mirror loses messages to the drop
// policy, never stalling the pipeline.
type LiveMirror struct {
	topics  []string
	brk     *broker.Broker
	cache   cache.Service
	sink    domrepo.SnapshotSink
	metrics domrepo.Metrics
	buf     int
	ttl     time.Duration
}

// NewLiveMirror creates a mirror over the given topics. cache and sink are
// both optional; a nil sink disables the external channel.
func NewLiveMirror(
	topics []string,
	brk *broker.Broker,
	c cache.Service,
	sink domrepo.SnapshotSink,
	metrics domrepo.Metrics,
	buf int,
) *LiveMirror {
	return &LiveMirror{
		topics:  topics,
		brk:     brk,
		cache:   c,
		sink:    sink,
		metrics: metrics,
		buf:     buf,
		ttl:     5 * time.Minute,
	}
}

// Run blocks until ctx is cancelled, one goroutine per subscribed topic.
func (m *LiveMirror) Run(ctx context.Context) error {
	for _, topic := range m.topics {
		sub := m.brk.Subscribe(topic, m.buf)
		go m.drain(ctx, sub)
	}
	<-ctx.Done()
	return nil
}

func (m *LiveMirror) drain(ctx context.Context, sub *broker.Subscription) {
	defer m.brk.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			m.relay(ctx, msg)
		}
	}
}

func (m *LiveMirror) relay(ctx context.Context, msg broker.Message) {
	if m.cache != nil {
		if err := m.cache.Set(ctx, "latest:"+msg.Topic, msg.Payload, m.ttl); err != nil {
			m.countError("mirror_cache")
		}
	}
	if m.sink == nil {
		return
	}
	var err error
	switch v := msg.Payload.(type) {
	case models.AnalyticsSnapshot:
		err = m.sink.SendSnapshot(ctx, v)
	case models.Candle:
		err = m.sink.SendCandle(ctx, v)
	default:
		return
	}
	if err != nil {
		m.countError("mirror_sink")
	}
}

func (m *LiveMirror) countError(kind string) {
	if m.metrics != nil {
		m.metrics.RecordError(kind)
	}
}
