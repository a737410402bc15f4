package repository

import (
	"context"

	"pairstream/internal/domain/models"
	domrepo "pairstream/internal/domain/repository"
	pkgkafka "pairstream/pkg/kafka"
)

// KafkaPublisher forwards ticks and candles onto the persistence topics.
// Messages are keyed by symbol so per-symbol order survives partitioning.
type KafkaPublisher struct {
	producer    *pkgkafka.Producer
	tickTopic   string
	candleTopic string
	metrics     domrepo.Metrics
}

func NewKafkaPublisher(producer *pkgkafka.Producer, tickTopic, candleTopic string, metrics domrepo.Metrics) domrepo.TickPublisher {
	return &KafkaPublisher{
		producer:    producer,
		tickTopic:   tickTopic,
		candleTopic: candleTopic,
		metrics:     metrics,
	}
}

func (p *KafkaPublisher) PublishTick(ctx context.Context, t models.Tick) error {
	err := p.producer.Publish(ctx, p.tickTopic, []byte(t.Symbol), t)
	if err == nil && p.metrics != nil {
		p.metrics.RecordMessageSent("kafka", p.tickTopic)
	}
	return err
}

func (p *KafkaPublisher) PublishTickBatch(ctx context.Context, ticks []models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(ticks))
	for _, t := range ticks {
		msgs = append(msgs, pkgkafka.Message{Key: []byte(t.Symbol), Value: t})
	}
	err := p.producer.PublishBatch(ctx, p.tickTopic, msgs)
	if err == nil && p.metrics != nil {
		for range ticks {
			p.metrics.RecordMessageSent("kafka", p.tickTopic)
		}
	}
	return err
}

func (p *KafkaPublisher) PublishCandle(ctx context.Context, c models.Candle) error {
	err := p.producer.Publish(ctx, p.candleTopic, []byte(c.Symbol), c)
	if err == nil && p.metrics != nil {
		p.metrics.RecordMessageSent("kafka", p.candleTopic)
	}
	return err
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
