package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pairstream/internal/domain/models"
	domrepo "pairstream/internal/domain/repository"
)

// RedisSink publishes live updates over Redis pub/sub for out-of-process
// consumers (dashboards, alerting). In-process consumers use the broker.
type RedisSink struct {
	rdb             *redis.Client
	snapshotChannel string
	candleChannel   string
	metrics         domrepo.Metrics
}

func NewRedisSink(rdb *redis.Client, snapshotChannel, candleChannel string, metrics domrepo.Metrics) domrepo.SnapshotSink {
	return &RedisSink{
		rdb:             rdb,
		snapshotChannel: snapshotChannel,
		candleChannel:   candleChannel,
		metrics:         metrics,
	}
}

func (s *RedisSink) SendSnapshot(ctx context.Context, snap models.AnalyticsSnapshot) error {
	return s.publish(ctx, s.snapshotChannel, snap)
}

func (s *RedisSink) SendCandle(ctx context.Context, c models.Candle) error {
	return s.publish(ctx, s.candleChannel, c)
}

func (s *RedisSink) publish(ctx context.Context, channel string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal live update: %w", err)
	}
	if err := s.rdb.Publish(ctx, channel, b).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	if s.metrics != nil {
		s.metrics.RecordMessageSent("redis", channel)
	}
	return nil
}

func (s *RedisSink) Close() error { return nil }
