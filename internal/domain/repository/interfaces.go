package repository

import (
	"context"

	"pairstream/internal/domain/models"
)

// MarketStream is a resilient per-symbol tick feed. Start returns a lazy,
// unbounded tick sequence restartable only from "now"; ticks lost during an
// outage are never fabricated. The error channel carries terminal errors
// only; connection-level failures are retried internally with backoff.
type MarketStream interface {
	Start(ctx context.Context) (<-chan models.Tick, <-chan error)
	Stop() error
	IsConnected() bool
}

// TickPublisher emits ticks and candles to the async persistence
// collaborator. Implementations must never block the hot path beyond a
// bounded enqueue.
type TickPublisher interface {
	PublishTick(ctx context.Context, t models.Tick) error
	PublishTickBatch(ctx context.Context, ticks []models.Tick) error
	PublishCandle(ctx context.Context, c models.Candle) error
	Close() error
}

// SnapshotSink mirrors analytics snapshots and candles to an external
// live-update channel consumed by request-serving components.
type SnapshotSink interface {
	SendSnapshot(ctx context.Context, s models.AnalyticsSnapshot) error
	SendCandle(ctx context.Context, c models.Candle) error
	Close() error
}

// Storage is the durable store for ticks and candles.
type Storage interface {
	Init(ctx context.Context) error
	StoreTick(ctx context.Context, t models.Tick) error
	StoreTickBatch(ctx context.Context, ticks []models.Tick) error
	StoreCandle(ctx context.Context, c models.Candle) error
	Health(ctx context.Context) error
	Close() error
}

// Metrics is the observability surface for the pipeline. Transient network
// errors, malformed input, numeric edge cases, and backpressure drops are
// visible only through these counters, never as errors.
type Metrics interface {
	RecordMessageSent(backend, topic string)
	RecordError(kind string)
	RecordGap(symbol string)
	RecordDroppedTick(symbol, reason string)
	RecordBrokerDrop(topic string)
	RecordRestart(unit string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
