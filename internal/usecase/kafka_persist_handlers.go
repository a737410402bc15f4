package usecase

import (
	"context"
	"encoding/json"
	"time"

	"pairstream/internal/domain/models"
	domrepo "pairstream/internal/domain/repository"
	pkgkafka "pairstream/pkg/kafka"
)

// TickPersistHandler consumes the tick persistence topic and lands rows in
// storage. Errors bubble up so the consumer's retry and DLQ policy applies.
type TickPersistHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

func NewTickPersistHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *TickPersistHandler {
	return &TickPersistHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *TickPersistHandler) Topic() string { return h.topic }

func (h *TickPersistHandler) Handle(ctx context.Context, b []byte) error {
	var t models.Tick
	if err := json.Unmarshal(b, &t); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(t.Time()).Seconds())

	start := time.Now()
	err := h.storage.StoreTick(ctx, t)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent("clickhouse", "ticks")
	return nil
}

// CandlePersistHandler consumes closed candles and lands them in storage.
type CandlePersistHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

func NewCandlePersistHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *CandlePersistHandler {
	return &CandlePersistHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *CandlePersistHandler) Topic() string { return h.topic }

func (h *CandlePersistHandler) Handle(ctx context.Context, b []byte) error {
	var c models.Candle
	if err := json.Unmarshal(b, &c); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	start := time.Now()
	err := h.storage.StoreCandle(ctx, c)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent("clickhouse", "candles")
	return nil
}

var (
	_ pkgkafka.MessageHandler = (*TickPersistHandler)(nil)
	_ pkgkafka.MessageHandler = (*CandlePersistHandler)(nil)
)
