package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"pairstream/internal/domain/models"
	domrepo "pairstream/internal/domain/repository"
	pkgch "pairstream/pkg/clickhouse"
)

// Schema statements are idempotent; Init runs them on every boot.
var schemaStatements = []string{
	`CREATE DATABASE IF NOT EXISTS pairstream`,
	`CREATE TABLE IF NOT EXISTS pairstream.ticks (
        symbol LowCardinality(String),
        ts     DateTime64(3),
        price  Float64,
        size   Float64
    ) ENGINE = MergeTree()
    PARTITION BY toYYYYMMDD(ts)
    ORDER BY (symbol, ts)
    TTL toDateTime(ts) + INTERVAL 30 DAY`,
	`CREATE TABLE IF NOT EXISTS pairstream.candles (
        symbol     LowCardinality(String),
        tf         LowCardinality(String),
        bucket     DateTime64(3),
        open       Float64,
        high       Float64,
        low        Float64,
        close      Float64,
        vol        Float64,
        tick_count UInt32
    ) ENGINE = ReplacingMergeTree()
    PARTITION BY toYYYYMMDD(bucket)
    ORDER BY (symbol, tf, bucket)`,
}

// ClickHouseStorage is the durable sink for ticks and candles. Writes come
// from the Kafka consumer path, never from the hot path.
type ClickHouseStorage struct {
	db *sql.DB
	ch *pkgch.Client
	tf domrepo.Timeframe
}

// NewClickHouseStorage creates storage over an established client. tf labels
// persisted candles with the pipeline's configured resolution.
func NewClickHouseStorage(ch *pkgch.Client, tf domrepo.Timeframe) domrepo.Storage {
	return &ClickHouseStorage{db: ch.DB(), ch: ch, tf: tf}
}

func (s *ClickHouseStorage) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, schemaStatements)
}

func (s *ClickHouseStorage) StoreTick(ctx context.Context, t models.Tick) error {
	return s.StoreTickBatch(ctx, []models.Tick{t})
}

// StoreTickBatch inserts ticks in chunks to bound statement size.
func (s *ClickHouseStorage) StoreTickBatch(ctx context.Context, ticks []models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	const chunkSize = 2000
	for start := 0; start < len(ticks); start += chunkSize {
		end := start + chunkSize
		if end > len(ticks) {
			end = len(ticks)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*4)
		for _, t := range ticks[start:end] {
			if t.Symbol == "" || t.Timestamp <= 0 {
				continue
			}
			values = append(values, "(?, ?, ?, ?)")
			args = append(args, t.Symbol, t.Time(), t.Price, t.Size)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO pairstream.ticks (symbol, ts, price, size) VALUES %s",
			strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("store ticks: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseStorage) StoreCandle(ctx context.Context, c models.Candle) error {
	const q = `INSERT INTO pairstream.candles
        (symbol, tf, bucket, open, high, low, close, vol, tick_count)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		c.Symbol, string(s.tf), c.Bucket(),
		c.Open, c.High, c.Low, c.Close, c.Volume, uint32(c.TickCount),
	)
	if err != nil {
		return fmt.Errorf("store candle: %w", err)
	}
	return nil
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseStorage) Close() error {
	// pool lifetime is owned by the client
	return nil
}
