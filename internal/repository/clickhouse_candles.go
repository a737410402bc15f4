package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pairstream/internal/domain/models"
	domrepo "pairstream/internal/domain/repository"
	pkgch "pairstream/pkg/clickhouse"
	applogger "pairstream/pkg/logger"
)

// CHCandleStore serves the candle history endpoints from ClickHouse.
type CHCandleStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client) *CHCandleStore {
	return &CHCandleStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHCandleStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHCandleStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	const q = `
        SELECT symbol, bucket, open, high, low, close, vol, tick_count
        FROM pairstream.candles
        WHERE symbol = ? AND tf = ? AND bucket >= ? AND bucket <= ?
        ORDER BY bucket ASC
    `
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), from, to)
	if err != nil {
		s.logError("candles range query error", symbol, tf, err)
		return nil, fmt.Errorf("get candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 1024)
	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			s.logError("candles range scan error", symbol, tf, err)
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		s.logError("candles range rows error", symbol, tf, err)
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.logOK("candles range ok", symbol, tf, len(out), time.Since(start))
	return out, nil
}

func (s *CHCandleStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	const q = `
        SELECT symbol, bucket, open, high, low, close, vol, tick_count
        FROM pairstream.candles
        WHERE symbol = ? AND tf = ?
        ORDER BY bucket DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), n)
	if err != nil {
		s.logError("latest candles query error", symbol, tf, err)
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.Candle, 0, n)
	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			s.logError("latest candles scan error", symbol, tf, err)
			return nil, err
		}
		tmp = append(tmp, c)
	}
	if err := rows.Err(); err != nil {
		s.logError("latest candles rows error", symbol, tf, err)
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	s.logOK("latest candles ok", symbol, tf, len(tmp), time.Since(start))
	return tmp, nil
}

func scanCandle(rows *sql.Rows) (models.Candle, error) {
	var c models.Candle
	var bucket time.Time
	var ticks uint32
	if err := rows.Scan(&c.Symbol, &bucket, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &ticks); err != nil {
		return models.Candle{}, fmt.Errorf("scan candle: %w", err)
	}
	c.BucketStart = bucket.UnixMilli()
	c.TickCount = int(ticks)
	return c, nil
}

func (s *CHCandleStore) logError(msg, symbol string, tf domrepo.Timeframe, err error) {
	if s.l == nil {
		return
	}
	s.l.Error("clickhouse "+msg,
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Error(err),
	)
}

func (s *CHCandleStore) logOK(msg, symbol string, tf domrepo.Timeframe, n int, d time.Duration) {
	if s.l == nil {
		return
	}
	s.l.Debug("clickhouse "+msg,
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", n),
		applogger.Duration("duration_ms", d),
	)
}
