package repository

import (
	"context"
	"time"

	"pairstream/internal/domain/models"
)

// CandleStore provides read-only candle access for the history endpoint.
type CandleStore interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
}
