package usecase

import (
	"context"
	"fmt"
	"time"

	"pairstream/internal/domain/models"
	domrepo "pairstream/internal/domain/repository"
	"pairstream/pkg/util"
)

// CandleHistory serves candle history queries with bounds clamping.
type CandleHistory struct {
	store domrepo.CandleStore
}

func NewCandleHistory(store domrepo.CandleStore) *CandleHistory {
	return &CandleHistory{store: store}
}

type HistoryParams struct {
	Symbol    string
	From      time.Time
	To        time.Time
	Timeframe domrepo.Timeframe
	Limit     int
}

type HistoryResult struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"tf"`
	Count     int             `json:"count"`
	Candles   []models.Candle `json:"candles"`
}

// Range returns candles inside [From, To], oldest first, capped at Limit.
func (h *CandleHistory) Range(ctx context.Context, p HistoryParams) (*HistoryResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	limit := clampLimit(p.Limit)
	from, to := util.AlignFromTo(p.From, p.To, string(p.Timeframe))

	candles, err := h.store.GetCandles(ctx, p.Symbol, from, to, p.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if len(candles) > limit {
		candles = candles[:limit]
	}
	return &HistoryResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		Count:     len(candles),
		Candles:   candles,
	}, nil
}

// Latest returns the most recent n candles, oldest first.
func (h *CandleHistory) Latest(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) (*HistoryResult, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	candles, err := h.store.GetLatestNCandles(ctx, symbol, clampLimit(n), tf)
	if err != nil {
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	return &HistoryResult{
		Symbol:    symbol,
		Timeframe: string(tf),
		Count:     len(candles),
		Candles:   candles,
	}, nil
}

func clampLimit(n int) int {
	if n <= 0 {
		return 10000
	}
	if n > 50000 {
		return 50000
	}
	return n
}
