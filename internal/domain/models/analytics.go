package models

import (
	"fmt"
	"strings"
)

// Pair identifies a pair of instruments for spread analytics.
// Y is regressed on X: spread = Y - beta*X.
type Pair struct {
	Y string
	X string
}

// ID returns the canonical pair topic key, e.g. "btcusdt:ethusdt".
func (p Pair) ID() string { return p.Y + ":" + p.X }

// ParsePair parses "y:x" into a Pair.
func ParsePair(s string) (Pair, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, fmt.Errorf("invalid pair %q, want \"y:x\"", s)
	}
	return Pair{Y: strings.ToLower(parts[0]), X: strings.ToLower(parts[1])}, nil
}

// AnalyticsSnapshot is the result of one incremental stats update for a
// pair. Ready is false until the rolling window has filled with a
// non-degenerate series; consumers must not interpret the values before
// then. Degenerate windows (zero variance in either leg, the spread, or
// the per-step returns) report zero z-score and correlation with Ready
// false.
type AnalyticsSnapshot struct {
	PairID      string  `json:"pair_id"`
	Timestamp   int64   `json:"t"` // ms
	HedgeRatio  float64 `json:"hedge_ratio"`
	Spread      float64 `json:"spread"`
	ZScore      float64 `json:"zscore"`
	Correlation float64 `json:"correlation"`
	Ready       bool    `json:"ready"`
}
