package repository

import "time"

// Timeframe is a candle resolution bucket.
type Timeframe string

const (
	TF1s Timeframe = "1s"
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
)

// IsValidTimeframe reports whether tf is one of the supported buckets.
func IsValidTimeframe(tf Timeframe) bool {
	return tf == TF1s || tf == TF1m || tf == TF5m
}

// DefaultTimeframe is the bucket used when a request names none.
func DefaultTimeframe() Timeframe { return TF1m }

// NormalizeTimeframe maps a raw string onto a supported timeframe,
// falling back to the default for empty or unknown values.
func NormalizeTimeframe(s string) Timeframe {
	if tf := Timeframe(s); IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Duration returns the bucket width for the timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1s:
		return time.Second
	case TF5m:
		return 5 * time.Minute
	default:
		return time.Minute
	}
}
