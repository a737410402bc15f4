package models

import "time"

// Tick is a single normalized trade observation from the upstream feed.
// Immutable once created; timestamps are exchange-reported unix milliseconds.
type Tick struct {
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"t"` // ms
	Price     float64 `json:"p"`
	Size      float64 `json:"q"`
}

// Time returns the tick timestamp as time.Time.
func (t Tick) Time() time.Time { return time.UnixMilli(t.Timestamp) }

// Candle is the OHLCV summary of all ticks inside one fixed bucket.
// Mutable only while its bucket is open; the owning aggregator goroutine is
// the single writer.
type Candle struct {
	Symbol      string  `json:"symbol"`
	BucketStart int64   `json:"bucket_start"` // ms, floored to the interval
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
	TickCount   int     `json:"tick_count"`
}

// Bucket returns the candle bucket start as time.Time.
func (c Candle) Bucket() time.Time { return time.UnixMilli(c.BucketStart) }
