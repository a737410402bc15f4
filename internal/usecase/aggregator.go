package usecase

import (
	"time"

	"pairstream/internal/domain/models"
	domrepo "pairstream/internal/domain/repository"
)

// Aggregator folds an ordered tick sequence for one symbol into fixed-width
// OHLCV buckets. It is not safe for concurrent use: exactly one pipeline
// goroutine owns the open candle.
type Aggregator struct {
	symbol     string
	intervalMS int64
	open       *models.Candle
	metrics    domrepo.Metrics
	dropped    uint64
}

// NewAggregator creates an aggregator with the given bucket interval.
func NewAggregator(symbol string, interval time.Duration, metrics domrepo.Metrics) *Aggregator {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Aggregator{
		symbol:     symbol,
		intervalMS: interval.Milliseconds(),
		metrics:    metrics,
	}
}

// Feed folds one tick into the open bucket. It returns (candle, true) when
// the tick crosses a bucket boundary and closes the previous candle.
// Late ticks (bucket earlier than the open candle) are dropped and counted;
// the aggregator only moves forward in time.
func (a *Aggregator) Feed(t models.Tick) (models.Candle, bool) {
	bucket := (t.Timestamp / a.intervalMS) * a.intervalMS

	if a.open == nil {
		a.open = a.newCandle(bucket, t)
		return models.Candle{}, false
	}

	switch {
	case bucket == a.open.BucketStart:
		if t.Price > a.open.High {
			a.open.High = t.Price
		}
		if t.Price < a.open.Low {
			a.open.Low = t.Price
		}
		a.open.Close = t.Price
		a.open.Volume += t.Size
		a.open.TickCount++
		return models.Candle{}, false

	case bucket > a.open.BucketStart:
		closed := *a.open
		a.open = a.newCandle(bucket, t)
		return closed, true

	default:
		// late arrival; never mutate the open candle
		a.dropped++
		if a.metrics != nil {
			a.metrics.RecordDroppedTick(a.symbol, "late")
		}
		return models.Candle{}, false
	}
}

// Flush force-closes the in-progress candle, used at shutdown. Buckets with
// zero ticks are never emitted.
func (a *Aggregator) Flush() (models.Candle, bool) {
	if a.open == nil {
		return models.Candle{}, false
	}
	closed := *a.open
	a.open = nil
	return closed, true
}

// Reset discards the open candle. A restarted pipeline must not resume a
// bucket opened before the fault.
func (a *Aggregator) Reset() {
	a.open = nil
}

// Dropped returns the count of rejected late ticks.
func (a *Aggregator) Dropped() uint64 { return a.dropped }

func (a *Aggregator) newCandle(bucket int64, t models.Tick) *models.Candle {
	return &models.Candle{
		Symbol:      a.symbol,
		BucketStart: bucket,
		Open:        t.Price,
		High:        t.Price,
		Low:         t.Price,
		Close:       t.Price,
		Volume:      t.Size,
		TickCount:   1,
	}
}
