package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairstream/internal/domain/models"
)

func tick(ts int64, price, size float64) models.Tick {
	return models.Tick{Symbol: "btcusdt", Timestamp: ts, Price: price, Size: size}
}

func TestAggregatorSingleBucket(t *testing.T) {
	agg := NewAggregator("btcusdt", time.Minute, nil)

	_, closed := agg.Feed(tick(0, 100, 1))
	assert.False(t, closed)
	_, closed = agg.Feed(tick(30_000, 101, 2))
	assert.False(t, closed)

	c, closed := agg.Feed(tick(61_000, 99, 0.5))
	require.True(t, closed)
	assert.Equal(t, int64(0), c.BucketStart)
	assert.Equal(t, 100.0, c.Open)
	assert.Equal(t, 101.0, c.High)
	assert.Equal(t, 100.0, c.Low)
	assert.Equal(t, 101.0, c.Close)
	assert.Equal(t, 3.0, c.Volume)
	assert.Equal(t, 2, c.TickCount)
}

func TestAggregatorHighLowClose(t *testing.T) {
	agg := NewAggregator("btcusdt", time.Second, nil)

	agg.Feed(tick(1000, 50, 1))
	agg.Feed(tick(1100, 55, 1))
	agg.Feed(tick(1200, 45, 1))
	agg.Feed(tick(1900, 52, 1))

	c, closed := agg.Feed(tick(2000, 60, 1))
	require.True(t, closed)
	assert.Equal(t, 50.0, c.Open)
	assert.Equal(t, 55.0, c.High)
	assert.Equal(t, 45.0, c.Low)
	assert.Equal(t, 52.0, c.Close)
	assert.Equal(t, 4, c.TickCount)
}

func TestAggregatorLateTickDropped(t *testing.T) {
	rec := newRecorderStub()
	agg := NewAggregator("btcusdt", time.Second, rec)

	agg.Feed(tick(5000, 10, 1))
	c, closed := agg.Feed(tick(3000, 999, 1)) // bucket behind the open candle
	assert.False(t, closed)
	assert.Zero(t, c)
	assert.Equal(t, uint64(1), agg.Dropped())
	assert.Equal(t, 1, rec.droppedCount("btcusdt:late"))

	// open candle untouched by the late tick
	final, ok := agg.Flush()
	require.True(t, ok)
	assert.Equal(t, 10.0, final.High)
	assert.Equal(t, 1, final.TickCount)
}

func TestAggregatorSkipsEmptyBuckets(t *testing.T) {
	agg := NewAggregator("btcusdt", time.Second, nil)

	agg.Feed(tick(0, 1, 1))
	c, closed := agg.Feed(tick(10_000, 2, 1)) // nine empty buckets in between
	require.True(t, closed)
	assert.Equal(t, int64(0), c.BucketStart)

	next, ok := agg.Flush()
	require.True(t, ok)
	assert.Equal(t, int64(10_000), next.BucketStart)
}

func TestAggregatorFlush(t *testing.T) {
	agg := NewAggregator("btcusdt", time.Minute, nil)

	_, ok := agg.Flush()
	assert.False(t, ok)

	agg.Feed(tick(100, 42, 3))
	c, ok := agg.Flush()
	require.True(t, ok)
	assert.Equal(t, 42.0, c.Close)
	assert.Equal(t, 3.0, c.Volume)

	// second flush has nothing left
	_, ok = agg.Flush()
	assert.False(t, ok)
}
