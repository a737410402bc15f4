package usecase

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairstream/internal/domain/models"
)

var testPair = models.Pair{Y: "ethusdt", X: "btcusdt"}

func TestStatsEngineWarmup(t *testing.T) {
	e := NewStatsEngine(testPair, 3, 1000, nil)

	// y = 2x + {0.1, -0.1, 0.2}
	s := e.Feed(2.1, 1, 1)
	assert.False(t, s.Ready)
	s = e.Feed(3.9, 2, 2)
	assert.False(t, s.Ready)

	s = e.Feed(8.2, 4, 3)
	assert.True(t, s.Ready)
	assert.Equal(t, "ethusdt:btcusdt", s.PairID)
	assert.InDelta(t, 2.05, s.HedgeRatio, 1e-9)
	assert.InDelta(t, 0.0, s.Spread, 1e-9)
	// spread window is {0, 0.3, 0}: z = (0 - 0.1) / sqrt(0.02)
	assert.InDelta(t, -1/math.Sqrt2, s.ZScore, 1e-9)
	assert.InDelta(t, 1.0, s.Correlation, 1e-9)
}

func TestStatsEngineConstantPair(t *testing.T) {
	e := NewStatsEngine(testPair, 4, 1000, nil)

	var s models.AnalyticsSnapshot
	for i := 0; i < 10; i++ {
		s = e.Feed(100, 50, int64(i))
	}
	// flat legs never become ready: the full window has zero variance
	assert.False(t, s.Ready)
	assert.InDelta(t, 2.0, s.HedgeRatio, 1e-9) // mean price ratio fallback
	assert.InDelta(t, 0.0, s.Spread, 1e-9)
	assert.InDelta(t, 0.0, s.ZScore, 1e-9)
	assert.InDelta(t, 0.0, s.Correlation, 1e-9)
}

func TestStatsEngineRejectsNonFinite(t *testing.T) {
	rec := newRecorderStub()
	e := NewStatsEngine(testPair, 3, 1000, rec)

	e.Feed(1, 2, 1)
	s := e.Feed(math.NaN(), 2, 2)
	assert.False(t, s.Ready)
	assert.Zero(t, s.HedgeRatio)
	assert.Equal(t, 1, rec.errorCount("stats_nan_input"))

	s = e.Feed(3, math.Inf(1), 3)
	assert.False(t, s.Ready)
	assert.Equal(t, 2, rec.errorCount("stats_nan_input"))

	// rejected inputs never entered the windows
	assert.Equal(t, 1, e.Observations())
}

func TestStatsEngineMatchesNaiveRecomputation(t *testing.T) {
	const window = 16
	e := NewStatsEngine(testPair, window, 1000, nil)
	naive := NewStatsEngine(testPair, window, 1, nil) // recompute on every update

	var last models.AnalyticsSnapshot
	var lastNaive models.AnalyticsSnapshot
	for i := 0; i < 400; i++ {
		y := 2000 + 40*math.Sin(float64(i)/7) + float64(i%5)
		x := 30000 + 500*math.Sin(float64(i)/7) + float64(i%3)
		last = e.Feed(y, x, int64(i))
		lastNaive = naive.Feed(y, x, int64(i))
	}

	require.True(t, last.Ready)
	assert.InDelta(t, lastNaive.HedgeRatio, last.HedgeRatio, 1e-6)
	assert.InDelta(t, lastNaive.Spread, last.Spread, 1e-6)
	assert.InDelta(t, lastNaive.ZScore, last.ZScore, 1e-6)
	assert.InDelta(t, lastNaive.Correlation, last.Correlation, 1e-6)
}

func TestStatsEngineReset(t *testing.T) {
	e := NewStatsEngine(testPair, 3, 1000, nil)
	for i := 0; i < 5; i++ {
		e.Feed(float64(i+1), float64(i+2), int64(i))
	}
	require.True(t, e.Observations() >= 3)

	e.Reset()
	assert.Zero(t, e.Observations())
	s := e.Feed(1, 1, 10)
	assert.False(t, s.Ready)
}

func TestStatsEngineSlidingWindowEviction(t *testing.T) {
	const window = 4
	e := NewStatsEngine(testPair, window, 1000, nil)

	// old regime, then a new one; after window observations of the new
	// regime the old one must have no influence
	for i := 0; i < 20; i++ {
		e.Feed(float64(i), float64(2*i), int64(i))
	}
	fresh := NewStatsEngine(testPair, window, 1000, nil)
	var a, b models.AnalyticsSnapshot
	for i := 16; i < 20; i++ {
		b = fresh.Feed(float64(i), float64(2*i), int64(i))
	}
	a = e.Feed(20, 40, 20)
	b = fresh.Feed(20, 40, 20)
	assert.InDelta(t, b.HedgeRatio, a.HedgeRatio, 1e-9)
	assert.InDelta(t, b.Spread, a.Spread, 1e-9)
}
