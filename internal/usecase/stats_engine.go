package usecase

import (
	"math"

	"pairstream/internal/domain/models"
	domrepo "pairstream/internal/domain/repository"
)

// epsilon bounds the degenerate-variance checks in the rolling windows.
const epsilon = 1e-12

func sqrt(v float64) float64 { return math.Sqrt(v) }

// StatsEngine maintains incremental pair analytics over the last N paired
// observations: OLS hedge ratio, spread, spread z-score, and correlation of
// per-step returns. All updates and evictions are O(1); every K updates the
// accumulators are recomputed from the raw ring buffers to bound drift.
//
// One goroutine owns a StatsEngine; Feed never returns an error and never
// panics outward. Numeric edge cases degrade to a ready=false snapshot.
type StatsEngine struct {
	pair           models.Pair
	window         int
	recomputeEvery int

	obs     *pairWindow   // (priceY, priceX)
	returns *pairWindow   // per-step (dY, dX)
	spreads *scalarWindow // spread values under the beta at insert time

	lastY, lastX float64
	seen         int
	updates      int

	metrics domrepo.Metrics
}

// NewStatsEngine creates a stats engine for one pair. window is the rolling
// observation count N; recomputeEvery is the full-resync cadence K.
func NewStatsEngine(pair models.Pair, window, recomputeEvery int, metrics domrepo.Metrics) *StatsEngine {
	if window < 2 {
		window = 2
	}
	if recomputeEvery <= 0 {
		recomputeEvery = 1000
	}
	return &StatsEngine{
		pair:           pair,
		window:         window,
		recomputeEvery: recomputeEvery,
		obs:            newPairWindow(window),
		returns:        newPairWindow(window - 1),
		spreads:        newScalarWindow(window),
		metrics:        metrics,
	}
}

// Pair returns the configured pair.
func (e *StatsEngine) Pair() models.Pair { return e.pair }

// Feed folds one paired observation and returns the updated snapshot.
// NaN/Inf inputs are dropped and reported as a ready=false snapshot carrying
// the previous state untouched.
func (e *StatsEngine) Feed(priceY, priceX float64, tsMS int64) models.AnalyticsSnapshot {
	if !finite(priceY) || !finite(priceX) {
		if e.metrics != nil {
			e.metrics.RecordError("stats_nan_input")
		}
		return models.AnalyticsSnapshot{PairID: e.pair.ID(), Timestamp: tsMS}
	}

	if e.seen > 0 {
		e.returns.Push(priceY-e.lastY, priceX-e.lastX)
	}
	e.obs.Push(priceY, priceX)
	e.lastY, e.lastX = priceY, priceX
	e.seen++
	e.updates++

	beta, betaOK := e.obs.Slope()
	if !betaOK {
		// zero x-variance: fall back to the mean price ratio so a flat pair
		// still yields beta 1 and spread 0 instead of a division fault
		if mx := e.obs.sumX; e.obs.size > 0 && mx != 0 {
			beta = e.obs.sumY / mx
		}
	}

	spread := priceY - beta*priceX
	e.spreads.Push(spread)

	// zero stddev degrades to 0 rather than a division fault
	spreadOK := false
	zscore := 0.0
	if std := sqrt(e.spreads.Variance()); std > epsilon {
		zscore = (spread - e.spreads.Mean()) / std
		spreadOK = true
	}

	corr, corrOK := e.returns.Correlation()

	if e.updates%e.recomputeEvery == 0 {
		e.obs.Recompute()
		e.returns.Recompute()
		e.spreads.Recompute()
	}

	return models.AnalyticsSnapshot{
		PairID:      e.pair.ID(),
		Timestamp:   tsMS,
		HedgeRatio:  beta,
		Spread:      spread,
		ZScore:      zscore,
		Correlation: corr,
		Ready:       e.seen >= e.window && betaOK && spreadOK && corrOK,
	}
}

// Reset clears all window state, used by the orchestrator on restart.
func (e *StatsEngine) Reset() {
	e.obs.Reset()
	e.returns.Reset()
	e.spreads.Reset()
	e.lastY, e.lastX = 0, 0
	e.seen, e.updates = 0, 0
}

// Observations returns how many paired observations have been folded in.
func (e *StatsEngine) Observations() int { return e.seen }

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
