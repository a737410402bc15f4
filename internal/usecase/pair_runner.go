package usecase

import (
	"context"

	"pairstream/internal/domain/models"
	"pairstream/internal/service/broker"
)

// StatsSource selects what the stats engine consumes.
type StatsSource string

const (
	// SourceCandles feeds the engine with closed-candle close prices.
	SourceCandles StatsSource = "candles"
	// SourceTicks feeds the engine with raw tick prices.
	SourceTicks StatsSource = "ticks"
)

// PairRunner consumes both legs of a pair from the broker, holds the latest
// price per leg, and feeds the stats engine whenever either leg updates and
// both have been seen. Snapshots go back out through the broker on the
// pair's analytics topic.
type PairRunner struct {
	engine *StatsEngine
	brk    *broker.Broker
	source StatsSource
	buf    int
}

// NewPairRunner creates a runner for engine's pair.
func NewPairRunner(engine *StatsEngine, brk *broker.Broker, source StatsSource, buf int) *PairRunner {
	if source != SourceTicks {
		source = SourceCandles
	}
	return &PairRunner{engine: engine, brk: brk, source: source, buf: buf}
}

// PairID identifies the runner's pair, e.g. "ethusdt:btcusdt".
func (r *PairRunner) PairID() string { return r.engine.Pair().ID() }

// Run subscribes to both legs and blocks until ctx is cancelled or the
// subscriptions are closed. Window state is cleared on entry so a restarted
// runner always begins from a clean, ready=false warm-up.
func (r *PairRunner) Run(ctx context.Context) error {
	r.engine.Reset()
	pair := r.engine.Pair()

	topicY, topicX := r.topicFor(pair.Y), r.topicFor(pair.X)
	subY := r.brk.Subscribe(topicY, r.buf)
	subX := r.brk.Subscribe(topicX, r.buf)
	defer r.brk.Unsubscribe(subY)
	defer r.brk.Unsubscribe(subX)

	var lastY, lastX float64
	var haveY, haveX bool

	step := func(ts int64) {
		snap := r.engine.Feed(lastY, lastX, ts)
		r.brk.Publish(broker.AnalyticsTopic(pair.ID()), snap)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-subY.C():
			if !ok {
				return nil
			}
			price, ts, valid := extractPrice(msg.Payload)
			if !valid {
				continue
			}
			lastY, haveY = price, true
			if haveX {
				step(ts)
			}
		case msg, ok := <-subX.C():
			if !ok {
				return nil
			}
			price, ts, valid := extractPrice(msg.Payload)
			if !valid {
				continue
			}
			lastX, haveX = price, true
			if haveY {
				step(ts)
			}
		}
	}
}

func (r *PairRunner) topicFor(symbol string) string {
	if r.source == SourceTicks {
		return broker.TickTopic(symbol)
	}
	return broker.CandleTopic(symbol)
}

func extractPrice(payload interface{}) (float64, int64, bool) {
	switch v := payload.(type) {
	case models.Candle:
		return v.Close, v.BucketStart, true
	case models.Tick:
		return v.Price, v.Timestamp, true
	default:
		return 0, 0, false
	}
}
