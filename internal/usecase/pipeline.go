package usecase

import (
	"context"
	"errors"

	"pairstream/internal/domain/models"
	domrepo "pairstream/internal/domain/repository"
	mid "pairstream/internal/middleware"
	"pairstream/internal/service/broker"
	applogger "pairstream/pkg/logger"
)

// ErrStreamClosed signals that the upstream tick sequence ended, which means
// the feed itself died and the whole instance must be restarted.
var ErrStreamClosed = errors.New("tick stream closed")

// SymbolPipeline is the per-symbol hot path: tick in, candle out. It owns the
// aggregator state; nothing else mutates it. Persistence rides the forwarder
// and never blocks this loop.
type SymbolPipeline struct {
	symbol  string
	agg     *Aggregator
	brk     *broker.Broker
	fwd     *mid.PersistForwarder
	metrics domrepo.Metrics
	logger  *applogger.Logger
}

// NewSymbolPipeline creates the pipeline stage for one symbol. fwd may be nil
// when persistence is disabled.
func NewSymbolPipeline(
	symbol string,
	agg *Aggregator,
	brk *broker.Broker,
	fwd *mid.PersistForwarder,
	metrics domrepo.Metrics,
	logger *applogger.Logger,
) *SymbolPipeline {
	return &SymbolPipeline{symbol: symbol, agg: agg, brk: brk, fwd: fwd, metrics: metrics, logger: logger}
}

// Run consumes ticks until the context is cancelled (clean shutdown, final
// candle flushed) or the stream closes (feed death, ErrStreamClosed). Entry
// clears any candle left open by a faulted previous run.
func (p *SymbolPipeline) Run(ctx context.Context, ticks <-chan models.Tick) error {
	p.agg.Reset()
	for {
		select {
		case <-ctx.Done():
			p.flush()
			return nil
		case t, ok := <-ticks:
			if !ok {
				p.flush()
				return ErrStreamClosed
			}
			p.process(t)
		}
	}
}

func (p *SymbolPipeline) process(t models.Tick) {
	if p.metrics != nil {
		p.metrics.RecordLastPrice(t.Symbol, t.Price)
	}
	p.brk.Publish(broker.TickTopic(p.symbol), t)
	if p.fwd != nil {
		p.fwd.Tick(t)
	}
	if c, closed := p.agg.Feed(t); closed {
		p.emit(c)
	}
}

func (p *SymbolPipeline) flush() {
	if c, ok := p.agg.Flush(); ok {
		p.emit(c)
	}
}

func (p *SymbolPipeline) emit(c models.Candle) {
	p.brk.Publish(broker.CandleTopic(p.symbol), c)
	if p.fwd != nil {
		p.fwd.Candle(c)
	}
	if p.logger != nil {
		p.logger.Debug("candle closed",
			applogger.String("symbol", c.Symbol),
			applogger.Int64("bucket", c.BucketStart),
			applogger.Int("ticks", c.TickCount),
		)
	}
}
