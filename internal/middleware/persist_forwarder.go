package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pairstream/internal/domain/models"
	domrepo "pairstream/internal/domain/repository"
)

// PersistForwarder sits between the live pipeline and the persistence
// collaborator. The hot path enqueues ticks and candles without blocking;
// a background flusher publishes them with backoff on downstream errors.
// Persistence failure never stops ingestion or aggregation.
type PersistForwarder struct {
	pub     domrepo.TickPublisher
	metrics domrepo.Metrics

	bufSize int
	tickCh  chan models.Tick
	candCh  chan models.Candle
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// ForwarderOption configures PersistForwarder.
type ForwarderOption func(*PersistForwarder)

// WithBufferSize sets the outbound buffer size for ticks and candles.
func WithBufferSize(n int) ForwarderOption {
	return func(f *PersistForwarder) {
		if n > 0 {
			f.bufSize = n
		}
	}
}

// NewPersistForwarder creates a forwarder in front of pub.
func NewPersistForwarder(pub domrepo.TickPublisher, metrics domrepo.Metrics, opts ...ForwarderOption) *PersistForwarder {
	f := &PersistForwarder{
		pub:     pub,
		metrics: metrics,
		bufSize: 2000,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.tickCh = make(chan models.Tick, f.bufSize)
	f.candCh = make(chan models.Candle, f.bufSize)
	return f
}

// Start launches the background flushers.
func (f *PersistForwarder) Start(ctx context.Context) {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return
	}
	f.started = true
	f.mu.Unlock()

	f.wg.Add(2)
	go f.flushTicks(ctx)
	go f.flushCandles(ctx)
}

// Stop stops the flushers; buffered entries not yet written are dropped.
func (f *PersistForwarder) Stop() {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.started = false
	f.mu.Unlock()
	close(f.stopCh)
	f.wg.Wait()
}

// Tick enqueues a tick for persistence, dropping when the buffer is full.
func (f *PersistForwarder) Tick(t models.Tick) {
	if err := validateTick(t); err != nil {
		f.countError("persist_validate")
		return
	}
	select {
	case f.tickCh <- t:
	default:
		f.countError("persist_tick_drop")
	}
}

// Candle enqueues a closed candle for persistence, dropping when full.
func (f *PersistForwarder) Candle(c models.Candle) {
	select {
	case f.candCh <- c:
	default:
		f.countError("persist_candle_drop")
	}
}

// maxTickBatch bounds how many buffered ticks go out in one publish.
const maxTickBatch = 200

func (f *PersistForwarder) flushTicks(ctx context.Context) {
	defer f.wg.Done()
	backoff := 50 * time.Millisecond
	for {
		select {
		case <-f.stopCh:
			return
		case <-ctx.Done():
			return
		case t := <-f.tickCh:
			batch := f.drainTicks(t)
			if err := f.pub.PublishTickBatch(ctx, batch); err != nil {
				f.countError("persist_tick_publish")
				if backoff < 2*time.Second {
					backoff *= 2
				}
				select {
				case <-time.After(backoff):
				case <-f.stopCh:
					return
				}
				f.requeueTicks(batch)
			} else {
				backoff = 50 * time.Millisecond
			}
		}
	}
}

// drainTicks gathers whatever else is already buffered behind first, up to
// the batch cap, without waiting.
func (f *PersistForwarder) drainTicks(first models.Tick) []models.Tick {
	batch := make([]models.Tick, 1, maxTickBatch)
	batch[0] = first
	for len(batch) < maxTickBatch {
		select {
		case t := <-f.tickCh:
			batch = append(batch, t)
		default:
			return batch
		}
	}
	return batch
}

// requeueTicks puts a failed batch back if space allows; overflow is dropped
// and counted.
func (f *PersistForwarder) requeueTicks(batch []models.Tick) {
	for _, t := range batch {
		select {
		case f.tickCh <- t:
		default:
			f.countError("persist_tick_drop")
		}
	}
}

func (f *PersistForwarder) flushCandles(ctx context.Context) {
	defer f.wg.Done()
	backoff := 50 * time.Millisecond
	for {
		select {
		case <-f.stopCh:
			return
		case <-ctx.Done():
			return
		case c := <-f.candCh:
			if err := f.pub.PublishCandle(ctx, c); err != nil {
				f.countError("persist_candle_publish")
				if backoff < 2*time.Second {
					backoff *= 2
				}
				select {
				case <-time.After(backoff):
				case <-f.stopCh:
					return
				}
				select {
				case f.candCh <- c:
				default:
					f.countError("persist_candle_drop")
				}
			} else {
				backoff = 50 * time.Millisecond
			}
		}
	}
}

func (f *PersistForwarder) countError(kind string) {
	if f.metrics != nil {
		f.metrics.RecordError(kind)
	}
}

func validateTick(t models.Tick) error {
	if t.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if t.Timestamp <= 0 {
		return fmt.Errorf("timestamp invalid")
	}
	if t.Price <= 0 || t.Size < 0 {
		return fmt.Errorf("bad price/size")
	}
	return nil
}
