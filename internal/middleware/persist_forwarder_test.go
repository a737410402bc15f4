package middleware

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairstream/internal/domain/models"
)

type capturePublisher struct {
	mu      sync.Mutex
	ticks      []models.Tick
	candles    []models.Candle
	batchCalls int
	failN      int // fail the first N tick publishes
}

func (p *capturePublisher) PublishTick(_ context.Context, t models.Tick) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failN > 0 {
		p.failN--
		return fmt.Errorf("kafka unavailable")
	}
	p.ticks = append(p.ticks, t)
	return nil
}

func (p *capturePublisher) PublishTickBatch(_ context.Context, ticks []models.Tick) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batchCalls++
	if p.failN > 0 {
		p.failN--
		return fmt.Errorf("kafka unavailable")
	}
	p.ticks = append(p.ticks, ticks...)
	return nil
}

func (p *capturePublisher) batches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.batchCalls
}

func (p *capturePublisher) PublishCandle(_ context.Context, c models.Candle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candles = append(p.candles, c)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) tickCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ticks)
}

func (p *capturePublisher) candleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.candles)
}

type errorCounter struct {
	mu     sync.Mutex
	errors map[string]int
}

func newErrorCounter() *errorCounter { return &errorCounter{errors: make(map[string]int)} }

func (m *errorCounter) RecordMessageSent(string, string)  {}
func (m *errorCounter) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}
func (m *errorCounter) RecordGap(string)                  {}
func (m *errorCounter) RecordDroppedTick(string, string)  {}
func (m *errorCounter) RecordBrokerDrop(string)           {}
func (m *errorCounter) RecordRestart(string)              {}
func (m *errorCounter) RecordLastPrice(string, float64)   {}
func (m *errorCounter) RecordLatency(string, float64)     {}

func (m *errorCounter) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func validTick(ts int64) models.Tick {
	return models.Tick{Symbol: "btcusdt", Timestamp: ts, Price: 100, Size: 1}
}

func TestForwarderPublishesTicksAndCandles(t *testing.T) {
	pub := &capturePublisher{}
	f := NewPersistForwarder(pub, nil)
	f.Start(context.Background())
	defer f.Stop()

	f.Tick(validTick(1000))
	f.Tick(validTick(2000))
	f.Candle(models.Candle{Symbol: "btcusdt", BucketStart: 0, Close: 100, TickCount: 2})

	waitFor(t, func() bool { return pub.tickCount() == 2 && pub.candleCount() == 1 }, "publishes never drained")
	assert.Equal(t, int64(1000), pub.ticks[0].Timestamp)
}

func TestForwarderRejectsInvalidTicks(t *testing.T) {
	pub := &capturePublisher{}
	rec := newErrorCounter()
	f := NewPersistForwarder(pub, rec)
	f.Start(context.Background())
	defer f.Stop()

	f.Tick(models.Tick{Symbol: "", Timestamp: 1000, Price: 100, Size: 1})
	f.Tick(models.Tick{Symbol: "btcusdt", Timestamp: 0, Price: 100, Size: 1})
	f.Tick(models.Tick{Symbol: "btcusdt", Timestamp: 1000, Price: -1, Size: 1})
	f.Tick(validTick(1000))

	waitFor(t, func() bool { return pub.tickCount() == 1 }, "valid tick never published")
	assert.Equal(t, 3, rec.count("persist_validate"))
}

func TestForwarderRetriesFailedPublish(t *testing.T) {
	pub := &capturePublisher{failN: 2}
	rec := newErrorCounter()
	f := NewPersistForwarder(pub, rec)
	f.Start(context.Background())
	defer f.Stop()

	f.Tick(validTick(1000))

	waitFor(t, func() bool { return pub.tickCount() == 1 }, "tick never made it through retries")
	assert.GreaterOrEqual(t, rec.count("persist_tick_publish"), 1)
}

func TestForwarderDropsWhenBufferFull(t *testing.T) {
	pub := &capturePublisher{}
	rec := newErrorCounter()
	// never started, so the buffer fills and overflow is counted
	f := NewPersistForwarder(pub, rec, WithBufferSize(2))

	for i := 0; i < 5; i++ {
		f.Tick(validTick(int64(1000 + i)))
	}
	assert.Equal(t, 3, rec.count("persist_tick_drop"))
	assert.Equal(t, 0, pub.tickCount())
}

func TestForwarderBatchesBufferedTicks(t *testing.T) {
	pub := &capturePublisher{}
	f := NewPersistForwarder(pub, nil)

	// enqueue before starting so the flusher sees them all at once
	for i := 0; i < 10; i++ {
		f.Tick(validTick(int64(1000 + i)))
	}
	f.Start(context.Background())
	defer f.Stop()

	waitFor(t, func() bool { return pub.tickCount() == 10 }, "ticks never drained")
	assert.Equal(t, 1, pub.batches())
}

func TestForwarderStopIsIdempotent(t *testing.T) {
	f := NewPersistForwarder(&capturePublisher{}, nil)
	f.Stop() // before start, no-op

	f.Start(context.Background())
	f.Start(context.Background()) // second start, no-op
	f.Stop()
	require.NotPanics(t, func() { f.Stop() })
}
