package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batchPublisher struct {
	mu      sync.Mutex
	batches [][]AggregatedLogEntry
}

func (p *batchPublisher) PublishMessage(_ context.Context, _ string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (p *batchPublisher) all() []AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []AggregatedLogEntry
	for _, b := range p.batches {
		out = append(out, b...)
	}
	return out
}

func newTestCollector(pub Publisher, threshold int) *LogCollector {
	return NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour, // flush only via threshold or Close
		CountThreshold: threshold,
		Topic:          "logs",
		Publisher:      pub,
	})
}

func waitEntries(t *testing.T, pub *batchPublisher, n int) []AggregatedLogEntry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := pub.all(); len(got) >= n {
			return got
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("publisher never received %d entries", n)
	return nil
}

func TestCollectorDeduplicatesRepeats(t *testing.T) {
	pub := &batchPublisher{}
	c := newTestCollector(pub, 100)

	for i := 0; i < 5; i++ {
		c.AddLog("error", "kafka write failed", map[string]interface{}{"topic": "ticks"}, "producer.go:42")
	}
	c.Close()

	got := waitEntries(t, pub, 1)
	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].Count)
	assert.Equal(t, "kafka write failed", got[0].Message)
	assert.False(t, got[0].LastSeen.Before(got[0].FirstSeen))
}

func TestCollectorDistinguishesFields(t *testing.T) {
	pub := &batchPublisher{}
	c := newTestCollector(pub, 100)

	c.AddLog("error", "store failed", map[string]interface{}{"symbol": "btcusdt"}, "storage.go:10")
	c.AddLog("error", "store failed", map[string]interface{}{"symbol": "ethusdt"}, "storage.go:10")
	c.Close()

	got := waitEntries(t, pub, 2)
	assert.Len(t, got, 2)
}

func TestCollectorFieldOrderInsensitive(t *testing.T) {
	a := entryKey("error", "m", map[string]interface{}{"a": 1, "b": 2}, "x.go:1")
	b := entryKey("error", "m", map[string]interface{}{"b": 2, "a": 1}, "x.go:1")
	assert.Equal(t, a, b)

	c := entryKey("error", "m", map[string]interface{}{"a": 1, "b": 3}, "x.go:1")
	assert.NotEqual(t, a, c)
}

func TestCollectorThresholdFlush(t *testing.T) {
	pub := &batchPublisher{}
	c := newTestCollector(pub, 2)
	defer c.Close()

	c.AddLog("error", "first", nil, "a.go:1")
	c.AddLog("error", "second", nil, "b.go:2")

	got := waitEntries(t, pub, 2)
	assert.Len(t, got, 2)
}
