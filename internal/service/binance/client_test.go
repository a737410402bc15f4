package binance

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

// fakeConn replays scripted frames, then fails the read.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(c.frames) == 0 {
		return 0, nil, fmt.Errorf("connection lost")
	}
	f := c.frames[0]
	c.frames = c.frames[1:]
	return 1, f, nil
}

func (c *fakeConn) WriteMessage(int, []byte) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type countingMetrics struct {
	mu      sync.Mutex
	gaps    int
	errors  map[string]int
	dropped map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: make(map[string]int), dropped: make(map[string]int)}
}

func (m *countingMetrics) RecordMessageSent(string, string) {}
func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}
func (m *countingMetrics) RecordGap(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gaps++
}
func (m *countingMetrics) RecordDroppedTick(_, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[reason]++
}
func (m *countingMetrics) RecordBrokerDrop(string)      {}
func (m *countingMetrics) RecordRestart(string)         {}
func (m *countingMetrics) RecordLastPrice(string, float64) {}
func (m *countingMetrics) RecordLatency(string, float64)   {}

func (m *countingMetrics) gapCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gaps
}
func (m *countingMetrics) droppedCount(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped[reason]
}
func (m *countingMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func tradeFrame(ts int64, price, qty string) []byte {
	return []byte(fmt.Sprintf(`{"e":"trade","s":"BTCUSDT","p":%q,"q":%q,"T":%d}`, price, qty, ts))
}

func collect(t *testing.T, ch <-chan models.Tick, n int) []models.Tick {
	t.Helper()
	out := make([]models.Tick, 0, n)
	deadline := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case tick, ok := <-ch:
			if !ok {
				t.Fatalf("tick channel closed after %d ticks", len(out))
			}
			out = append(out, tick)
		case <-deadline:
			t.Fatalf("timed out after %d ticks", len(out))
		}
	}
	return out
}

func TestClientParsesTrades(t *testing.T) {
	conn := &fakeConn{frames: [][]byte{
		tradeFrame(1000, "42000.5", "0.25"),
		tradeFrame(2000, "42001.0", "1.5"),
	}}
	dial := func(ctx context.Context, url string) (wsConn, error) {
		assert.Contains(t, url, "btcusdt@trade")
		return conn, nil
	}

	c := New("BTCUSDT", "wss://example/ws", nil, WithDialer(dial))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ticks, _ := c.Start(ctx)

	got := collect(t, ticks, 2)
	assert.Equal(t, "btcusdt", got[0].Symbol)
	assert.Equal(t, int64(1000), got[0].Timestamp)
	assert.Equal(t, 42000.5, got[0].Price)
	assert.Equal(t, 0.25, got[0].Size)
	assert.Equal(t, 42001.0, got[1].Price)

	require.NoError(t, c.Stop())
}

func TestClientDropsMalformedAndNonTrade(t *testing.T) {
	rec := newCountingMetrics()
	conn := &fakeConn{frames: [][]byte{
		[]byte(`{"result":null,"id":1}`), // subscribe ack, silently ignored
		[]byte(`not json`),
		tradeFrame(1000, "bogus", "1"),
		tradeFrame(1000, "10", "-1"),
		tradeFrame(0, "10", "1"),
		tradeFrame(1000, "10", "1"),
	}}
	dial := func(context.Context, string) (wsConn, error) { return conn, nil }

	c := New("btcusdt", "wss://example/ws", rec, WithDialer(dial))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ticks, _ := c.Start(ctx)

	got := collect(t, ticks, 1)
	assert.Equal(t, 10.0, got[0].Price)
	assert.Equal(t, 4, rec.droppedCount("malformed"))
	require.NoError(t, c.Stop())
}

func TestClientDropsOutOfOrder(t *testing.T) {
	rec := newCountingMetrics()
	conn := &fakeConn{frames: [][]byte{
		tradeFrame(5000, "10", "1"),
		tradeFrame(3000, "11", "1"), // behind the watermark
		tradeFrame(5000, "12", "1"), // equal timestamps pass
		tradeFrame(6000, "13", "1"),
	}}
	dial := func(context.Context, string) (wsConn, error) { return conn, nil }

	c := New("btcusdt", "wss://example/ws", rec, WithDialer(dial))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ticks, _ := c.Start(ctx)

	got := collect(t, ticks, 3)
	assert.Equal(t, []float64{10, 12, 13}, []float64{got[0].Price, got[1].Price, got[2].Price})
	assert.Equal(t, 1, rec.droppedCount("out_of_order"))
	require.NoError(t, c.Stop())
}

func TestClientReconnectsAfterFailures(t *testing.T) {
	rec := newCountingMetrics()
	var mu sync.Mutex
	attempt := 0
	dial := func(context.Context, string) (wsConn, error) {
		mu.Lock()
		defer mu.Unlock()
		attempt++
		if attempt <= 3 {
			return nil, fmt.Errorf("refused")
		}
		return &fakeConn{frames: [][]byte{tradeFrame(1000, "10", "1")}}, nil
	}

	c := New("btcusdt", "wss://example/ws", rec,
		WithDialer(dial),
		WithBackoff(time.Millisecond, 5*time.Millisecond),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ticks, _ := c.Start(ctx)

	got := collect(t, ticks, 1)
	assert.Equal(t, 10.0, got[0].Price)
	assert.GreaterOrEqual(t, rec.errorCount("feed_connect"), 3)
	require.NoError(t, c.Stop())
}

func TestClientCountsGapOnReconnect(t *testing.T) {
	rec := newCountingMetrics()
	var mu sync.Mutex
	conns := 0
	dial := func(context.Context, string) (wsConn, error) {
		mu.Lock()
		defer mu.Unlock()
		conns++
		// each connection yields one trade then dies
		return &fakeConn{frames: [][]byte{tradeFrame(int64(conns)*1000, "10", "1")}}, nil
	}

	c := New("btcusdt", "wss://example/ws", rec,
		WithDialer(dial),
		WithBackoff(time.Millisecond, 5*time.Millisecond),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ticks, _ := c.Start(ctx)

	collect(t, ticks, 3)
	// first connect is not a gap; every resume after that is
	assert.GreaterOrEqual(t, rec.gapCount(), 2)
	require.NoError(t, c.Stop())
}

func TestClientStartTwiceFails(t *testing.T) {
	dial := func(context.Context, string) (wsConn, error) {
		return &fakeConn{}, nil
	}
	c := New("btcusdt", "wss://example/ws", nil, WithDialer(dial))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Start(ctx)
	_, errs := c.Start(ctx)
	err := <-errs
	require.Error(t, err)
	require.NoError(t, c.Stop())
}

func TestBackoffEnvelope(t *testing.T) {
	base, max := 500*time.Millisecond, 30*time.Second

	prev := time.Duration(0)
	for attempt := 0; attempt < 12; attempt++ {
		env := backoffEnvelope(base, max, attempt)
		assert.GreaterOrEqual(t, env, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, env, max)
		prev = env
	}
	assert.Equal(t, base, backoffEnvelope(base, max, 0))
	assert.Equal(t, max, backoffEnvelope(base, max, 100))

	// delays stay inside the envelope
	for i := 0; i < 100; i++ {
		d := backoffDelay(base, max, 3)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, backoffEnvelope(base, max, 3))
	}
}
