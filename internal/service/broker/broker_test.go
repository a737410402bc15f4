package broker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dropCounter struct {
	mu    sync.Mutex
	drops map[string]int
}

func (d *dropCounter) RecordMessageSent(string, string)     {}
func (d *dropCounter) RecordError(string)                   {}
func (d *dropCounter) RecordGap(string)                     {}
func (d *dropCounter) RecordDroppedTick(string, string)     {}
func (d *dropCounter) RecordRestart(string)                 {}
func (d *dropCounter) RecordLastPrice(string, float64)      {}
func (d *dropCounter) RecordLatency(string, float64)        {}
func (d *dropCounter) RecordBrokerDrop(topic string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.drops == nil {
		d.drops = make(map[string]int)
	}
	d.drops[topic]++
}

func (d *dropCounter) count(topic string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drops[topic]
}

func TestPublishWithoutSubscribers(t *testing.T) {
	b := New()
	// must not block or panic
	b.Publish("ticks.btcusdt", 1)
	assert.Zero(t, b.SubscriberCount("ticks.btcusdt"))
}

func TestPublishFanOut(t *testing.T) {
	b := New()
	s1 := b.Subscribe("candles.btcusdt", 8)
	s2 := b.Subscribe("candles.btcusdt", 8)
	other := b.Subscribe("candles.ethusdt", 8)

	b.Publish("candles.btcusdt", "payload")

	msg := <-s1.C()
	assert.Equal(t, "candles.btcusdt", msg.Topic)
	assert.Equal(t, "payload", msg.Payload)
	msg = <-s2.C()
	assert.Equal(t, "payload", msg.Payload)

	select {
	case <-other.C():
		t.Fatal("message leaked across topics")
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	s := b.Subscribe("t", 1)
	require.Equal(t, 1, b.SubscriberCount("t"))

	b.Unsubscribe(s)
	assert.Zero(t, b.SubscriberCount("t"))
	_, ok := <-s.C()
	assert.False(t, ok)

	// double unsubscribe is a no-op
	b.Unsubscribe(s)
}

func TestDropNewestOnFullBuffer(t *testing.T) {
	rec := &dropCounter{}
	b := New(WithDropPolicy(DropNewest), WithMetrics(rec))
	s := b.Subscribe("t", 2)

	b.Publish("t", 1)
	b.Publish("t", 2)
	b.Publish("t", 3) // buffer full, dropped

	assert.Equal(t, 1, rec.count("t"))
	assert.Equal(t, 1, (<-s.C()).Payload)
	assert.Equal(t, 2, (<-s.C()).Payload)
	select {
	case m := <-s.C():
		t.Fatalf("unexpected delivery %v", m.Payload)
	default:
	}
}

func TestDropOldestOnFullBuffer(t *testing.T) {
	rec := &dropCounter{}
	b := New(WithDropPolicy(DropOldest), WithMetrics(rec))
	s := b.Subscribe("t", 2)

	b.Publish("t", 1)
	b.Publish("t", 2)
	b.Publish("t", 3) // evicts 1

	assert.Equal(t, 1, rec.count("t"))
	assert.Equal(t, 2, (<-s.C()).Payload)
	assert.Equal(t, 3, (<-s.C()).Payload)
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := New()
	slow := b.Subscribe("t", 1)
	fast := b.Subscribe("t", 16)

	for i := 0; i < 10; i++ {
		b.Publish("t", i)
	}

	// fast subscriber got everything
	for i := 0; i < 10; i++ {
		assert.Equal(t, i, (<-fast.C()).Payload)
	}
	// slow subscriber kept exactly its buffer worth
	assert.Equal(t, 0, (<-slow.C()).Payload)
}

func TestCloseShutsDownSubscribers(t *testing.T) {
	b := New()
	s := b.Subscribe("t", 1)

	b.Close()
	_, ok := <-s.C()
	assert.False(t, ok)

	// post-close operations are inert
	b.Publish("t", 1)
	late := b.Subscribe("t", 1)
	_, ok = <-late.C()
	assert.False(t, ok)
	b.Close()
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	b := New(WithBufferSize(256))
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := b.Subscribe("t", 64)
			for j := 0; j < 50; j++ {
				select {
				case <-s.C():
				default:
				}
			}
			b.Unsubscribe(s)
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				b.Publish("t", j)
			}
		}()
	}
	wg.Wait()
	b.Close()
}

func TestTopicNames(t *testing.T) {
	assert.Equal(t, "ticks.btcusdt", TickTopic("btcusdt"))
	assert.Equal(t, "candles.btcusdt", CandleTopic("btcusdt"))
	assert.Equal(t, "analytics.ethusdt:btcusdt", AnalyticsTopic("ethusdt:btcusdt"))
}

func TestParseDropPolicy(t *testing.T) {
	assert.Equal(t, DropOldest, ParseDropPolicy("oldest"))
	assert.Equal(t, DropNewest, ParseDropPolicy("newest"))
	assert.Equal(t, DropNewest, ParseDropPolicy(""))
	assert.Equal(t, DropNewest, ParseDropPolicy("bogus"))
}
