package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pairstream/internal/domain/models"
	"pairstream/internal/service/broker"
	"pairstream/pkg/cache"
)

type captureSink struct {
	mu        sync.Mutex
	snapshots []models.AnalyticsSnapshot
	candles   []models.Candle
}

func (s *captureSink) SendSnapshot(_ context.Context, snap models.AnalyticsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
	return nil
}

func (s *captureSink) SendCandle(_ context.Context, c models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles = append(s.candles, c)
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots), len(s.candles)
}

func startMirror(t *testing.T, m *LiveMirror) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()
	t.Cleanup(func() { cancel(); <-done })
	return cancel
}

func TestLiveMirrorCachesLatestPerTopic(t *testing.T) {
	brk := broker.New()
	defer brk.Close()
	mem := cache.NewMemoryCache()
	defer mem.Close()

	topic := broker.CandleTopic("btcusdt")
	m := NewLiveMirror([]string{topic}, brk, mem, nil, nil, 16)
	startMirror(t, m)
	eventually(t, func() bool { return brk.SubscriberCount(topic) == 1 }, "mirror never subscribed")

	brk.Publish(topic, candle("btcusdt", 0, 100))
	brk.Publish(topic, candle("btcusdt", 60_000, 101))

	var got models.Candle
	eventually(t, func() bool {
		if err := mem.Get(context.Background(), "latest:"+topic, &got); err != nil {
			return false
		}
		return got.BucketStart == 60_000
	}, "cache never converged on the latest candle")
	assert.Equal(t, 101.0, got.Close)
}

func TestLiveMirrorForwardsToSink(t *testing.T) {
	brk := broker.New()
	defer brk.Close()
	sink := &captureSink{}

	candleTopic := broker.CandleTopic("btcusdt")
	analyticsTopic := broker.AnalyticsTopic("ethusdt:btcusdt")
	m := NewLiveMirror([]string{candleTopic, analyticsTopic}, brk, nil, sink, nil, 16)
	startMirror(t, m)
	eventually(t, func() bool {
		return brk.SubscriberCount(candleTopic) == 1 && brk.SubscriberCount(analyticsTopic) == 1
	}, "mirror never subscribed")

	brk.Publish(candleTopic, candle("btcusdt", 0, 100))
	brk.Publish(analyticsTopic, models.AnalyticsSnapshot{PairID: "ethusdt:btcusdt", Ready: true})
	brk.Publish(analyticsTopic, "junk payload") // ignored

	eventually(t, func() bool {
		snaps, candles := sink.counts()
		return snaps == 1 && candles == 1
	}, "sink never received the mirrored messages")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, "ethusdt:btcusdt", sink.snapshots[0].PairID)
	assert.Equal(t, 100.0, sink.candles[0].Close)
}

func TestLiveMirrorStopsOnCancel(t *testing.T) {
	brk := broker.New()
	defer brk.Close()
	topic := broker.TickTopic("btcusdt")
	m := NewLiveMirror([]string{topic}, brk, nil, nil, nil, 16)

	cancel := startMirror(t, m)
	eventually(t, func() bool { return brk.SubscriberCount(topic) == 1 }, "mirror never subscribed")

	cancel()
	eventually(t, func() bool { return brk.SubscriberCount(topic) == 0 }, "subscription never released")
}

func TestLiveMirrorSurvivesBrokerClose(t *testing.T) {
	brk := broker.New()
	topic := broker.TickTopic("btcusdt")
	m := NewLiveMirror([]string{topic}, brk, nil, nil, nil, 16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()
	eventually(t, func() bool { return brk.SubscriberCount(topic) == 1 }, "mirror never subscribed")

	brk.Close()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("mirror did not exit after broker close and cancel")
	}
}
