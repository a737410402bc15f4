package usecase

import "sync"

// recorderStub counts metric calls for assertions.
type recorderStub struct {
	mu       sync.Mutex
	sent     map[string]int
	errors   map[string]int
	gaps     map[string]int
	dropped  map[string]int
	brkDrops map[string]int
	restarts map[string]int
	prices   map[string]float64
}

func newRecorderStub() *recorderStub {
	return &recorderStub{
		sent:     make(map[string]int),
		errors:   make(map[string]int),
		gaps:     make(map[string]int),
		dropped:  make(map[string]int),
		brkDrops: make(map[string]int),
		restarts: make(map[string]int),
		prices:   make(map[string]float64),
	}
}

func (r *recorderStub) RecordMessageSent(backend, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[backend+":"+topic]++
}

func (r *recorderStub) RecordError(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[kind]++
}

func (r *recorderStub) RecordGap(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gaps[symbol]++
}

func (r *recorderStub) RecordDroppedTick(symbol, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped[symbol+":"+reason]++
}

func (r *recorderStub) RecordBrokerDrop(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.brkDrops[topic]++
}

func (r *recorderStub) RecordRestart(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restarts[stage]++
}

func (r *recorderStub) RecordLastPrice(symbol string, price float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices[symbol] = price
}

func (r *recorderStub) RecordLatency(string, float64) {}

func (r *recorderStub) droppedCount(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped[key]
}

func (r *recorderStub) errorCount(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors[kind]
}

func (r *recorderStub) restartCount(stage string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.restarts[stage]
}
