package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	gapsTotal    *prometheus.CounterVec
	droppedTicks *prometheus.CounterVec
	brokerDrops  *prometheus.CounterVec
	restarts     *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		messagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairstream_messages_sent_total",
				Help: "Total number of messages sent to a backend",
			},
			[]string{"backend", "topic"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairstream_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		gapsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairstream_feed_gaps_total",
				Help: "Feed reconnects that resumed with data loss",
			},
			[]string{"symbol"},
		),
		droppedTicks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairstream_dropped_ticks_total",
				Help: "Ticks dropped before aggregation, by reason",
			},
			[]string{"symbol", "reason"},
		),
		brokerDrops: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairstream_broker_drops_total",
				Help: "Messages dropped by slow broker subscribers",
			},
			[]string{"topic"},
		),
		restarts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pairstream_stage_restarts_total",
				Help: "Pipeline stage restarts by the supervisor",
			},
			[]string{"stage"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pairstream_last_price",
				Help: "Last observed price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pairstream_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordMessageSent records a message sent to a backend.
func (r *Recorder) RecordMessageSent(backend, topic string) {
	r.messagesSent.WithLabelValues(backend, topic).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordGap records a reconnect that lost feed data.
func (r *Recorder) RecordGap(symbol string) {
	r.gapsTotal.WithLabelValues(symbol).Inc()
}

// RecordDroppedTick records a tick discarded before aggregation.
func (r *Recorder) RecordDroppedTick(symbol, reason string) {
	r.droppedTicks.WithLabelValues(symbol, reason).Inc()
}

// RecordBrokerDrop records a fan-out message lost to backpressure.
func (r *Recorder) RecordBrokerDrop(topic string) {
	r.brokerDrops.WithLabelValues(topic).Inc()
}

// RecordRestart records a supervised stage restart.
func (r *Recorder) RecordRestart(stage string) {
	r.restarts.WithLabelValues(stage).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
