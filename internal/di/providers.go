package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pairstream/internal/domain/models"
	domrepo "pairstream/internal/domain/repository"
	"pairstream/internal/handler/api"
	mid "pairstream/internal/middleware"
	internalrepo "pairstream/internal/repository"
	"pairstream/internal/service/binance"
	"pairstream/internal/service/broker"
	"pairstream/internal/usecase"
	pkgcache "pairstream/pkg/cache"
	pkgch "pairstream/pkg/clickhouse"
	"pairstream/pkg/config"
	xhttp "pairstream/pkg/http"
	pkgkafka "pairstream/pkg/kafka"
	applogger "pairstream/pkg/logger"
	"pairstream/pkg/metrics"
	"pairstream/pkg/server"
)

// ProvideLogger creates the process logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lc := &applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if lc.Level == "" {
		lc.Level = "info"
	}
	if lc.Format == "" {
		lc.Format = "json"
	}
	if lc.Output == "" {
		lc.Output = "stdout"
	}
	return applogger.New(lc)
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideBroker creates the in-process fan-out hub.
func ProvideBroker(cfg *config.Config, m domrepo.Metrics) *broker.Broker {
	opts := []broker.Option{broker.WithMetrics(m)}
	if cfg.Pipeline.BrokerBuffer > 0 {
		opts = append(opts, broker.WithBufferSize(cfg.Pipeline.BrokerBuffer))
	}
	opts = append(opts, broker.WithDropPolicy(broker.ParseDropPolicy(cfg.Pipeline.DropPolicy)))
	return broker.New(opts...)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when
// persistence is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.Persistence.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout.Std(), cfg.ClickHouse.ReadTimeout.Std(), cfg.ClickHouse.WriteTimeout.Std()),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime.Std()),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideStorage creates durable storage and ensures the schema exists.
func ProvideStorage(chClient *pkgch.Client, cfg *config.Config) (domrepo.Storage, error) {
	if chClient == nil {
		return nil, nil
	}
	tf := domrepo.NormalizeTimeframe(cfg.Pipeline.Timeframe)
	storage := internalrepo.NewClickHouseStorage(chClient, tf)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := storage.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return storage, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when persistence is
// disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Persistence.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.BatchTimeout.Std()),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout.Std(), cfg.Kafka.Producer.ReadTimeout.Std()),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// producerLogPublisher adapts the Kafka producer to the log collector.
type producerLogPublisher struct {
	p *pkgkafka.Producer
}

func (a producerLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return a.p.Publish(ctx, topic, nil, payload)
}

// AttachLogCollector ships aggregated error logs to Kafka when a log topic
// is configured.
func AttachLogCollector(l *applogger.Logger, producer *pkgkafka.Producer, cfg *config.Config) {
	if producer == nil || cfg.Kafka.LogTopic == "" {
		return
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          cfg.Kafka.LogTopic,
		Publisher:      producerLogPublisher{p: producer},
	})
}

// ProvidePublisher creates the persistence-topic publisher.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config, m domrepo.Metrics) domrepo.TickPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.TickTopic, cfg.Kafka.CandleTopic, m)
}

// ProvideForwarder creates the async persistence forwarder.
func ProvideForwarder(pub domrepo.TickPublisher, cfg *config.Config, m domrepo.Metrics) *mid.PersistForwarder {
	if pub == nil {
		return nil
	}
	var opts []mid.ForwarderOption
	if cfg.Persistence.BufferSize > 0 {
		opts = append(opts, mid.WithBufferSize(cfg.Persistence.BufferSize))
	}
	return mid.NewPersistForwarder(pub, m, opts...)
}

// ProvideKafkaConsumer creates the persistence consumer, or nil when
// persistence is disabled.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Persistence.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin.Std(), cfg.Kafka.Consumer.BackoffMax.Std()),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NoopHook{})
	return consumer, nil
}

// ProvidePersistHandlers creates the storage-landing handlers for the
// persistence topics.
func ProvidePersistHandlers(storage domrepo.Storage, m domrepo.Metrics, cfg *config.Config) []pkgkafka.MessageHandler {
	if storage == nil {
		return nil
	}
	return []pkgkafka.MessageHandler{
		usecase.NewTickPersistHandler(cfg.Kafka.TickTopic, storage, m),
		usecase.NewCandlePersistHandler(cfg.Kafka.CandleTopic, storage, m),
	}
}

// ProvideStreamFactory builds per-symbol Binance streams.
func ProvideStreamFactory(cfg *config.Config, m domrepo.Metrics, l *applogger.Logger) usecase.StreamFactory {
	return func(symbol string) domrepo.MarketStream {
		return binance.New(symbol, cfg.Feed.WebSocketURL, m,
			binance.WithBackoff(cfg.Feed.BackoffBase.Std(), cfg.Feed.BackoffMax.Std()),
			binance.WithPingInterval(cfg.Feed.PingInterval.Std()),
			binance.WithLogger(l),
		)
	}
}

// ProvidePipelines creates one hot-path pipeline per symbol.
func ProvidePipelines(
	cfg *config.Config,
	brk *broker.Broker,
	fwd *mid.PersistForwarder,
	m domrepo.Metrics,
	l *applogger.Logger,
) map[string]*usecase.SymbolPipeline {
	out := make(map[string]*usecase.SymbolPipeline, len(cfg.Feed.Symbols))
	for _, s := range cfg.Feed.Symbols {
		sym := strings.ToLower(s)
		agg := usecase.NewAggregator(sym, cfg.Pipeline.CandleInterval.Std(), m)
		out[sym] = usecase.NewSymbolPipeline(sym, agg, brk, fwd, m, l)
	}
	return out
}

// ProvidePairRunners creates one stats runner per configured pair.
func ProvidePairRunners(cfg *config.Config, brk *broker.Broker, m domrepo.Metrics) ([]*usecase.PairRunner, error) {
	out := make([]*usecase.PairRunner, 0, len(cfg.Pipeline.Pairs))
	for _, p := range cfg.Pipeline.Pairs {
		pair, err := models.ParsePair(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("pair %q: %w", p, err)
		}
		engine := usecase.NewStatsEngine(pair, cfg.Pipeline.Window, cfg.Pipeline.RecomputeEvery, m)
		out = append(out, usecase.NewPairRunner(engine, brk, usecase.StatsSource(cfg.Pipeline.StatsSource), cfg.Pipeline.BrokerBuffer))
	}
	return out, nil
}

// ProvideCache creates the last-value cache: Redis when enabled, otherwise
// in-memory.
func ProvideCache(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache(), nil
	}
	return pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Addr),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
}

// ProvideSnapshotSink creates the external live channel over Redis pub/sub.
// It shares the cache's client; a memory cache means no external channel.
func ProvideSnapshotSink(c pkgcache.Service, cfg *config.Config, m domrepo.Metrics) domrepo.SnapshotSink {
	rc, ok := c.(*pkgcache.RedisCache)
	if !ok {
		return nil
	}
	snapCh := cfg.Redis.SnapshotChannel
	if snapCh == "" {
		snapCh = "live:analytics"
	}
	candleCh := cfg.Redis.CandleChannel
	if candleCh == "" {
		candleCh = "live:candles"
	}
	return internalrepo.NewRedisSink(rc.Client(), snapCh, candleCh, m)
}

// ProvideLiveMirror mirrors candle and analytics topics to the cache and the
// external channel.
func ProvideLiveMirror(
	cfg *config.Config,
	brk *broker.Broker,
	c pkgcache.Service,
	sink domrepo.SnapshotSink,
	m domrepo.Metrics,
) *usecase.LiveMirror {
	topics := make([]string, 0, len(cfg.Feed.Symbols)+len(cfg.Pipeline.Pairs))
	for _, s := range cfg.Feed.Symbols {
		topics = append(topics, broker.CandleTopic(strings.ToLower(s)))
	}
	for _, p := range cfg.Pipeline.Pairs {
		topics = append(topics, broker.AnalyticsTopic(strings.ToLower(p)))
	}
	return usecase.NewLiveMirror(topics, brk, c, sink, m, cfg.Pipeline.BrokerBuffer)
}

// ProvideOrchestrator creates the pipeline supervisor.
func ProvideOrchestrator(
	cfg *config.Config,
	factory usecase.StreamFactory,
	pipelines map[string]*usecase.SymbolPipeline,
	runners []*usecase.PairRunner,
	mirror *usecase.LiveMirror,
	brk *broker.Broker,
	fwd *mid.PersistForwarder,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.Orchestrator {
	symbols := make([]string, 0, len(cfg.Feed.Symbols))
	for _, s := range cfg.Feed.Symbols {
		symbols = append(symbols, strings.ToLower(s))
	}
	return usecase.NewOrchestrator(
		usecase.OrchestratorConfig{
			RestartBackoffBase: cfg.Orchestrator.RestartBackoffBase.Std(),
			RestartBackoffMax:  cfg.Orchestrator.RestartBackoffMax.Std(),
			FaultLimit:         cfg.Orchestrator.FaultLimit,
			FaultWindow:        cfg.Orchestrator.FaultWindow.Std(),
		},
		symbols, factory, pipelines, runners, mirror, brk, fwd, m, l,
	)
}

// ProvideHTTPHandler creates the read-side HTTP handler.
func ProvideHTTPHandler(
	cfg *config.Config,
	l *applogger.Logger,
	c pkgcache.Service,
	chClient *pkgch.Client,
	storage domrepo.Storage,
	brk *broker.Broker,
	orch *usecase.Orchestrator,
) xhttp.Handler {
	var history *usecase.CandleHistory
	if chClient != nil {
		store := internalrepo.NewCHCandleStore(chClient)
		store.SetLogger(l)
		history = usecase.NewCandleHistory(store)
	}
	var opts []api.LiveHandlerOption
	if cfg.RateLimit.Enabled {
		opts = append(opts, api.WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	return api.NewLiveHandler(l, c, history, storage, brk, orch.Connected, opts...)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	orch *usecase.Orchestrator,
	consumer *pkgkafka.Consumer,
	handlers []pkgkafka.MessageHandler,
	publisher domrepo.TickPublisher,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	httpHandler xhttp.Handler,
) *server.App {
	AttachLogCollector(l, producer, cfg)
	return server.New(cfg, l, orch, consumer, handlers, publisher, chClient, httpHandler)
}
