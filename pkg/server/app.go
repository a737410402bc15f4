package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	domrepo "pairstream/internal/domain/repository"
	"pairstream/internal/usecase"
	pkgch "pairstream/pkg/clickhouse"
	"pairstream/pkg/config"
	xhttp "pairstream/pkg/http"
	pkgkafka "pairstream/pkg/kafka"
	applogger "pairstream/pkg/logger"
)

// App owns the full process lifecycle: the pipeline orchestrator, the
// persistence consumer, and the HTTP read side. Run blocks until a signal
// arrives or the orchestrator gives up.
type App struct {
	cfg       *config.Config
	logger    *applogger.Logger
	orch      *usecase.Orchestrator
	consumer  *pkgkafka.Consumer
	handlers  []pkgkafka.MessageHandler
	publisher domrepo.TickPublisher
	chClient  *pkgch.Client

	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
}

// New assembles the application. consumer, publisher and chClient are nil
// when persistence is disabled.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	orch *usecase.Orchestrator,
	consumer *pkgkafka.Consumer,
	handlers []pkgkafka.MessageHandler,
	publisher domrepo.TickPublisher,
	chClient *pkgch.Client,
	httpHandler xhttp.Handler,
) *App {
	return &App{
		cfg:         cfg,
		logger:      logger,
		orch:        orch,
		consumer:    consumer,
		handlers:    handlers,
		publisher:   publisher,
		chClient:    chClient,
		httpHandler: httpHandler,
	}
}

// Run starts everything and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.orch.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("pipeline started",
		applogger.Strings("symbols", a.cfg.Feed.Symbols),
		applogger.Strings("pairs", a.cfg.Pipeline.Pairs),
	)

	if a.consumer != nil && len(a.handlers) > 0 {
		for _, h := range a.handlers {
			a.consumer.RegisterHandler(h)
		}
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.logger.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.logger.Info("kafka consumer started",
			applogger.String("group", a.cfg.Kafka.Consumer.GroupID))
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithLogger(a.logger),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout.Std(), a.cfg.Server.WriteTimeout.Std(), a.cfg.Server.ShutdownTimeout.Std()),
	)
	if err := a.httpServer.Start(); err != nil {
		return err
	}

	fatal := make(chan error, 1)
	go func() {
		if err := a.orch.Wait(); err != nil {
			fatal <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		a.logger.Info("shutdown signal received")
		a.shutdown(ctx)
		return nil
	case err := <-fatal:
		a.logger.Error("pipeline gave up", applogger.Error(err))
		a.shutdown(ctx)
		return err
	}
}

// shutdown stops components in dependency order: the read side first, then
// the pipeline (feeds flush into the broker before it closes), then the
// persistence tail, and the infrastructure clients last.
func (a *App) shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown error", applogger.Error(err))
	}

	a.orch.Stop()

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
}
