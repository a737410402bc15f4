//go:build wireinject
// +build wireinject

package di

import (
	"pairstream/pkg/config"
	"pairstream/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation in wire_gen.go.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideBroker,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideCache,

		// Repositories
		ProvideStorage,
		ProvidePublisher,
		ProvideSnapshotSink,

		// Pipeline stages
		ProvideForwarder,
		ProvideStreamFactory,
		ProvidePipelines,
		ProvidePairRunners,
		ProvideLiveMirror,
		ProvideOrchestrator,
		ProvidePersistHandlers,

		// Read side
		ProvideHTTPHandler,

		ProvideApp,
	)
	return &server.App{}, nil
}
