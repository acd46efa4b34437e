//go:build wireinject
// +build wireinject

package di

import (
	"TickFlow/pkg/config"
	"TickFlow/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideCache,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideBarStore,
		ProvideBarPublisher,
		ProvideQuoteStream,

		// Use cases
		ProvideBarProcessor,
		ProvideBarAggregator,
		ProvideQuoteService,

		// HTTP surface
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
