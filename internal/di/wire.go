//go:build wireinject
// +build wireinject

package di

import (
	"io"

	"github.com/google/wire"

	"Tradeflow/pkg/config"
	"Tradeflow/pkg/server"
)

var engineSet = wire.NewSet(
	ProvideRegisterer,
	ProvideMetrics,
	ProvideCalendar,
	ProvideRedisCache,
	ProvideCache,
	ProvidePhaseStore,
	ProvideClickHouseClient,
	ProvideCHBarSource,
	ProvideStreamSource,
	ProvideBarSource,
	ProvideDetector,
	ProvideBroker,
	ProvidePredictor,
	ProvideRiskConstructor,
	ProvideProbes,
	ProvideEngineFactory,
	ProvideEventPipeline,
	ProvidePhaseService,
)

// InitializeApp wires the long-running server.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		engineSet,
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideEventPublisher,
		ProvideAPIMetrics,
		ProvideBarFeedHandler,
		ProvideKafkaConsumer,
		ProvidePhaseHandler,
		ProvideCommandHandler,
		ProvideHealthHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeReplay wires a one-shot run that writes events to out.
func InitializeReplay(cfg *config.Config, out io.Writer) (*server.Replay, func(), error) {
	wire.Build(
		engineSet,
		ProvideReplayLogger,
		ProvideJSONLinesPublisher,
		ProvideReplay,
	)
	return nil, nil, nil
}
