//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"StockAction/internal/handler/repl"
	"StockAction/internal/usecase"
	"StockAction/pkg/config"
	"StockAction/pkg/server"
)

var infraSet = wire.NewSet(
	ProvideKafkaProducer,
	ProvideLogger,
)

var marketSet = wire.NewSet(
	ProvideMetrics,
	ProvideBytesCache,
	ProvideLayout,
	ProvideMarketData,
	ProvideThresholdTable,
	ProvideLabeler,
)

var inferenceSet = wire.NewSet(
	marketSet,
	ProvideModel,
	ProvideClassifier,
	ProvideInferenceWindow,
	ProvideInferenceIndexLoader,
	ProvideAssembler,
	ProvideRecorder,
	usecase.NewPredictor,
)

// InitializeBuilder wires the dataset build.
func InitializeBuilder(cfg *config.Config) (*usecase.DatasetBuilder, func(), error) {
	wire.Build(
		infraSet,
		marketSet,
		ProvideResolver,
		ProvideDatasetStore,
		ProvideDatasetIndexLoader,
		ProvideBuildConfig,
		usecase.NewDatasetBuilder,
	)
	return nil, nil, nil
}

// InitializeTrainer wires model training over the persisted table.
func InitializeTrainer(cfg *config.Config) (*usecase.Trainer, func(), error) {
	wire.Build(
		infraSet,
		ProvideThresholdTable,
		ProvideLabeler,
		ProvideDatasetStore,
		ProvideTrainParams,
		usecase.NewTrainer,
	)
	return nil, nil, nil
}

// InitializeREPL wires the interactive prediction loop.
func InitializeREPL(cfg *config.Config) (*repl.Session, func(), error) {
	wire.Build(
		infraSet,
		inferenceSet,
		ProvideBanner,
		ProvideREPL,
	)
	return nil, nil, nil
}

// InitializeApp wires the prediction API and its market refresh job.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		infraSet,
		inferenceSet,
		ProvideMarketRefresher,
		ProvidePredictHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
