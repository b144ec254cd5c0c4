package di

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	drepo "StockAction/internal/domain/repository"
	dsvc "StockAction/internal/domain/service"
	"StockAction/internal/handler/api"
	"StockAction/internal/handler/repl"
	internalrepo "StockAction/internal/repository"
	"StockAction/internal/service/cache"
	"StockAction/internal/service/finnhub"
	"StockAction/internal/service/indicators"
	"StockAction/internal/service/ratelimit"
	"StockAction/internal/services/classifier"
	"StockAction/internal/services/features"
	"StockAction/internal/services/labeling"
	"StockAction/internal/usecase"
	pkgch "StockAction/pkg/clickhouse"
	"StockAction/pkg/config"
	xhttp "StockAction/pkg/http"
	pkgkafka "StockAction/pkg/kafka"
	applogger "StockAction/pkg/logger"
	"StockAction/pkg/metrics"
	"StockAction/pkg/server"
)

// Per-client limits on the prediction API.
const (
	apiBurst     = 20
	apiPerSecond = 5
)

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithBatchSize(cfg.Kafka.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.ReadTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAutoCreateTopics(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the application logger. With Kafka enabled, error
// entries are also aggregated and shipped to the logs topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	l = l.With(applogger.String("env", cfg.Environment))
	if producer == nil {
		return l, func() {}, nil
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          cfg.Kafka.LogsTopic,
		Publisher:      producer,
	})
	return l, l.RemoveCollector, nil
}

// ProvideMetrics creates a Prometheus metrics recorder, or a no-op one when metrics are off.
func ProvideMetrics(cfg *config.Config) drepo.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideBytesCache picks the provider response cache backend.
func ProvideBytesCache(cfg *config.Config) (cache.BytesCache, func(), error) {
	if !cfg.Provider.Cache.Enabled {
		return cache.Nop{}, func() {}, nil
	}
	if cfg.Provider.Cache.Backend != "redis" {
		return cache.NewTTLCache(), func() {}, nil
	}
	rc := cache.NewRedisCache(cache.RedisConfig{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		_ = rc.Close()
		return nil, nil, err
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideLayout fixes the input column layout from configuration.
func ProvideLayout(cfg *config.Config) features.Layout {
	idx := make([]features.IndexSpec, len(cfg.Market.Indices))
	for i, m := range cfg.Market.Indices {
		idx[i] = features.IndexSpec{Name: m.Name, HasVolume: m.HasVolume}
	}
	return features.Layout{
		Periods:          cfg.Features.Periods,
		PeriodIndicators: cfg.Features.PeriodIndicators,
		PlainIndicators:  cfg.Features.PlainIndicators,
		IncludeVolume:    cfg.VolumeEnabled(),
		Indices:          idx,
	}
}

// ProvideMarketData returns the Finnhub client, or the offline provider that
// computes indicators from local candle files.
func ProvideMarketData(cfg *config.Config, layout features.Layout, bc cache.BytesCache, m drepo.Metrics, l *applogger.Logger) (drepo.MarketData, error) {
	if cfg.Provider.Type == "local" {
		if err := indicators.CheckRequests(layout.Requests()); err != nil {
			return nil, fmt.Errorf("local provider: %w", err)
		}
		return indicators.NewProvider(internalrepo.NewCSVCandleSource(cfg.Provider.Local.Dir)), nil
	}
	return finnhub.New(cfg.Provider.Finnhub.BaseURL, cfg.Provider.Finnhub.APIKey,
		finnhub.WithThrottle(ratelimit.NewThrottle(cfg.Provider.CallInterval)),
		finnhub.WithCache(bc, cfg.Provider.Cache.TTL),
		finnhub.WithMetrics(m),
		finnhub.WithLogger(l.With(applogger.String("component", "finnhub"))),
		finnhub.WithResolution(drepo.NormalizeResolution(cfg.Provider.Resolution)),
		finnhub.WithTimeout(cfg.Provider.Finnhub.Timeout),
	), nil
}

// ProvideThresholdTable validates the configured severity levels.
func ProvideThresholdTable(cfg *config.Config) (*labeling.ThresholdTable, error) {
	levels := make([]labeling.Level, len(cfg.Labeling.Thresholds))
	for i, t := range cfg.Labeling.Thresholds {
		levels[i] = labeling.Level{Threshold: t.Threshold, Label: t.Label}
	}
	return labeling.NewThresholdTable(levels)
}

func ProvideLabeler(table *labeling.ThresholdTable) *labeling.Labeler {
	return labeling.NewLabeler(table)
}

func ProvideResolver(cfg *config.Config) (*features.Resolver, error) {
	policy, err := features.ParsePolicy(cfg.Dataset.MissingPolicy)
	if err != nil {
		return nil, err
	}
	return features.NewResolver(policy), nil
}

// ProvideDatasetStore opens the configured training table sink.
func ProvideDatasetStore(cfg *config.Config, labeler *labeling.Labeler, l *applogger.Logger) (drepo.DatasetStore, func(), error) {
	if cfg.Dataset.Sink != "clickhouse" {
		s := internalrepo.NewCSVDatasetStore(cfg.Dataset.CSVPath, labeler.Vocabulary(), l)
		return s, func() { _ = s.Close() }, nil
	}
	ch, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	s, err := internalrepo.NewCHDatasetStore(ch, cfg.Dataset.Table, l)
	if err != nil {
		_ = ch.Close()
		return nil, nil, err
	}
	return s, func() {
		if err := s.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}, nil
}

func indexSpecs(cfg *config.Config) []internalrepo.IndexSpec {
	out := make([]internalrepo.IndexSpec, len(cfg.Market.Indices))
	for i, m := range cfg.Market.Indices {
		out[i] = internalrepo.IndexSpec{Name: m.Name, Source: m.Source, Path: m.Path, Symbol: m.Symbol, HasVolume: m.HasVolume}
	}
	return out
}

// ProvideDatasetIndexLoader loads market indices over the dataset date range.
func ProvideDatasetIndexLoader(cfg *config.Config, data drepo.MarketData, l *applogger.Logger) drepo.MarketIndexSource {
	return internalrepo.NewIndexLoader(indexSpecs(cfg), data, cfg.DatasetWindow, l)
}

func ProvideBuildConfig(cfg *config.Config, layout features.Layout) usecase.BuildConfig {
	from, to := cfg.DatasetWindow()
	return usecase.BuildConfig{
		Layout:     layout,
		Horizon:    cfg.Labeling.Horizon,
		From:       from,
		To:         to,
		SkipFailed: cfg.Dataset.SkipFailed,
	}
}

func ProvideTrainParams(cfg *config.Config) usecase.TrainParams {
	return usecase.TrainParams{
		Name:     filepath.Base(cfg.Training.ModelDir),
		ModelDir: cfg.Training.ModelDir,
		Symbols:  cfg.Dataset.Symbols,
		Horizon:  cfg.Labeling.Horizon,
		Train: classifier.TrainConfig{
			TestSize:      cfg.Training.TestSize,
			Seed:          cfg.Training.Seed,
			Epochs:        cfg.Training.Epochs,
			BatchSize:     cfg.Training.BatchSize,
			EvalBatchSize: cfg.Training.EvalBatchSize,
			LearningRate:  cfg.Training.LearningRate,
			HiddenLayers:  cfg.Training.HiddenLayers,
		},
	}
}

// ProvideModel loads the trained bundle and checks it against the configured layout.
func ProvideModel(cfg *config.Config, layout features.Layout, labeler *labeling.Labeler) (*classifier.Model, error) {
	model, err := classifier.LoadBundle(cfg.Training.ModelDir)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if err := model.CheckLayout(layout.Columns(), labeler.Vocabulary()); err != nil {
		return nil, fmt.Errorf("model %s: %w", cfg.Training.ModelDir, err)
	}
	return model, nil
}

// ProvideClassifier scores in process or through the remote model server.
func ProvideClassifier(cfg *config.Config, model *classifier.Model) dsvc.Classifier {
	if cfg.Classifier.Backend == "http" {
		return classifier.NewRemoteClassifier(model, cfg.Classifier.HTTP.URL, cfg.Classifier.HTTP.Timeout)
	}
	return model
}

func ProvideInferenceWindow(cfg *config.Config) usecase.InferenceWindow {
	return usecase.InferenceWindow{
		LookbackDays:  cfg.Inference.LookbackDays,
		DaysSinceLast: cfg.Inference.DaysSinceLast,
	}
}

// ProvideInferenceIndexLoader loads market indices over the inference window.
func ProvideInferenceIndexLoader(cfg *config.Config, data drepo.MarketData, window usecase.InferenceWindow, l *applogger.Logger) drepo.MarketIndexSource {
	return internalrepo.NewIndexLoader(indexSpecs(cfg), data, func() (time.Time, time.Time) {
		return window.Bounds(time.Now())
	}, l)
}

// ProvideAssembler builds the inference assembler on a freshly loaded market block.
func ProvideAssembler(cfg *config.Config, layout features.Layout, labeler *labeling.Labeler, indices drepo.MarketIndexSource) (*features.Assembler, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	loaded, err := indices.LoadIndices(ctx)
	if err != nil {
		return nil, err
	}
	block, err := features.BuildMarketBlock(loaded, layout.Periods)
	if err != nil {
		return nil, err
	}
	return features.NewAssembler(layout, labeler, cfg.Labeling.Horizon, block)
}

// ProvideRecorder opens the prediction journal.
func ProvideRecorder(cfg *config.Config, producer *pkgkafka.Producer) (drepo.PredictionRecorder, func(), error) {
	switch cfg.Recorder.Type {
	case "sqlite":
		r, err := internalrepo.NewSQLiteRecorder(cfg.Recorder.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	case "kafka":
		if producer == nil {
			return nil, nil, fmt.Errorf("kafka recorder: kafka is disabled")
		}
		return internalrepo.NewKafkaRecorder(producer, cfg.Kafka.PredictionsTopic), func() {}, nil
	default:
		return internalrepo.NopRecorder{}, func() {}, nil
	}
}

func ProvideMarketRefresher(cfg *config.Config, indices drepo.MarketIndexSource, predictor *usecase.Predictor, l *applogger.Logger) *usecase.MarketRefresher {
	return usecase.NewMarketRefresher(indices, predictor, cfg.Features.Periods, cfg.Market.RefreshCron,
		l.With(applogger.String("component", "refresher")))
}

// ProvideBanner is what the interactive loop greets with.
func ProvideBanner(model *classifier.Model) repl.Banner {
	return repl.Banner{
		Title:        model.Manifest.Name,
		Symbols:      model.Manifest.Symbols,
		Thresholds:   model.Manifest.Thresholds,
		TestAccuracy: model.Manifest.Metrics.TestAccuracy,
	}
}

func ProvideREPL(cfg *config.Config, predictor *usecase.Predictor, banner repl.Banner, l *applogger.Logger) *repl.Session {
	return repl.NewSession(predictor, banner, cfg.REPL.ExitToken, os.Stdin, os.Stdout, l)
}

func ProvidePredictHandler(model *classifier.Model, predictor *usecase.Predictor, recorder drepo.PredictionRecorder, l *applogger.Logger) *api.PredictHandler {
	h := api.NewPredictHandler(l, predictor, api.ModelInfo{
		Name:         model.Manifest.Name,
		Horizon:      model.Manifest.Horizon,
		Symbols:      model.Manifest.Symbols,
		TestAccuracy: model.Manifest.Metrics.TestAccuracy,
	})
	if history, ok := recorder.(drepo.PredictionHistory); ok {
		h.WithHistory(history)
	}
	return h
}

// ProvideHTTPServer creates the echo server with the prediction routes.
func ProvideHTTPServer(cfg *config.Config, h *api.PredictHandler, l *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithCORS(cfg.CORSEnabled()),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMiddleware(ratelimit.New().Middleware(apiBurst, apiPerSecond)),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path))
	}
	return xhttp.NewServer(h, l, opts...)
}

// ProvideApp creates the serve-mode application.
func ProvideApp(cfg *config.Config, srv *xhttp.Server, refresher *usecase.MarketRefresher, l *applogger.Logger) *server.App {
	return server.New(srv, l, cfg.Server.ShutdownTimeout, refresher)
}
